package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"reply_engine/internal/models"
)

// RuleRepository handles routing rule database operations
type RuleRepository struct {
	db *DB
}

// NewRuleRepository creates a new routing rule repository
func NewRuleRepository(db *DB) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `
	id, workspace_id, channel_type, sentiment_class, risk_level, provider_id,
	model_override, action_mode, priority, is_active, created_at
`

// GetByID retrieves a routing rule by ID
func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RoutingRule, error) {
	var rule models.RoutingRule
	query := fmt.Sprintf(`SELECT %s FROM routing_rules WHERE id = $1`, ruleColumns)

	err := r.db.conn.GetContext(ctx, &rule, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get routing rule: %w", err)
	}

	return &rule, nil
}

// ListByWorkspace returns all rules for a workspace, matching order first.
func (r *RuleRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*models.RoutingRule, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM routing_rules
		WHERE workspace_id = $1
		ORDER BY priority, created_at
	`, ruleColumns)

	var rules []*models.RoutingRule
	err := r.db.conn.SelectContext(ctx, &rules, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list routing rules: %w", err)
	}

	return rules, nil
}

// ListActiveByWorkspace returns the active rules the matcher evaluates,
// already ordered by priority then creation time.
func (r *RuleRepository) ListActiveByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*models.RoutingRule, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM routing_rules
		WHERE workspace_id = $1 AND is_active = TRUE
		ORDER BY priority, created_at
	`, ruleColumns)

	var rules []*models.RoutingRule
	err := r.db.conn.SelectContext(ctx, &rules, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active routing rules: %w", err)
	}

	return rules, nil
}

// Create creates a new routing rule
func (r *RuleRepository) Create(ctx context.Context, rule *models.RoutingRule) error {
	query := `
		INSERT INTO routing_rules (id, workspace_id, channel_type,
		                           sentiment_class, risk_level, provider_id,
		                           model_override, action_mode, priority,
		                           is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		rule.ID, rule.WorkspaceID, rule.ChannelType, rule.Sentiment,
		rule.Risk, rule.ProviderID, rule.ModelOverride, rule.ActionMode,
		rule.Priority, rule.IsActive,
	).Scan(&rule.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create routing rule: %w", err)
	}

	return nil
}

// Update updates an existing routing rule
func (r *RuleRepository) Update(ctx context.Context, rule *models.RoutingRule) error {
	query := `
		UPDATE routing_rules
		SET channel_type = $2, sentiment_class = $3, risk_level = $4,
		    provider_id = $5, model_override = $6, action_mode = $7,
		    priority = $8, is_active = $9
		WHERE id = $1
	`

	result, err := r.db.conn.ExecContext(
		ctx, query,
		rule.ID, rule.ChannelType, rule.Sentiment, rule.Risk,
		rule.ProviderID, rule.ModelOverride, rule.ActionMode,
		rule.Priority, rule.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to update routing rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// Delete removes a routing rule
func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.conn.ExecContext(ctx, `DELETE FROM routing_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete routing rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRuleNotFound
	}

	return nil
}
