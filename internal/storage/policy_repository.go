package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"reply_engine/internal/models"
)

// PolicyRepository handles safety and fallback policy database operations.
// Both are workspace-scoped singletons: at most one active safety policy and
// one fallback policy per workspace.
type PolicyRepository struct {
	db *DB
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

const safetyPolicyColumns = `
	id, workspace_id, blocked_topics, escalation_keywords, redact_pii,
	allow_auto_send_low_risk, allow_auto_send_medium_risk,
	hard_escalate_high_risk, max_response_length, confidence_threshold,
	is_active, created_at, updated_at
`

// GetActiveSafetyPolicy returns the workspace's active safety policy.
func (r *PolicyRepository) GetActiveSafetyPolicy(ctx context.Context, workspaceID uuid.UUID) (*models.SafetyPolicy, error) {
	var policy models.SafetyPolicy
	query := fmt.Sprintf(`
		SELECT %s FROM safety_policies
		WHERE workspace_id = $1 AND is_active = TRUE
	`, safetyPolicyColumns)

	err := r.db.conn.GetContext(ctx, &policy, query, workspaceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to get safety policy: %w", err)
	}

	return &policy, nil
}

// GetSafetyPolicyByID retrieves a safety policy by ID
func (r *PolicyRepository) GetSafetyPolicyByID(ctx context.Context, id uuid.UUID) (*models.SafetyPolicy, error) {
	var policy models.SafetyPolicy
	query := fmt.Sprintf(`SELECT %s FROM safety_policies WHERE id = $1`, safetyPolicyColumns)

	err := r.db.conn.GetContext(ctx, &policy, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to get safety policy: %w", err)
	}

	return &policy, nil
}

// ListSafetyPolicies returns all safety policies for a workspace
func (r *PolicyRepository) ListSafetyPolicies(ctx context.Context, workspaceID uuid.UUID) ([]*models.SafetyPolicy, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM safety_policies
		WHERE workspace_id = $1
		ORDER BY created_at DESC
	`, safetyPolicyColumns)

	var policies []*models.SafetyPolicy
	err := r.db.conn.SelectContext(ctx, &policies, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list safety policies: %w", err)
	}

	return policies, nil
}

// CreateSafetyPolicy inserts a new safety policy. When the policy is created
// active, any previously active policy for the workspace is deactivated in
// the same transaction to preserve the single-active invariant.
func (r *PolicyRepository) CreateSafetyPolicy(ctx context.Context, policy *models.SafetyPolicy) error {
	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if policy.IsActive {
		if _, err := tx.ExecContext(ctx, `
			UPDATE safety_policies SET is_active = FALSE, updated_at = NOW()
			WHERE workspace_id = $1 AND is_active = TRUE
		`, policy.WorkspaceID); err != nil {
			return fmt.Errorf("failed to deactivate previous policy: %w", err)
		}
	}

	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}

	query := `
		INSERT INTO safety_policies (id, workspace_id, blocked_topics,
		                             escalation_keywords, redact_pii,
		                             allow_auto_send_low_risk,
		                             allow_auto_send_medium_risk,
		                             hard_escalate_high_risk,
		                             max_response_length,
		                             confidence_threshold, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRowxContext(
		ctx, query,
		policy.ID, policy.WorkspaceID, policy.BlockedTopics,
		policy.EscalationKeywords, policy.RedactPII,
		policy.AllowAutoSendLowRisk, policy.AllowAutoSendMediumRisk,
		policy.HardEscalateHighRisk, policy.MaxResponseLength,
		policy.ConfidenceThreshold, policy.IsActive,
	).Scan(&policy.CreatedAt, &policy.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create safety policy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpdateSafetyPolicy updates an existing safety policy, keeping the
// single-active invariant when the update activates it.
func (r *PolicyRepository) UpdateSafetyPolicy(ctx context.Context, policy *models.SafetyPolicy) error {
	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if policy.IsActive {
		if _, err := tx.ExecContext(ctx, `
			UPDATE safety_policies SET is_active = FALSE, updated_at = NOW()
			WHERE workspace_id = $1 AND is_active = TRUE AND id != $2
		`, policy.WorkspaceID, policy.ID); err != nil {
			return fmt.Errorf("failed to deactivate previous policy: %w", err)
		}
	}

	query := `
		UPDATE safety_policies
		SET blocked_topics = $2, escalation_keywords = $3, redact_pii = $4,
		    allow_auto_send_low_risk = $5, allow_auto_send_medium_risk = $6,
		    hard_escalate_high_risk = $7, max_response_length = $8,
		    confidence_threshold = $9, is_active = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = tx.QueryRowxContext(
		ctx, query,
		policy.ID, policy.BlockedTopics, policy.EscalationKeywords,
		policy.RedactPII, policy.AllowAutoSendLowRisk,
		policy.AllowAutoSendMediumRisk, policy.HardEscalateHighRisk,
		policy.MaxResponseLength, policy.ConfidenceThreshold, policy.IsActive,
	).Scan(&policy.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return ErrPolicyNotFound
		}
		return fmt.Errorf("failed to update safety policy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const fallbackPolicyColumns = `
	id, workspace_id, primary_provider_id, secondary_provider_id,
	tertiary_provider_id, created_at, updated_at
`

// GetFallbackPolicy returns the workspace's fallback policy.
func (r *PolicyRepository) GetFallbackPolicy(ctx context.Context, workspaceID uuid.UUID) (*models.FallbackPolicy, error) {
	var policy models.FallbackPolicy
	query := fmt.Sprintf(`
		SELECT %s FROM fallback_policies WHERE workspace_id = $1
	`, fallbackPolicyColumns)

	err := r.db.conn.GetContext(ctx, &policy, query, workspaceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFallbackPolicyNotFound
		}
		return nil, fmt.Errorf("failed to get fallback policy: %w", err)
	}

	return &policy, nil
}

// UpsertFallbackPolicy creates or replaces the workspace's fallback policy.
// Chain validation happens at the handler boundary; the repository only
// persists.
func (r *PolicyRepository) UpsertFallbackPolicy(ctx context.Context, policy *models.FallbackPolicy) error {
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}

	query := `
		INSERT INTO fallback_policies (id, workspace_id, primary_provider_id,
		                               secondary_provider_id,
		                               tertiary_provider_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (workspace_id) DO UPDATE
		SET primary_provider_id = EXCLUDED.primary_provider_id,
		    secondary_provider_id = EXCLUDED.secondary_provider_id,
		    tertiary_provider_id = EXCLUDED.tertiary_provider_id,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		policy.ID, policy.WorkspaceID, policy.PrimaryProviderID,
		policy.SecondaryProviderID, policy.TertiaryProviderID,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert fallback policy: %w", err)
	}

	return nil
}
