package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"reply_engine/internal/models"
)

// ModelRepository handles model catalog database operations
type ModelRepository struct {
	db *DB
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *DB) *ModelRepository {
	return &ModelRepository{db: db}
}

const modelColumns = `
	id, provider_id, name, input_cost_per_1k, output_cost_per_1k,
	avg_latency_ms, is_default, created_at
`

// GetByProviderAndName retrieves a model by provider and name. Used for cost
// estimation on execution logs, so callers tolerate ErrModelNotFound.
func (r *ModelRepository) GetByProviderAndName(ctx context.Context, providerID uuid.UUID, name string) (*models.Model, error) {
	var model models.Model
	query := fmt.Sprintf(`
		SELECT %s FROM provider_models
		WHERE provider_id = $1 AND name = $2
	`, modelColumns)

	err := r.db.conn.GetContext(ctx, &model, query, providerID, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	return &model, nil
}

// ListByProvider returns all models registered for a provider
func (r *ModelRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Model, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM provider_models
		WHERE provider_id = $1
		ORDER BY name
	`, modelColumns)

	var list []*models.Model
	err := r.db.conn.SelectContext(ctx, &list, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	return list, nil
}

// Upsert creates or updates a model entry for a provider
func (r *ModelRepository) Upsert(ctx context.Context, model *models.Model) error {
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}

	query := `
		INSERT INTO provider_models (id, provider_id, name, input_cost_per_1k,
		                             output_cost_per_1k, avg_latency_ms,
		                             is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_id, name) DO UPDATE
		SET input_cost_per_1k = EXCLUDED.input_cost_per_1k,
		    output_cost_per_1k = EXCLUDED.output_cost_per_1k,
		    avg_latency_ms = EXCLUDED.avg_latency_ms,
		    is_default = EXCLUDED.is_default
		RETURNING id, created_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		model.ID, model.ProviderID, model.Name, model.InputCostPer1K,
		model.OutputCostPer1K, model.AvgLatencyMS, model.IsDefault,
	).Scan(&model.ID, &model.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert model: %w", err)
	}

	return nil
}

// Delete removes a model entry
func (r *ModelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.conn.ExecContext(ctx, `DELETE FROM provider_models WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrModelNotFound
	}

	return nil
}
