package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"reply_engine/internal/models"
)

// ProviderRepository handles provider database operations
type ProviderRepository struct {
	db *DB
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(db *DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

const providerColumns = `
	id, workspace_id, name, kind, base_url, encrypted_api_key, org_id,
	default_model, timeout_ms, max_retries, rate_limit_per_minute,
	is_active, created_at, updated_at
`

// GetByID retrieves a provider by ID
func (r *ProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	query := fmt.Sprintf(`SELECT %s FROM providers WHERE id = $1`, providerColumns)

	err := r.db.conn.GetContext(ctx, &provider, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return &provider, nil
}

// ListByWorkspace returns all providers owned by a workspace
func (r *ProviderRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*models.Provider, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM providers
		WHERE workspace_id = $1
		ORDER BY name
	`, providerColumns)

	var providers []*models.Provider
	err := r.db.conn.SelectContext(ctx, &providers, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	return providers, nil
}

// Create creates a new provider
func (r *ProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	query := `
		INSERT INTO providers (id, workspace_id, name, kind, base_url,
		                       encrypted_api_key, org_id, default_model,
		                       timeout_ms, max_retries, rate_limit_per_minute,
		                       is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	if provider.ID == uuid.Nil {
		provider.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		provider.ID, provider.WorkspaceID, provider.Name, provider.Kind,
		provider.BaseURL, provider.EncryptedAPIKey, provider.OrgID,
		provider.DefaultModel, provider.TimeoutMS, provider.MaxRetries,
		provider.RateLimitPerMinute, provider.IsActive,
	).Scan(&provider.CreatedAt, &provider.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	return nil
}

// Update updates an existing provider. The encrypted credential is not
// touched here; use UpdateSecret for rotation.
func (r *ProviderRepository) Update(ctx context.Context, provider *models.Provider) error {
	query := `
		UPDATE providers
		SET name = $2, kind = $3, base_url = $4, org_id = $5,
		    default_model = $6, timeout_ms = $7, max_retries = $8,
		    rate_limit_per_minute = $9, is_active = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		provider.ID, provider.Name, provider.Kind, provider.BaseURL,
		provider.OrgID, provider.DefaultModel, provider.TimeoutMS,
		provider.MaxRetries, provider.RateLimitPerMinute, provider.IsActive,
	).Scan(&provider.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return ErrProviderNotFound
		}
		return fmt.Errorf("failed to update provider: %w", err)
	}

	return nil
}

// UpdateSecret replaces the stored credential ciphertext.
func (r *ProviderRepository) UpdateSecret(ctx context.Context, id uuid.UUID, encryptedAPIKey string) error {
	query := `
		UPDATE providers
		SET encrypted_api_key = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.conn.ExecContext(ctx, query, id, encryptedAPIKey)
	if err != nil {
		return fmt.Errorf("failed to rotate provider secret: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrProviderNotFound
	}

	return nil
}

// Delete removes a provider and detaches everything that references it:
// routing rules pointing at it are deactivated and fallback chain slots
// naming it are cleared, all in one transaction so the engine never sees a
// half-detached provider.
func (r *ProviderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE routing_rules SET is_active = FALSE WHERE provider_id = $1`, id); err != nil {
		return fmt.Errorf("failed to deactivate referencing rules: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE fallback_policies
		SET primary_provider_id   = CASE WHEN primary_provider_id   = $1 THEN NULL ELSE primary_provider_id END,
		    secondary_provider_id = CASE WHEN secondary_provider_id = $1 THEN NULL ELSE secondary_provider_id END,
		    tertiary_provider_id  = CASE WHEN tertiary_provider_id  = $1 THEN NULL ELSE tertiary_provider_id END,
		    updated_at = NOW()
		WHERE primary_provider_id = $1
		   OR secondary_provider_id = $1
		   OR tertiary_provider_id = $1
	`, id); err != nil {
		return fmt.Errorf("failed to clear fallback slots: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM providers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrProviderNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
