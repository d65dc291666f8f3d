package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"reply_engine/internal/models"
)

// ExecutionRepository handles execution log database operations. The table
// is append-only: rows are inserted once per terminal decision and never
// updated or deleted.
type ExecutionRepository struct {
	db *DB
}

// NewExecutionRepository creates a new execution log repository
func NewExecutionRepository(db *DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

const executionColumns = `
	id, workspace_id, channel_type, provider_id, model_name, decision,
	latency_ms, input_tokens, output_tokens, estimated_cost, error_code,
	hops, created_at
`

const executionInsert = `
	INSERT INTO execution_logs (id, workspace_id, channel_type, provider_id,
	                            model_name, decision, latency_ms,
	                            input_tokens, output_tokens, estimated_cost,
	                            error_code, hops, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

// Create inserts a single execution log entry
func (r *ExecutionRepository) Create(ctx context.Context, entry *models.ExecutionLog) error {
	return r.create(ctx, r.db.conn, entry)
}

// CreateBatch inserts a batch of entries in one transaction.
func (r *ExecutionRepository) CreateBatch(ctx context.Context, entries []*models.ExecutionLog) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, entry := range entries {
		if err := r.create(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) create(ctx context.Context, ext sqlx.ExtContext, entry *models.ExecutionLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := ext.ExecContext(
		ctx, executionInsert,
		entry.ID, entry.WorkspaceID, entry.ChannelType, entry.ProviderID,
		entry.ModelName, entry.Decision, entry.LatencyMS, entry.InputTokens,
		entry.OutputTokens, entry.EstimatedCost, entry.ErrorCode, entry.Hops,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}

	return nil
}

// ExecutionListFilters narrows execution log queries
type ExecutionListFilters struct {
	ChannelType string
	Decision    string
	ProviderID  *uuid.UUID
	Since       *time.Time
	Until       *time.Time
	Page        int
	PageSize    int
}

// ExecutionListResult is one page of execution log entries
type ExecutionListResult struct {
	Entries    []*models.ExecutionLog
	TotalCount int
	Page       int
	PageSize   int
}

// ListByWorkspace returns a filtered, paginated view of a workspace's
// execution history, newest first.
func (r *ExecutionRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, filters ExecutionListFilters) (*ExecutionListResult, error) {
	where := "WHERE workspace_id = $1"
	args := []interface{}{workspaceID}
	argCount := 2

	if filters.ChannelType != "" {
		where += fmt.Sprintf(" AND channel_type = $%d", argCount)
		args = append(args, filters.ChannelType)
		argCount++
	}
	if filters.Decision != "" {
		where += fmt.Sprintf(" AND decision = $%d", argCount)
		args = append(args, filters.Decision)
		argCount++
	}
	if filters.ProviderID != nil {
		where += fmt.Sprintf(" AND provider_id = $%d", argCount)
		args = append(args, *filters.ProviderID)
		argCount++
	}
	if filters.Since != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filters.Since)
		argCount++
	}
	if filters.Until != nil {
		where += fmt.Sprintf(" AND created_at < $%d", argCount)
		args = append(args, *filters.Until)
		argCount++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM execution_logs %s", where)
	var totalCount int
	if err := r.db.conn.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count execution logs: %w", err)
	}

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 50
	}
	offset := (filters.Page - 1) * filters.PageSize

	dataQuery := fmt.Sprintf(`
		SELECT %s FROM execution_logs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, executionColumns, where, argCount, argCount+1)
	args = append(args, filters.PageSize, offset)

	var entries []*models.ExecutionLog
	if err := r.db.conn.SelectContext(ctx, &entries, dataQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}

	return &ExecutionListResult{
		Entries:    entries,
		TotalCount: totalCount,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
	}, nil
}
