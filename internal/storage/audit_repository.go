package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"reply_engine/internal/models"
)

// AuditRepository handles audit log database operations. Append-only:
// entries are never updated or deleted.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit log repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditInsert = `
	INSERT INTO audit_logs (id, workspace_id, actor, action, entity_type,
	                        entity_id, metadata, ip_address, user_agent,
	                        created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// Append records a configuration mutation or security-relevant event.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditLog) error {
	return r.append(ctx, r.db.conn, entry)
}

// AppendTx records an audit entry inside an existing transaction so the
// mutation and its audit trail commit atomically.
func (r *AuditRepository) AppendTx(ctx context.Context, tx *sqlx.Tx, entry *models.AuditLog) error {
	return r.append(ctx, tx, entry)
}

func (r *AuditRepository) append(ctx context.Context, ext sqlx.ExtContext, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := ext.ExecContext(
		ctx, auditInsert,
		entry.ID, entry.WorkspaceID, entry.Actor, entry.Action,
		entry.EntityType, entry.EntityID, entry.Metadata, entry.IPAddress,
		entry.UserAgent, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// AuditListFilters narrows audit log queries
type AuditListFilters struct {
	Action     string
	EntityType string
	Since      *time.Time
	Page       int
	PageSize   int
}

// ListByWorkspace returns a workspace's audit trail, newest first.
func (r *AuditRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, filters AuditListFilters) ([]*models.AuditLog, error) {
	where := "WHERE workspace_id = $1"
	args := []interface{}{workspaceID}
	argCount := 2

	if filters.Action != "" {
		where += fmt.Sprintf(" AND action = $%d", argCount)
		args = append(args, filters.Action)
		argCount++
	}
	if filters.EntityType != "" {
		where += fmt.Sprintf(" AND entity_type = $%d", argCount)
		args = append(args, filters.EntityType)
		argCount++
	}
	if filters.Since != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filters.Since)
		argCount++
	}

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 50
	}
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`
		SELECT id, workspace_id, actor, action, entity_type, entity_id,
		       metadata, ip_address, user_agent, created_at
		FROM audit_logs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, argCount, argCount+1)
	args = append(args, filters.PageSize, offset)

	var entries []*models.AuditLog
	if err := r.db.conn.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	return entries, nil
}
