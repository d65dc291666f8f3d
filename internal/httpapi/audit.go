package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"reply_engine/internal/middleware"
	"reply_engine/internal/models"
	"reply_engine/internal/utils"
)

// auditAppender is the slice of the audit repository the handlers need.
type auditAppender interface {
	Append(ctx context.Context, entry *models.AuditLog) error
}

// auditOrFail writes the audit entry BEFORE the mutation it describes and
// aborts the request when the write fails: a configuration change must never
// land unaudited. Returns false after responding when the caller must stop.
func auditOrFail(w http.ResponseWriter, sink auditAppender, r *http.Request, workspaceID uuid.UUID, action, entityType string, entityID *uuid.UUID, metadata models.JSONB, logger *utils.Logger) bool {
	if err := sink.Append(r.Context(), auditEntry(r, workspaceID, action, entityType, entityID, metadata)); err != nil {
		logger.Error("Failed to write audit log", "action", action, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record audit trail")
		return false
	}
	return true
}

// auditEvent records a non-mutating admin event (e.g. a connection test)
// after the fact; failures are logged but do not fail the request.
func auditEvent(sink auditAppender, r *http.Request, workspaceID uuid.UUID, action, entityType string, entityID *uuid.UUID, metadata models.JSONB, logger *utils.Logger) {
	if err := sink.Append(r.Context(), auditEntry(r, workspaceID, action, entityType, entityID, metadata)); err != nil {
		logger.Error("Failed to write audit log", "action", action, "error", err)
	}
}

func auditEntry(r *http.Request, workspaceID uuid.UUID, action, entityType string, entityID *uuid.UUID, metadata models.JSONB) *models.AuditLog {
	actor, _ := middleware.GetAdminActor(r.Context())

	return &models.AuditLog{
		WorkspaceID: workspaceID,
		Actor:       actor,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Metadata:    metadata,
		IPAddress:   clientIP(r),
		UserAgent:   r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return forwarded
	}
	return r.RemoteAddr
}
