package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"reply_engine/internal/storage"
	"reply_engine/internal/utils"
)

// AdminLogsHandler serves the execution and audit history read endpoints
type AdminLogsHandler struct {
	db     *storage.DB
	logger *utils.Logger
}

// NewAdminLogsHandler creates a new admin logs handler
func NewAdminLogsHandler(db *storage.DB) *AdminLogsHandler {
	return &AdminLogsHandler{
		db:     db,
		logger: utils.NewLogger("admin-logs"),
	}
}

// ListExecutions handles GET /admin/executions?workspace_id= with optional
// channel_type, decision, provider_id, since, until, page, page_size filters
func (h *AdminLogsHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(r.URL.Query().Get("workspace_id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid workspace_id")
		return
	}

	query := r.URL.Query()
	filters := storage.ExecutionListFilters{
		ChannelType: query.Get("channel_type"),
		Decision:    query.Get("decision"),
		Page:        parseIntParam(query.Get("page"), 1),
		PageSize:    parseIntParam(query.Get("page_size"), 50),
	}

	if raw := query.Get("provider_id"); raw != "" {
		providerID, err := uuid.Parse(raw)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider_id")
			return
		}
		filters.ProviderID = &providerID
	}

	filters.Since, err = parseTimeParam(query.Get("since"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid since timestamp")
		return
	}
	filters.Until, err = parseTimeParam(query.Get("until"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid until timestamp")
		return
	}

	result, err := storage.NewExecutionRepository(h.db).ListByWorkspace(r.Context(), workspaceID, filters)
	if err != nil {
		h.logger.Error("Failed to list execution logs", "workspace_id", workspaceID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list execution logs")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"entries":     result.Entries,
		"total_count": result.TotalCount,
		"page":        result.Page,
		"page_size":   result.PageSize,
	})
}

// ListAudit handles GET /admin/audit?workspace_id= with optional action,
// entity_type, since, page, page_size filters
func (h *AdminLogsHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(r.URL.Query().Get("workspace_id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid workspace_id")
		return
	}

	query := r.URL.Query()
	filters := storage.AuditListFilters{
		Action:     query.Get("action"),
		EntityType: query.Get("entity_type"),
		Page:       parseIntParam(query.Get("page"), 1),
		PageSize:   parseIntParam(query.Get("page_size"), 50),
	}

	filters.Since, err = parseTimeParam(query.Get("since"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid since timestamp")
		return
	}

	entries, err := storage.NewAuditRepository(h.db).ListByWorkspace(r.Context(), workspaceID, filters)
	if err != nil {
		h.logger.Error("Failed to list audit logs", "workspace_id", workspaceID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list audit logs")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

func parseIntParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
