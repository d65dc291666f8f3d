package httpapi

import (
	"errors"
	"net/http"

	"reply_engine/internal/queue"
	"reply_engine/internal/storage"
	"reply_engine/internal/utils"
)

// AdminOpsHandler exposes operational views of the execution-log pipeline
type AdminOpsHandler struct {
	db     *storage.DB
	worker *storage.ExecutionQueueWorker
	logger *utils.Logger
}

// NewAdminOpsHandler creates a new admin ops handler
func NewAdminOpsHandler(db *storage.DB, worker *storage.ExecutionQueueWorker) *AdminOpsHandler {
	return &AdminOpsHandler{
		db:     db,
		worker: worker,
		logger: utils.NewLogger("admin-ops"),
	}
}

// Stats handles GET /admin/stats - database pool, cache and queue statistics
func (h *AdminOpsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	dbStats := h.db.GetStats()

	queueLength, err := h.worker.GetQueueLength(r.Context())
	if err != nil {
		h.logger.Warn("Failed to read queue length", "error", err)
		queueLength = -1
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"database": map[string]interface{}{
			"open_connections": dbStats.OpenConnections,
			"in_use":           dbStats.InUse,
			"idle":             dbStats.Idle,
			"wait_count":       dbStats.WaitCount,
		},
		"caches": map[string]interface{}{
			"rules":    dbStats.RuleCacheStats,
			"policies": dbStats.PolicyCacheStats,
		},
		"execution_queue": map[string]interface{}{
			"depth": queueLength,
		},
	})
}

// ListDeadLetters handles GET /admin/execlog/dlq - inspect entries the
// batch writer gave up on
func (h *AdminOpsHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	maxItems := parseIntParam(r.URL.Query().Get("limit"), 100)

	items, err := h.worker.GetDeadLetterItems(r.Context(), maxItems)
	if err != nil {
		h.logger.Error("Failed to list dead letter items", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list dead letter items")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// RetryDeadLetter handles POST /admin/execlog/dlq/{id}/retry - re-enqueue a
// parked entry
func (h *AdminOpsHandler) RetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Dead letter ID is required")
		return
	}

	if err := h.worker.RetryDeadLetterItem(r.Context(), id); err != nil {
		if errors.Is(err, queue.ErrItemNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Dead letter item not found")
			return
		}
		h.logger.Error("Failed to retry dead letter item", "id", id, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retry dead letter item")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Entry re-enqueued",
	})
}
