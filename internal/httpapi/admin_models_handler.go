package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"reply_engine/internal/models"
	"reply_engine/internal/storage"
	"reply_engine/internal/utils"
)

// AdminModelsHandler manages the per-provider model catalog used for cost
// estimation
type AdminModelsHandler struct {
	db     *storage.DB
	audit  auditAppender
	logger *utils.Logger
}

// NewAdminModelsHandler creates a new admin models handler
func NewAdminModelsHandler(db *storage.DB) *AdminModelsHandler {
	return &AdminModelsHandler{
		db:     db,
		audit:  storage.NewAuditRepository(db),
		logger: utils.NewLogger("admin-models"),
	}
}

// ModelRequest registers or updates a model entry for a provider
type ModelRequest struct {
	Name            string  `json:"name"`
	InputCostPer1K  float64 `json:"input_cost_per_1k"`
	OutputCostPer1K float64 `json:"output_cost_per_1k"`
	AvgLatencyMS    int     `json:"avg_latency_ms,omitempty"`
	IsDefault       bool    `json:"is_default"`
}

// List handles GET /admin/providers/{id}/models
func (h *AdminModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	providerID, _, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	list, err := storage.NewModelRepository(h.db).ListByProvider(r.Context(), providerID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list models")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, list)
}

// Upsert handles PUT /admin/providers/{id}/models - register or update a
// model's cost profile
func (h *AdminModelsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	providerID, provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	var req ModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Model name is required")
		return
	}
	if req.InputCostPer1K < 0 || req.OutputCostPer1K < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Costs must not be negative")
		return
	}

	model := &models.Model{
		ProviderID:      providerID,
		Name:            req.Name,
		InputCostPer1K:  req.InputCostPer1K,
		OutputCostPer1K: req.OutputCostPer1K,
		AvgLatencyMS:    req.AvgLatencyMS,
		IsDefault:       req.IsDefault,
	}

	// The upsert may land on an existing row and keep its id, so the audit
	// entry identifies the model by provider and name.
	if !auditOrFail(w, h.audit, r, provider.WorkspaceID, models.AuditModelUpserted, "model", nil, models.JSONB{
		"provider_id": providerID.String(),
		"name":        model.Name,
	}, h.logger) {
		return
	}

	if err := storage.NewModelRepository(h.db).Upsert(r.Context(), model); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to save model")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, model)
}

// Delete handles DELETE /admin/providers/{id}/models/{modelID}
func (h *AdminModelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	providerID, provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	modelID, err := uuid.Parse(r.PathValue("modelID"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid model ID")
		return
	}

	if !auditOrFail(w, h.audit, r, provider.WorkspaceID, models.AuditModelDeleted, "model", &modelID, models.JSONB{
		"provider_id": providerID.String(),
	}, h.logger) {
		return
	}

	if err := storage.NewModelRepository(h.db).Delete(r.Context(), modelID); err != nil {
		if errors.Is(err, storage.ErrModelNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete model")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Model deleted",
	})
}

func (h *AdminModelsHandler) loadProvider(w http.ResponseWriter, r *http.Request) (uuid.UUID, *models.Provider, bool) {
	providerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider ID")
		return uuid.Nil, nil, false
	}

	provider, err := storage.NewProviderRepository(h.db).GetByID(r.Context(), providerID)
	if err != nil {
		if errors.Is(err, storage.ErrProviderNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
			return uuid.Nil, nil, false
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get provider")
		return uuid.Nil, nil, false
	}

	return providerID, provider, true
}
