package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"reply_engine/internal/engine"
	"reply_engine/internal/models"
	"reply_engine/internal/storage"
	"reply_engine/internal/utils"
	"reply_engine/internal/vault"
)

// AdminProvidersHandler handles provider management endpoints
type AdminProvidersHandler struct {
	db      *storage.DB
	vault   *vault.Vault
	invoker engine.Invoker
	audit   auditAppender
	logger  *utils.Logger
}

// NewAdminProvidersHandler creates a new admin providers handler
func NewAdminProvidersHandler(db *storage.DB, v *vault.Vault, invoker engine.Invoker) *AdminProvidersHandler {
	return &AdminProvidersHandler{
		db:      db,
		vault:   v,
		invoker: invoker,
		audit:   storage.NewAuditRepository(db),
		logger:  utils.NewLogger("admin-providers"),
	}
}

// CreateProviderRequest represents the request to create a new provider
type CreateProviderRequest struct {
	WorkspaceID        string `json:"workspace_id"`
	Name               string `json:"name"`
	Kind               string `json:"kind"`
	BaseURL            string `json:"base_url"`
	APIKey             string `json:"api_key"`
	OrgID              string `json:"org_id,omitempty"`
	DefaultModel       string `json:"default_model"`
	TimeoutMS          int    `json:"timeout_ms,omitempty"`
	MaxRetries         int    `json:"max_retries,omitempty"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute,omitempty"`
	IsActive           bool   `json:"is_active"`
}

// UpdateProviderRequest represents the request to update a provider. The API
// key is not updatable here; use the rotate endpoint.
type UpdateProviderRequest struct {
	Name               *string `json:"name,omitempty"`
	Kind               *string `json:"kind,omitempty"`
	BaseURL            *string `json:"base_url,omitempty"`
	OrgID              *string `json:"org_id,omitempty"`
	DefaultModel       *string `json:"default_model,omitempty"`
	TimeoutMS          *int    `json:"timeout_ms,omitempty"`
	MaxRetries         *int    `json:"max_retries,omitempty"`
	RateLimitPerMinute *int    `json:"rate_limit_per_minute,omitempty"`
	IsActive           *bool   `json:"is_active,omitempty"`
}

// ProviderResponse is a provider with its credential masked. Plaintext keys
// never appear in responses.
type ProviderResponse struct {
	ID                 string `json:"id"`
	WorkspaceID        string `json:"workspace_id"`
	Name               string `json:"name"`
	Kind               string `json:"kind"`
	BaseURL            string `json:"base_url"`
	APIKeyMasked       string `json:"api_key_masked"`
	OrgID              string `json:"org_id,omitempty"`
	DefaultModel       string `json:"default_model"`
	TimeoutMS          int    `json:"timeout_ms"`
	MaxRetries         int    `json:"max_retries"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	IsActive           bool   `json:"is_active"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

func (h *AdminProvidersHandler) toResponse(p *models.Provider) *ProviderResponse {
	masked := "********"
	if plaintext, err := h.vault.Decrypt(p.EncryptedAPIKey); err == nil {
		masked = vault.Mask(plaintext)
	}

	return &ProviderResponse{
		ID:                 p.ID.String(),
		WorkspaceID:        p.WorkspaceID.String(),
		Name:               p.Name,
		Kind:               string(p.Kind),
		BaseURL:            p.BaseURL,
		APIKeyMasked:       masked,
		OrgID:              p.OrgID,
		DefaultModel:       p.DefaultModel,
		TimeoutMS:          p.TimeoutMS,
		MaxRetries:         p.MaxRetries,
		RateLimitPerMinute: p.RateLimitPerMinute,
		IsActive:           p.IsActive,
		CreatedAt:          p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:          p.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// Create handles POST /admin/providers - register a new provider
func (h *AdminProvidersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	workspaceID, err := uuid.Parse(req.WorkspaceID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid workspace_id")
		return
	}
	if req.Name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Provider name is required")
		return
	}
	if !models.ValidProviderKind(req.Kind) {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider kind")
		return
	}
	if req.BaseURL == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Base URL is required")
		return
	}
	if req.APIKey == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "API key is required")
		return
	}

	encrypted, err := h.vault.Encrypt(req.APIKey)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to encrypt credential")
		return
	}

	provider := &models.Provider{
		ID:                 uuid.New(),
		WorkspaceID:        workspaceID,
		Name:               req.Name,
		Kind:               models.ProviderKind(req.Kind),
		BaseURL:            strings.TrimRight(req.BaseURL, "/"),
		EncryptedAPIKey:    encrypted,
		OrgID:              req.OrgID,
		DefaultModel:       req.DefaultModel,
		TimeoutMS:          req.TimeoutMS,
		MaxRetries:         req.MaxRetries,
		RateLimitPerMinute: req.RateLimitPerMinute,
		IsActive:           req.IsActive,
	}

	if !auditOrFail(w, h.audit, r, workspaceID, models.AuditProviderCreated, "provider", &provider.ID, models.JSONB{
		"name": provider.Name,
		"kind": string(provider.Kind),
	}, h.logger) {
		return
	}

	providerRepo := storage.NewProviderRepository(h.db)
	if err := providerRepo.Create(r.Context(), provider); err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			utils.RespondWithError(w, http.StatusConflict, "Provider with this name already exists")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create provider")
		return
	}

	h.db.InvalidateWorkspace(workspaceID.String())

	utils.RespondWithJSON(w, http.StatusCreated, h.toResponse(provider))
}

// List handles GET /admin/providers?workspace_id= - list workspace providers
func (h *AdminProvidersHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(r.URL.Query().Get("workspace_id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid workspace_id")
		return
	}

	providerRepo := storage.NewProviderRepository(h.db)
	providers, err := providerRepo.ListByWorkspace(r.Context(), workspaceID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list providers")
		return
	}

	responses := make([]*ProviderResponse, 0, len(providers))
	for _, p := range providers {
		responses = append(responses, h.toResponse(p))
	}

	utils.RespondWithJSON(w, http.StatusOK, responses)
}

// GetByID handles GET /admin/providers/{id} - get provider details
func (h *AdminProvidersHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, h.toResponse(provider))
}

// Update handles PUT /admin/providers/{id} - update provider settings
func (h *AdminProvidersHandler) Update(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	var req UpdateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Name != nil {
		provider.Name = *req.Name
	}
	if req.Kind != nil {
		if !models.ValidProviderKind(*req.Kind) {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider kind")
			return
		}
		provider.Kind = models.ProviderKind(*req.Kind)
	}
	if req.BaseURL != nil {
		provider.BaseURL = strings.TrimRight(*req.BaseURL, "/")
	}
	if req.OrgID != nil {
		provider.OrgID = *req.OrgID
	}
	if req.DefaultModel != nil {
		provider.DefaultModel = *req.DefaultModel
	}
	if req.TimeoutMS != nil {
		provider.TimeoutMS = *req.TimeoutMS
	}
	if req.MaxRetries != nil {
		provider.MaxRetries = *req.MaxRetries
	}
	if req.RateLimitPerMinute != nil {
		provider.RateLimitPerMinute = *req.RateLimitPerMinute
	}
	if req.IsActive != nil {
		provider.IsActive = *req.IsActive
	}

	if !auditOrFail(w, h.audit, r, provider.WorkspaceID, models.AuditProviderUpdated, "provider", &provider.ID, nil, h.logger) {
		return
	}

	providerRepo := storage.NewProviderRepository(h.db)
	if err := providerRepo.Update(r.Context(), provider); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update provider")
		return
	}

	h.db.InvalidateWorkspace(provider.WorkspaceID.String())

	utils.RespondWithJSON(w, http.StatusOK, h.toResponse(provider))
}

// RotateSecretRequest carries the replacement credential
type RotateSecretRequest struct {
	APIKey string `json:"api_key"`
}

// RotateSecret handles POST /admin/providers/{id}/rotate - replace credential
func (h *AdminProvidersHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	var req RotateSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.APIKey == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "API key is required")
		return
	}

	encrypted, err := h.vault.Encrypt(req.APIKey)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to encrypt credential")
		return
	}

	if !auditOrFail(w, h.audit, r, provider.WorkspaceID, models.AuditProviderSecretRotate, "provider", &provider.ID, nil, h.logger) {
		return
	}

	providerRepo := storage.NewProviderRepository(h.db)
	if err := providerRepo.UpdateSecret(r.Context(), provider.ID, encrypted); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to rotate credential")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Credential rotated",
	})
}

// TestConnection handles POST /admin/providers/{id}/test - verify the stored
// credential against the provider endpoint.
func (h *AdminProvidersHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	err := h.invoker.ValidateConnection(r.Context(), provider)
	ok = err == nil

	metadata := models.JSONB{"ok": ok}
	if err != nil {
		metadata["error"] = err.Error()
	}
	auditEvent(h.audit, r, provider.WorkspaceID, models.AuditProviderTested, "provider", &provider.ID, metadata, h.logger)

	if !ok {
		utils.RespondWithJSON(w, http.StatusBadGateway, map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// Delete handles DELETE /admin/providers/{id} - remove a provider and detach
// rules and fallback slots that reference it.
func (h *AdminProvidersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	if !auditOrFail(w, h.audit, r, provider.WorkspaceID, models.AuditProviderDeleted, "provider", &provider.ID, models.JSONB{
		"name": provider.Name,
	}, h.logger) {
		return
	}

	providerRepo := storage.NewProviderRepository(h.db)
	if err := providerRepo.Delete(r.Context(), provider.ID); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete provider")
		return
	}

	h.db.InvalidateWorkspace(provider.WorkspaceID.String())

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Provider deleted",
	})
}

func (h *AdminProvidersHandler) loadProvider(w http.ResponseWriter, r *http.Request) (*models.Provider, bool) {
	providerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider ID")
		return nil, false
	}

	providerRepo := storage.NewProviderRepository(h.db)
	provider, err := providerRepo.GetByID(r.Context(), providerID)
	if err != nil {
		if errors.Is(err, storage.ErrProviderNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
			return nil, false
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get provider")
		return nil, false
	}

	return provider, true
}
