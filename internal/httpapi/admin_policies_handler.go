package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"reply_engine/internal/models"
	"reply_engine/internal/storage"
	"reply_engine/internal/utils"
)

// AdminPoliciesHandler handles safety and fallback policy endpoints
type AdminPoliciesHandler struct {
	db     *storage.DB
	audit  auditAppender
	logger *utils.Logger
}

// NewAdminPoliciesHandler creates a new admin policies handler
func NewAdminPoliciesHandler(db *storage.DB) *AdminPoliciesHandler {
	return &AdminPoliciesHandler{
		db:     db,
		audit:  storage.NewAuditRepository(db),
		logger: utils.NewLogger("admin-policies"),
	}
}

// SafetyPolicyRequest creates or updates a workspace safety policy
type SafetyPolicyRequest struct {
	WorkspaceID             string   `json:"workspace_id"`
	BlockedTopics           []string `json:"blocked_topics,omitempty"`
	EscalationKeywords      []string `json:"escalation_keywords,omitempty"`
	RedactPII               bool     `json:"redact_pii"`
	AllowAutoSendLowRisk    bool     `json:"allow_auto_send_low_risk"`
	AllowAutoSendMediumRisk bool     `json:"allow_auto_send_medium_risk"`
	HardEscalateHighRisk    bool     `json:"hard_escalate_high_risk"`
	MaxResponseLength       int      `json:"max_response_length,omitempty"`
	ConfidenceThreshold     float64  `json:"confidence_threshold,omitempty"`
	IsActive                bool     `json:"is_active"`
}

// GetSafetyPolicy handles GET /admin/safety-policy?workspace_id= - fetch the
// active safety policy
func (h *AdminPoliciesHandler) GetSafetyPolicy(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(r.URL.Query().Get("workspace_id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid workspace_id")
		return
	}

	policyRepo := storage.NewPolicyRepository(h.db)
	policy, err := policyRepo.GetActiveSafetyPolicy(r.Context(), workspaceID)
	if err != nil {
		if errors.Is(err, storage.ErrPolicyNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "No active safety policy")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get safety policy")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, policy)
}

// PutSafetyPolicy handles PUT /admin/safety-policy - create a new policy
// revision. Activating it deactivates the previous one.
func (h *AdminPoliciesHandler) PutSafetyPolicy(w http.ResponseWriter, r *http.Request) {
	var req SafetyPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	workspaceID, err := uuid.Parse(req.WorkspaceID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid workspace_id")
		return
	}
	if req.ConfidenceThreshold < 0 || req.ConfidenceThreshold > 1 {
		utils.RespondWithError(w, http.StatusBadRequest, "confidence_threshold must be between 0 and 1")
		return
	}
	if req.MaxResponseLength < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "max_response_length must not be negative")
		return
	}

	policy := &models.SafetyPolicy{
		ID:                      uuid.New(),
		WorkspaceID:             workspaceID,
		BlockedTopics:           pq.StringArray(req.BlockedTopics),
		EscalationKeywords:      pq.StringArray(req.EscalationKeywords),
		RedactPII:               req.RedactPII,
		AllowAutoSendLowRisk:    req.AllowAutoSendLowRisk,
		AllowAutoSendMediumRisk: req.AllowAutoSendMediumRisk,
		HardEscalateHighRisk:    req.HardEscalateHighRisk,
		MaxResponseLength:       req.MaxResponseLength,
		ConfidenceThreshold:     req.ConfidenceThreshold,
		IsActive:                req.IsActive,
	}

	if !auditOrFail(w, h.audit, r, workspaceID, models.AuditSafetyPolicyChanged, "safety_policy", &policy.ID, models.JSONB{
		"is_active": policy.IsActive,
	}, h.logger) {
		return
	}

	policyRepo := storage.NewPolicyRepository(h.db)
	if err := policyRepo.CreateSafetyPolicy(r.Context(), policy); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to save safety policy")
		return
	}

	h.db.InvalidateWorkspace(workspaceID.String())

	utils.RespondWithJSON(w, http.StatusOK, policy)
}

// FallbackPolicyRequest sets the workspace fallback chain. The primary slot
// doubles as the workspace default provider.
type FallbackPolicyRequest struct {
	WorkspaceID         string  `json:"workspace_id"`
	PrimaryProviderID   *string `json:"primary_provider_id,omitempty"`
	SecondaryProviderID *string `json:"secondary_provider_id,omitempty"`
	TertiaryProviderID  *string `json:"tertiary_provider_id,omitempty"`
}

// GetFallbackPolicy handles GET /admin/fallback-policy?workspace_id=
func (h *AdminPoliciesHandler) GetFallbackPolicy(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(r.URL.Query().Get("workspace_id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid workspace_id")
		return
	}

	policyRepo := storage.NewPolicyRepository(h.db)
	policy, err := policyRepo.GetFallbackPolicy(r.Context(), workspaceID)
	if err != nil {
		if errors.Is(err, storage.ErrFallbackPolicyNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "No fallback policy configured")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get fallback policy")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, policy)
}

// PutFallbackPolicy handles PUT /admin/fallback-policy - set the chain.
// Duplicate providers in the chain are rejected.
func (h *AdminPoliciesHandler) PutFallbackPolicy(w http.ResponseWriter, r *http.Request) {
	var req FallbackPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	workspaceID, err := uuid.Parse(req.WorkspaceID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid workspace_id")
		return
	}

	policy := &models.FallbackPolicy{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
	}

	slots := []struct {
		raw  *string
		dest **uuid.UUID
	}{
		{req.PrimaryProviderID, &policy.PrimaryProviderID},
		{req.SecondaryProviderID, &policy.SecondaryProviderID},
		{req.TertiaryProviderID, &policy.TertiaryProviderID},
	}
	for _, slot := range slots {
		if slot.raw == nil || *slot.raw == "" {
			continue
		}
		id, err := uuid.Parse(*slot.raw)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider ID in chain")
			return
		}
		*slot.dest = &id
	}

	if err := policy.Validate(); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Chain must not name the same provider twice")
		return
	}

	if !auditOrFail(w, h.audit, r, workspaceID, models.AuditFallbackChanged, "fallback_policy", &policy.ID, nil, h.logger) {
		return
	}

	policyRepo := storage.NewPolicyRepository(h.db)
	if err := policyRepo.UpsertFallbackPolicy(r.Context(), policy); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to save fallback policy")
		return
	}

	h.db.InvalidateWorkspace(workspaceID.String())

	utils.RespondWithJSON(w, http.StatusOK, policy)
}
