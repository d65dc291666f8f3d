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

// AdminRulesHandler handles routing rule management endpoints
type AdminRulesHandler struct {
	db     *storage.DB
	audit  auditAppender
	logger *utils.Logger
}

// NewAdminRulesHandler creates a new admin rules handler
func NewAdminRulesHandler(db *storage.DB) *AdminRulesHandler {
	return &AdminRulesHandler{
		db:     db,
		audit:  storage.NewAuditRepository(db),
		logger: utils.NewLogger("admin-rules"),
	}
}

// RuleRequest creates or replaces a routing rule. Sentiment and risk are
// wildcards when omitted.
type RuleRequest struct {
	WorkspaceID   string `json:"workspace_id"`
	ChannelType   string `json:"channel_type"`
	Sentiment     string `json:"sentiment_class,omitempty"`
	Risk          string `json:"risk_level,omitempty"`
	ProviderID    string `json:"provider_id"`
	ModelOverride string `json:"model_override,omitempty"`
	ActionMode    string `json:"action_mode"`
	Priority      int    `json:"priority"`
	IsActive      bool   `json:"is_active"`
}

// RuleResponse is a routing rule as returned by the admin API
type RuleResponse struct {
	ID            string `json:"id"`
	WorkspaceID   string `json:"workspace_id"`
	ChannelType   string `json:"channel_type"`
	Sentiment     string `json:"sentiment_class,omitempty"`
	Risk          string `json:"risk_level,omitempty"`
	ProviderID    string `json:"provider_id"`
	ModelOverride string `json:"model_override,omitempty"`
	ActionMode    string `json:"action_mode"`
	Priority      int    `json:"priority"`
	IsActive      bool   `json:"is_active"`
	CreatedAt     string `json:"created_at"`
}

func ruleToResponse(rule *models.RoutingRule) *RuleResponse {
	return &RuleResponse{
		ID:            rule.ID.String(),
		WorkspaceID:   rule.WorkspaceID.String(),
		ChannelType:   string(rule.ChannelType),
		Sentiment:     string(rule.Sentiment),
		Risk:          string(rule.Risk),
		ProviderID:    rule.ProviderID.String(),
		ModelOverride: rule.ModelOverride,
		ActionMode:    string(rule.ActionMode),
		Priority:      rule.Priority,
		IsActive:      rule.IsActive,
		CreatedAt:     rule.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *AdminRulesHandler) validate(req *RuleRequest) (uuid.UUID, uuid.UUID, string) {
	workspaceID, err := uuid.Parse(req.WorkspaceID)
	if err != nil {
		return uuid.Nil, uuid.Nil, "Invalid workspace_id"
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		return uuid.Nil, uuid.Nil, "Invalid provider_id"
	}
	if !models.ValidChannelType(req.ChannelType) {
		return uuid.Nil, uuid.Nil, "Invalid channel_type"
	}
	if !models.ValidSentimentClass(req.Sentiment) {
		return uuid.Nil, uuid.Nil, "Invalid sentiment_class"
	}
	if !models.ValidRiskLevel(req.Risk) {
		return uuid.Nil, uuid.Nil, "Invalid risk_level"
	}
	if !models.ValidActionMode(req.ActionMode) {
		return uuid.Nil, uuid.Nil, "Invalid action_mode"
	}
	return workspaceID, providerID, ""
}

// Create handles POST /admin/rules - create a routing rule
func (h *AdminRulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	workspaceID, providerID, msg := h.validate(&req)
	if msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	rule := &models.RoutingRule{
		ID:            uuid.New(),
		WorkspaceID:   workspaceID,
		ChannelType:   models.ChannelType(req.ChannelType),
		Sentiment:     models.SentimentClass(req.Sentiment),
		Risk:          models.RiskLevel(req.Risk),
		ProviderID:    providerID,
		ModelOverride: req.ModelOverride,
		ActionMode:    models.ActionMode(req.ActionMode),
		Priority:      req.Priority,
		IsActive:      req.IsActive,
	}

	if !auditOrFail(w, h.audit, r, workspaceID, models.AuditRuleCreated, "routing_rule", &rule.ID, models.JSONB{
		"channel_type": req.ChannelType,
		"priority":     req.Priority,
	}, h.logger) {
		return
	}

	ruleRepo := storage.NewRuleRepository(h.db)
	if err := ruleRepo.Create(r.Context(), rule); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create rule")
		return
	}

	h.db.InvalidateWorkspace(workspaceID.String())

	utils.RespondWithJSON(w, http.StatusCreated, ruleToResponse(rule))
}

// List handles GET /admin/rules?workspace_id= - list workspace rules in
// matching order
func (h *AdminRulesHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(r.URL.Query().Get("workspace_id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid workspace_id")
		return
	}

	ruleRepo := storage.NewRuleRepository(h.db)
	rules, err := ruleRepo.ListByWorkspace(r.Context(), workspaceID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}

	responses := make([]*RuleResponse, 0, len(rules))
	for _, rule := range rules {
		responses = append(responses, ruleToResponse(rule))
	}

	utils.RespondWithJSON(w, http.StatusOK, responses)
}

// Update handles PUT /admin/rules/{id} - replace a routing rule
func (h *AdminRulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid rule ID")
		return
	}

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	workspaceID, providerID, msg := h.validate(&req)
	if msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	rule := &models.RoutingRule{
		ID:            ruleID,
		WorkspaceID:   workspaceID,
		ChannelType:   models.ChannelType(req.ChannelType),
		Sentiment:     models.SentimentClass(req.Sentiment),
		Risk:          models.RiskLevel(req.Risk),
		ProviderID:    providerID,
		ModelOverride: req.ModelOverride,
		ActionMode:    models.ActionMode(req.ActionMode),
		Priority:      req.Priority,
		IsActive:      req.IsActive,
	}

	if !auditOrFail(w, h.audit, r, workspaceID, models.AuditRuleUpdated, "routing_rule", &rule.ID, nil, h.logger) {
		return
	}

	ruleRepo := storage.NewRuleRepository(h.db)
	if err := ruleRepo.Update(r.Context(), rule); err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Rule not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update rule")
		return
	}

	h.db.InvalidateWorkspace(workspaceID.String())

	utils.RespondWithJSON(w, http.StatusOK, ruleToResponse(rule))
}

// Delete handles DELETE /admin/rules/{id} - remove a routing rule
func (h *AdminRulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid rule ID")
		return
	}

	ruleRepo := storage.NewRuleRepository(h.db)
	rule, err := ruleRepo.GetByID(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Rule not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get rule")
		return
	}

	if !auditOrFail(w, h.audit, r, rule.WorkspaceID, models.AuditRuleDeleted, "routing_rule", &ruleID, nil, h.logger) {
		return
	}

	if err := ruleRepo.Delete(r.Context(), ruleID); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete rule")
		return
	}

	h.db.InvalidateWorkspace(rule.WorkspaceID.String())

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Rule deleted",
	})
}
