package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"reply_engine/internal/engine"
	"reply_engine/internal/models"
	"reply_engine/internal/routing"
	"reply_engine/internal/utils"
)

// Responder runs one interaction through the engine. Satisfied by
// engine.Orchestrator; narrowed for handler tests.
type Responder interface {
	RouteAndRespond(ctx context.Context, in *models.Interaction) (*engine.Result, error)
}

// RespondHandler serves the engine's single runtime endpoint.
type RespondHandler struct {
	responder Responder
	logger    *utils.Logger
}

// NewRespondHandler creates the respond handler.
func NewRespondHandler(responder Responder) *RespondHandler {
	return &RespondHandler{
		responder: responder,
		logger:    utils.NewLogger("respond"),
	}
}

// RespondRequest is a classified inbound interaction.
type RespondRequest struct {
	WorkspaceID string `json:"workspace_id"`
	ChannelType string `json:"channel_type"`
	Sentiment   string `json:"sentiment_class,omitempty"`
	Risk        string `json:"risk_level,omitempty"`
	Content     string `json:"content"`
}

// Respond handles POST /v1/respond - route an interaction and draft a reply
func (h *RespondHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	workspaceID, err := uuid.Parse(req.WorkspaceID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid workspace_id")
		return
	}
	if !models.ValidChannelType(req.ChannelType) {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid channel_type")
		return
	}
	if !models.ValidSentimentClass(req.Sentiment) {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid sentiment_class")
		return
	}
	if !models.ValidRiskLevel(req.Risk) {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid risk_level")
		return
	}
	if req.Content == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Content is required")
		return
	}

	in := &models.Interaction{
		WorkspaceID: workspaceID,
		ChannelType: models.ChannelType(req.ChannelType),
		Sentiment:   models.SentimentClass(req.Sentiment),
		Risk:        models.RiskLevel(req.Risk),
		Content:     req.Content,
	}

	result, err := h.responder.RouteAndRespond(r.Context(), in)
	if err != nil {
		if errors.Is(err, routing.ErrNoDefaultProvider) {
			utils.RespondWithError(w, http.StatusUnprocessableEntity,
				"No routing rule matched and no default provider is configured")
			return
		}
		h.logger.Error("Engine failure", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to process interaction")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, result)
}
