package httpapi

import (
	"encoding/json"
	"net/http"

	"reply_engine/internal/auth"
	"reply_engine/internal/config"
	"reply_engine/internal/utils"
)

// AuthHandler exchanges the shared admin secret for a short-lived JWT
type AuthHandler struct {
	cfg    *config.Config
	logger *utils.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		cfg:    cfg,
		logger: utils.NewLogger("auth"),
	}
}

// LoginRequest carries the admin login credentials
type LoginRequest struct {
	Actor  string   `json:"actor"`
	Secret string   `json:"secret"`
	Roles  []string `json:"roles,omitempty"`
}

// LoginResponse carries the issued token
type LoginResponse struct {
	Token     string   `json:"token"`
	TokenType string   `json:"token_type"`
	ExpiresAt int64    `json:"expires_at"`
	Roles     []string `json:"roles"`
}

// Login handles POST /admin/auth/login - exchange the shared admin secret
// for a 15-minute JWT. Disabled when no secret hash is configured.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.cfg.AdminSecretHash == "" {
		utils.RespondWithError(w, http.StatusNotFound, "Login is disabled")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Actor == "" || req.Secret == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Actor and secret are required")
		return
	}

	if !auth.CheckSecret(req.Secret, h.cfg.AdminSecretHash) {
		h.logger.Warn("Admin login rejected", "actor", req.Actor, "ip", clientIP(r))
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{auth.RoleAdmin.String()}
	}
	for _, role := range roles {
		if !auth.Role(role).IsValid() {
			utils.RespondWithError(w, http.StatusBadRequest, "Unknown role: "+role)
			return
		}
	}

	token, expiresAt, err := auth.GenerateAdminJWT(req.Actor, roles, h.cfg.JWTSecret)
	if err != nil {
		h.logger.Error("Failed to issue admin token", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	h.logger.Info("Admin login", "actor", req.Actor, "roles", roles)

	utils.RespondWithJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		Roles:     roles,
	})
}
