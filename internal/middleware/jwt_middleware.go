package middleware

import (
	"context"
	"net/http"
	"strings"

	"reply_engine/internal/auth"
	"reply_engine/internal/utils"
)

// ContextKey is the type used for request context keys
type ContextKey string

// Context keys for storing authentication data
const (
	AdminClaimsKey ContextKey = "adminClaims"
	AdminActorKey  ContextKey = "adminActor"
	AdminRolesKey  ContextKey = "adminRoles"
)

// AdminJWTMiddleware validates admin session tokens and enforces role-based
// access on the configuration surface.
func AdminJWTMiddleware(secret []byte, requiredRoles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			claims, err := auth.ValidateAdminJWT(tokenString, secret)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			if len(requiredRoles) > 0 && !hasAnyRole(claims.Roles, requiredRoles) {
				utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), AdminClaimsKey, claims)
			ctx = context.WithValue(ctx, AdminActorKey, claims.Actor)
			ctx = context.WithValue(ctx, AdminRolesKey, claims.Roles)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasAnyRole(held []string, required []auth.Role) bool {
	for _, req := range required {
		for _, h := range held {
			if auth.Role(h).HasPermission(req) {
				return true
			}
		}
	}
	return false
}

// GetAdminClaims retrieves the admin claims from the request context
func GetAdminClaims(ctx context.Context) (*auth.AdminClaims, bool) {
	claims, ok := ctx.Value(AdminClaimsKey).(*auth.AdminClaims)
	return claims, ok
}

// GetAdminActor retrieves the acting operator's identity from the request
// context, for audit logging.
func GetAdminActor(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(AdminActorKey).(string)
	return actor, ok
}
