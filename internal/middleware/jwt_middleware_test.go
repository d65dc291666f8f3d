package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reply_engine/internal/auth"
)

var testSecret = []byte("test-secret")

func protectedHandler(t *testing.T, called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true

		actor, ok := GetAdminActor(r.Context())
		assert.True(t, ok)
		assert.NotEmpty(t, actor)

		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, mw func(http.Handler) http.Handler, token string) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	called := false
	req := httptest.NewRequest(http.MethodGet, "/admin/providers", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mw(protectedHandler(t, &called)).ServeHTTP(rec, req)
	return rec, called
}

func TestAdminJWTMiddlewareAllowsValidToken(t *testing.T) {
	token, _, err := auth.GenerateAdminJWT("ops@example.com", []string{"admin"}, testSecret)
	require.NoError(t, err)

	mw := AdminJWTMiddleware(testSecret, auth.RoleAdmin)
	rec, called := doRequest(t, mw, token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestAdminJWTMiddlewareMissingToken(t *testing.T) {
	mw := AdminJWTMiddleware(testSecret)
	rec, called := doRequest(t, mw, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAdminJWTMiddlewareWrongSecret(t *testing.T) {
	token, _, err := auth.GenerateAdminJWT("ops@example.com", []string{"admin"}, []byte("other-secret"))
	require.NoError(t, err)

	mw := AdminJWTMiddleware(testSecret)
	rec, called := doRequest(t, mw, token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAdminJWTMiddlewareRoleEnforcement(t *testing.T) {
	viewerToken, _, err := auth.GenerateAdminJWT("viewer@example.com", []string{"viewer"}, testSecret)
	require.NoError(t, err)
	adminToken, _, err := auth.GenerateAdminJWT("admin@example.com", []string{"admin"}, testSecret)
	require.NoError(t, err)

	adminOnly := AdminJWTMiddleware(testSecret, auth.RoleAdmin)

	rec, called := doRequest(t, adminOnly, viewerToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)

	rec, called = doRequest(t, adminOnly, adminToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestAdminJWTMiddlewareAdminSatisfiesViewer(t *testing.T) {
	adminToken, _, err := auth.GenerateAdminJWT("admin@example.com", []string{"admin"}, testSecret)
	require.NoError(t, err)

	viewerOrBetter := AdminJWTMiddleware(testSecret, auth.RoleViewer, auth.RoleAdmin)
	rec, called := doRequest(t, viewerOrBetter, adminToken)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}
