package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reply_engine/internal/models"
	"reply_engine/internal/utils"
	"reply_engine/internal/vault"
)

type fakeAudit struct {
	entries []*models.AuditLog
	err     error
}

func (f *fakeAudit) Append(ctx context.Context, entry *models.AuditLog) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

// The handlers write the audit entry before touching the database, so a
// failed append must abort the mutation. The handlers below carry a nil DB:
// if a mutation ran anyway, the test would panic.
func TestMutationsAbortWhenAuditFails(t *testing.T) {
	auditErr := errors.New("audit insert failed")

	t.Run("rule create", func(t *testing.T) {
		handler := &AdminRulesHandler{
			audit:  &fakeAudit{err: auditErr},
			logger: utils.NewLogger("admin-rules"),
		}

		payload, err := json.Marshal(RuleRequest{
			WorkspaceID: uuid.NewString(),
			ChannelType: "review",
			ProviderID:  uuid.NewString(),
			ActionMode:  "draft_only",
			Priority:    1,
			IsActive:    true,
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/admin/rules", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handler.Create(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("provider create", func(t *testing.T) {
		key, err := vault.GenerateKey(32)
		require.NoError(t, err)
		v, err := vault.NewFromBase64(key)
		require.NoError(t, err)

		handler := &AdminProvidersHandler{
			vault:  v,
			audit:  &fakeAudit{err: auditErr},
			logger: utils.NewLogger("admin-providers"),
		}

		payload, err := json.Marshal(CreateProviderRequest{
			WorkspaceID: uuid.NewString(),
			Name:        "openai-primary",
			Kind:        "openai_compatible",
			BaseURL:     "https://api.example.com/v1",
			APIKey:      "sk-test-secret",
			IsActive:    true,
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/admin/providers", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handler.Create(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("fallback policy put", func(t *testing.T) {
		handler := &AdminPoliciesHandler{
			audit:  &fakeAudit{err: auditErr},
			logger: utils.NewLogger("admin-policies"),
		}

		primary := uuid.NewString()
		payload, err := json.Marshal(FallbackPolicyRequest{
			WorkspaceID:       uuid.NewString(),
			PrimaryProviderID: &primary,
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPut, "/admin/fallback-policy", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handler.PutFallbackPolicy(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestAuditEntryCarriesRequestContext(t *testing.T) {
	workspaceID := uuid.New()
	sink := &fakeAudit{err: errors.New("stop before the nil DB is touched")}

	handler := &AdminRulesHandler{
		audit:  sink,
		logger: utils.NewLogger("admin-rules"),
	}

	payload, err := json.Marshal(RuleRequest{
		WorkspaceID: workspaceID.String(),
		ChannelType: "dm",
		ProviderID:  uuid.NewString(),
		ActionMode:  "auto_send",
		Priority:    5,
		IsActive:    true,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/admin/rules", bytes.NewReader(payload))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "admin-cli/1.0")
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	// Capture the entry through a succeeding sink to check its fields.
	ok := &fakeAudit{}
	entry := auditEntry(req, workspaceID, models.AuditRuleCreated, "routing_rule", nil, models.JSONB{"priority": 5})
	require.NoError(t, ok.Append(req.Context(), entry))

	require.Len(t, ok.entries, 1)
	assert.Equal(t, workspaceID, ok.entries[0].WorkspaceID)
	assert.Equal(t, models.AuditRuleCreated, ok.entries[0].Action)
	assert.Equal(t, "203.0.113.7", ok.entries[0].IPAddress)
	assert.Equal(t, "admin-cli/1.0", ok.entries[0].UserAgent)
}
