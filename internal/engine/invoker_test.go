package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reply_engine/internal/models"
	"reply_engine/internal/vault"
)

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	key, err := vault.GenerateKey(32)
	require.NoError(t, err)
	v, err := vault.NewFromBase64(key)
	require.NoError(t, err)
	return v
}

func providerFor(t *testing.T, v *vault.Vault, baseURL string, timeoutMS int) *models.Provider {
	t.Helper()
	encrypted, err := v.Encrypt("sk-test-secret")
	require.NoError(t, err)
	return &models.Provider{
		ID:              uuid.New(),
		Name:            "test-provider",
		Kind:            models.ProviderOpenAICompatible,
		BaseURL:         baseURL,
		EncryptedAPIKey: encrypted,
		DefaultModel:    "gpt-4o-mini",
		TimeoutMS:       timeoutMS,
		IsActive:        true,
	}
}

func completionHandler(t *testing.T, status int, body map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test-secret", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			json.NewEncoder(w).Encode(body)
		}
	}
}

func TestHTTPInvoker_Invoke(t *testing.T) {
	v := newTestVault(t)

	t.Run("successful completion", func(t *testing.T) {
		server := httptest.NewServer(completionHandler(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Happy to help!"}},
			},
			"usage":      map[string]any{"prompt_tokens": 42, "completion_tokens": 17},
			"confidence": 0.93,
		}))
		defer server.Close()

		inv := NewHTTPInvoker(v)
		out := inv.Invoke(context.Background(), providerFor(t, v, server.URL, 1000), "gpt-4o-mini", "hello")

		assert.Equal(t, OutcomeSuccess, out.Kind)
		assert.Equal(t, "Happy to help!", out.Text)
		assert.Equal(t, 42, out.InputTokens)
		assert.Equal(t, 17, out.OutputTokens)
		assert.Equal(t, 0.93, out.Confidence)
		assert.Greater(t, out.Latency, time.Duration(0))
	})

	t.Run("missing confidence defaults to full", func(t *testing.T) {
		server := httptest.NewServer(completionHandler(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		}))
		defer server.Close()

		inv := NewHTTPInvoker(v)
		out := inv.Invoke(context.Background(), providerFor(t, v, server.URL, 1000), "gpt-4o-mini", "hello")

		assert.Equal(t, OutcomeSuccess, out.Kind)
		assert.Equal(t, 1.0, out.Confidence)
	})

	t.Run("429 maps to rate_limited", func(t *testing.T) {
		server := httptest.NewServer(completionHandler(t, http.StatusTooManyRequests, nil))
		defer server.Close()

		inv := NewHTTPInvoker(v)
		out := inv.Invoke(context.Background(), providerFor(t, v, server.URL, 1000), "gpt-4o-mini", "hello")

		assert.Equal(t, OutcomeRateLimited, out.Kind)
		assert.Equal(t, http.StatusTooManyRequests, out.StatusCode)
		assert.True(t, out.Kind.Retryable())
	})

	t.Run("401 maps to auth_error", func(t *testing.T) {
		server := httptest.NewServer(completionHandler(t, http.StatusUnauthorized, nil))
		defer server.Close()

		inv := NewHTTPInvoker(v)
		out := inv.Invoke(context.Background(), providerFor(t, v, server.URL, 1000), "gpt-4o-mini", "hello")

		assert.Equal(t, OutcomeAuthError, out.Kind)
		assert.False(t, out.Kind.Retryable())
	})

	t.Run("500 maps to transient_error", func(t *testing.T) {
		server := httptest.NewServer(completionHandler(t, http.StatusInternalServerError, nil))
		defer server.Close()

		inv := NewHTTPInvoker(v)
		out := inv.Invoke(context.Background(), providerFor(t, v, server.URL, 1000), "gpt-4o-mini", "hello")

		assert.Equal(t, OutcomeTransientError, out.Kind)
		assert.True(t, out.Kind.Retryable())
	})

	t.Run("400 maps to permanent_error", func(t *testing.T) {
		server := httptest.NewServer(completionHandler(t, http.StatusBadRequest, nil))
		defer server.Close()

		inv := NewHTTPInvoker(v)
		out := inv.Invoke(context.Background(), providerFor(t, v, server.URL, 1000), "gpt-4o-mini", "hello")

		assert.Equal(t, OutcomePermanentError, out.Kind)
		assert.False(t, out.Kind.Retryable())
	})

	t.Run("slow provider maps to timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		inv := NewHTTPInvoker(v)
		out := inv.Invoke(context.Background(), providerFor(t, v, server.URL, 50), "gpt-4o-mini", "hello")

		assert.Equal(t, OutcomeTimeout, out.Kind)
		assert.Error(t, out.Err)
	})

	t.Run("unreachable endpoint maps to transient_error", func(t *testing.T) {
		inv := NewHTTPInvoker(v)
		provider := providerFor(t, v, "http://127.0.0.1:1", 500)

		out := inv.Invoke(context.Background(), provider, "gpt-4o-mini", "hello")
		assert.Equal(t, OutcomeTransientError, out.Kind)
	})

	t.Run("empty choices maps to transient_error", func(t *testing.T) {
		server := httptest.NewServer(completionHandler(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{},
		}))
		defer server.Close()

		inv := NewHTTPInvoker(v)
		out := inv.Invoke(context.Background(), providerFor(t, v, server.URL, 1000), "gpt-4o-mini", "hello")

		assert.Equal(t, OutcomeTransientError, out.Kind)
	})

	t.Run("undecryptable credential is an auth_error", func(t *testing.T) {
		inv := NewHTTPInvoker(v)
		provider := providerFor(t, v, "http://unused", 1000)
		provider.EncryptedAPIKey = "not-real-ciphertext"

		out := inv.Invoke(context.Background(), provider, "gpt-4o-mini", "hello")
		assert.Equal(t, OutcomeAuthError, out.Kind)
		assert.False(t, out.Kind.Retryable())
	})
}

func TestHTTPInvoker_ValidateConnection(t *testing.T) {
	v := newTestVault(t)

	t.Run("accepting endpoint validates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/models", r.URL.Path)
			assert.Equal(t, "Bearer sk-test-secret", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		inv := NewHTTPInvoker(v)
		assert.NoError(t, inv.ValidateConnection(context.Background(), providerFor(t, v, server.URL, 1000)))
	})

	t.Run("rejected credentials fail validation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		inv := NewHTTPInvoker(v)
		err := inv.ValidateConnection(context.Background(), providerFor(t, v, server.URL, 1000))
		assert.ErrorContains(t, err, "credentials rejected")
	})

	t.Run("unavailable provider fails validation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		inv := NewHTTPInvoker(v)
		err := inv.ValidateConnection(context.Background(), providerFor(t, v, server.URL, 1000))
		assert.ErrorContains(t, err, "provider unavailable")
	})

	t.Run("misconfigured base URL fails validation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		inv := NewHTTPInvoker(v)
		err := inv.ValidateConnection(context.Background(), providerFor(t, v, server.URL, 1000))
		assert.ErrorContains(t, err, "unexpected status 404")
	})
}
