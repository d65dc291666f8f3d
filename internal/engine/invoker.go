package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"reply_engine/internal/models"
	"reply_engine/internal/utils"
	"reply_engine/internal/vault"
)

// OutcomeKind classifies one provider attempt. The orchestrator uses it to
// decide retry-same-provider vs advance-chain vs abort.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeTimeout        OutcomeKind = "timeout"
	OutcomeRateLimited    OutcomeKind = "rate_limited"    // provider-side 429
	OutcomeAuthError      OutcomeKind = "auth_error"      // 401/403
	OutcomeTransientError OutcomeKind = "transient_error" // 5xx or network failure
	OutcomePermanentError OutcomeKind = "permanent_error" // other 4xx
)

// Retryable reports whether the same provider is worth another attempt.
func (k OutcomeKind) Retryable() bool {
	switch k {
	case OutcomeTimeout, OutcomeRateLimited, OutcomeTransientError:
		return true
	}
	return false
}

// Outcome is the typed result of one hop against one provider.
type Outcome struct {
	Kind         OutcomeKind
	Text         string
	InputTokens  int
	OutputTokens int
	Confidence   float64
	StatusCode   int
	Latency      time.Duration
	Err          error
}

// Invoker performs one attempt to draft a response with a given
// provider+model.
type Invoker interface {
	Invoke(ctx context.Context, provider *models.Provider, model, content string) *Outcome
	ValidateConnection(ctx context.Context, provider *models.Provider) error
}

// HTTPInvoker calls OpenAI-compatible chat completion endpoints. The
// provider's credential is decrypted inside the call and held only for its
// duration; it is never logged or returned.
type HTTPInvoker struct {
	vault  *vault.Vault
	client *http.Client
	logger *utils.Logger
}

// NewHTTPInvoker creates an invoker backed by a shared HTTP client. Per-hop
// timeouts come from each provider record, not the client.
func NewHTTPInvoker(v *vault.Vault) *HTTPInvoker {
	return &HTTPInvoker{
		vault: v,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: utils.NewLogger("invoker"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	// Optional extension reported by first-party and some compatible
	// backends; absent means the provider does not self-assess.
	Confidence *float64 `json:"confidence,omitempty"`
}

// Invoke performs one drafting attempt with the provider's configured
// timeout and returns a typed outcome. Network failures and 5xx are
// transient; 429 is provider rate limiting; 401/403 are auth errors; other
// 4xx are permanent.
func (inv *HTTPInvoker) Invoke(ctx context.Context, provider *models.Provider, model, content string) *Outcome {
	start := time.Now()

	apiKey, err := inv.vault.Decrypt(provider.EncryptedAPIKey)
	if err != nil {
		// A credential that cannot be decrypted will not fix itself on retry.
		return &Outcome{
			Kind:    OutcomeAuthError,
			Latency: time.Since(start),
			Err:     fmt.Errorf("credential decrypt failed: %w", err),
		}
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return &Outcome{
			Kind:    OutcomePermanentError,
			Latency: time.Since(start),
			Err:     fmt.Errorf("failed to marshal request: %w", err),
		}
	}

	hopCtx, cancel := context.WithTimeout(ctx, provider.Timeout())
	defer cancel()

	url := provider.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(hopCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Outcome{
			Kind:    OutcomePermanentError,
			Latency: time.Since(start),
			Err:     fmt.Errorf("failed to create request: %w", err),
		}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	if provider.OrgID != "" {
		httpReq.Header.Set("OpenAI-Organization", provider.OrgID)
	}

	resp, err := inv.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		kind := OutcomeTransientError
		if errors.Is(err, context.DeadlineExceeded) || hopCtx.Err() == context.DeadlineExceeded {
			kind = OutcomeTimeout
		} else if errors.Is(err, context.Canceled) {
			kind = OutcomeTimeout
		}
		inv.logger.Warn("Provider call failed", "provider", provider.Name, "kind", kind)
		return &Outcome{Kind: kind, Latency: latency, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Outcome{
			Kind:       OutcomeTransientError,
			StatusCode: resp.StatusCode,
			Latency:    latency,
			Err:        fmt.Errorf("failed to read response: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		kind := classifyStatus(resp.StatusCode)
		inv.logger.Warn("Provider returned error status",
			"provider", provider.Name, "status", resp.StatusCode, "kind", kind)
		return &Outcome{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Latency:    latency,
			Err:        fmt.Errorf("provider returned status %d", resp.StatusCode),
		}
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return &Outcome{
			Kind:       OutcomeTransientError,
			StatusCode: resp.StatusCode,
			Latency:    latency,
			Err:        fmt.Errorf("failed to parse response: %w", err),
		}
	}
	if len(parsed.Choices) == 0 {
		return &Outcome{
			Kind:       OutcomeTransientError,
			StatusCode: resp.StatusCode,
			Latency:    latency,
			Err:        fmt.Errorf("provider returned no choices"),
		}
	}

	// Providers that report no confidence are treated as fully confident so
	// the policy threshold only bites on an actual self-assessment.
	confidence := 1.0
	if parsed.Confidence != nil {
		confidence = *parsed.Confidence
	}

	return &Outcome{
		Kind:         OutcomeSuccess,
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		Confidence:   confidence,
		StatusCode:   resp.StatusCode,
		Latency:      latency,
	}
}

// ValidateConnection checks that the provider endpoint accepts the stored
// credential. Used by the admin connection test; the result is audit-logged
// by the caller.
func (inv *HTTPInvoker) ValidateConnection(ctx context.Context, provider *models.Provider) error {
	apiKey, err := inv.vault.Decrypt(provider.EncryptedAPIKey)
	if err != nil {
		return fmt.Errorf("credential decrypt failed: %w", err)
	}

	hopCtx, cancel := context.WithTimeout(ctx, provider.Timeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(hopCtx, http.MethodGet, provider.BaseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := inv.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("credentials rejected (status %d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("provider unavailable (status %d)", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		// A 404 here usually means a wrong base URL.
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func classifyStatus(status int) OutcomeKind {
	switch {
	case status == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return OutcomeAuthError
	case status >= 500:
		return OutcomeTransientError
	default:
		return OutcomePermanentError
	}
}
