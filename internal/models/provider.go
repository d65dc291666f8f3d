package models

import (
	"time"

	"github.com/google/uuid"
)

// ProviderKind enumerates supported AI backend kinds.
type ProviderKind string

const (
	ProviderFirstParty       ProviderKind = "first_party"
	ProviderOpenAICompatible ProviderKind = "openai_compatible"
	ProviderGenericHTTP      ProviderKind = "generic_http"
)

// ValidProviderKind reports whether s is a known provider kind.
func ValidProviderKind(s string) bool {
	switch ProviderKind(s) {
	case ProviderFirstParty, ProviderOpenAICompatible, ProviderGenericHTTP:
		return true
	}
	return false
}

// Provider is a configured AI backend owned by a workspace. The API key is
// stored as vault ciphertext and never leaves the engine in plaintext.
type Provider struct {
	ID                 uuid.UUID    `db:"id"`
	WorkspaceID        uuid.UUID    `db:"workspace_id"`
	Name               string       `db:"name"`
	Kind               ProviderKind `db:"kind"`
	BaseURL            string       `db:"base_url"`
	EncryptedAPIKey    string       `db:"encrypted_api_key"`
	OrgID              string       `db:"org_id"`
	DefaultModel       string       `db:"default_model"`
	TimeoutMS          int          `db:"timeout_ms"`
	MaxRetries         int          `db:"max_retries"`
	RateLimitPerMinute int          `db:"rate_limit_per_minute"`
	IsActive           bool         `db:"is_active"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
}

// Timeout returns the per-hop request timeout, defaulting to 30s when the
// record carries no value.
func (p *Provider) Timeout() time.Duration {
	if p.TimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// Model is a named model bound to a provider, optionally carrying its own
// cost and latency characteristics.
type Model struct {
	ID              uuid.UUID `db:"id"`
	ProviderID      uuid.UUID `db:"provider_id"`
	Name            string    `db:"name"`
	InputCostPer1K  float64   `db:"input_cost_per_1k"`
	OutputCostPer1K float64   `db:"output_cost_per_1k"`
	AvgLatencyMS    int       `db:"avg_latency_ms"`
	IsDefault       bool      `db:"is_default"`
	CreatedAt       time.Time `db:"created_at"`
}

// EstimateCost returns the estimated USD cost for a completed call.
func (m *Model) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*m.InputCostPer1K +
		float64(outputTokens)/1000*m.OutputCostPer1K
}
