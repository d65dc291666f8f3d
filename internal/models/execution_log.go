package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionLog is one append-only record per processed interaction. It is
// created exactly once per terminal decision and never mutated. ProviderID
// is the provider actually used, which may differ from the rule match when
// fallback occurred; it is nil when escalation or exhaustion happened before
// any provider was reached.
type ExecutionLog struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	WorkspaceID   uuid.UUID   `db:"workspace_id" json:"workspace_id"`
	ChannelType   ChannelType `db:"channel_type" json:"channel_type"`
	ProviderID    *uuid.UUID  `db:"provider_id" json:"provider_id,omitempty"`
	ModelName     string      `db:"model_name" json:"model_name,omitempty"`
	Decision      Decision    `db:"decision" json:"decision"`
	LatencyMS     int64       `db:"latency_ms" json:"latency_ms"`
	InputTokens   int         `db:"input_tokens" json:"input_tokens"`
	OutputTokens  int         `db:"output_tokens" json:"output_tokens"`
	EstimatedCost float64     `db:"estimated_cost" json:"estimated_cost"`
	ErrorCode     string      `db:"error_code" json:"error_code,omitempty"`
	Hops          int         `db:"hops" json:"hops"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}
