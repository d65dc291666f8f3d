package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SafetyPolicy is a workspace-scoped guardrail set. At most one policy is
// active per workspace; when none is, the gate applies a maximally
// conservative default (no auto-send, escalate at risk >= medium).
type SafetyPolicy struct {
	ID                      uuid.UUID      `db:"id"`
	WorkspaceID             uuid.UUID      `db:"workspace_id"`
	BlockedTopics           pq.StringArray `db:"blocked_topics"`
	EscalationKeywords      pq.StringArray `db:"escalation_keywords"`
	RedactPII               bool           `db:"redact_pii"`
	AllowAutoSendLowRisk    bool           `db:"allow_auto_send_low_risk"`
	AllowAutoSendMediumRisk bool           `db:"allow_auto_send_medium_risk"`
	HardEscalateHighRisk    bool           `db:"hard_escalate_high_risk"`
	MaxResponseLength       int            `db:"max_response_length"`
	ConfidenceThreshold     float64        `db:"confidence_threshold"`
	IsActive                bool           `db:"is_active"`
	CreatedAt               time.Time      `db:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at"`
}
