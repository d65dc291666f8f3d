package models

import "github.com/google/uuid"

// ChannelType identifies the platform surface an interaction arrived on.
type ChannelType string

const (
	ChannelComment ChannelType = "comment"
	ChannelDM      ChannelType = "dm"
	ChannelReview  ChannelType = "review"
)

// ValidChannelType reports whether s is a known channel type.
func ValidChannelType(s string) bool {
	switch ChannelType(s) {
	case ChannelComment, ChannelDM, ChannelReview:
		return true
	}
	return false
}

// SentimentClass is the upstream classifier's sentiment label.
// An empty value means the classifier produced no signal.
type SentimentClass string

const (
	SentimentPositive SentimentClass = "positive"
	SentimentNeutral  SentimentClass = "neutral"
	SentimentNegative SentimentClass = "negative"
	SentimentMixed    SentimentClass = "mixed"
)

// ValidSentimentClass reports whether s is a known sentiment label. Empty is
// valid: the classifier produced no signal.
func ValidSentimentClass(s string) bool {
	switch SentimentClass(s) {
	case "", SentimentPositive, SentimentNeutral, SentimentNegative, SentimentMixed:
		return true
	}
	return false
}

// RiskLevel is the coarse sensitivity classification supplied by upstream.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var riskOrder = map[RiskLevel]int{
	RiskLow:    1,
	RiskMedium: 2,
	RiskHigh:   3,
}

// AtLeast reports whether r is at or above the given level.
// An unclassified (empty) risk never satisfies a threshold.
func (r RiskLevel) AtLeast(level RiskLevel) bool {
	return riskOrder[r] >= riskOrder[level] && riskOrder[r] > 0
}

// ValidRiskLevel reports whether s is a known risk level. Empty is valid:
// the interaction arrived unclassified.
func ValidRiskLevel(s string) bool {
	switch RiskLevel(s) {
	case "", RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// ActionMode is the governance level applied to an AI draft.
type ActionMode string

const (
	ActionAutoSend         ActionMode = "auto_send"
	ActionDraftOnly        ActionMode = "draft_only"
	ActionRequiresApproval ActionMode = "requires_approval"
)

// ValidActionMode reports whether s is a known action mode.
func ValidActionMode(s string) bool {
	switch ActionMode(s) {
	case ActionAutoSend, ActionDraftOnly, ActionRequiresApproval:
		return true
	}
	return false
}

// Decision is the terminal outcome recorded for a processed interaction.
type Decision string

const (
	DecisionSent      Decision = "sent"
	DecisionDraft     Decision = "draft"
	DecisionEscalated Decision = "escalated"
	DecisionFailed    Decision = "failed"
)

// Interaction is a classified inbound customer message (comment, DM, or
// review) as handed over by platform sync. Sentiment and Risk may be empty
// when the classifier had no signal.
type Interaction struct {
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	ChannelType ChannelType    `json:"channel_type"`
	Sentiment   SentimentClass `json:"sentiment_class,omitempty"`
	Risk        RiskLevel      `json:"risk_level,omitempty"`
	Content     string         `json:"content"`
}
