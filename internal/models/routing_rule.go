package models

import (
	"time"

	"github.com/google/uuid"
)

// RoutingRule is an ordered matching criterion that binds interactions to a
// provider, optional model override, and action mode. Sentiment and Risk are
// wildcards when empty. Among active rules matching an interaction, the one
// with the lowest priority governs; ties break on earliest creation.
type RoutingRule struct {
	ID            uuid.UUID      `db:"id"`
	WorkspaceID   uuid.UUID      `db:"workspace_id"`
	ChannelType   ChannelType    `db:"channel_type"`
	Sentiment     SentimentClass `db:"sentiment_class"`
	Risk          RiskLevel      `db:"risk_level"`
	ProviderID    uuid.UUID      `db:"provider_id"`
	ModelOverride string         `db:"model_override"`
	ActionMode    ActionMode     `db:"action_mode"`
	Priority      int            `db:"priority"`
	IsActive      bool           `db:"is_active"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Matches reports whether the rule's criteria apply to the interaction.
// Channel must match exactly; sentiment and risk match when unset.
func (r *RoutingRule) Matches(in *Interaction) bool {
	if r.ChannelType != in.ChannelType {
		return false
	}
	if r.Sentiment != "" && r.Sentiment != in.Sentiment {
		return false
	}
	if r.Risk != "" && r.Risk != in.Risk {
		return false
	}
	return true
}
