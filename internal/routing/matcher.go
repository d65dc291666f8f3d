package routing

import (
	"errors"

	"github.com/google/uuid"

	"reply_engine/internal/models"
)

// ErrNoDefaultProvider is returned when no rule matches and the workspace has
// no default provider configured. This is a configuration error surfaced to
// the admin, not a runtime failure the chain can absorb.
var ErrNoDefaultProvider = errors.New("no routing rule matched and no default provider configured")

// Match is the routing decision for one interaction.
type Match struct {
	ProviderID    uuid.UUID
	ModelOverride string
	ActionMode    models.ActionMode
	RuleID        *uuid.UUID // nil when the workspace default applied
}

// MatchRule selects the governing rule for an interaction: among active rules
// whose channel equals the interaction's and whose sentiment/risk are unset
// or equal, the minimum priority wins, ties broken by earliest creation.
//
// When nothing matches, the workspace default provider is returned with
// requires_approval, so the matcher always produces a candidate as long as
// the workspace is configured.
func MatchRule(rules []*models.RoutingRule, in *models.Interaction, defaultProviderID uuid.UUID) (*Match, error) {
	var best *models.RoutingRule
	for _, rule := range rules {
		if !rule.IsActive || !rule.Matches(in) {
			continue
		}
		if best == nil || betterThan(rule, best) {
			best = rule
		}
	}

	if best != nil {
		id := best.ID
		return &Match{
			ProviderID:    best.ProviderID,
			ModelOverride: best.ModelOverride,
			ActionMode:    best.ActionMode,
			RuleID:        &id,
		}, nil
	}

	if defaultProviderID == uuid.Nil {
		return nil, ErrNoDefaultProvider
	}

	return &Match{
		ProviderID: defaultProviderID,
		ActionMode: models.ActionRequiresApproval,
	}, nil
}

// betterThan reports whether a should govern over b: lower priority first,
// then earlier creation for determinism.
func betterThan(a, b *models.RoutingRule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
