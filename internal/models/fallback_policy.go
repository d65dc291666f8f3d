package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateChainProvider is returned when a provider appears more than
// once in a fallback chain.
var ErrDuplicateChainProvider = errors.New("provider appears twice in fallback chain")

// FallbackPolicy is an ordered chain of up to three providers consulted when
// the matched provider fails, is inactive, or is rate-limited. The primary
// slot doubles as the workspace default provider for unmatched interactions.
type FallbackPolicy struct {
	ID                  uuid.UUID  `db:"id"`
	WorkspaceID         uuid.UUID  `db:"workspace_id"`
	PrimaryProviderID   *uuid.UUID `db:"primary_provider_id"`
	SecondaryProviderID *uuid.UUID `db:"secondary_provider_id"`
	TertiaryProviderID  *uuid.UUID `db:"tertiary_provider_id"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// Chain returns the configured provider ids in consultation order,
// skipping empty slots.
func (p *FallbackPolicy) Chain() []uuid.UUID {
	var chain []uuid.UUID
	for _, id := range []*uuid.UUID{p.PrimaryProviderID, p.SecondaryProviderID, p.TertiaryProviderID} {
		if id != nil && *id != uuid.Nil {
			chain = append(chain, *id)
		}
	}
	return chain
}

// Validate rejects chains that name the same provider twice.
func (p *FallbackPolicy) Validate() error {
	seen := make(map[uuid.UUID]bool, 3)
	for _, id := range p.Chain() {
		if seen[id] {
			return ErrDuplicateChainProvider
		}
		seen[id] = true
	}
	return nil
}
