package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"reply_engine/internal/models"
)

// ConfigReader is the engine's read path over workspace configuration. Rule
// and policy lookups go through the DB's LRU caches; a missing policy or
// provider is reported as nil rather than an error because the engine
// treats absence as a normal condition, not a failure.
type ConfigReader struct {
	db        *DB
	rules     *RuleRepository
	policies  *PolicyRepository
	providers *ProviderRepository
	models    *ModelRepository
}

// NewConfigReader creates the engine-facing configuration reader.
func NewConfigReader(db *DB) *ConfigReader {
	return &ConfigReader{
		db:        db,
		rules:     NewRuleRepository(db),
		policies:  NewPolicyRepository(db),
		providers: NewProviderRepository(db),
		models:    NewModelRepository(db),
	}
}

// ActiveRules returns the workspace's active routing rules, cached.
func (c *ConfigReader) ActiveRules(ctx context.Context, workspaceID uuid.UUID) ([]*models.RoutingRule, error) {
	key := ruleCacheKey(workspaceID.String())
	if cached, ok := c.db.ruleCache.Get(key); ok {
		return cached.([]*models.RoutingRule), nil
	}

	rules, err := c.rules.ListActiveByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	c.db.ruleCache.Set(key, rules)
	return rules, nil
}

// ActiveSafetyPolicy returns the workspace's active safety policy, cached.
// Returns nil when the workspace has none; the gate then applies its
// conservative default.
func (c *ConfigReader) ActiveSafetyPolicy(ctx context.Context, workspaceID uuid.UUID) (*models.SafetyPolicy, error) {
	key := safetyPolicyCacheKey(workspaceID.String())
	if cached, ok := c.db.policyCache.Get(key); ok {
		return cached.(*models.SafetyPolicy), nil
	}

	policy, err := c.policies.GetActiveSafetyPolicy(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) {
			c.db.policyCache.Set(key, (*models.SafetyPolicy)(nil))
			return nil, nil
		}
		return nil, err
	}

	c.db.policyCache.Set(key, policy)
	return policy, nil
}

// FallbackPolicy returns the workspace's fallback policy, cached. Returns
// nil when none is configured.
func (c *ConfigReader) FallbackPolicy(ctx context.Context, workspaceID uuid.UUID) (*models.FallbackPolicy, error) {
	key := fallbackPolicyCacheKey(workspaceID.String())
	if cached, ok := c.db.policyCache.Get(key); ok {
		return cached.(*models.FallbackPolicy), nil
	}

	policy, err := c.policies.GetFallbackPolicy(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, ErrFallbackPolicyNotFound) {
			c.db.policyCache.Set(key, (*models.FallbackPolicy)(nil))
			return nil, nil
		}
		return nil, err
	}

	c.db.policyCache.Set(key, policy)
	return policy, nil
}

// Provider resolves a provider by ID. Returns nil for a dangling reference
// so the orchestrator can skip it and advance the chain.
func (c *ConfigReader) Provider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	provider, err := c.providers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return provider, nil
}

// ModelFor resolves a model's cost record. Returns nil for unknown models;
// the execution log then carries a zero cost estimate.
func (c *ConfigReader) ModelFor(ctx context.Context, providerID uuid.UUID, name string) (*models.Model, error) {
	model, err := c.models.GetByProviderAndName(ctx, providerID, name)
	if err != nil {
		if errors.Is(err, ErrModelNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model, nil
}
