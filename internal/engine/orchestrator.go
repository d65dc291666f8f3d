package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reply_engine/internal/models"
	"reply_engine/internal/ratelimit"
	"reply_engine/internal/routing"
	"reply_engine/internal/safety"
	"reply_engine/internal/utils"
)

// Error codes recorded on failed execution logs.
const (
	ErrCodeAdmissionDenied  = "admission_denied"
	ErrCodeNoActiveProvider = "no_active_provider"
	ErrCodeBudgetExhausted  = "budget_exhausted"
	ErrCodeCancelled        = "cancelled"
)

// ConfigStore supplies the workspace configuration the orchestrator routes
// against. Reads are expected to be cached by the implementation.
type ConfigStore interface {
	ActiveRules(ctx context.Context, workspaceID uuid.UUID) ([]*models.RoutingRule, error)
	// ActiveSafetyPolicy returns nil when the workspace has no active policy.
	ActiveSafetyPolicy(ctx context.Context, workspaceID uuid.UUID) (*models.SafetyPolicy, error)
	// FallbackPolicy returns nil when no chain is configured for the workspace.
	FallbackPolicy(ctx context.Context, workspaceID uuid.UUID) (*models.FallbackPolicy, error)
	// Provider returns nil when the record no longer exists; the chain skips
	// dangling references rather than failing on them.
	Provider(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	// ModelFor returns nil when the model is not registered for the provider.
	ModelFor(ctx context.Context, providerID uuid.UUID, name string) (*models.Model, error)
}

// ExecutionSink receives exactly one execution log per terminal decision.
type ExecutionSink interface {
	Record(ctx context.Context, log *models.ExecutionLog) error
}

// Config holds orchestration tunables.
type Config struct {
	MaxHops          int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	WallClockCeiling time.Duration
}

// DefaultConfig returns conservative defaults: three hops, 200ms doubling
// backoff capped at 2s, 10s total budget per interaction.
func DefaultConfig() Config {
	return Config{
		MaxHops:          3,
		BackoffBase:      200 * time.Millisecond,
		BackoffCap:       2 * time.Second,
		WallClockCeiling: 10 * time.Second,
	}
}

// Result is what routeAndRespond hands back to the caller. escalated and
// failed interactions both stay in the human-actionable queue; the
// distinction is informational.
type Result struct {
	Decision     models.Decision `json:"decision"`
	ResponseText string          `json:"response_text,omitempty"`
	ProviderUsed *uuid.UUID      `json:"provider_used,omitempty"`
	ModelUsed    string          `json:"model_used,omitempty"`
	Escalated    bool            `json:"escalated"`
	ErrorCode    string          `json:"error_code,omitempty"`
}

// Orchestrator drives an interaction through matching, safety gating,
// rate-limited invocation, and the fallback chain:
//
//	MATCHING -> GATING -> ADMITTING -> INVOKING
//	                -> (SUCCESS | RETRYING | ADVANCING | ESCALATED | FAILED)
//
// Every terminal state produces one execution log. Only configuration errors
// escape as error returns; provider failures are absorbed into the decision.
type Orchestrator struct {
	store   ConfigStore
	limiter ratelimit.Limiter
	invoker Invoker
	sink    ExecutionSink
	cfg     Config
	logger  *utils.Logger
}

// NewOrchestrator wires the orchestrator. Zero-value config fields fall back
// to DefaultConfig.
func NewOrchestrator(store ConfigStore, limiter ratelimit.Limiter, invoker Invoker, sink ExecutionSink, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = def.MaxHops
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = def.BackoffCap
	}
	if cfg.WallClockCeiling <= 0 {
		cfg.WallClockCeiling = def.WallClockCeiling
	}

	return &Orchestrator{
		store:   store,
		limiter: limiter,
		invoker: invoker,
		sink:    sink,
		cfg:     cfg,
		logger:  utils.NewLogger("orchestrator"),
	}
}

// run carries the mutable traversal state across hops.
type run struct {
	interaction  *models.Interaction
	deadline     time.Time
	totalLatency time.Duration
	inputTokens  int
	outputTokens int
	hops         int
	lastProvider *uuid.UUID
	lastModel    string
	lastErrCode  string
}

// RouteAndRespond is the single entry point: it routes the classified
// interaction, gates it, drafts a response through the fallback chain, and
// records the terminal outcome. The returned error is non-nil only for
// configuration problems the admin must fix.
func (o *Orchestrator) RouteAndRespond(ctx context.Context, in *models.Interaction) (*Result, error) {
	r := &run{
		interaction: in,
		deadline:    time.Now().Add(o.cfg.WallClockCeiling),
	}

	// MATCHING
	rules, err := o.store.ActiveRules(ctx, in.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load routing rules: %w", err)
	}
	policy, err := o.store.ActiveSafetyPolicy(ctx, in.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load safety policy: %w", err)
	}
	fallback, err := o.store.FallbackPolicy(ctx, in.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fallback policy: %w", err)
	}

	defaultProviderID := uuid.Nil
	if fallback != nil && fallback.PrimaryProviderID != nil {
		defaultProviderID = *fallback.PrimaryProviderID
	}

	match, err := routing.MatchRule(rules, in, defaultProviderID)
	if err != nil {
		// ConfigurationError: surfaced to the caller, not absorbed.
		return nil, err
	}

	// GATING. The policy and matched action mode do not vary across hops, so
	// one evaluation covers the whole chain; an escalation here bypasses the
	// provider path entirely.
	verdict := safety.Evaluate(match.ActionMode, in, policy)
	if verdict.Escalated {
		o.logger.Info("Interaction escalated by safety gate",
			"workspace", in.WorkspaceID, "reason", verdict.Reason)
		o.record(ctx, r, models.DecisionEscalated)
		return &Result{Decision: models.DecisionEscalated, Escalated: true}, nil
	}

	// Hop chain: the matched provider first, then the fallback chain minus
	// duplicates, capped at the hop budget.
	chain := buildChain(match.ProviderID, fallback, o.cfg.MaxHops)

	for _, providerID := range chain {
		if code, stop := o.checkBudget(ctx, r); stop {
			return o.fail(ctx, r, code), nil
		}

		provider, err := o.store.Provider(ctx, providerID)
		if err != nil {
			o.logger.Error("Provider lookup failed, skipping hop", "provider_id", providerID, "error", err)
			r.lastErrCode = string(OutcomeTransientError)
			continue
		}
		if provider == nil {
			// Dangling reference from a deleted provider; never fall back to
			// a record that no longer exists.
			o.logger.Warn("Fallback chain references missing provider", "provider_id", providerID)
			continue
		}
		if !provider.IsActive {
			// Inactive providers are skipped without consuming retry budget.
			continue
		}

		result, advanced := o.runHop(ctx, r, provider, match, verdict, policy)
		if !advanced {
			return result, nil
		}
	}

	// Chain exhausted.
	if r.lastErrCode == "" {
		r.lastErrCode = ErrCodeNoActiveProvider
	}
	return o.fail(ctx, r, r.lastErrCode), nil
}

// runHop executes ADMITTING/INVOKING/RETRYING for one provider. It returns
// (result, false) on a terminal state, or (nil, true) to advance the chain.
func (o *Orchestrator) runHop(ctx context.Context, r *run, provider *models.Provider, match *routing.Match, verdict safety.Verdict, policy *models.SafetyPolicy) (*Result, bool) {
	model := match.ModelOverride
	if model == "" {
		model = provider.DefaultModel
	}

	r.hops++
	pid := provider.ID
	r.lastProvider = &pid
	r.lastModel = model

	maxAttempts := provider.MaxRetries + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if code, stop := o.checkBudget(ctx, r); stop {
			return o.fail(ctx, r, code), false
		}

		// ADMITTING. A denied admission advances the chain like any provider
		// failure; limiter outages fail open so a Redis blip cannot take the
		// whole engine down.
		allowed, err := o.limiter.Allow(ctx, provider.ID.String(), provider.RateLimitPerMinute)
		if err != nil {
			o.logger.Warn("Rate limiter unavailable, admitting", "provider", provider.Name, "error", err)
			allowed = true
		}
		if !allowed {
			o.logger.Info("Admission denied, advancing chain", "provider", provider.Name)
			r.lastErrCode = ErrCodeAdmissionDenied
			return nil, true
		}

		// INVOKING
		outcome := o.invoker.Invoke(ctx, provider, model, r.interaction.Content)
		r.totalLatency += outcome.Latency
		r.inputTokens += outcome.InputTokens
		r.outputTokens += outcome.OutputTokens

		if outcome.Kind == OutcomeSuccess {
			adj := safety.ApplyToDraft(verdict, outcome.Text, outcome.Confidence, policy)
			decision := models.DecisionDraft
			if adj.ActionMode == models.ActionAutoSend {
				decision = models.DecisionSent
			}
			r.lastErrCode = ""
			o.record(ctx, r, decision)
			return &Result{
				Decision:     decision,
				ResponseText: adj.Text,
				ProviderUsed: r.lastProvider,
				ModelUsed:    model,
			}, false
		}

		r.lastErrCode = string(outcome.Kind)
		if !outcome.Kind.Retryable() {
			// AuthError / PermanentError: retrying the same provider will
			// not help. ADVANCING.
			return nil, true
		}
		if attempt == maxAttempts-1 {
			// Retry budget for this hop exhausted. ADVANCING.
			return nil, true
		}

		// RETRYING with exponential backoff, then re-enter ADMITTING.
		if !o.backoff(ctx, attempt, r.deadline) {
			code := ErrCodeCancelled
			if ctx.Err() == nil {
				code = ErrCodeBudgetExhausted
			}
			return o.fail(ctx, r, code), false
		}
	}

	return nil, true
}

// checkBudget reports whether the traversal must stop because the caller
// cancelled or the wall-clock ceiling passed.
func (o *Orchestrator) checkBudget(ctx context.Context, r *run) (string, bool) {
	if ctx.Err() != nil {
		return ErrCodeCancelled, true
	}
	if time.Now().After(r.deadline) {
		return ErrCodeBudgetExhausted, true
	}
	return "", false
}

// backoff waits before the next attempt: base doubled per attempt, capped,
// and never past the interaction's deadline. Returns false when the wait was
// cut short by cancellation or the deadline.
func (o *Orchestrator) backoff(ctx context.Context, attempt int, deadline time.Time) bool {
	wait := o.cfg.BackoffBase << uint(attempt)
	if wait > o.cfg.BackoffCap {
		wait = o.cfg.BackoffCap
	}
	if remaining := time.Until(deadline); wait > remaining {
		return false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// fail records the terminal FAILED decision. The interaction stays in the
// human-actionable queue; it is never silently dropped.
func (o *Orchestrator) fail(ctx context.Context, r *run, code string) *Result {
	r.lastErrCode = code
	o.logger.Warn("Interaction failed",
		"workspace", r.interaction.WorkspaceID, "error_code", code, "hops", r.hops)
	o.record(ctx, r, models.DecisionFailed)
	return &Result{
		Decision:     models.DecisionFailed,
		ProviderUsed: r.lastProvider,
		ModelUsed:    r.lastModel,
		ErrorCode:    code,
	}
}

// record emits the single execution log for a terminal state. It runs on a
// detached context so a cancelled caller still leaves an audit trail rather
// than a silent gap.
func (o *Orchestrator) record(ctx context.Context, r *run, decision models.Decision) {
	logCtx := context.WithoutCancel(ctx)

	entry := &models.ExecutionLog{
		ID:           uuid.New(),
		WorkspaceID:  r.interaction.WorkspaceID,
		ChannelType:  r.interaction.ChannelType,
		ProviderID:   r.lastProvider,
		ModelName:    r.lastModel,
		Decision:     decision,
		LatencyMS:    r.totalLatency.Milliseconds(),
		InputTokens:  r.inputTokens,
		OutputTokens: r.outputTokens,
		ErrorCode:    r.lastErrCode,
		Hops:         r.hops,
		CreatedAt:    time.Now(),
	}

	if r.lastProvider != nil && r.lastModel != "" {
		if m, err := o.store.ModelFor(logCtx, *r.lastProvider, r.lastModel); err == nil && m != nil {
			entry.EstimatedCost = m.EstimateCost(r.inputTokens, r.outputTokens)
		}
	}

	if err := o.sink.Record(logCtx, entry); err != nil {
		o.logger.Error("Failed to record execution log",
			"workspace", r.interaction.WorkspaceID, "decision", decision, "error", err)
	}
}

// buildChain orders the providers to consult: the matched provider first,
// then the fallback chain without duplicates, capped at maxHops.
func buildChain(matched uuid.UUID, fallback *models.FallbackPolicy, maxHops int) []uuid.UUID {
	chain := []uuid.UUID{matched}
	seen := map[uuid.UUID]bool{matched: true}

	if fallback != nil {
		for _, id := range fallback.Chain() {
			if !seen[id] {
				chain = append(chain, id)
				seen[id] = true
			}
		}
	}

	if len(chain) > maxHops {
		chain = chain[:maxHops]
	}
	return chain
}
