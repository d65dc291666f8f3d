package safety

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"reply_engine/internal/models"
)

func permissivePolicy(mutate func(*models.SafetyPolicy)) *models.SafetyPolicy {
	p := &models.SafetyPolicy{
		AllowAutoSendLowRisk:    true,
		AllowAutoSendMediumRisk: true,
		HardEscalateHighRisk:    true,
		MaxResponseLength:       0,
		ConfidenceThreshold:     0,
		IsActive:                true,
	}
	if mutate != nil {
		mutate(p)
	}
	return p
}

func interaction(risk models.RiskLevel, content string) *models.Interaction {
	return &models.Interaction{
		ChannelType: models.ChannelReview,
		Risk:        risk,
		Content:     content,
	}
}

func TestEvaluate(t *testing.T) {
	t.Run("blocked topic escalates before anything else", func(t *testing.T) {
		policy := permissivePolicy(func(p *models.SafetyPolicy) {
			p.BlockedTopics = []string{"Refund Scam"}
		})

		v := Evaluate(models.ActionAutoSend, interaction(models.RiskLow, "this refund scam again"), policy)
		assert.True(t, v.Escalated)
		assert.Equal(t, ReasonBlockedTopic, v.Reason)
		assert.Equal(t, "Refund Scam", v.Matched)
	})

	t.Run("blocked topic match is case-insensitive substring", func(t *testing.T) {
		policy := permissivePolicy(func(p *models.SafetyPolicy) {
			p.BlockedTopics = []string{"lawsuit"}
		})

		v := Evaluate(models.ActionDraftOnly, interaction(models.RiskLow, "I will file a LAWSUIT tomorrow"), policy)
		assert.True(t, v.Escalated)
	})

	t.Run("escalation keyword escalates", func(t *testing.T) {
		policy := permissivePolicy(func(p *models.SafetyPolicy) {
			p.EscalationKeywords = []string{"lawyer"}
		})

		v := Evaluate(models.ActionAutoSend, interaction(models.RiskLow, "my lawyer will contact you"), policy)
		assert.True(t, v.Escalated)
		assert.Equal(t, ReasonEscalationKeyword, v.Reason)
	})

	t.Run("high risk hard-escalates regardless of action mode", func(t *testing.T) {
		policy := permissivePolicy(nil)

		for _, mode := range []models.ActionMode{models.ActionAutoSend, models.ActionDraftOnly, models.ActionRequiresApproval} {
			v := Evaluate(mode, interaction(models.RiskHigh, "hello"), policy)
			assert.True(t, v.Escalated, "mode %s", mode)
			assert.Equal(t, ReasonHighRisk, v.Reason)
		}
	})

	t.Run("high risk passes when hard escalation is off", func(t *testing.T) {
		policy := permissivePolicy(func(p *models.SafetyPolicy) {
			p.HardEscalateHighRisk = false
		})

		v := Evaluate(models.ActionAutoSend, interaction(models.RiskHigh, "hello"), policy)
		assert.False(t, v.Escalated)
		// auto_send at high risk is never permitted, so it downgrades.
		assert.Equal(t, models.ActionRequiresApproval, v.ActionMode)
	})

	t.Run("auto_send permitted at low risk when policy allows", func(t *testing.T) {
		policy := permissivePolicy(nil)

		v := Evaluate(models.ActionAutoSend, interaction(models.RiskLow, "hello"), policy)
		assert.False(t, v.Escalated)
		assert.Equal(t, models.ActionAutoSend, v.ActionMode)
	})

	t.Run("auto_send downgrades at medium risk when not allowed", func(t *testing.T) {
		policy := permissivePolicy(func(p *models.SafetyPolicy) {
			p.AllowAutoSendMediumRisk = false
		})

		v := Evaluate(models.ActionAutoSend, interaction(models.RiskMedium, "hello"), policy)
		assert.False(t, v.Escalated)
		assert.Equal(t, models.ActionRequiresApproval, v.ActionMode)
	})

	t.Run("draft_only and requires_approval pass through", func(t *testing.T) {
		policy := permissivePolicy(nil)

		v := Evaluate(models.ActionDraftOnly, interaction(models.RiskLow, "hello"), policy)
		assert.Equal(t, models.ActionDraftOnly, v.ActionMode)

		v = Evaluate(models.ActionRequiresApproval, interaction(models.RiskMedium, "hello"), policy)
		assert.Equal(t, models.ActionRequiresApproval, v.ActionMode)
	})

	t.Run("nil policy applies the conservative default", func(t *testing.T) {
		v := Evaluate(models.ActionAutoSend, interaction(models.RiskLow, "hello"), nil)
		assert.False(t, v.Escalated)
		assert.Equal(t, models.ActionRequiresApproval, v.ActionMode)

		v = Evaluate(models.ActionAutoSend, interaction(models.RiskMedium, "hello"), nil)
		assert.True(t, v.Escalated)
		assert.Equal(t, ReasonConservativeDefault, v.Reason)

		v = Evaluate(models.ActionDraftOnly, interaction(models.RiskHigh, "hello"), nil)
		assert.True(t, v.Escalated)
	})
}

func TestApplyToDraft(t *testing.T) {
	t.Run("over-length drafts are truncated, not rejected", func(t *testing.T) {
		policy := permissivePolicy(func(p *models.SafetyPolicy) {
			p.MaxResponseLength = 10
		})
		v := Verdict{ActionMode: models.ActionDraftOnly}

		adj := ApplyToDraft(v, strings.Repeat("a", 25), 1.0, policy)
		assert.True(t, adj.Truncated)
		assert.Len(t, adj.Text, 10)
		assert.Equal(t, models.ActionDraftOnly, adj.ActionMode)
	})

	t.Run("truncation never splits a multibyte rune", func(t *testing.T) {
		policy := permissivePolicy(func(p *models.SafetyPolicy) {
			p.MaxResponseLength = 4
		})
		v := Verdict{ActionMode: models.ActionDraftOnly}

		adj := ApplyToDraft(v, "日本語です", 1.0, policy)
		assert.True(t, adj.Truncated)
		assert.Equal(t, "日", adj.Text, "the cut backs off to the last full rune")
		assert.True(t, utf8.ValidString(adj.Text))

		adj = ApplyToDraft(v, "héllo wörld", 1.0, policy)
		assert.True(t, adj.Truncated)
		assert.True(t, utf8.ValidString(adj.Text))
		assert.LessOrEqual(t, len(adj.Text), 4)
	})

	t.Run("low confidence downgrades auto_send", func(t *testing.T) {
		policy := permissivePolicy(func(p *models.SafetyPolicy) {
			p.ConfidenceThreshold = 0.8
		})
		v := Verdict{ActionMode: models.ActionAutoSend}

		adj := ApplyToDraft(v, "looks good", 0.5, policy)
		assert.True(t, adj.Downgraded)
		assert.Equal(t, models.ActionRequiresApproval, adj.ActionMode)
	})

	t.Run("confidence at threshold keeps auto_send", func(t *testing.T) {
		policy := permissivePolicy(func(p *models.SafetyPolicy) {
			p.ConfidenceThreshold = 0.8
		})
		v := Verdict{ActionMode: models.ActionAutoSend}

		adj := ApplyToDraft(v, "looks good", 0.8, policy)
		assert.False(t, adj.Downgraded)
		assert.Equal(t, models.ActionAutoSend, adj.ActionMode)
	})

	t.Run("confidence does not touch draft_only", func(t *testing.T) {
		policy := permissivePolicy(func(p *models.SafetyPolicy) {
			p.ConfidenceThreshold = 0.9
		})
		v := Verdict{ActionMode: models.ActionDraftOnly}

		adj := ApplyToDraft(v, "looks good", 0.1, policy)
		assert.False(t, adj.Downgraded)
		assert.Equal(t, models.ActionDraftOnly, adj.ActionMode)
	})

	t.Run("redacts emails and phone numbers when enabled", func(t *testing.T) {
		policy := permissivePolicy(func(p *models.SafetyPolicy) {
			p.RedactPII = true
		})
		v := Verdict{ActionMode: models.ActionDraftOnly}

		adj := ApplyToDraft(v, "reach me at jane@example.com or +1 555-123-4567", 1.0, policy)
		assert.True(t, adj.Redacted)
		assert.NotContains(t, adj.Text, "jane@example.com")
		assert.NotContains(t, adj.Text, "555-123-4567")
		assert.Contains(t, adj.Text, "[redacted-email]")
		assert.Contains(t, adj.Text, "[redacted-phone]")
	})

	t.Run("nil policy leaves the draft untouched", func(t *testing.T) {
		v := Verdict{ActionMode: models.ActionRequiresApproval}
		adj := ApplyToDraft(v, "draft", 0.0, nil)
		assert.Equal(t, "draft", adj.Text)
		assert.Equal(t, models.ActionRequiresApproval, adj.ActionMode)
	})
}
