package safety

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"reply_engine/internal/models"
)

// Escalation reasons recorded on gate verdicts.
const (
	ReasonBlockedTopic        = "blocked_topic"
	ReasonEscalationKeyword   = "escalation_keyword"
	ReasonHighRisk            = "high_risk"
	ReasonConservativeDefault = "conservative_default"
)

// Verdict is the gate's pre-call decision: the enforced action mode, and
// whether the interaction short-circuits to escalation without any provider
// call.
type Verdict struct {
	ActionMode models.ActionMode
	Escalated  bool
	Reason     string
	Matched    string // the topic or keyword that triggered escalation
}

// Evaluate applies the workspace's active safety policy to the matched action
// mode before any provider is called. Steps run in order, first applicable
// wins. A nil policy means no policy is active and the conservative default
// applies: no auto-send, escalate at risk >= medium.
//
// Pure function over its inputs; no side effects.
func Evaluate(mode models.ActionMode, in *models.Interaction, policy *models.SafetyPolicy) Verdict {
	if policy == nil {
		if in.Risk.AtLeast(models.RiskMedium) {
			return Verdict{
				ActionMode: models.ActionRequiresApproval,
				Escalated:  true,
				Reason:     ReasonConservativeDefault,
			}
		}
		return Verdict{ActionMode: models.ActionRequiresApproval}
	}

	content := strings.ToLower(in.Content)

	for _, topic := range policy.BlockedTopics {
		if topic != "" && strings.Contains(content, strings.ToLower(topic)) {
			return Verdict{
				ActionMode: models.ActionRequiresApproval,
				Escalated:  true,
				Reason:     ReasonBlockedTopic,
				Matched:    topic,
			}
		}
	}

	for _, keyword := range policy.EscalationKeywords {
		if keyword != "" && strings.Contains(content, strings.ToLower(keyword)) {
			return Verdict{
				ActionMode: models.ActionRequiresApproval,
				Escalated:  true,
				Reason:     ReasonEscalationKeyword,
				Matched:    keyword,
			}
		}
	}

	if in.Risk == models.RiskHigh && policy.HardEscalateHighRisk {
		return Verdict{
			ActionMode: models.ActionRequiresApproval,
			Escalated:  true,
			Reason:     ReasonHighRisk,
		}
	}

	if mode == models.ActionAutoSend {
		permitted := (in.Risk == models.RiskLow && policy.AllowAutoSendLowRisk) ||
			(in.Risk == models.RiskMedium && policy.AllowAutoSendMediumRisk)
		if !permitted {
			return Verdict{ActionMode: models.ActionRequiresApproval}
		}
		return Verdict{ActionMode: models.ActionAutoSend}
	}

	// draft_only and requires_approval pass through unchanged: both require
	// the draft to exist and never auto-send.
	return Verdict{ActionMode: mode}
}

// DraftAdjustment is the gate's post-call decision on a produced draft.
type DraftAdjustment struct {
	Text       string
	ActionMode models.ActionMode
	Truncated  bool
	Downgraded bool
	Redacted   bool
}

// ApplyToDraft applies the policy's formatting and confidence guardrails once
// a draft exists. Over-length drafts are truncated, not rejected. A reported
// confidence below the threshold downgrades auto_send to requires_approval.
func ApplyToDraft(v Verdict, text string, confidence float64, policy *models.SafetyPolicy) DraftAdjustment {
	adj := DraftAdjustment{Text: text, ActionMode: v.ActionMode}
	if policy == nil {
		return adj
	}

	if policy.RedactPII {
		redacted := redactPII(adj.Text)
		if redacted != adj.Text {
			adj.Text = redacted
			adj.Redacted = true
		}
	}

	if policy.MaxResponseLength > 0 && len(adj.Text) > policy.MaxResponseLength {
		adj.Text = truncateOnRuneBoundary(adj.Text, policy.MaxResponseLength)
		adj.Truncated = true
	}

	if adj.ActionMode == models.ActionAutoSend && confidence < policy.ConfidenceThreshold {
		adj.ActionMode = models.ActionRequiresApproval
		adj.Downgraded = true
	}

	return adj
}

// truncateOnRuneBoundary cuts text to at most max bytes without splitting a
// multibyte rune, so a truncated draft is still valid UTF-8.
func truncateOnRuneBoundary(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`)
)

// redactPII masks email addresses and phone numbers in a draft.
func redactPII(text string) string {
	text = emailPattern.ReplaceAllString(text, "[redacted-email]")
	text = phonePattern.ReplaceAllString(text, "[redacted-phone]")
	return text
}
