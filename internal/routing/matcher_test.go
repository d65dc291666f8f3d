package routing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reply_engine/internal/models"
)

func rule(priority int, createdAt time.Time, mutate func(*models.RoutingRule)) *models.RoutingRule {
	r := &models.RoutingRule{
		ID:          uuid.New(),
		WorkspaceID: uuid.New(),
		ChannelType: models.ChannelReview,
		ProviderID:  uuid.New(),
		ActionMode:  models.ActionDraftOnly,
		Priority:    priority,
		IsActive:    true,
		CreatedAt:   createdAt,
	}
	if mutate != nil {
		mutate(r)
	}
	return r
}

func TestMatchRule(t *testing.T) {
	now := time.Now()
	interaction := &models.Interaction{
		ChannelType: models.ChannelReview,
		Sentiment:   models.SentimentNegative,
		Risk:        models.RiskLow,
		Content:     "slow delivery",
	}

	t.Run("lowest priority wins", func(t *testing.T) {
		low := rule(1, now, nil)
		high := rule(10, now, nil)

		m, err := MatchRule([]*models.RoutingRule{high, low}, interaction, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, low.ProviderID, m.ProviderID)
		require.NotNil(t, m.RuleID)
		assert.Equal(t, low.ID, *m.RuleID)
	})

	t.Run("priority ties break on earliest creation", func(t *testing.T) {
		older := rule(5, now.Add(-time.Hour), nil)
		newer := rule(5, now, nil)

		m, err := MatchRule([]*models.RoutingRule{newer, older}, interaction, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, older.ProviderID, m.ProviderID)
	})

	t.Run("wildcard sentiment and risk match anything", func(t *testing.T) {
		wildcard := rule(1, now, nil)

		m, err := MatchRule([]*models.RoutingRule{wildcard}, interaction, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, wildcard.ProviderID, m.ProviderID)
	})

	t.Run("set sentiment must equal the interaction's", func(t *testing.T) {
		positive := rule(1, now, func(r *models.RoutingRule) {
			r.Sentiment = models.SentimentPositive
		})
		negative := rule(2, now, func(r *models.RoutingRule) {
			r.Sentiment = models.SentimentNegative
		})

		m, err := MatchRule([]*models.RoutingRule{positive, negative}, interaction, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, negative.ProviderID, m.ProviderID)
	})

	t.Run("set risk must equal the interaction's", func(t *testing.T) {
		highRisk := rule(1, now, func(r *models.RoutingRule) {
			r.Risk = models.RiskHigh
		})

		_, err := MatchRule([]*models.RoutingRule{highRisk}, interaction, uuid.Nil)
		assert.ErrorIs(t, err, ErrNoDefaultProvider)
	})

	t.Run("channel mismatch never matches", func(t *testing.T) {
		dmRule := rule(1, now, func(r *models.RoutingRule) {
			r.ChannelType = models.ChannelDM
		})
		fallback := uuid.New()

		m, err := MatchRule([]*models.RoutingRule{dmRule}, interaction, fallback)
		require.NoError(t, err)
		assert.Equal(t, fallback, m.ProviderID)
		assert.Equal(t, models.ActionRequiresApproval, m.ActionMode)
		assert.Nil(t, m.RuleID)
	})

	t.Run("inactive rules are skipped", func(t *testing.T) {
		inactive := rule(1, now, func(r *models.RoutingRule) {
			r.IsActive = false
		})
		active := rule(2, now, nil)

		m, err := MatchRule([]*models.RoutingRule{inactive, active}, interaction, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, active.ProviderID, m.ProviderID)
	})

	t.Run("no match and no default is a configuration error", func(t *testing.T) {
		_, err := MatchRule(nil, interaction, uuid.Nil)
		assert.ErrorIs(t, err, ErrNoDefaultProvider)
	})

	t.Run("default carries requires_approval and no model override", func(t *testing.T) {
		fallback := uuid.New()

		m, err := MatchRule(nil, interaction, fallback)
		require.NoError(t, err)
		assert.Equal(t, fallback, m.ProviderID)
		assert.Empty(t, m.ModelOverride)
		assert.Equal(t, models.ActionRequiresApproval, m.ActionMode)
	})

	t.Run("model override propagates from the governing rule", func(t *testing.T) {
		withOverride := rule(1, now, func(r *models.RoutingRule) {
			r.ModelOverride = "gpt-4o-mini"
			r.ActionMode = models.ActionAutoSend
		})

		m, err := MatchRule([]*models.RoutingRule{withOverride}, interaction, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", m.ModelOverride)
		assert.Equal(t, models.ActionAutoSend, m.ActionMode)
	})
}
