package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingRuleMatches(t *testing.T) {
	rule := &RoutingRule{
		ChannelType: ChannelReview,
		Sentiment:   SentimentNegative,
		Risk:        RiskMedium,
	}

	assert.True(t, rule.Matches(&Interaction{
		ChannelType: ChannelReview,
		Sentiment:   SentimentNegative,
		Risk:        RiskMedium,
	}))
	assert.False(t, rule.Matches(&Interaction{
		ChannelType: ChannelDM,
		Sentiment:   SentimentNegative,
		Risk:        RiskMedium,
	}), "channel must match exactly")
	assert.False(t, rule.Matches(&Interaction{
		ChannelType: ChannelReview,
		Sentiment:   SentimentPositive,
		Risk:        RiskMedium,
	}))
	assert.False(t, rule.Matches(&Interaction{
		ChannelType: ChannelReview,
		Sentiment:   SentimentNegative,
		Risk:        RiskHigh,
	}))
}

func TestRoutingRuleWildcards(t *testing.T) {
	rule := &RoutingRule{ChannelType: ChannelComment}

	assert.True(t, rule.Matches(&Interaction{
		ChannelType: ChannelComment,
		Sentiment:   SentimentMixed,
		Risk:        RiskHigh,
	}), "empty sentiment and risk match anything")
	assert.True(t, rule.Matches(&Interaction{ChannelType: ChannelComment}))
}

func TestRiskLevelAtLeast(t *testing.T) {
	assert.True(t, RiskHigh.AtLeast(RiskMedium))
	assert.True(t, RiskMedium.AtLeast(RiskMedium))
	assert.False(t, RiskLow.AtLeast(RiskMedium))
	assert.False(t, RiskLevel("").AtLeast(RiskLow), "unclassified risk satisfies no threshold")
}

func TestFallbackPolicyChain(t *testing.T) {
	primary := uuid.New()
	tertiary := uuid.New()

	policy := &FallbackPolicy{
		PrimaryProviderID:  &primary,
		TertiaryProviderID: &tertiary,
	}

	assert.Equal(t, []uuid.UUID{primary, tertiary}, policy.Chain(), "empty slots are skipped")
	assert.Empty(t, (&FallbackPolicy{}).Chain())
}

func TestFallbackPolicyValidate(t *testing.T) {
	primary := uuid.New()
	secondary := uuid.New()

	valid := &FallbackPolicy{
		PrimaryProviderID:   &primary,
		SecondaryProviderID: &secondary,
	}
	require.NoError(t, valid.Validate())

	duplicate := &FallbackPolicy{
		PrimaryProviderID:  &primary,
		TertiaryProviderID: &primary,
	}
	assert.ErrorIs(t, duplicate.Validate(), ErrDuplicateChainProvider)
}

func TestProviderTimeout(t *testing.T) {
	assert.Equal(t, "30s", (&Provider{}).Timeout().String())
	assert.Equal(t, "1.5s", (&Provider{TimeoutMS: 1500}).Timeout().String())
}

func TestModelEstimateCost(t *testing.T) {
	model := &Model{
		InputCostPer1K:  0.15,
		OutputCostPer1K: 0.60,
	}

	assert.InDelta(t, 0.15+0.60, model.EstimateCost(1000, 1000), 1e-9)
	assert.InDelta(t, 0.0375, model.EstimateCost(250, 0), 1e-9)
	assert.Zero(t, model.EstimateCost(0, 0))
}
