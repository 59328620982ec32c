package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierForSubbies(t *testing.T) {
	cases := []struct {
		subbies int
		want    Tier
	}{
		{0, TierVelocity},
		{1, TierVelocity},
		{75, TierVelocity},
		{76, TierCompliance},
		{250, TierCompliance},
		{251, TierBusiness},
		{1000, TierBusiness},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierForSubbies(tc.subbies), "subbies=%d", tc.subbies)
	}
}

func TestLeadStatus_IsTerminal(t *testing.T) {
	terminal := []LeadStatus{
		StatusReplied, StatusDemoScheduled, StatusDemoComplete, StatusTrial,
		StatusClosedWon, StatusClosedLost, StatusUnsubscribed, StatusBounced,
		StatusInvalidEmail,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), string(s))
	}

	active := []LeadStatus{
		StatusNew, StatusValidating, StatusEnriching, StatusReady,
		StatusContacted, StatusOpened, StatusClicked, StatusNurture,
	}
	for _, s := range active {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "dave@acme.com", NormalizeEmail("  Dave@Acme.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestHasContactName(t *testing.T) {
	assert.True(t, (&Lead{ContactName: "Dave Smith"}).HasContactName())
	assert.False(t, (&Lead{ContactName: "   "}).HasContactName())
	assert.False(t, (&Lead{}).HasContactName())
}

func TestVariantMetrics(t *testing.T) {
	assert.Equal(t, MetricVariantASent, VariantSentMetric(VariantA))
	assert.Equal(t, MetricVariantBSent, VariantSentMetric(VariantB))
	assert.Equal(t, MetricVariantAOpened, VariantOpenedMetric(VariantA))
	assert.Equal(t, MetricVariantBOpened, VariantOpenedMetric(VariantB))
	// Unassigned variant falls back to the A counters.
	assert.Equal(t, MetricVariantASent, VariantSentMetric(""))
}

func TestTierSentMetric(t *testing.T) {
	assert.Equal(t, MetricVelocitySent, TierSentMetric(TierVelocity))
	assert.Equal(t, MetricComplianceSent, TierSentMetric(TierCompliance))
	assert.Equal(t, MetricBusinessSent, TierSentMetric(TierBusiness))
}

func TestMetricValid(t *testing.T) {
	assert.True(t, MetricEmailsSent.Valid())
	assert.False(t, Metric("emails_teleported").Valid())
}
