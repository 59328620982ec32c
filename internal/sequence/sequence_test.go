package sequence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/risksure/outreach-cli/internal/model"
)

func TestDelayDays(t *testing.T) {
	want := map[int]int{0: 0, 1: 4, 2: 9, 3: 15, 4: 22, 5: 45, 6: 60, 7: 90}
	for step, days := range want {
		got, ok := DelayDays(step)
		assert.True(t, ok, "step %d", step)
		assert.Equal(t, days, got, "step %d", step)
	}

	_, ok := DelayDays(8)
	assert.False(t, ok)
}

func TestNextSendDelay(t *testing.T) {
	day := 24 * time.Hour
	cases := []struct {
		sentStep int
		want     time.Duration
	}{
		{0, 4 * day},
		{1, 5 * day},
		{2, 6 * day},
		{3, 7 * day},
		{4, 23 * day}, // gap from day 22 to the first nurture send at day 45
		{5, 15 * day},
		{6, 30 * day},
		{7, 21 * day}, // past the table, fallback
		{12, 21 * day},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NextSendDelay(tc.sentStep), "sentStep %d", tc.sentStep)
	}
}

func TestSequenceLengths(t *testing.T) {
	for _, tier := range []model.Tier{model.TierVelocity, model.TierBusiness, model.TierCompliance} {
		assert.Equal(t, 5, MaxSteps(tier))
	}
	assert.Equal(t, 8, NurtureMaxSteps())
}

func sendableLead(status model.LeadStatus, step int) *model.Lead {
	return &model.Lead{
		ID:                  "lead-1",
		ContactName:         "Dave Smith",
		Status:              status,
		Tier:                model.TierVelocity,
		CurrentSequenceStep: step,
	}
}

func TestEligibleForSend(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)

	t.Run("ready lead with no schedule sends", func(t *testing.T) {
		assert.Equal(t, SkipNone, EligibleForSend(sendableLead(model.StatusReady, 0), now))
	})

	t.Run("all sendable statuses", func(t *testing.T) {
		for _, status := range []model.LeadStatus{
			model.StatusReady, model.StatusContacted, model.StatusOpened, model.StatusClicked,
		} {
			assert.Equal(t, SkipNone, EligibleForSend(sendableLead(status, 2), now), string(status))
		}
	})

	t.Run("terminal and non-sendable statuses", func(t *testing.T) {
		for _, status := range []model.LeadStatus{
			model.StatusNew, model.StatusEnriching, model.StatusNurture,
			model.StatusUnsubscribed, model.StatusBounced, model.StatusInvalidEmail,
			model.StatusClosedLost, model.StatusDemoScheduled, model.StatusReplied,
		} {
			assert.Equal(t, SkipTerminalStatus, EligibleForSend(sendableLead(status, 0), now), string(status))
		}
	})

	t.Run("not yet due", func(t *testing.T) {
		lead := sendableLead(model.StatusContacted, 1)
		due := now.Add(time.Hour)
		lead.NextEmailAt = &due
		assert.Equal(t, SkipNotDue, EligibleForSend(lead, now))
	})

	t.Run("due in the past sends", func(t *testing.T) {
		lead := sendableLead(model.StatusContacted, 1)
		due := now.Add(-time.Hour)
		lead.NextEmailAt = &due
		assert.Equal(t, SkipNone, EligibleForSend(lead, now))
	})

	t.Run("missing contact name", func(t *testing.T) {
		lead := sendableLead(model.StatusReady, 0)
		lead.ContactName = ""
		assert.Equal(t, SkipNoContactName, EligibleForSend(lead, now))
	})

	t.Run("initial sequence exhausted", func(t *testing.T) {
		assert.Equal(t, SkipInitialExhausted, EligibleForSend(sendableLead(model.StatusContacted, 5), now))
	})
}

func TestEligibleForNurture(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)

	t.Run("nurture lead due sends", func(t *testing.T) {
		assert.Equal(t, SkipNone, EligibleForNurture(sendableLead(model.StatusNurture, 5), now))
	})

	t.Run("only nurture status qualifies", func(t *testing.T) {
		assert.Equal(t, SkipTerminalStatus, EligibleForNurture(sendableLead(model.StatusContacted, 5), now))
	})

	t.Run("not yet due", func(t *testing.T) {
		lead := sendableLead(model.StatusNurture, 6)
		due := now.Add(time.Hour)
		lead.NextEmailAt = &due
		assert.Equal(t, SkipNotDue, EligibleForNurture(lead, now))
	})

	t.Run("exhausted at step 8", func(t *testing.T) {
		assert.Equal(t, SkipNurtureExhausted, EligibleForNurture(sendableLead(model.StatusNurture, 8), now))
	})
}

func TestCanMarkOpened(t *testing.T) {
	assert.True(t, CanMarkOpened(model.StatusContacted))
	assert.True(t, CanMarkOpened(model.StatusReady))
	assert.False(t, CanMarkOpened(model.StatusOpened))
	assert.False(t, CanMarkOpened(model.StatusClicked))
	assert.False(t, CanMarkOpened(model.StatusReplied))
	assert.False(t, CanMarkOpened(model.StatusUnsubscribed))
}

func TestCanMarkClicked(t *testing.T) {
	assert.True(t, CanMarkClicked(model.StatusContacted))
	assert.True(t, CanMarkClicked(model.StatusReady))
	assert.True(t, CanMarkClicked(model.StatusOpened))
	assert.False(t, CanMarkClicked(model.StatusClicked))
	assert.False(t, CanMarkClicked(model.StatusDemoScheduled))
}
