package warming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risksure/outreach-cli/internal/model"
	"github.com/risksure/outreach-cli/internal/store"
)

// stubStore implements the warming slice of store.Store in memory. Unused
// methods panic through the embedded nil interface.
type stubStore struct {
	store.Store

	cfg      model.WarmingConfig
	advances []int
	pauses   []string
}

func (s *stubStore) GetWarming(_ context.Context) (*model.WarmingConfig, error) {
	cfg := s.cfg
	return &cfg, nil
}

func (s *stubStore) InitWarming(_ context.Context, today string) (*model.WarmingConfig, error) {
	if s.cfg.ID == "" {
		s.cfg = model.WarmingConfig{
			ID:                "w-1",
			IsActive:          true,
			CurrentDailyLimit: model.WarmingStartLimit,
			MaxDailyLimit:     model.WarmingMaxLimit,
			IncrementAmount:   model.WarmingIncrementAmount,
			LastIncrementDate: today,
			WarmingStartDate:  today,
		}
	}
	cfg := s.cfg
	return &cfg, nil
}

func (s *stubStore) AdvanceWarmingDay(_ context.Context, today string, newLimit int) (bool, error) {
	if s.cfg.LastIncrementDate == today {
		return false, nil
	}
	s.advances = append(s.advances, newLimit)
	s.cfg.CurrentDailyLimit = newLimit
	s.cfg.LastIncrementDate = today
	s.cfg.EmailsSentToday = 0
	s.cfg.BouncesToday = 0
	s.cfg.ComplaintsToday = 0
	return true, nil
}

func (s *stubStore) RecordEmailSent(_ context.Context) (bool, error) {
	if !s.cfg.IsActive || s.cfg.EmailsSentToday >= s.cfg.CurrentDailyLimit {
		return false, nil
	}
	s.cfg.EmailsSentToday++
	return true, nil
}

func (s *stubStore) IncrementWarmingCounter(_ context.Context, counter store.WarmingCounter) (*model.WarmingConfig, error) {
	if counter == store.CounterComplaint {
		s.cfg.ComplaintsToday++
	} else {
		s.cfg.BouncesToday++
	}
	cfg := s.cfg
	return &cfg, nil
}

func (s *stubStore) PauseWarming(_ context.Context, reason string, at time.Time) (bool, error) {
	if s.cfg.PausedAt != nil {
		return false, nil
	}
	s.cfg.IsActive = false
	s.cfg.PausedAt = &at
	s.cfg.PauseReason = reason
	s.pauses = append(s.pauses, reason)
	return true, nil
}

func (s *stubStore) UnpauseWarming(_ context.Context) error {
	s.cfg.IsActive = true
	s.cfg.PausedAt = nil
	s.cfg.PauseReason = ""
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestGovernor(cfg model.WarmingConfig, now time.Time) (*Governor, *stubStore) {
	s := &stubStore{cfg: cfg}
	return New(s, WithClock(fixedClock(now))), s
}

var day2 = time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)

func baseConfig() model.WarmingConfig {
	return model.WarmingConfig{
		ID:                "w-1",
		IsActive:          true,
		CurrentDailyLimit: 50,
		MaxDailyLimit:     200,
		IncrementAmount:   10,
		LastIncrementDate: "2026-08-28",
		WarmingStartDate:  "2026-08-01",
	}
}

func TestIncrementDailyLimit_HealthyGrowth(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailsSentToday = 50
	cfg.BouncesToday = 1 // 2%
	g, s := newTestGovernor(cfg, day2)

	got, advanced, err := g.IncrementDailyLimit(context.Background())
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, 60, got.CurrentDailyLimit)
	assert.Equal(t, 0, got.EmailsSentToday)
	assert.Equal(t, []int{60}, s.advances)
}

func TestIncrementDailyLimit_CappedAtMax(t *testing.T) {
	cfg := baseConfig()
	cfg.CurrentDailyLimit = 195
	g, _ := newTestGovernor(cfg, day2)

	got, advanced, err := g.IncrementDailyLimit(context.Background())
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, 200, got.CurrentDailyLimit)
}

func TestIncrementDailyLimit_HoldOnElevatedBounces(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailsSentToday = 100
	cfg.BouncesToday = 4 // 4%: above hold, below decrease
	g, _ := newTestGovernor(cfg, day2)

	got, advanced, err := g.IncrementDailyLimit(context.Background())
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, 50, got.CurrentDailyLimit)
}

func TestIncrementDailyLimit_DecreaseOnHighBounces(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailsSentToday = 100
	cfg.BouncesToday = 6 // 6%
	g, _ := newTestGovernor(cfg, day2)

	got, advanced, err := g.IncrementDailyLimit(context.Background())
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, 45, got.CurrentDailyLimit)
}

func TestIncrementDailyLimit_DecreaseFlooredAtStart(t *testing.T) {
	cfg := baseConfig()
	cfg.CurrentDailyLimit = 22
	cfg.EmailsSentToday = 22
	cfg.BouncesToday = 10
	g, _ := newTestGovernor(cfg, day2)

	got, _, err := g.IncrementDailyLimit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.WarmingStartLimit, got.CurrentDailyLimit)
}

func TestIncrementDailyLimit_ExactlyAtThresholdGrows(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailsSentToday = 100
	cfg.BouncesToday = 3 // exactly 3%: not above the hold threshold
	g, _ := newTestGovernor(cfg, day2)

	got, _, err := g.IncrementDailyLimit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60, got.CurrentDailyLimit)
}

func TestIncrementDailyLimit_OncePerDay(t *testing.T) {
	cfg := baseConfig()
	g, s := newTestGovernor(cfg, day2)

	_, advanced, err := g.IncrementDailyLimit(context.Background())
	require.NoError(t, err)
	assert.True(t, advanced)

	_, advanced, err = g.IncrementDailyLimit(context.Background())
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Len(t, s.advances, 1)
}

func TestIncrementDailyLimit_ExactlyFivePercentHolds(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailsSentToday = 100
	cfg.BouncesToday = 5 // exactly 5.0%: holds, does not decrease
	g, _ := newTestGovernor(cfg, day2)

	got, _, err := g.IncrementDailyLimit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, got.CurrentDailyLimit)
}

func TestIncrementDailyLimit_JustOverFivePercentDecreases(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailsSentToday = 1000
	cfg.BouncesToday = 51 // 5.1%
	g, _ := newTestGovernor(cfg, day2)

	got, _, err := g.IncrementDailyLimit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45, got.CurrentDailyLimit)
}

func TestIncrementDailyLimit_PausedDayHoldsLimitResetsCounters(t *testing.T) {
	cfg := baseConfig()
	pausedAt := day2.Add(-2 * time.Hour)
	cfg.IsActive = false
	cfg.PausedAt = &pausedAt
	cfg.PauseReason = "bounce rate 9.0% exceeds 8%"
	cfg.EmailsSentToday = 100
	cfg.BouncesToday = 9
	g, s := newTestGovernor(cfg, day2)

	got, advanced, err := g.IncrementDailyLimit(context.Background())
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, 50, got.CurrentDailyLimit)
	assert.Equal(t, 0, got.EmailsSentToday)
	assert.Equal(t, 0, got.BouncesToday)
	assert.Equal(t, []int{50}, s.advances)
}

func TestIncrementDailyLimit_NoRepauseAfterUnpause(t *testing.T) {
	// The day of an auto-pause ends with a terrible rate on the counters.
	// Rolling into the next day must clear them so that the first bounce
	// after an operator unpauses does not trip the threshold again.
	cfg := baseConfig()
	pausedAt := day2.Add(-26 * time.Hour)
	cfg.IsActive = false
	cfg.PausedAt = &pausedAt
	cfg.PauseReason = "bounce rate 9.0% exceeds 8%"
	cfg.EmailsSentToday = 100
	cfg.BouncesToday = 9
	g, s := newTestGovernor(cfg, day2)

	_, _, err := g.IncrementDailyLimit(context.Background())
	require.NoError(t, err)
	require.NoError(t, g.Unpause(context.Background()))

	s.cfg.EmailsSentToday = 100
	_, err = g.RecordBounce(context.Background()) // 1%
	require.NoError(t, err)
	assert.Empty(t, s.pauses)
	assert.Nil(t, s.cfg.PausedAt)
}

func TestRecordSent_BudgetExhausted(t *testing.T) {
	cfg := baseConfig()
	cfg.CurrentDailyLimit = 2
	g, _ := newTestGovernor(cfg, day2)

	for i := 0; i < 2; i++ {
		ok, err := g.RecordSent(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := g.RecordSent(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordBounce_AutoPause(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailsSentToday = 100
	cfg.BouncesToday = 8 // next bounce crosses 8%
	g, s := newTestGovernor(cfg, day2)

	got, err := g.RecordBounce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, got.BouncesToday)
	require.Len(t, s.pauses, 1)
	assert.Equal(t, "bounce rate 9.0% exceeds 8%", s.pauses[0])
	assert.NotNil(t, s.cfg.PausedAt)
}

func TestRecordBounce_BelowThresholdNoPause(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailsSentToday = 100
	cfg.BouncesToday = 6
	g, s := newTestGovernor(cfg, day2)

	_, err := g.RecordBounce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.pauses)
}

func TestRecordComplaint_AutoPause(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailsSentToday = 100
	g, s := newTestGovernor(cfg, day2)

	// 1/100 = 1% > 0.5%
	_, err := g.RecordComplaint(context.Background())
	require.NoError(t, err)
	require.Len(t, s.pauses, 1)
	assert.Equal(t, "complaint rate 1.00% exceeds 0.5%", s.pauses[0])
}

func TestRecordComplaint_ExactlyAtThresholdNoPause(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailsSentToday = 200
	g, s := newTestGovernor(cfg, day2)

	// 1/200 = 0.5%: not above the threshold
	_, err := g.RecordComplaint(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.pauses)
}

func TestUnpause(t *testing.T) {
	cfg := baseConfig()
	pausedAt := day2.Add(-time.Hour)
	cfg.IsActive = false
	cfg.PausedAt = &pausedAt
	cfg.PauseReason = "manual"
	g, s := newTestGovernor(cfg, day2)

	require.NoError(t, g.Unpause(context.Background()))
	assert.True(t, s.cfg.IsActive)
	assert.Nil(t, s.cfg.PausedAt)
}

func TestStatus(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailsSentToday = 30
	cfg.BouncesToday = 2
	g, _ := newTestGovernor(cfg, day2)

	status, err := g.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, status.EmailsRemaining)
	assert.False(t, status.WarmingComplete)
	assert.True(t, status.IsNewDay)
	assert.False(t, status.IsPaused)
	assert.Equal(t, 28, status.DaysSinceStart)
	assert.InDelta(t, 6.667, status.BounceRatePct, 0.01)
}

func TestStatus_PausedHasNoBudget(t *testing.T) {
	cfg := baseConfig()
	pausedAt := day2.Add(-time.Hour)
	cfg.IsActive = false
	cfg.PausedAt = &pausedAt
	cfg.EmailsSentToday = 10
	g, _ := newTestGovernor(cfg, day2)

	status, err := g.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.IsPaused)
	assert.Equal(t, 0, status.EmailsRemaining)
}

func TestPauseHook_FiresOnceOnTransition(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailsSentToday = 10
	cfg.BouncesToday = 0

	s := &stubStore{cfg: cfg}
	var reasons []string
	g := New(s,
		WithClock(fixedClock(day2)),
		WithPauseHook(func(_ context.Context, reason string) {
			reasons = append(reasons, reason)
		}))

	// Two bounces against ten sends is 20%, past the 8% hard threshold both
	// times, but only the first crossing pauses.
	_, err := g.RecordBounce(context.Background())
	require.NoError(t, err)
	_, err = g.RecordBounce(context.Background())
	require.NoError(t, err)

	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "bounce rate")
}
