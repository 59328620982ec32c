// Package warming governs the daily send budget for a warming sender domain.
// The limit ramps up slowly while deliverability stays healthy, shrinks when
// bounces pile up, and pauses outright past hard thresholds.
package warming

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/risksure/outreach-cli/internal/model"
	"github.com/risksure/outreach-cli/internal/store"
)

const dateLayout = "2006-01-02"

// Governor owns the warming policy. All counter mutations go through the
// store's guarded updates, so concurrent webhook and batch callers stay safe.
type Governor struct {
	store   store.Store
	now     func() time.Time
	onPause func(ctx context.Context, reason string)
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithPauseHook installs a callback invoked once when sending transitions
// from active to paused. Repeated pause triggers do not re-fire it.
func WithPauseHook(hook func(ctx context.Context, reason string)) Option {
	return func(g *Governor) { g.onPause = hook }
}

func New(s store.Store, opts ...Option) *Governor {
	g := &Governor{store: s, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Governor) today() string {
	return g.now().UTC().Format(dateLayout)
}

// Initialize creates the warming config if it does not exist yet and returns
// it. Safe to call repeatedly.
func (g *Governor) Initialize(ctx context.Context) (*model.WarmingConfig, error) {
	cfg, err := g.store.InitWarming(ctx, g.today())
	if err != nil {
		return nil, eris.Wrap(err, "warming: initialize")
	}
	return cfg, nil
}

// IncrementDailyLimit advances the warming ramp by one day. The previous
// day's bounce rate decides the direction:
//
//	> 5%: shrink by half an increment, floored at the starting limit
//	> 3%: hold
//	else: grow by one increment, capped at the max
//
// While sending is paused the limit holds, but the day still advances so
// the counters reset. At most one advance happens per calendar day
// regardless of how many callers race on it. Returns the config and
// whether this call advanced it.
func (g *Governor) IncrementDailyLimit(ctx context.Context) (*model.WarmingConfig, bool, error) {
	cfg, err := g.store.GetWarming(ctx)
	if errors.Is(err, store.ErrNotFound) {
		cfg, err = g.Initialize(ctx)
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "warming: load config")
	}

	today := g.today()
	if cfg.LastIncrementDate == today {
		return cfg, false, nil
	}

	// The counters still hold yesterday's numbers; AdvanceWarmingDay resets
	// them together with the limit change.
	newLimit := cfg.CurrentDailyLimit
	if cfg.PausedAt != nil {
		// Paused days hold the limit but still roll the counters over.
		// Otherwise a stale bounce rate from the day of the pause would
		// re-trigger an auto-pause right after an operator unpauses.
		zap.L().Warn("warming paused, holding daily limit",
			zap.String("reason", cfg.PauseReason))
	} else {
		bounceRate := cfg.BounceRate()
		switch {
		case bounceRate > model.BounceRateDecreaseThreshold:
			newLimit = cfg.CurrentDailyLimit - cfg.IncrementAmount/2
			if newLimit < model.WarmingStartLimit {
				newLimit = model.WarmingStartLimit
			}
			zap.L().Warn("bounce rate high, decreasing daily limit",
				zap.Float64("bounce_rate_pct", bounceRate),
				zap.Int("old_limit", cfg.CurrentDailyLimit),
				zap.Int("new_limit", newLimit))
		case bounceRate > model.BounceRateHoldThreshold:
			zap.L().Info("bounce rate elevated, holding daily limit",
				zap.Float64("bounce_rate_pct", bounceRate),
				zap.Int("limit", newLimit))
		default:
			newLimit = cfg.CurrentDailyLimit + cfg.IncrementAmount
			if newLimit > cfg.MaxDailyLimit {
				newLimit = cfg.MaxDailyLimit
			}
		}
	}

	advanced, err := g.store.AdvanceWarmingDay(ctx, today, newLimit)
	if err != nil {
		return nil, false, eris.Wrap(err, "warming: advance day")
	}
	if advanced {
		zap.L().Info("warming day advanced",
			zap.String("date", today),
			zap.Int("daily_limit", newLimit))
	}

	cfg, err = g.store.GetWarming(ctx)
	if err != nil {
		return nil, advanced, eris.Wrap(err, "warming: reload config")
	}
	return cfg, advanced, nil
}

// RecordSent consumes one unit of today's budget. Returns false when the
// budget is exhausted or warming is paused; the caller must not send.
func (g *Governor) RecordSent(ctx context.Context) (bool, error) {
	ok, err := g.store.RecordEmailSent(ctx)
	if err != nil {
		return false, eris.Wrap(err, "warming: record sent")
	}
	return ok, nil
}

// RecordBounce bumps today's bounce counter and auto-pauses sending when the
// rate crosses the hard threshold.
func (g *Governor) RecordBounce(ctx context.Context) (*model.WarmingConfig, error) {
	cfg, err := g.store.IncrementWarmingCounter(ctx, store.CounterBounce)
	if err != nil {
		return nil, eris.Wrap(err, "warming: record bounce")
	}
	if rate := cfg.BounceRate(); rate > model.BounceRatePauseThreshold {
		reason := fmt.Sprintf("bounce rate %.1f%% exceeds %.0f%%", rate, model.BounceRatePauseThreshold)
		if err := g.pause(ctx, reason); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// RecordComplaint bumps today's complaint counter and auto-pauses sending
// when the rate crosses the hard threshold.
func (g *Governor) RecordComplaint(ctx context.Context) (*model.WarmingConfig, error) {
	cfg, err := g.store.IncrementWarmingCounter(ctx, store.CounterComplaint)
	if err != nil {
		return nil, eris.Wrap(err, "warming: record complaint")
	}
	if rate := cfg.ComplaintRate(); rate > model.ComplaintRatePauseThreshold {
		reason := fmt.Sprintf("complaint rate %.2f%% exceeds %.1f%%", rate, model.ComplaintRatePauseThreshold)
		if err := g.pause(ctx, reason); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (g *Governor) pause(ctx context.Context, reason string) error {
	paused, err := g.store.PauseWarming(ctx, reason, g.now().UTC())
	if err != nil {
		return eris.Wrap(err, "warming: pause")
	}
	if paused {
		zap.L().Error("warming auto-paused", zap.String("reason", reason))
		if g.onPause != nil {
			g.onPause(ctx, reason)
		}
	}
	return nil
}

// Pause stops sending manually, e.g. from the CLI.
func (g *Governor) Pause(ctx context.Context, reason string) error {
	return g.pause(ctx, reason)
}

// Unpause resumes sending after an operator cleared the deliverability issue.
func (g *Governor) Unpause(ctx context.Context) error {
	if err := g.store.UnpauseWarming(ctx); err != nil {
		return eris.Wrap(err, "warming: unpause")
	}
	zap.L().Info("warming unpaused")
	return nil
}

// UpdateLimits overrides ramp parameters. Nil fields are left unchanged.
func (g *Governor) UpdateLimits(ctx context.Context, currentLimit, maxLimit, increment *int) error {
	if err := g.store.UpdateWarmingLimits(ctx, currentLimit, maxLimit, increment); err != nil {
		return eris.Wrap(err, "warming: update limits")
	}
	return nil
}

// Status returns the derived warming view for the orchestrator and CLI.
func (g *Governor) Status(ctx context.Context) (*model.WarmingStatus, error) {
	cfg, err := g.store.GetWarming(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "warming: status")
	}

	remaining := cfg.CurrentDailyLimit - cfg.EmailsSentToday
	if remaining < 0 || cfg.PausedAt != nil {
		remaining = 0
	}

	days := 0
	if start, err := time.Parse(dateLayout, cfg.WarmingStartDate); err == nil {
		days = int(g.now().UTC().Sub(start).Hours() / 24)
	}

	return &model.WarmingStatus{
		WarmingConfig:   *cfg,
		EmailsRemaining: remaining,
		WarmingComplete: cfg.CurrentDailyLimit >= cfg.MaxDailyLimit,
		DaysSinceStart:  days,
		IsNewDay:        cfg.LastIncrementDate != g.today(),
		IsPaused:        cfg.PausedAt != nil,
		BounceRatePct:   cfg.BounceRate(),
		ComplaintPct:    cfg.ComplaintRate(),
	}, nil
}
