package model

import "time"

// Warming ramp defaults. The sender starts at 20 emails/day and climbs by 10
// each healthy day toward 200.
const (
	WarmingStartLimit      = 20
	WarmingMaxLimit        = 200
	WarmingIncrementAmount = 10
)

// Bounce/complaint policy thresholds, in percent of emails sent.
const (
	BounceRateDecreaseThreshold = 5.0 // above this the daily limit shrinks
	BounceRateHoldThreshold     = 3.0 // above this the limit holds steady
	BounceRatePauseThreshold    = 8.0 // above this sending auto-pauses
	ComplaintRatePauseThreshold = 0.5
)

// WarmingConfig is the process-wide singleton governing the daily send budget.
type WarmingConfig struct {
	ID                string     `json:"id"`
	IsActive          bool       `json:"is_active"`
	CurrentDailyLimit int        `json:"current_daily_limit"`
	MaxDailyLimit     int        `json:"max_daily_limit"`
	IncrementAmount   int        `json:"increment_amount"`
	EmailsSentToday   int        `json:"emails_sent_today"`
	BouncesToday      int        `json:"bounces_today"`
	ComplaintsToday   int        `json:"complaints_today"`
	LastIncrementDate string     `json:"last_increment_date"` // YYYY-MM-DD
	WarmingStartDate  string     `json:"warming_start_date"`  // YYYY-MM-DD
	PausedAt          *time.Time `json:"paused_at,omitempty"`
	PauseReason       string     `json:"pause_reason,omitempty"`
}

// BounceRate returns today's bounce rate in percent. The denominator is
// floored at 1 so a bounce before any send still registers.
func (c *WarmingConfig) BounceRate() float64 {
	return rate(c.BouncesToday, c.EmailsSentToday)
}

// ComplaintRate returns today's complaint rate in percent.
func (c *WarmingConfig) ComplaintRate() float64 {
	return rate(c.ComplaintsToday, c.EmailsSentToday)
}

func rate(count, sent int) float64 {
	if sent < 1 {
		sent = 1
	}
	return float64(count) / float64(sent) * 100
}

// WarmingStatus is the derived view of the warming config exposed to the
// orchestrator and operators.
type WarmingStatus struct {
	WarmingConfig

	EmailsRemaining int     `json:"emails_remaining"`
	WarmingComplete bool    `json:"warming_complete"`
	DaysSinceStart  int     `json:"days_since_start"`
	IsNewDay        bool    `json:"is_new_day"`
	IsPaused        bool    `json:"is_paused"`
	BounceRatePct   float64 `json:"bounce_rate_pct"`
	ComplaintPct    float64 `json:"complaint_rate_pct"`
}
