package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/risksure/outreach-cli/internal/model"
)

// Sentinel errors shared by all drivers.
var (
	ErrDuplicateEmail = eris.New("store: duplicate contact email")
	ErrNotFound       = eris.New("store: not found")
	ErrTokenUsed      = eris.New("store: unsubscribe token already used")
)

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Status model.LeadStatus `json:"status,omitempty"`
	Tier   model.Tier       `json:"tier,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// EnrichmentUpdate carries the fields written back after a successful
// enrichment. The lead transitions to ready.
type EnrichmentUpdate struct {
	Data               *model.EnrichmentData
	Score              int
	Tier               model.Tier
	EstimatedSubbies   int
	EstimatedRevenue   string
	PersonalizedOpener string
	PainPoints         []string
}

// SentUpdate records a confirmed external send. The lead advances one step,
// the scheduling clock resets, and a sent event lands in the log in one
// transaction so a deadline mid-send cannot half-apply it.
type SentUpdate struct {
	MessageID   string
	Subject     string
	Step        int
	Variant     model.Variant
	NextEmailAt time.Time
	SentAt      time.Time
}

// WarmingCounter selects which daily quality counter to bump.
type WarmingCounter int

const (
	CounterBounce WarmingCounter = iota
	CounterComplaint
)

// LeadStats summarizes the lead table for dashboards and the stats command.
type LeadStats struct {
	Total    int                      `json:"total"`
	ByStatus map[model.LeadStatus]int `json:"by_status"`
	ByTier   map[model.Tier]int       `json:"by_tier"`
}

// Store defines the persistence interface for the outreach pipeline.
// Implementations must make every single-record mutation atomic: webhook
// handlers and the batch job race on the same leads and warming counters.
type Store interface {
	// Leads
	CreateLead(ctx context.Context, lead model.Lead) (*model.Lead, error)
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	LeadStats(ctx context.Context) (*LeadStats, error)

	// Pipeline queries (status-indexed, bounded)
	LeadsPendingValidation(ctx context.Context, limit int) ([]model.Lead, error)
	LeadsPendingEnrichment(ctx context.Context, limit int) ([]model.Lead, error)
	LeadsReadyForEmail(ctx context.Context, now time.Time, limit int) ([]model.Lead, error)
	NurtureLeads(ctx context.Context, now time.Time, limit int) ([]model.Lead, error)

	// Lead transitions
	UpdateValidation(ctx context.Context, leadID string, result model.ValidationResult) error
	UpdateEnrichment(ctx context.Context, leadID string, update EnrichmentUpdate) error
	SetEnrichmentError(ctx context.Context, leadID string, errMsg string) error
	AssignVariant(ctx context.Context, leadID string, variant model.Variant) error
	MarkEmailSent(ctx context.Context, leadID string, update SentUpdate) error
	MarkOpened(ctx context.Context, leadID string, at time.Time) (bool, error)
	MarkClicked(ctx context.Context, leadID string, at time.Time) (bool, error)
	MarkBounced(ctx context.Context, leadID string) error
	UpdateLeadStatus(ctx context.Context, leadID string, status model.LeadStatus) error
	SetDemoScheduled(ctx context.Context, leadID string, at time.Time, bookingURL string) error

	// Warming config (process-wide singleton)
	InitWarming(ctx context.Context, today string) (*model.WarmingConfig, error)
	GetWarming(ctx context.Context) (*model.WarmingConfig, error)
	AdvanceWarmingDay(ctx context.Context, today string, newLimit int) (bool, error)
	RecordEmailSent(ctx context.Context) (bool, error)
	IncrementWarmingCounter(ctx context.Context, counter WarmingCounter) (*model.WarmingConfig, error)
	PauseWarming(ctx context.Context, reason string, at time.Time) (bool, error)
	UnpauseWarming(ctx context.Context) error
	UpdateWarmingLimits(ctx context.Context, currentLimit, maxLimit, increment *int) error

	// Email event log (append-only; dedup on provider message id + type)
	LogEmailEvent(ctx context.Context, event model.EmailEvent) (bool, error)
	EventsByLead(ctx context.Context, leadID string, limit int) ([]model.EmailEvent, error)

	// A/B tests
	RecordABEvent(ctx context.Context, tier model.Tier, step int, variant model.Variant, event model.ABEventType, subjectA, subjectB string) error
	GetABTest(ctx context.Context, testName string) (*model.ABTestResult, error)
	ListABTests(ctx context.Context) ([]model.ABTestResult, error)

	// Unsubscribe tokens
	GetOrCreateUnsubscribeToken(ctx context.Context, leadID string, token string) (string, error)
	GetUnsubscribeToken(ctx context.Context, token string) (*model.UnsubscribeToken, error)
	ProcessUnsubscribe(ctx context.Context, token string, reason string, at time.Time) error

	// Daily metrics
	EnsureDailyMetrics(ctx context.Context, date string) error
	IncrementMetric(ctx context.Context, date string, metric model.Metric, amount int) error
	GetDailyMetrics(ctx context.Context, date string) (*model.DailyMetrics, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
