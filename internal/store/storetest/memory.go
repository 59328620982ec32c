// Package storetest provides an in-memory Store for exercising the
// orchestrator and HTTP handlers without a database. It mirrors the SQL
// drivers' guarded-update semantics: budget reservation, status-gated
// engagement upgrades, event dedup, and one-shot unsubscribe tokens.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/risksure/outreach-cli/internal/model"
	"github.com/risksure/outreach-cli/internal/store"
)

// Memory implements store.Store over maps. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	leads   map[string]*model.Lead
	warming *model.WarmingConfig
	metrics map[string]map[model.Metric]int
	events  []model.EmailEvent
	abTests map[string]*model.ABTestResult
	tokens  map[string]*model.UnsubscribeToken // keyed by token value
	nextID  int
}

var _ store.Store = (*Memory)(nil)

// New returns an empty Memory store.
func New() *Memory {
	return &Memory{
		leads:   make(map[string]*model.Lead),
		metrics: make(map[string]map[model.Metric]int),
		abTests: make(map[string]*model.ABTestResult),
		tokens:  make(map[string]*model.UnsubscribeToken),
	}
}

// AddLead seeds a lead directly, bypassing the dedup check.
func (m *Memory) AddLead(l model.Lead) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[l.ID] = &l
}

// MetricCount reads a daily counter back out for assertions.
func (m *Memory) MetricCount(date string, metric model.Metric) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics[date][metric]
}

// Events returns a copy of the full event log.
func (m *Memory) Events() []model.EmailEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.EmailEvent, len(m.events))
	copy(out, m.events)
	return out
}

// TokenFor returns the unsubscribe token issued to a lead, if any.
func (m *Memory) TokenFor(leadID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.tokens {
		if tok.LeadID == leadID {
			return tok.Token
		}
	}
	return ""
}

func (m *Memory) genID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// Leads

func (m *Memory) CreateLead(ctx context.Context, lead model.Lead) (*model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := model.NormalizeEmail(lead.ContactEmail)
	for _, l := range m.leads {
		if model.NormalizeEmail(l.ContactEmail) == email {
			return nil, store.ErrDuplicateEmail
		}
	}
	if lead.ID == "" {
		lead.ID = m.genID("lead")
	}
	lead.ContactEmail = email
	m.leads[lead.ID] = &lead
	cp := lead
	return &cp, nil
}

func (m *Memory) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *Memory) GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = model.NormalizeEmail(email)
	for _, l := range m.leads {
		if model.NormalizeEmail(l.ContactEmail) == email {
			cp := *l
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Memory) ListLeads(ctx context.Context, f store.LeadFilter) ([]model.Lead, error) {
	leads := m.leadsWhere(0, func(l *model.Lead) bool {
		if f.Status != "" && l.Status != f.Status {
			return false
		}
		if f.Tier != "" && l.Tier != f.Tier {
			return false
		}
		return true
	})
	if f.Offset > 0 {
		if f.Offset >= len(leads) {
			return nil, nil
		}
		leads = leads[f.Offset:]
	}
	if f.Limit > 0 && len(leads) > f.Limit {
		leads = leads[:f.Limit]
	}
	return leads, nil
}

func (m *Memory) LeadStats(ctx context.Context) (*store.LeadStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &store.LeadStats{
		ByStatus: make(map[model.LeadStatus]int),
		ByTier:   make(map[model.Tier]int),
	}
	for _, l := range m.leads {
		stats.Total++
		stats.ByStatus[l.Status]++
		stats.ByTier[l.Tier]++
	}
	return stats, nil
}

func (m *Memory) leadsWhere(limit int, pred func(*model.Lead) bool) []model.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Lead
	for _, l := range m.leads {
		if pred(l) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Pipeline queries

func (m *Memory) LeadsPendingValidation(ctx context.Context, limit int) ([]model.Lead, error) {
	return m.leadsWhere(limit, func(l *model.Lead) bool {
		return l.Status == model.StatusNew && !l.EmailValidated
	}), nil
}

func (m *Memory) LeadsPendingEnrichment(ctx context.Context, limit int) ([]model.Lead, error) {
	return m.leadsWhere(limit, func(l *model.Lead) bool {
		return l.Status == model.StatusEnriching
	}), nil
}

func (m *Memory) LeadsReadyForEmail(ctx context.Context, now time.Time, limit int) ([]model.Lead, error) {
	sendable := map[model.LeadStatus]bool{
		model.StatusReady: true, model.StatusContacted: true,
		model.StatusOpened: true, model.StatusClicked: true,
	}
	return m.leadsWhere(limit, func(l *model.Lead) bool {
		return sendable[l.Status] && (l.NextEmailAt == nil || !l.NextEmailAt.After(now))
	}), nil
}

func (m *Memory) NurtureLeads(ctx context.Context, now time.Time, limit int) ([]model.Lead, error) {
	return m.leadsWhere(limit, func(l *model.Lead) bool {
		return l.Status == model.StatusNurture && (l.NextEmailAt == nil || !l.NextEmailAt.After(now))
	}), nil
}

// Lead transitions

func (m *Memory) UpdateValidation(ctx context.Context, id string, result model.ValidationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return store.ErrNotFound
	}
	l.EmailValidated = true
	l.EmailValidationResult = result
	if result == model.ValidationInvalid {
		l.Status = model.StatusInvalidEmail
	} else {
		l.Status = model.StatusEnriching
	}
	return nil
}

func (m *Memory) UpdateEnrichment(ctx context.Context, id string, u store.EnrichmentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return store.ErrNotFound
	}
	l.Enrichment = u.Data
	l.EnrichmentScore = u.Score
	l.Tier = u.Tier
	l.EstimatedSubbies = u.EstimatedSubbies
	l.EstimatedRevenue = u.EstimatedRevenue
	l.PersonalizedOpener = u.PersonalizedOpener
	l.PainPoints = u.PainPoints
	l.EnrichmentError = ""
	l.Status = model.StatusReady
	return nil
}

func (m *Memory) SetEnrichmentError(ctx context.Context, id string, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return store.ErrNotFound
	}
	l.EnrichmentError = msg
	l.Status = model.StatusReady
	return nil
}

func (m *Memory) AssignVariant(ctx context.Context, id string, v model.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return store.ErrNotFound
	}
	if l.SequenceVariant == "" {
		l.SequenceVariant = v
	}
	return nil
}

func (m *Memory) MarkEmailSent(ctx context.Context, id string, u store.SentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return store.ErrNotFound
	}
	if l.Status != model.StatusNurture {
		l.Status = model.StatusContacted
	}
	l.CurrentSequenceStep = u.Step + 1
	sentAt := u.SentAt
	next := u.NextEmailAt
	l.LastEmailSentAt = &sentAt
	l.NextEmailAt = &next
	m.events = append(m.events, model.EmailEvent{
		ID:              m.genID("event"),
		LeadID:          id,
		EventType:       model.EventSent,
		Subject:         u.Subject,
		SequenceStep:    u.Step,
		SequenceVariant: u.Variant,
		MessageID:       u.MessageID,
		CreatedAt:       u.SentAt,
	})
	return nil
}

func (m *Memory) MarkOpened(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if l.Status != model.StatusContacted && l.Status != model.StatusReady {
		return false, nil
	}
	l.Status = model.StatusOpened
	l.LastOpenedAt = &at
	return true, nil
}

func (m *Memory) MarkClicked(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return false, store.ErrNotFound
	}
	switch l.Status {
	case model.StatusContacted, model.StatusReady, model.StatusOpened:
	default:
		return false, nil
	}
	l.Status = model.StatusClicked
	l.LastClickedAt = &at
	return true, nil
}

func (m *Memory) MarkBounced(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return store.ErrNotFound
	}
	l.Status = model.StatusBounced
	return nil
}

func (m *Memory) UpdateLeadStatus(ctx context.Context, id string, status model.LeadStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return store.ErrNotFound
	}
	l.Status = status
	return nil
}

func (m *Memory) SetDemoScheduled(ctx context.Context, id string, at time.Time, bookingURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return store.ErrNotFound
	}
	l.Status = model.StatusDemoScheduled
	l.DemoScheduledAt = &at
	l.DemoBookingURL = bookingURL
	return nil
}

// Warming config

func (m *Memory) InitWarming(ctx context.Context, today string) (*model.WarmingConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warming == nil {
		m.warming = &model.WarmingConfig{
			ID:                "warming",
			IsActive:          true,
			CurrentDailyLimit: model.WarmingStartLimit,
			MaxDailyLimit:     model.WarmingMaxLimit,
			IncrementAmount:   model.WarmingIncrementAmount,
			LastIncrementDate: today,
			WarmingStartDate:  today,
		}
	}
	cp := *m.warming
	return &cp, nil
}

func (m *Memory) GetWarming(ctx context.Context) (*model.WarmingConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warming == nil {
		return nil, store.ErrNotFound
	}
	cp := *m.warming
	return &cp, nil
}

func (m *Memory) AdvanceWarmingDay(ctx context.Context, today string, newLimit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warming == nil {
		return false, store.ErrNotFound
	}
	if m.warming.LastIncrementDate == today {
		return false, nil
	}
	m.warming.LastIncrementDate = today
	m.warming.CurrentDailyLimit = newLimit
	m.warming.EmailsSentToday = 0
	m.warming.BouncesToday = 0
	m.warming.ComplaintsToday = 0
	return true, nil
}

func (m *Memory) RecordEmailSent(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warming == nil {
		return false, store.ErrNotFound
	}
	if !m.warming.IsActive || m.warming.EmailsSentToday >= m.warming.CurrentDailyLimit {
		return false, nil
	}
	m.warming.EmailsSentToday++
	return true, nil
}

func (m *Memory) IncrementWarmingCounter(ctx context.Context, c store.WarmingCounter) (*model.WarmingConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warming == nil {
		return nil, store.ErrNotFound
	}
	if c == store.CounterBounce {
		m.warming.BouncesToday++
	} else {
		m.warming.ComplaintsToday++
	}
	cp := *m.warming
	return &cp, nil
}

func (m *Memory) PauseWarming(ctx context.Context, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warming == nil {
		return false, store.ErrNotFound
	}
	if m.warming.PausedAt != nil {
		return false, nil
	}
	m.warming.PausedAt = &at
	m.warming.PauseReason = reason
	m.warming.IsActive = false
	return true, nil
}

func (m *Memory) UnpauseWarming(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warming == nil {
		return store.ErrNotFound
	}
	m.warming.PausedAt = nil
	m.warming.PauseReason = ""
	m.warming.IsActive = true
	return nil
}

func (m *Memory) UpdateWarmingLimits(ctx context.Context, cur, max, inc *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warming == nil {
		return store.ErrNotFound
	}
	if cur != nil {
		m.warming.CurrentDailyLimit = *cur
	}
	if max != nil {
		m.warming.MaxDailyLimit = *max
	}
	if inc != nil {
		m.warming.IncrementAmount = *inc
	}
	return nil
}

// Email events

func (m *Memory) LogEmailEvent(ctx context.Context, ev model.EmailEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.MessageID != "" {
		for _, existing := range m.events {
			if existing.MessageID == ev.MessageID && existing.EventType == ev.EventType {
				return false, nil
			}
		}
	}
	if ev.ID == "" {
		ev.ID = m.genID("event")
	}
	m.events = append(m.events, ev)
	return true, nil
}

func (m *Memory) EventsByLead(ctx context.Context, leadID string, limit int) ([]model.EmailEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EmailEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].LeadID == leadID {
			out = append(out, m.events[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// A/B tests

func (m *Memory) RecordABEvent(ctx context.Context, tier model.Tier, step int, variant model.Variant, event model.ABEventType, subjectA, subjectB string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := model.ABTestName(tier, step)
	test, ok := m.abTests[name]
	if !ok {
		test = &model.ABTestResult{
			ID:           m.genID("abtest"),
			TestName:     name,
			Tier:         tier,
			SequenceStep: step,
			VariantA:     model.VariantStats{Subject: subjectA},
			VariantB:     model.VariantStats{Subject: subjectB},
		}
		m.abTests[name] = test
	}
	stats := &test.VariantA
	if variant == model.VariantB {
		stats = &test.VariantB
	}
	switch event {
	case model.ABEventSent:
		stats.Sent++
	case model.ABEventOpened:
		stats.Opened++
	case model.ABEventClicked:
		stats.Clicked++
	case model.ABEventReplied:
		stats.Replied++
	}
	return nil
}

func (m *Memory) GetABTest(ctx context.Context, name string) (*model.ABTestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	test, ok := m.abTests[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *test
	return &cp, nil
}

func (m *Memory) ListABTests(ctx context.Context) ([]model.ABTestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ABTestResult
	for _, t := range m.abTests {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestName < out[j].TestName })
	return out, nil
}

// Unsubscribe tokens

func (m *Memory) GetOrCreateUnsubscribeToken(ctx context.Context, leadID, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.tokens {
		if tok.LeadID == leadID {
			return tok.Token, nil
		}
	}
	m.tokens[token] = &model.UnsubscribeToken{
		ID:     m.genID("token"),
		LeadID: leadID,
		Token:  token,
	}
	return token, nil
}

func (m *Memory) GetUnsubscribeToken(ctx context.Context, token string) (*model.UnsubscribeToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *Memory) ProcessUnsubscribe(ctx context.Context, token, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[token]
	if !ok {
		return store.ErrNotFound
	}
	if tok.UsedAt != nil {
		return store.ErrTokenUsed
	}
	tok.UsedAt = &at
	l, ok := m.leads[tok.LeadID]
	if !ok {
		return store.ErrNotFound
	}
	l.Status = model.StatusUnsubscribed
	l.UnsubscribedAt = &at
	l.UnsubscribeReason = reason
	return nil
}

// Daily metrics

func (m *Memory) EnsureDailyMetrics(ctx context.Context, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.metrics[date]; !ok {
		m.metrics[date] = make(map[model.Metric]int)
	}
	return nil
}

func (m *Memory) IncrementMetric(ctx context.Context, date string, metric model.Metric, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	day, ok := m.metrics[date]
	if !ok {
		return store.ErrNotFound
	}
	day[metric] += amount
	return nil
}

func (m *Memory) GetDailyMetrics(ctx context.Context, date string) (*model.DailyMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day, ok := m.metrics[date]
	if !ok {
		return nil, store.ErrNotFound
	}
	counts := make(map[model.Metric]int, len(day))
	for k, v := range day {
		counts[k] = v
	}
	return &model.DailyMetrics{Date: date, Counts: counts}, nil
}

// Lifecycle

func (m *Memory) Migrate(ctx context.Context) error { return nil }
func (m *Memory) Close() error                      { return nil }
