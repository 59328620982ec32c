// Package pipeline runs the daily outreach batch: warming ramp, email
// validation, lead enrichment, and the budget-gated send loops.
package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/risksure/outreach-cli/internal/abtest"
	"github.com/risksure/outreach-cli/internal/enrich"
	"github.com/risksure/outreach-cli/internal/model"
	"github.com/risksure/outreach-cli/internal/notify"
	"github.com/risksure/outreach-cli/internal/sequence"
	"github.com/risksure/outreach-cli/internal/store"
	"github.com/risksure/outreach-cli/internal/template"
	"github.com/risksure/outreach-cli/internal/warming"
	"github.com/risksure/outreach-cli/pkg/resend"
	"github.com/risksure/outreach-cli/pkg/zerobounce"
)

// Batch caps per run. Validation and enrichment burn third-party credits, so
// they stay small; the send loops are bounded by the warming budget instead.
const (
	DefaultValidationBatch = 50
	DefaultEnrichmentBatch = 20
	DefaultSendBatch       = 200
)

// validationInterval paces ZeroBounce calls.
const validationInterval = 100 * time.Millisecond

// enrichWorkers bounds concurrent enrichment research calls.
const enrichWorkers = 4

// Enricher produces enrichment results for a single lead.
type Enricher interface {
	Enrich(ctx context.Context, lead model.Lead) (*enrich.Result, error)
}

// Config carries the run-level knobs for the orchestrator.
type Config struct {
	ValidationBatch int
	EnrichmentBatch int
	SendBatch       int

	UnsubscribeBaseURL string
	CalendlyURL        string
	DemoVideoURL       string
	SenderTitle        string
	SenderPhone        string
}

func (c *Config) applyDefaults() {
	if c.ValidationBatch <= 0 {
		c.ValidationBatch = DefaultValidationBatch
	}
	if c.EnrichmentBatch <= 0 {
		c.EnrichmentBatch = DefaultEnrichmentBatch
	}
	if c.SendBatch <= 0 {
		c.SendBatch = DefaultSendBatch
	}
}

// Result summarizes one pipeline run. Errors holds per-lead failures that did
// not abort the batch.
type Result struct {
	Date   string `json:"date"`
	NewDay bool   `json:"new_day"`
	Paused bool   `json:"paused"`

	Validated        int `json:"validated"`
	Invalid          int `json:"invalid"`
	Enriched         int `json:"enriched"`
	EnrichmentErrors int `json:"enrichment_errors"`
	EmailsSent       int `json:"emails_sent"`
	NurtureSent      int `json:"nurture_sent"`
	MovedToNurture   int `json:"moved_to_nurture"`
	NurtureCompleted int `json:"nurture_completed"`

	BudgetExhausted bool     `json:"budget_exhausted"`
	Errors          []string `json:"errors,omitempty"`
}

// Orchestrator wires the stores and clients together and drives a run.
type Orchestrator struct {
	store     store.Store
	governor  *warming.Governor
	abtests   *abtest.Aggregator
	validator zerobounce.Client
	enricher  Enricher
	mailer    resend.Client
	senders   *resend.SenderPool
	notifier  *notify.Notifier
	cfg       Config

	limiter     *rate.Limiter
	now         func() time.Time
	pickVariant func() model.Variant
	newToken    func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithVariantPicker overrides the A/B assignment source.
func WithVariantPicker(pick func() model.Variant) Option {
	return func(o *Orchestrator) { o.pickVariant = pick }
}

// WithTokenSource overrides unsubscribe token generation.
func WithTokenSource(gen func() string) Option {
	return func(o *Orchestrator) { o.newToken = gen }
}

// WithValidationInterval overrides the pacing between validation calls.
func WithValidationInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// New builds an Orchestrator.
func New(
	s store.Store,
	governor *warming.Governor,
	abtests *abtest.Aggregator,
	validator zerobounce.Client,
	enricher Enricher,
	mailer resend.Client,
	senders *resend.SenderPool,
	notifier *notify.Notifier,
	cfg Config,
	opts ...Option,
) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		store:       s,
		governor:    governor,
		abtests:     abtests,
		validator:   validator,
		enricher:    enricher,
		mailer:      mailer,
		senders:     senders,
		notifier:    notifier,
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Every(validationInterval), 1),
		now:         time.Now,
		pickVariant: randomVariant,
		newToken:    randomToken,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the full daily pipeline: advance the warming ramp, validate
// and enrich pending leads, then work through the initial and nurture send
// loops until the day's budget runs out. Per-lead failures are collected and
// the batch keeps going; only infrastructure failures abort the run.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	start := o.now()
	today := start.Format("2006-01-02")
	logger := zap.L().With(zap.String("date", today))
	logger.Info("pipeline: starting daily run")

	res := &Result{Date: today}

	cfg, newDay, err := o.governor.IncrementDailyLimit(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: advance warming")
	}
	res.NewDay = newDay
	res.Paused = cfg.PausedAt != nil
	logger.Info("pipeline: warming state",
		zap.Int("daily_limit", cfg.CurrentDailyLimit),
		zap.Int("sent_today", cfg.EmailsSentToday),
		zap.Bool("new_day", newDay),
		zap.Bool("paused", res.Paused))

	if err := o.store.EnsureDailyMetrics(ctx, today); err != nil {
		return nil, eris.Wrap(err, "pipeline: ensure daily metrics")
	}

	if err := o.validateLeads(ctx, today, res); err != nil {
		return nil, err
	}
	if err := o.enrichLeads(ctx, today, res); err != nil {
		return nil, err
	}

	if res.Paused {
		logger.Warn("pipeline: sending paused, skipping send loops",
			zap.String("reason", cfg.PauseReason))
	} else {
		if err := o.sendInitial(ctx, today, res); err != nil {
			return nil, err
		}
		if !res.BudgetExhausted {
			if err := o.sendNurture(ctx, today, res); err != nil {
				return nil, err
			}
		}
	}

	o.notifier.Send(ctx, "Daily Pipeline Complete", o.summary(res))
	logger.Info("pipeline: run complete",
		zap.Int("validated", res.Validated),
		zap.Int("enriched", res.Enriched),
		zap.Int("emails_sent", res.EmailsSent),
		zap.Int("nurture_sent", res.NurtureSent),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("elapsed", o.now().Sub(start)))
	return res, nil
}

// validateLeads runs the pending batch through ZeroBounce. Invalid addresses
// are parked before they can damage sender reputation.
func (o *Orchestrator) validateLeads(ctx context.Context, today string, res *Result) error {
	leads, err := o.store.LeadsPendingValidation(ctx, o.cfg.ValidationBatch)
	if err != nil {
		return eris.Wrap(err, "pipeline: list pending validation")
	}
	for _, lead := range leads {
		if err := o.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "pipeline: validation pacing")
		}
		vr, err := o.validator.Validate(ctx, lead.ContactEmail)
		if err != nil {
			res.fail(lead, "validate", err)
			continue
		}
		result := model.ValidationResult(vr.Verdict)
		if err := o.store.UpdateValidation(ctx, lead.ID, result); err != nil {
			res.fail(lead, "record validation", err)
			continue
		}
		if result == model.ValidationInvalid {
			res.Invalid++
			o.bump(ctx, today, model.MetricLeadsInvalid)
			zap.L().Info("pipeline: invalid email",
				zap.String("lead_id", lead.ID),
				zap.String("email", lead.ContactEmail))
			continue
		}
		res.Validated++
		o.bump(ctx, today, model.MetricLeadsValidated)
	}
	return nil
}

// enrichLeads researches validated leads and assigns their A/B variant. A
// failed enrichment still moves the lead forward so the sequence can run on
// the imported data alone.
func (o *Orchestrator) enrichLeads(ctx context.Context, today string, res *Result) error {
	leads, err := o.store.LeadsPendingEnrichment(ctx, o.cfg.EnrichmentBatch)
	if err != nil {
		return eris.Wrap(err, "pipeline: list pending enrichment")
	}

	// Research runs concurrently; store writes and counters stay on this
	// goroutine.
	type enriched struct {
		result *enrich.Result
		err    error
	}
	results := make([]enriched, len(leads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichWorkers)
	for i, lead := range leads {
		g.Go(func() error {
			r, err := o.enricher.Enrich(gctx, lead)
			results[i] = enriched{result: r, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, lead := range leads {
		er, err := results[i].result, results[i].err
		if err != nil {
			zap.L().Warn("pipeline: enrichment failed",
				zap.String("lead_id", lead.ID),
				zap.String("company", lead.CompanyName),
				zap.Error(err))
			if serr := o.store.SetEnrichmentError(ctx, lead.ID, err.Error()); serr != nil {
				res.fail(lead, "record enrichment error", serr)
				continue
			}
			res.EnrichmentErrors++
			o.bump(ctx, today, model.MetricEnrichmentErrors)
			continue
		}
		if err := o.store.AssignVariant(ctx, lead.ID, o.pickVariant()); err != nil {
			res.fail(lead, "assign variant", err)
			continue
		}
		update := store.EnrichmentUpdate{
			Data:               er.Data,
			Score:              er.Score,
			Tier:               er.Tier,
			EstimatedSubbies:   er.EstimatedSubbies,
			EstimatedRevenue:   er.EstimatedRevenue,
			PersonalizedOpener: er.PersonalizedOpener,
			PainPoints:         er.PainPoints,
		}
		if err := o.store.UpdateEnrichment(ctx, lead.ID, update); err != nil {
			res.fail(lead, "record enrichment", err)
			continue
		}
		res.Enriched++
		o.bump(ctx, today, model.MetricLeadsEnriched)
	}
	return nil
}

// sendInitial works through leads due for their next initial-sequence email.
func (o *Orchestrator) sendInitial(ctx context.Context, today string, res *Result) error {
	now := o.now()
	leads, err := o.store.LeadsReadyForEmail(ctx, now, o.cfg.SendBatch)
	if err != nil {
		return eris.Wrap(err, "pipeline: list ready leads")
	}
	for _, lead := range leads {
		switch reason := sequence.EligibleForSend(&lead, now); reason {
		case sequence.SkipNone:
		case sequence.SkipInitialExhausted:
			if err := o.store.UpdateLeadStatus(ctx, lead.ID, model.StatusNurture); err != nil {
				res.fail(lead, "move to nurture", err)
				continue
			}
			res.MovedToNurture++
			zap.L().Info("pipeline: initial sequence complete",
				zap.String("lead_id", lead.ID),
				zap.String("company", lead.CompanyName))
			continue
		case sequence.SkipNoContactName:
			res.fail(lead, "send", eris.New("lead has no contact name"))
			continue
		default:
			continue
		}
		exhausted, err := o.sendStep(ctx, today, lead, false, res)
		if err != nil {
			res.fail(lead, "send", err)
			continue
		}
		if exhausted {
			res.BudgetExhausted = true
			zap.L().Info("pipeline: daily budget exhausted",
				zap.Int("emails_sent", res.EmailsSent))
			return nil
		}
		res.EmailsSent++
	}
	return nil
}

// sendNurture works through nurture-stage leads and retires the ones that
// have run out of steps without engaging.
func (o *Orchestrator) sendNurture(ctx context.Context, today string, res *Result) error {
	now := o.now()
	leads, err := o.store.NurtureLeads(ctx, now, o.cfg.SendBatch)
	if err != nil {
		return eris.Wrap(err, "pipeline: list nurture leads")
	}
	for _, lead := range leads {
		switch reason := sequence.EligibleForNurture(&lead, now); reason {
		case sequence.SkipNone:
		case sequence.SkipNurtureExhausted:
			if err := o.store.UpdateLeadStatus(ctx, lead.ID, model.StatusClosedLost); err != nil {
				res.fail(lead, "close nurture lead", err)
				continue
			}
			res.NurtureCompleted++
			zap.L().Info("pipeline: nurture sequence complete, closing lead",
				zap.String("lead_id", lead.ID),
				zap.String("company", lead.CompanyName))
			continue
		case sequence.SkipNoContactName:
			res.fail(lead, "nurture send", eris.New("lead has no contact name"))
			continue
		default:
			continue
		}
		exhausted, err := o.sendStep(ctx, today, lead, true, res)
		if err != nil {
			res.fail(lead, "nurture send", err)
			continue
		}
		if exhausted {
			res.BudgetExhausted = true
			return nil
		}
		res.NurtureSent++
	}
	return nil
}

// sendStep reserves a budget slot, renders the lead's current step, and
// sends it. The reservation happens before the provider call: a send that
// fails after reserving burns the slot, which errs on the side of sending
// fewer emails than the warming limit allows.
func (o *Orchestrator) sendStep(ctx context.Context, today string, lead model.Lead, nurture bool, res *Result) (exhausted bool, err error) {
	ok, err := o.governor.RecordSent(ctx)
	if err != nil {
		return false, eris.Wrap(err, "pipeline: reserve send budget")
	}
	if !ok {
		return true, nil
	}

	variant := lead.SequenceVariant
	if variant == "" {
		variant = model.VariantA
	}
	step := lead.CurrentSequenceStep

	token, err := o.store.GetOrCreateUnsubscribeToken(ctx, lead.ID, o.newToken())
	if err != nil {
		return false, eris.Wrap(err, "pipeline: unsubscribe token")
	}

	sender := o.senders.Next()
	email, err := template.Resolve(lead.Tier, step, variant, template.Params{
		ContactName:        lead.ContactName,
		CompanyName:        lead.CompanyName,
		PersonalizedOpener: lead.PersonalizedOpener,
		UnsubscribeURL:     strings.TrimSuffix(o.cfg.UnsubscribeBaseURL, "/") + "/" + token,
		CalendlyURL:        o.cfg.CalendlyURL,
		DemoVideoURL:       o.cfg.DemoVideoURL,
		EstimatedSubbies:   lead.EstimatedSubbies,
		State:              lead.State,
		SenderName:         sender.Name,
		SenderTitle:        o.cfg.SenderTitle,
		SenderPhone:        o.cfg.SenderPhone,
	})
	if err != nil {
		return false, eris.Wrap(err, "pipeline: resolve template")
	}

	resp, err := o.mailer.Send(ctx, resend.SendRequest{
		From:    sender.From(),
		To:      []string{lead.ContactEmail},
		Subject: email.Subject,
		Text:    email.Text,
		HTML:    email.HTML,
		Tags: []resend.Tag{
			{Name: "lead_id", Value: lead.ID},
			{Name: "sequence_step", Value: fmt.Sprintf("%d", step)},
			{Name: "variant", Value: string(variant)},
			{Name: "tier", Value: string(lead.Tier)},
		},
	})
	if err != nil {
		return false, eris.Wrapf(err, "pipeline: send step %d", step)
	}
	o.senders.RecordSend(sender.Email)

	sentAt := o.now()
	update := store.SentUpdate{
		MessageID:   resp.ID,
		Subject:     email.Subject,
		Step:        step,
		Variant:     variant,
		SentAt:      sentAt,
		NextEmailAt: sentAt.Add(sequence.NextSendDelay(step)),
	}
	if err := o.store.MarkEmailSent(ctx, lead.ID, update); err != nil {
		return false, eris.Wrap(err, "pipeline: record send")
	}

	o.bump(ctx, today, model.MetricEmailsSent)
	o.bump(ctx, today, model.VariantSentMetric(variant))
	o.bump(ctx, today, model.TierSentMetric(lead.Tier))
	if err := o.abtests.Record(ctx, lead.Tier, step, variant, model.ABEventSent); err != nil {
		zap.L().Warn("pipeline: ab test record failed",
			zap.String("lead_id", lead.ID), zap.Error(err))
	}

	zap.L().Info("pipeline: email sent",
		zap.String("lead_id", lead.ID),
		zap.String("company", lead.CompanyName),
		zap.Int("step", step),
		zap.String("variant", string(variant)),
		zap.String("message_id", resp.ID),
		zap.Bool("nurture", nurture))
	return false, nil
}

// bump increments a daily counter; metric failures never fail the run.
func (o *Orchestrator) bump(ctx context.Context, today string, metric model.Metric) {
	if err := o.store.IncrementMetric(ctx, today, metric, 1); err != nil {
		zap.L().Warn("pipeline: metric increment failed",
			zap.String("metric", string(metric)), zap.Error(err))
	}
}

func (o *Orchestrator) summary(res *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily pipeline run for %s:\n\n", res.Date)
	fmt.Fprintf(&b, "Validated: %d (%d invalid)\n", res.Validated, res.Invalid)
	fmt.Fprintf(&b, "Enriched: %d (%d errors)\n", res.Enriched, res.EnrichmentErrors)
	fmt.Fprintf(&b, "Emails Sent: %d\n", res.EmailsSent)
	fmt.Fprintf(&b, "Nurture Emails: %d\n", res.NurtureSent)
	fmt.Fprintf(&b, "Moved to Nurture: %d\n", res.MovedToNurture)
	fmt.Fprintf(&b, "Completed Nurture: %d\n", res.NurtureCompleted)
	if res.BudgetExhausted {
		b.WriteString("Daily send budget exhausted.\n")
	}
	if res.Paused {
		b.WriteString("Sending is paused.\n")
	}
	fmt.Fprintf(&b, "Errors: %d\n", len(res.Errors))
	for _, e := range res.Errors {
		fmt.Fprintf(&b, "  - %s\n", e)
	}
	return b.String()
}

func (r *Result) fail(lead model.Lead, op string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s %s (%s): %v", op, lead.CompanyName, lead.ID, err))
	zap.L().Error("pipeline: lead failed",
		zap.String("lead_id", lead.ID),
		zap.String("company", lead.CompanyName),
		zap.String("op", op),
		zap.Error(err))
}

func randomVariant() model.Variant {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil || n.Int64() == 0 {
		return model.VariantA
	}
	return model.VariantB
}

func randomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
