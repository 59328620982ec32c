package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risksure/outreach-cli/internal/abtest"
	"github.com/risksure/outreach-cli/internal/enrich"
	"github.com/risksure/outreach-cli/internal/model"
	"github.com/risksure/outreach-cli/internal/notify"
	"github.com/risksure/outreach-cli/internal/store/storetest"
	"github.com/risksure/outreach-cli/internal/warming"
	"github.com/risksure/outreach-cli/pkg/resend"
	"github.com/risksure/outreach-cli/pkg/zerobounce"
)

var testNow = time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)

type fakeValidator struct {
	verdicts map[string]zerobounce.Verdict
	err      error
}

func (f *fakeValidator) Validate(ctx context.Context, email string) (*zerobounce.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.verdicts[email]
	if !ok {
		v = zerobounce.VerdictValid
	}
	return &zerobounce.Result{Email: email, Verdict: v}, nil
}

type fakeEnricher struct {
	mu     sync.Mutex
	result *enrich.Result
	err    error
	calls  int
}

func (f *fakeEnricher) Enrich(ctx context.Context, lead model.Lead) (*enrich.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []resend.SendRequest
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, req resend.SendRequest) (*resend.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, req)
	return &resend.SendResponse{ID: fmt.Sprintf("msg-%d", len(f.sent))}, nil
}

type harness struct {
	store     *storetest.Memory
	validator *fakeValidator
	enricher  *fakeEnricher
	mailer    *fakeMailer
	orch      *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ms := storetest.New()
	validator := &fakeValidator{verdicts: map[string]zerobounce.Verdict{}}
	enricher := &fakeEnricher{}
	mailer := &fakeMailer{}
	senders, err := resend.NewSenderPool([]resend.Sender{
		{Name: "Jason", Email: "jason@risksure.ai"},
		{Name: "Sarah", Email: "sarah@risksure.ai"},
	})
	require.NoError(t, err)

	clock := func() time.Time { return testNow }
	orch := New(
		ms,
		warming.New(ms, warming.WithClock(clock)),
		abtest.New(ms),
		validator,
		enricher,
		mailer,
		senders,
		notify.New(mailer, ""), // empty recipient disables notifications
		Config{UnsubscribeBaseURL: "https://risksure.ai/unsubscribe"},
		WithClock(clock),
		WithVariantPicker(func() model.Variant { return model.VariantA }),
		WithTokenSource(func() string { return "tok-fixed" }),
		WithValidationInterval(time.Microsecond),
	)
	return &harness{store: ms, validator: validator, enricher: enricher, mailer: mailer, orch: orch}
}

func readyLead(id string, step int) model.Lead {
	return model.Lead{
		ID:                  id,
		CompanyName:         "Acme Builders",
		ContactName:         "Dave Smith",
		ContactEmail:        id + "@example.com",
		Status:              model.StatusReady,
		Tier:                model.TierVelocity,
		SequenceVariant:     model.VariantA,
		CurrentSequenceStep: step,
	}
}

func TestRun_SendsInitialEmail(t *testing.T) {
	h := newHarness(t)
	h.store.AddLead(readyLead("lead-1", 0))

	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.EmailsSent)
	assert.Empty(t, res.Errors)
	require.Len(t, h.mailer.sent, 1)

	sent := h.mailer.sent[0]
	assert.Equal(t, []string{"lead-1@example.com"}, sent.To)
	assert.Contains(t, sent.Subject, "Acme Builders")
	assert.Empty(t, sent.HTML, "first touch goes out plain text")
	require.Len(t, sent.Tags, 4)

	lead, err := h.store.GetLead(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusContacted, lead.Status)
	assert.Equal(t, 1, lead.CurrentSequenceStep)
	require.NotNil(t, lead.NextEmailAt)
	assert.Equal(t, testNow.Add(4*24*time.Hour), *lead.NextEmailAt)

	assert.Equal(t, 1, h.store.MetricCount(res.Date, model.MetricEmailsSent))
	assert.Equal(t, 1, h.store.MetricCount(res.Date, model.MetricVariantASent))
	assert.Equal(t, 1, h.store.MetricCount(res.Date, model.MetricVelocitySent))

	test, err := h.store.GetABTest(context.Background(), "velocity_step0")
	require.NoError(t, err)
	assert.Equal(t, 1, test.VariantA.Sent)
	assert.Equal(t, 0, test.VariantB.Sent)
}

func TestRun_LaterStepsIncludeHTMLAndUnsubscribe(t *testing.T) {
	h := newHarness(t)
	lead := readyLead("lead-1", 1)
	lead.Status = model.StatusContacted
	h.store.AddLead(lead)

	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailsSent)

	require.Len(t, h.mailer.sent, 1)
	assert.NotEmpty(t, h.mailer.sent[0].HTML)
	assert.Contains(t, h.mailer.sent[0].HTML, "https://risksure.ai/unsubscribe/tok-fixed")
}

func TestRun_ValidationRoutesInvalidEmails(t *testing.T) {
	h := newHarness(t)
	h.store.AddLead(model.Lead{ID: "lead-bad", CompanyName: "Bad Co", ContactEmail: "bad@example.com", Status: model.StatusNew})
	h.store.AddLead(model.Lead{ID: "lead-good", CompanyName: "Good Co", ContactEmail: "good@example.com", Status: model.StatusNew})
	h.validator.verdicts["bad@example.com"] = zerobounce.VerdictInvalid

	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Validated)
	assert.Equal(t, 1, res.Invalid)

	good, _ := h.store.GetLead(context.Background(), "lead-good")
	assert.Equal(t, model.StatusEnriching, good.Status)
	bad, _ := h.store.GetLead(context.Background(), "lead-bad")
	assert.Equal(t, model.StatusInvalidEmail, bad.Status)
	assert.Equal(t, 1, h.store.MetricCount(res.Date, model.MetricLeadsValidated))
	assert.Equal(t, 1, h.store.MetricCount(res.Date, model.MetricLeadsInvalid))
}

func TestRun_EnrichmentSuccessAssignsVariant(t *testing.T) {
	h := newHarness(t)
	h.store.AddLead(model.Lead{
		ID: "lead-1", CompanyName: "Acme Builders", ContactName: "Dave Smith",
		ContactEmail: "dave@example.com", Status: model.StatusEnriching,
	})
	h.enricher.result = &enrich.Result{
		Data:               &model.EnrichmentData{CompanySummary: "mid-size builder"},
		Score:              80,
		Tier:               model.TierCompliance,
		EstimatedSubbies:   120,
		PersonalizedOpener: "Saw your Parramatta project.",
	}

	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enriched)

	lead, _ := h.store.GetLead(context.Background(), "lead-1")
	assert.Equal(t, model.VariantA, lead.SequenceVariant)
	assert.Equal(t, model.TierCompliance, lead.Tier)
	assert.Equal(t, 80, lead.EnrichmentScore)

	// A freshly enriched lead is due immediately, so the same run sends step 0.
	assert.Equal(t, 1, res.EmailsSent)
}

func TestRun_EnrichmentFailureStillMovesLeadForward(t *testing.T) {
	h := newHarness(t)
	h.store.AddLead(model.Lead{
		ID: "lead-1", CompanyName: "Acme Builders", ContactName: "Dave Smith",
		ContactEmail: "dave@example.com", Status: model.StatusEnriching,
	})
	h.enricher.err = eris.New("enrich: research call failed")

	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Enriched)
	assert.Equal(t, 1, res.EnrichmentErrors)
	assert.Empty(t, res.Errors, "a failed enrichment is not a pipeline error")

	lead, _ := h.store.GetLead(context.Background(), "lead-1")
	assert.Equal(t, model.StatusReady, lead.Status)
	assert.NotEmpty(t, lead.EnrichmentError)
	assert.Equal(t, 1, h.store.MetricCount(res.Date, model.MetricEnrichmentErrors))
}

func TestRun_CompletedInitialSequenceMovesToNurture(t *testing.T) {
	h := newHarness(t)
	lead := readyLead("lead-1", 5)
	lead.Status = model.StatusContacted
	h.store.AddLead(lead)

	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.EmailsSent)
	assert.Equal(t, 1, res.MovedToNurture)

	// The nurture loop in the same run picks the lead up at step 5.
	assert.Equal(t, 1, res.NurtureSent)
	require.Len(t, h.mailer.sent, 1)

	got, _ := h.store.GetLead(context.Background(), "lead-1")
	assert.Equal(t, model.StatusNurture, got.Status)
	assert.Equal(t, 6, got.CurrentSequenceStep)
}

func TestRun_ExhaustedNurtureClosesLead(t *testing.T) {
	h := newHarness(t)
	lead := readyLead("lead-1", 8)
	lead.Status = model.StatusNurture
	h.store.AddLead(lead)

	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.NurtureSent)
	assert.Equal(t, 1, res.NurtureCompleted)
	assert.Empty(t, h.mailer.sent)

	got, _ := h.store.GetLead(context.Background(), "lead-1")
	assert.Equal(t, model.StatusClosedLost, got.Status)
}

func TestRun_BudgetExhaustionStopsSending(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 25; i++ {
		h.store.AddLead(readyLead(fmt.Sprintf("lead-%02d", i), 0))
	}

	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	// The warming ramp starts at 20 emails/day.
	assert.Equal(t, 20, res.EmailsSent)
	assert.True(t, res.BudgetExhausted)
	assert.Empty(t, res.Errors)
	assert.Len(t, h.mailer.sent, 20)
}

func TestRun_MissingContactNameIsCollectedNotFatal(t *testing.T) {
	h := newHarness(t)
	noName := readyLead("lead-1", 0)
	noName.ContactName = "  "
	h.store.AddLead(noName)
	h.store.AddLead(readyLead("lead-2", 0))

	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.EmailsSent)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "no contact name")
}

func TestRun_SendFailureDoesNotAbortBatch(t *testing.T) {
	h := newHarness(t)
	h.store.AddLead(readyLead("lead-1", 0))
	h.mailer.err = eris.New("resend: rate limited")

	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.EmailsSent)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "rate limited")

	// The lead is untouched and eligible for the next run.
	lead, _ := h.store.GetLead(context.Background(), "lead-1")
	assert.Equal(t, model.StatusReady, lead.Status)
	assert.Equal(t, 0, lead.CurrentSequenceStep)
}

func TestRun_PausedWarmingSkipsSendLoops(t *testing.T) {
	h := newHarness(t)
	h.store.AddLead(readyLead("lead-1", 0))

	ctx := context.Background()
	_, err := h.store.InitWarming(ctx, testNow.Format("2006-01-02"))
	require.NoError(t, err)
	_, err = h.store.PauseWarming(ctx, "bounce rate 9.0% exceeds 8%", testNow)
	require.NoError(t, err)

	res, err := h.orch.Run(ctx)
	require.NoError(t, err)

	assert.True(t, res.Paused)
	assert.Equal(t, 0, res.EmailsSent)
	assert.Empty(t, h.mailer.sent)
}

func TestRun_RotatesSenders(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 4; i++ {
		h.store.AddLead(readyLead(fmt.Sprintf("lead-%d", i), 0))
	}

	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, res.EmailsSent)

	counts := map[string]int{}
	for _, req := range h.mailer.sent {
		counts[req.From]++
	}
	assert.Len(t, counts, 2, "sends rotate across the pool")
	for from, n := range counts {
		assert.Equal(t, 2, n, "uneven rotation for %s", from)
		assert.True(t, strings.Contains(from, "@risksure.ai"))
	}
}
