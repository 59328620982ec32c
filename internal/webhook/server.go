// Package webhook exposes the HTTP surface: delivery-event webhooks from the
// email provider, scheduling webhooks from Calendly, the cron trigger for the
// daily pipeline, and the public unsubscribe pages.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/risksure/outreach-cli/internal/abtest"
	"github.com/risksure/outreach-cli/internal/model"
	"github.com/risksure/outreach-cli/internal/notify"
	"github.com/risksure/outreach-cli/internal/pipeline"
	"github.com/risksure/outreach-cli/internal/store"
	"github.com/risksure/outreach-cli/internal/warming"
	"github.com/risksure/outreach-cli/pkg/resend"
)

// PipelineRunner triggers one full daily run.
type PipelineRunner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// Server handles inbound HTTP traffic. All handlers are safe to retry:
// event logging dedups on provider message id and status upgrades are
// guarded, so a redelivered webhook is a no-op.
type Server struct {
	store    store.Store
	governor *warming.Governor
	abtests  *abtest.Aggregator
	notifier *notify.Notifier
	runner   PipelineRunner

	webhookSecret string
	cronSecret    string
	runTimeout    time.Duration
	now           func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRunTimeout caps how long a cron-triggered pipeline run may take.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Server) { s.runTimeout = d }
}

// New builds a Server. An empty webhookSecret disables signature checks,
// which is only acceptable in development.
func New(
	st store.Store,
	governor *warming.Governor,
	abtests *abtest.Aggregator,
	notifier *notify.Notifier,
	runner PipelineRunner,
	webhookSecret, cronSecret string,
	opts ...Option,
) *Server {
	s := &Server{
		store:         st,
		governor:      governor,
		abtests:       abtests,
		notifier:      notifier,
		runner:        runner,
		webhookSecret: webhookSecret,
		cronSecret:    cronSecret,
		runTimeout:    5 * time.Minute,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router assembles the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization", resend.SignatureHeader},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/webhooks/delivery", s.handleDelivery)
	r.Post("/webhooks/scheduling", s.handleScheduling)
	r.Get("/cron/daily", s.handleCron)
	r.Get("/unsubscribe/{token}", s.handleUnsubscribePage)
	r.Post("/unsubscribe/{token}", s.handleUnsubscribe)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDelivery processes delivery-lifecycle events from the email
// provider: delivered, opened, clicked, bounced, complained.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if s.webhookSecret != "" {
		sig := r.Header.Get(resend.SignatureHeader)
		if !resend.VerifySignature(s.webhookSecret, payload, sig) {
			zap.L().Warn("webhook: invalid signature")
			respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
			return
		}
	}

	var event resend.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	leadID := event.Data.TagValue("lead_id")
	if leadID == "" {
		respondJSON(w, http.StatusOK, map[string]bool{"received": true, "skipped": true})
		return
	}
	step, _ := strconv.Atoi(event.Data.TagValue("sequence_step"))
	variant := model.Variant(event.Data.TagValue("variant"))
	tier := model.Tier(event.Data.TagValue("tier"))

	// Each handler applies its guarded status updates before writing the
	// event row. A delivery retried after a partial failure re-applies them
	// as no-ops; the event insert dedups the counters and notifications
	// that must only run once per provider message.
	ctx := r.Context()
	switch event.Type {
	case resend.EventDelivered:
		err = s.onDelivered(ctx, leadID, step, variant, event.Data)
	case resend.EventOpened:
		err = s.onOpened(ctx, leadID, step, variant, tier, event.Data)
	case resend.EventClicked:
		err = s.onClicked(ctx, leadID, step, variant, tier, event.Data)
	case resend.EventBounced:
		err = s.onBounced(ctx, leadID, step, event.Data)
	case resend.EventComplained:
		err = s.onComplained(ctx, leadID, step, event.Data)
	default:
		zap.L().Debug("webhook: ignoring event", zap.String("type", event.Type))
	}
	if err != nil {
		zap.L().Error("webhook: event handling failed",
			zap.String("type", event.Type),
			zap.String("lead_id", leadID),
			zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) logEvent(ctx context.Context, leadID string, typ model.EventType, step int, variant model.Variant, data resend.WebhookData, metadata string) (bool, error) {
	return s.store.LogEmailEvent(ctx, model.EmailEvent{
		LeadID:          leadID,
		EventType:       typ,
		Subject:         data.Subject,
		SequenceStep:    step,
		SequenceVariant: variant,
		MessageID:       data.EmailID,
		Metadata:        metadata,
		CreatedAt:       s.now(),
	})
}

func (s *Server) onDelivered(ctx context.Context, leadID string, step int, variant model.Variant, data resend.WebhookData) error {
	inserted, err := s.logEvent(ctx, leadID, model.EventDelivered, step, variant, data, "")
	if err != nil {
		return eris.Wrap(err, "webhook: log delivered")
	}
	if inserted {
		s.bump(ctx, model.MetricEmailsDelivered)
	}
	return nil
}

func (s *Server) onOpened(ctx context.Context, leadID string, step int, variant model.Variant, tier model.Tier, data resend.WebhookData) error {
	upgraded, err := s.store.MarkOpened(ctx, leadID, s.now())
	if err != nil {
		return eris.Wrap(err, "webhook: mark opened")
	}
	inserted, err := s.logEvent(ctx, leadID, model.EventOpened, step, variant, data, "")
	if err != nil {
		return eris.Wrap(err, "webhook: log opened")
	}
	if !inserted {
		// Redelivered webhook; the counters below already ran.
		return nil
	}
	s.bump(ctx, model.MetricEmailsOpened)
	if variant != "" {
		s.bump(ctx, model.VariantOpenedMetric(variant))
	}
	if tier != "" && variant != "" {
		if err := s.abtests.Record(ctx, tier, step, variant, model.ABEventOpened); err != nil {
			zap.L().Warn("webhook: ab test record failed", zap.Error(err))
		}
	}
	if upgraded {
		s.notifier.EmailOpened(ctx, recipient(data))
	}
	return nil
}

func (s *Server) onClicked(ctx context.Context, leadID string, step int, variant model.Variant, tier model.Tier, data resend.WebhookData) error {
	if _, err := s.store.MarkClicked(ctx, leadID, s.now()); err != nil {
		return eris.Wrap(err, "webhook: mark clicked")
	}
	inserted, err := s.logEvent(ctx, leadID, model.EventClicked, step, variant, data, data.Click.Link)
	if err != nil {
		return eris.Wrap(err, "webhook: log clicked")
	}
	if !inserted {
		return nil
	}
	s.bump(ctx, model.MetricEmailsClicked)
	if tier != "" && variant != "" {
		if err := s.abtests.Record(ctx, tier, step, variant, model.ABEventClicked); err != nil {
			zap.L().Warn("webhook: ab test record failed", zap.Error(err))
		}
	}
	s.notifier.LinkClicked(ctx, recipient(data), data.Click.Link)
	return nil
}

func (s *Server) onBounced(ctx context.Context, leadID string, step int, data resend.WebhookData) error {
	if err := s.store.MarkBounced(ctx, leadID); err != nil {
		return eris.Wrap(err, "webhook: mark bounced")
	}
	inserted, err := s.logEvent(ctx, leadID, model.EventBounced, step, "", data, data.Bounce.Type)
	if err != nil {
		return eris.Wrap(err, "webhook: log bounced")
	}
	if !inserted {
		return nil
	}
	s.bump(ctx, model.MetricEmailsBounced)
	if _, err := s.governor.RecordBounce(ctx); err != nil {
		// The event row is already written, so a redelivery would dedup
		// right past this counter. Log it rather than ask for a retry.
		zap.L().Error("webhook: record bounce failed",
			zap.String("lead_id", leadID), zap.Error(err))
	}
	return nil
}

func (s *Server) onComplained(ctx context.Context, leadID string, step int, data resend.WebhookData) error {
	// A spam complaint is an unsubscribe in all but name.
	if err := s.store.UpdateLeadStatus(ctx, leadID, model.StatusUnsubscribed); err != nil {
		return eris.Wrap(err, "webhook: unsubscribe complainer")
	}
	inserted, err := s.logEvent(ctx, leadID, model.EventComplained, step, "", data, "")
	if err != nil {
		return eris.Wrap(err, "webhook: log complained")
	}
	if !inserted {
		return nil
	}
	s.bump(ctx, model.MetricUnsubscribes)
	if _, err := s.governor.RecordComplaint(ctx); err != nil {
		zap.L().Error("webhook: record complaint failed",
			zap.String("lead_id", leadID), zap.Error(err))
	}
	return nil
}

// schedulingEvent is the Calendly webhook envelope, trimmed to what we read.
type schedulingEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Invitee struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"invitee"`
		Event struct {
			StartTime time.Time `json:"start_time"`
			URI       string    `json:"uri"`
		} `json:"event"`
	} `json:"payload"`
}

// handleScheduling reacts to demo bookings and cancellations.
func (s *Server) handleScheduling(w http.ResponseWriter, r *http.Request) {
	var ev schedulingEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if ev.Payload.Invitee.Email == "" {
		respondJSON(w, http.StatusOK, map[string]bool{"received": true, "skipped": true})
		return
	}

	ctx := r.Context()
	lead, err := s.store.GetLeadByEmail(ctx, ev.Payload.Invitee.Email)
	switch ev.Event {
	case "invitee.created":
		if eris.Is(err, store.ErrNotFound) {
			// Booked through a shared link without ever being a lead; still
			// worth telling the team about.
			s.notifier.Send(ctx, "Demo Booked (New Lead)",
				"Demo scheduled with unknown contact: "+ev.Payload.Invitee.Email)
			respondJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		if err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if err := s.store.SetDemoScheduled(ctx, lead.ID, ev.Payload.Event.StartTime, ev.Payload.Event.URI); err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		s.bump(ctx, model.MetricDemosBooked)
		s.notifier.DemoScheduled(ctx, ev.Payload.Invitee.Email, lead.CompanyName)
	case "invitee.canceled":
		if err == nil {
			if uerr := s.store.UpdateLeadStatus(ctx, lead.ID, model.StatusContacted); uerr != nil {
				respondJSON(w, http.StatusInternalServerError, map[string]string{"error": uerr.Error()})
				return
			}
			zap.L().Info("webhook: demo canceled", zap.String("lead_id", lead.ID))
		}
	}
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// handleCron runs the daily pipeline. Guarded by a bearer secret so only the
// scheduler can trigger it.
func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	if s.cronSecret == "" || r.Header.Get("Authorization") != "Bearer "+s.cronSecret {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()
	res, err := s.runner.Run(ctx)
	if err != nil {
		zap.L().Error("cron: pipeline run failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "results": res})
}

func (s *Server) handleUnsubscribePage(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	tok, err := s.store.GetUnsubscribeToken(r.Context(), token)
	if eris.Is(err, store.ErrNotFound) {
		renderPage(w, http.StatusNotFound, "Invalid Link",
			"This unsubscribe link is invalid or has expired.", "")
		return
	}
	if err != nil {
		renderPage(w, http.StatusInternalServerError, "Something Went Wrong",
			"Please try again later.", "")
		return
	}
	if tok.UsedAt != nil {
		renderPage(w, http.StatusOK, "Already Unsubscribed",
			"You've already been unsubscribed from our emails.", "")
		return
	}
	renderPage(w, http.StatusOK, "Unsubscribe",
		"Click below to stop receiving emails from us.", token)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	reason := r.FormValue("reason")

	err := s.store.ProcessUnsubscribe(r.Context(), token, reason, s.now())
	switch {
	case eris.Is(err, store.ErrNotFound):
		renderPage(w, http.StatusNotFound, "Invalid Link",
			"This unsubscribe link is invalid or has expired.", "")
	case eris.Is(err, store.ErrTokenUsed):
		renderPage(w, http.StatusOK, "Already Unsubscribed",
			"You've already been unsubscribed from our emails.", "")
	case err != nil:
		zap.L().Error("unsubscribe failed", zap.String("token", token), zap.Error(err))
		renderPage(w, http.StatusInternalServerError, "Something Went Wrong",
			"Please try again later.", "")
	default:
		s.bump(r.Context(), model.MetricUnsubscribes)
		renderPage(w, http.StatusOK, "Unsubscribed",
			"You won't receive any more emails from us.", "")
	}
}

// bump increments today's counter, creating the row if the webhook arrives
// before the pipeline has run for the day.
func (s *Server) bump(ctx context.Context, metric model.Metric) {
	date := s.now().Format("2006-01-02")
	if err := s.store.EnsureDailyMetrics(ctx, date); err != nil {
		zap.L().Warn("webhook: ensure metrics failed", zap.Error(err))
		return
	}
	if err := s.store.IncrementMetric(ctx, date, metric, 1); err != nil {
		zap.L().Warn("webhook: metric increment failed",
			zap.String("metric", string(metric)), zap.Error(err))
	}
}

func recipient(data resend.WebhookData) string {
	if len(data.To) > 0 {
		return data.To[0]
	}
	return "unknown"
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("webhook: response encode failed", zap.Error(err))
	}
}
