package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/risksure/outreach-cli/internal/abtest"
	"github.com/risksure/outreach-cli/internal/enrich"
	"github.com/risksure/outreach-cli/internal/notify"
	"github.com/risksure/outreach-cli/internal/pipeline"
	"github.com/risksure/outreach-cli/internal/resilience"
	"github.com/risksure/outreach-cli/internal/store"
	"github.com/risksure/outreach-cli/internal/warming"
	anthropicpkg "github.com/risksure/outreach-cli/pkg/anthropic"
	"github.com/risksure/outreach-cli/pkg/jina"
	"github.com/risksure/outreach-cli/pkg/resend"
	"github.com/risksure/outreach-cli/pkg/zerobounce"
)

// outreachEnv holds the initialized store, clients, and orchestrator shared
// by the run and serve commands.
type outreachEnv struct {
	Store    store.Store
	Governor *warming.Governor
	ABTests  *abtest.Aggregator
	Notifier *notify.Notifier
	Pipeline *pipeline.Orchestrator
}

// Close releases resources held by the environment.
func (e *outreachEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, all API clients, the warming governor, and the
// pipeline orchestrator. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*outreachEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	senderList, err := cfg.Resend.SenderList()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	senders, err := resend.NewSenderPool(senderList)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	mailer := resend.NewClient(cfg.Resend.Key)
	validator := zerobounce.NewClient(cfg.ZeroBounce.Key, zerobounce.WithBaseURL(cfg.ZeroBounce.BaseURL))
	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	jinaOpts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)

	notifier := notify.New(mailer, cfg.Resend.NotifyTo, notify.WithFrom(cfg.Resend.NotifyFrom))

	governor := warming.New(st, warming.WithPauseHook(notifier.WarmingPaused))
	if _, err := governor.Initialize(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init warming")
	}

	abtests := abtest.New(st)

	retryCfg := resilience.FromRetryConfig(
		cfg.Resilience.RetryMaxAttempts,
		cfg.Resilience.RetryInitialBackoffMs,
		cfg.Resilience.RetryMaxBackoffMs,
		cfg.Resilience.RetryMultiplier,
		cfg.Resilience.RetryJitterFraction,
	)
	breaker := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
		cfg.Resilience.BreakerFailureThreshold,
		cfg.Resilience.BreakerResetTimeoutSecs,
	))

	enricherOpts := []enrich.ResearcherOption{
		enrich.WithRetryConfig(retryCfg),
		enrich.WithBreaker(breaker),
	}
	if cfg.Anthropic.Model != "" {
		enricherOpts = append(enricherOpts, enrich.WithModel(cfg.Anthropic.Model))
	}
	enricher := enrich.NewResearcher(anthropicClient, jinaClient, enricherOpts...)

	orchestrator := pipeline.New(st, governor, abtests, validator, enricher, mailer, senders, notifier, pipeline.Config{
		ValidationBatch:    cfg.Outreach.ValidationBatch,
		EnrichmentBatch:    cfg.Outreach.EnrichmentBatch,
		SendBatch:          cfg.Outreach.SendBatch,
		UnsubscribeBaseURL: cfg.Outreach.UnsubscribeBaseURL,
		CalendlyURL:        cfg.Outreach.CalendlyURL,
		DemoVideoURL:       cfg.Outreach.DemoVideoURL,
		SenderTitle:        cfg.Outreach.SenderTitle,
		SenderPhone:        cfg.Outreach.SenderPhone,
	})

	return &outreachEnv{
		Store:    st,
		Governor: governor,
		ABTests:  abtests,
		Notifier: notifier,
		Pipeline: orchestrator,
	}, nil
}
