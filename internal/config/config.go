package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/risksure/outreach-cli/pkg/resend"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	ZeroBounce ZeroBounceConfig `yaml:"zerobounce" mapstructure:"zerobounce"`
	Resend     ResendConfig     `yaml:"resend" mapstructure:"resend"`
	Outreach   OutreachConfig   `yaml:"outreach" mapstructure:"outreach"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for enrichment.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// ZeroBounceConfig holds email validation settings.
type ZeroBounceConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ResendConfig holds email delivery settings. Senders are listed as
// "Name <email>" strings and rotated per send.
type ResendConfig struct {
	Key           string   `yaml:"key" mapstructure:"key"`
	Senders       []string `yaml:"senders" mapstructure:"senders"`
	NotifyTo      string   `yaml:"notify_to" mapstructure:"notify_to"`
	NotifyFrom    string   `yaml:"notify_from" mapstructure:"notify_from"`
	WebhookSecret string   `yaml:"webhook_secret" mapstructure:"webhook_secret"`
}

// SenderList parses the configured senders. Entries are "Name <email>" or a
// bare address, in which case the mailbox name doubles as the display name.
func (c ResendConfig) SenderList() ([]resend.Sender, error) {
	var out []resend.Sender
	for _, raw := range c.Senders {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if open := strings.Index(raw, "<"); open >= 0 {
			end := strings.Index(raw, ">")
			if end < open {
				return nil, eris.Errorf("config: malformed sender %q", raw)
			}
			out = append(out, resend.Sender{
				Name:  strings.TrimSpace(raw[:open]),
				Email: strings.TrimSpace(raw[open+1 : end]),
			})
			continue
		}
		name := raw
		if at := strings.Index(raw, "@"); at > 0 {
			name = raw[:at]
		}
		out = append(out, resend.Sender{Name: name, Email: raw})
	}
	if len(out) == 0 {
		return nil, eris.New("config: at least one sender is required")
	}
	return out, nil
}

// OutreachConfig configures the daily pipeline and message content.
type OutreachConfig struct {
	ValidationBatch    int    `yaml:"validation_batch" mapstructure:"validation_batch"`
	EnrichmentBatch    int    `yaml:"enrichment_batch" mapstructure:"enrichment_batch"`
	SendBatch          int    `yaml:"send_batch" mapstructure:"send_batch"`
	RunTimeoutSecs     int    `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	UnsubscribeBaseURL string `yaml:"unsubscribe_base_url" mapstructure:"unsubscribe_base_url"`
	CalendlyURL        string `yaml:"calendly_url" mapstructure:"calendly_url"`
	DemoVideoURL       string `yaml:"demo_video_url" mapstructure:"demo_video_url"`
	SenderTitle        string `yaml:"sender_title" mapstructure:"sender_title"`
	SenderPhone        string `yaml:"sender_phone" mapstructure:"sender_phone"`
}

// RunTimeout is the wall-clock cap for one full pipeline run.
func (c OutreachConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSecs) * time.Second
}

// ResilienceConfig tunes retry and circuit breaker behavior for enrichment
// API calls.
type ResilienceConfig struct {
	RetryMaxAttempts        int     `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryInitialBackoffMs   int     `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs       int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	RetryMultiplier         float64 `yaml:"retry_multiplier" mapstructure:"retry_multiplier"`
	RetryJitterFraction     float64 `yaml:"retry_jitter_fraction" mapstructure:"retry_jitter_fraction"`
	BreakerFailureThreshold int     `yaml:"breaker_failure_threshold" mapstructure:"breaker_failure_threshold"`
	BreakerResetTimeoutSecs int     `yaml:"breaker_reset_timeout_secs" mapstructure:"breaker_reset_timeout_secs"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port       int    `yaml:"port" mapstructure:"port"`
	CronSecret string `yaml:"cron_secret" mapstructure:"cron_secret"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cron_secret", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("zerobounce.key", "")
	v.SetDefault("zerobounce.base_url", "https://api.zerobounce.net/v2")
	v.SetDefault("resend.key", "")
	v.SetDefault("resend.senders", []string{})
	v.SetDefault("resend.notify_to", "")
	v.SetDefault("resend.notify_from", "RiskSure Alerts <alerts@risksure.ai>")
	v.SetDefault("resend.webhook_secret", "")
	v.SetDefault("outreach.validation_batch", 50)
	v.SetDefault("outreach.enrichment_batch", 20)
	v.SetDefault("outreach.send_batch", 200)
	v.SetDefault("outreach.run_timeout_secs", 300)
	v.SetDefault("outreach.unsubscribe_base_url", "https://risksure.ai/unsubscribe")
	v.SetDefault("outreach.calendly_url", "https://calendly.com/risksure/demo")
	v.SetDefault("outreach.demo_video_url", "https://risksure.ai/demo")
	v.SetDefault("outreach.sender_title", "Founder")
	v.SetDefault("outreach.sender_phone", "")
	v.SetDefault("resilience.retry_max_attempts", 3)
	v.SetDefault("resilience.retry_initial_backoff_ms", 500)
	v.SetDefault("resilience.retry_max_backoff_ms", 30000)
	v.SetDefault("resilience.retry_multiplier", 2.0)
	v.SetDefault("resilience.retry_jitter_fraction", 0.25)
	v.SetDefault("resilience.breaker_failure_threshold", 5)
	v.SetDefault("resilience.breaker_reset_timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a mode needs are present. Modes: "run"
// (the daily pipeline), "serve" (webhook server), "import", "local"
// (store-only commands).
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			missing = append(missing, "store.driver must be sqlite or postgres")
		}
	}
	requireSending := func() {
		if c.Resend.Key == "" {
			missing = append(missing, "resend.key is required")
		}
		if len(c.Resend.Senders) == 0 {
			missing = append(missing, "resend.senders is required")
		}
	}

	switch mode {
	case "run":
		requireStore()
		requireSending()
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.ZeroBounce.Key == "" {
			missing = append(missing, "zerobounce.key is required")
		}
	case "serve":
		requireStore()
		requireSending()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
		if c.Server.CronSecret == "" {
			missing = append(missing, "server.cron_secret is required")
		}
	case "import", "local":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
