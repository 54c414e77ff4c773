package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonwraymond/schedgate/auth"
	"github.com/jonwraymond/schedgate/secret"
)

// EnvPrefix prefixes every environment override, e.g. SCHEDGATE_EHR_BASE_URL.
const EnvPrefix = "SCHEDGATE"

// Config is the gateway's file and environment configuration.
type Config struct {
	EHR        EHRConfig        `mapstructure:"ehr" yaml:"ehr"`
	Auth       AuthConfig       `mapstructure:"auth" yaml:"auth"`
	Resilience ResilienceConfig `mapstructure:"resilience" yaml:"resilience"`
	Rules      RulesConfig      `mapstructure:"rules" yaml:"rules"`
	Scheduling SchedulingConfig `mapstructure:"scheduling" yaml:"scheduling"`
	Observe    ObserveConfig    `mapstructure:"observe" yaml:"observe"`
	Health     HealthConfig     `mapstructure:"health" yaml:"health"`
}

// EHRConfig locates the remote EHR.
type EHRConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	SiteID  string `mapstructure:"site_id" yaml:"site_id"`
}

// AuthConfig holds client credentials and token lifecycle settings.
// ClientSecret may be a secretref or ${VAR}.
type AuthConfig struct {
	ClientID      string        `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURI   string        `mapstructure:"redirect_uri" yaml:"redirect_uri"`
	Scope         string        `mapstructure:"scope" yaml:"scope"`
	Grant         string        `mapstructure:"grant" yaml:"grant"`
	RefreshWindow time.Duration `mapstructure:"refresh_window" yaml:"refresh_window"`
	ChallengeTTL  time.Duration `mapstructure:"challenge_ttl" yaml:"challenge_ttl"`
	RenewTimeout  time.Duration `mapstructure:"renew_timeout" yaml:"renew_timeout"`
}

// ResilienceConfig tunes the limiter, breakers and retries.
type ResilienceConfig struct {
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	MaxFailures    int           `mapstructure:"max_failures" yaml:"max_failures"`
	ResetTimeout   time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Jitter         bool          `mapstructure:"jitter" yaml:"jitter"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
}

// RulesConfig is the booking policy. Open and Close are "HH:MM" in Timezone.
type RulesConfig struct {
	BusinessDays []string      `mapstructure:"business_days" yaml:"business_days"`
	Open         string        `mapstructure:"open" yaml:"open"`
	Close        string        `mapstructure:"close" yaml:"close"`
	Timezone     string        `mapstructure:"timezone" yaml:"timezone"`
	MinNotice    time.Duration `mapstructure:"min_notice" yaml:"min_notice"`
}

// SchedulingConfig tunes searches and conflict handling.
type SchedulingConfig struct {
	DefaultDurationMinutes int           `mapstructure:"default_duration_minutes" yaml:"default_duration_minutes"`
	ConflictLookback       time.Duration `mapstructure:"conflict_lookback" yaml:"conflict_lookback"`
	SuggestionWindow       time.Duration `mapstructure:"suggestion_window" yaml:"suggestion_window"`
	MaxSuggestions         int           `mapstructure:"max_suggestions" yaml:"max_suggestions"`
	MaxPages               int           `mapstructure:"max_pages" yaml:"max_pages"`
}

// ObserveConfig selects telemetry exporters.
type ObserveConfig struct {
	ServiceName     string  `mapstructure:"service_name" yaml:"service_name"`
	TracingExporter string  `mapstructure:"tracing_exporter" yaml:"tracing_exporter"`
	MetricsExporter string  `mapstructure:"metrics_exporter" yaml:"metrics_exporter"`
	SamplePct       float64 `mapstructure:"sample_pct" yaml:"sample_pct"`
	LogLevel        string  `mapstructure:"log_level" yaml:"log_level"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure    bool    `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
}

// HealthConfig configures the probe server.
type HealthConfig struct {
	Listen  string        `mapstructure:"listen" yaml:"listen"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

var defaults = map[string]any{
	"ehr.site_id": "default",

	"auth.scope":          "openid offline_access api:oemr api:fhir user/Appointment.read user/Appointment.write user/Slot.read user/Schedule.read",
	"auth.grant":          "authorization_code",
	"auth.refresh_window": "5m",
	"auth.challenge_ttl":  "10m",
	"auth.renew_timeout":  "30s",

	"resilience.rate_limit":      10.0,
	"resilience.max_failures":    5,
	"resilience.reset_timeout":   "30s",
	"resilience.max_attempts":    3,
	"resilience.base_delay":      "1s",
	"resilience.max_delay":       "30s",
	"resilience.jitter":          false,
	"resilience.attempt_timeout": "5s",

	"rules.business_days": []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
	"rules.open":          "08:00",
	"rules.close":         "17:00",
	"rules.timezone":      "UTC",
	"rules.min_notice":    "24h",

	"scheduling.default_duration_minutes": 30,
	"scheduling.conflict_lookback":        "12h",
	"scheduling.suggestion_window":        "24h",
	"scheduling.max_suggestions":          3,
	"scheduling.max_pages":                5,

	"observe.service_name":     "schedgate",
	"observe.tracing_exporter": "none",
	"observe.metrics_exporter": "none",
	"observe.sample_pct":       1.0,
	"observe.log_level":        "info",

	"health.listen":  ":8081",
	"health.timeout": "5s",
}

// keys without a default still need an env binding for Unmarshal to see them.
var envOnly = []string{
	"ehr.base_url",
	"auth.client_id",
	"auth.client_secret",
	"auth.redirect_uri",
	"observe.otlp_endpoint",
	"observe.otlp_insecure",
}

// Load reads configuration from path (optional; YAML, JSON or TOML by
// extension), then SCHEDGATE_* environment variables, then defaults.
// Credential fields are resolved through secret references.
func Load(ctx context.Context, path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnly {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	// The limiter has no burst; reject stale settings.
	if v.IsSet("resilience.burst") {
		return nil, fmt.Errorf("%w: resilience.burst is not supported; the limiter admits one dispatch per 1/rate_limit", auth.ErrConfiguration)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.ResolveSecrets(ctx, secret.NewDefaultResolver()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveSecrets expands env references and secretrefs in credential and
// endpoint fields.
func (c *Config) ResolveSecrets(ctx context.Context, r *secret.Resolver) error {
	if err := r.ResolveFields(ctx, map[string]*string{
		"ehr.base_url":          &c.EHR.BaseURL,
		"auth.client_id":        &c.Auth.ClientID,
		"auth.client_secret":    &c.Auth.ClientSecret,
		"auth.redirect_uri":     &c.Auth.RedirectURI,
		"observe.otlp_endpoint": &c.Observe.OTLPEndpoint,
	}); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.Auth.ClientSecret != "" {
		out.Auth.ClientSecret = "[REDACTED]"
	}
	out.Rules.BusinessDays = append([]string(nil), c.Rules.BusinessDays...)
	return out
}
