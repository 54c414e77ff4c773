package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/schedgate/auth"
	"github.com/jonwraymond/schedgate/observe"
	"github.com/jonwraymond/schedgate/observe/exporters"
	"github.com/jonwraymond/schedgate/resilience"
	"github.com/jonwraymond/schedgate/scheduling"
	"github.com/jonwraymond/schedgate/transport"
)

// Credentials returns the client identity and EHR location.
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{
		BaseURL:      c.EHR.BaseURL,
		ClientID:     c.Auth.ClientID,
		ClientSecret: c.Auth.ClientSecret,
		RedirectURI:  c.Auth.RedirectURI,
		Scope:        c.Auth.Scope,
		SiteID:       c.EHR.SiteID,
	}
}

// AuthorityConfig returns the token authority settings.
func (c *Config) AuthorityConfig() auth.Config {
	return auth.Config{
		Credentials:   c.Credentials(),
		Grant:         auth.Grant(c.Auth.Grant),
		RefreshWindow: c.Auth.RefreshWindow,
		ChallengeTTL:  c.Auth.ChallengeTTL,
		RenewTimeout:  c.Auth.RenewTimeout,
	}
}

// SchedulingRules parses the booking policy.
func (c *Config) SchedulingRules() (scheduling.Rules, error) {
	days := make([]time.Weekday, 0, len(c.Rules.BusinessDays))
	for _, name := range c.Rules.BusinessDays {
		d, err := parseWeekday(name)
		if err != nil {
			return scheduling.Rules{}, err
		}
		days = append(days, d)
	}

	open, err := parseClock(c.Rules.Open)
	if err != nil {
		return scheduling.Rules{}, fmt.Errorf("%w: rules.open: %w", auth.ErrConfiguration, err)
	}
	closing, err := parseClock(c.Rules.Close)
	if err != nil {
		return scheduling.Rules{}, fmt.Errorf("%w: rules.close: %w", auth.ErrConfiguration, err)
	}
	if closing <= open {
		return scheduling.Rules{}, fmt.Errorf("%w: rules.close %s is not after rules.open %s", auth.ErrConfiguration, c.Rules.Close, c.Rules.Open)
	}

	loc, err := time.LoadLocation(c.Rules.Timezone)
	if err != nil {
		return scheduling.Rules{}, fmt.Errorf("%w: rules.timezone: %w", auth.ErrConfiguration, err)
	}

	notice := c.Rules.MinNotice
	if notice == 0 {
		notice = scheduling.NoMinNotice
	}

	return scheduling.Rules{
		BusinessDays: days,
		OpenAt:       open,
		CloseAt:      closing,
		Location:     loc,
		MinNotice:    notice,
	}, nil
}

// RateLimiter builds the limiter shared by both endpoint groups.
func (c *Config) RateLimiter() *resilience.RateLimiter {
	return resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: c.Resilience.RateLimit})
}

// Breaker builds the circuit breaker for one endpoint group.
func (c *Config) Breaker(group string) *resilience.CircuitBreaker {
	return scheduling.NewBreaker(group, resilience.CircuitBreakerConfig{
		MaxFailures:  c.Resilience.MaxFailures,
		ResetTimeout: c.Resilience.ResetTimeout,
	})
}

// GatewayConfig builds the scheduling gateway settings around tokens. Each
// call creates fresh breakers and a fresh limiter.
func (c *Config) GatewayConfig(tokens scheduling.TokenSource) (scheduling.Config, error) {
	rules, err := c.SchedulingRules()
	if err != nil {
		return scheduling.Config{}, err
	}
	creds := c.Credentials()

	return scheduling.Config{
		FHIRBaseURL:     creds.FHIRBaseURL(),
		StandardBaseURL: creds.StandardBaseURL(),
		Tokens:          tokens,
		RateLimiter:     c.RateLimiter(),
		FHIRBreaker:     c.Breaker(scheduling.GroupFHIR),
		StandardBreaker: c.Breaker(scheduling.GroupStandard),
		Retry: resilience.RetryConfig{
			MaxAttempts: c.Resilience.MaxAttempts,
			BaseDelay:   c.Resilience.BaseDelay,
			MaxDelay:    c.Resilience.MaxDelay,
			Jitter:      c.Resilience.Jitter,
			RetryIf:     transport.Transient,
		},
		AttemptTimeout:         c.Resilience.AttemptTimeout,
		Rules:                  rules,
		DefaultDurationMinutes: c.Scheduling.DefaultDurationMinutes,
		ConflictLookback:       c.Scheduling.ConflictLookback,
		SuggestionWindow:       c.Scheduling.SuggestionWindow,
		MaxSuggestions:         c.Scheduling.MaxSuggestions,
		MaxPages:               c.Scheduling.MaxPages,
	}, nil
}

// ObserverConfig returns the telemetry settings. An exporter of "none" or
// "" disables that signal.
func (c *Config) ObserverConfig(version string) observe.Config {
	enabled := func(exporter string) bool { return exporter != "" && exporter != "none" }

	return observe.Config{
		ServiceName: c.Observe.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   enabled(c.Observe.TracingExporter),
			Exporter:  c.Observe.TracingExporter,
			SamplePct: c.Observe.SamplePct,
			Global:    true,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  enabled(c.Observe.MetricsExporter),
			Exporter: c.Observe.MetricsExporter,
			Global:   true,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Observe.LogLevel,
		},
		Exporters: exporters.Options{
			Endpoint: c.Observe.OTLPEndpoint,
			Insecure: c.Observe.OTLPInsecure,
		},
	}
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown business day %q", auth.ErrConfiguration, s)
	}
	return d, nil
}

// parseClock turns "HH:MM" into an offset from midnight. "24:00" is allowed
// as a closing time.
func parseClock(s string) (time.Duration, error) {
	if s == "24:00" {
		return 24 * time.Hour, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
