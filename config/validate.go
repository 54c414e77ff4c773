package config

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/schedgate/auth"
)

// Validate reports every problem at once. Each is wrapped with
// auth.ErrConfiguration except telemetry settings, which carry the observe
// sentinels.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{auth.ErrConfiguration}, args...)...))
	}

	if err := c.Credentials().Validate(); err != nil {
		errs = append(errs, err)
	}
	switch auth.Grant(c.Auth.Grant) {
	case auth.GrantAuthorizationCode, auth.GrantClientCredentials:
	default:
		fail("auth.grant %q is not authorization_code or client_credentials", c.Auth.Grant)
	}
	if auth.Grant(c.Auth.Grant) == auth.GrantClientCredentials && c.Auth.ClientSecret == "" {
		fail("auth.client_secret is required for client_credentials")
	}

	r := c.Resilience
	if r.RateLimit <= 0 {
		fail("resilience.rate_limit must be positive")
	}
	if r.MaxFailures < 1 {
		fail("resilience.max_failures must be at least 1")
	}
	if r.MaxAttempts < 1 {
		fail("resilience.max_attempts must be at least 1")
	}
	if r.AttemptTimeout <= 0 {
		fail("resilience.attempt_timeout must be positive")
	}
	if r.MaxDelay > 0 && r.BaseDelay > r.MaxDelay {
		fail("resilience.base_delay %s exceeds max_delay %s", r.BaseDelay, r.MaxDelay)
	}

	if _, err := c.SchedulingRules(); err != nil {
		errs = append(errs, err)
	}
	if c.Rules.MinNotice < 0 {
		fail("rules.min_notice must not be negative")
	}

	s := c.Scheduling
	if s.DefaultDurationMinutes < 1 {
		fail("scheduling.default_duration_minutes must be at least 1")
	}
	if s.MaxSuggestions < 0 {
		fail("scheduling.max_suggestions must not be negative")
	}
	if s.MaxPages < 1 {
		fail("scheduling.max_pages must be at least 1")
	}

	oc := c.ObserverConfig("")
	if err := oc.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Dump writes the effective configuration as YAML with secrets redacted.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Redacted()); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return enc.Close()
}
