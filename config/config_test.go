package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/schedgate/auth"
	"github.com/jonwraymond/schedgate/observe"
	"github.com/jonwraymond/schedgate/scheduling"
)

const sampleYAML = `
ehr:
  base_url: https://ehr.example.com
  site_id: clinic
auth:
  client_id: scheduler
  client_secret: ${SCHEDGATE_TEST_SECRET}
  grant: client_credentials
resilience:
  rate_limit: 4
  max_failures: 3
  reset_timeout: 1m
rules:
  business_days: [mon, tue, wed, thu, fri, sat]
  open: "07:30"
  close: "19:00"
  timezone: America/New_York
  min_notice: 2h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedgate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadValid(t *testing.T) *Config {
	t.Helper()
	t.Setenv("SCHEDGATE_TEST_SECRET", "s3cret")
	cfg, err := Load(context.Background(), writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}

func TestLoad_FileDefaultsAndSecrets(t *testing.T) {
	cfg := loadValid(t)

	if cfg.EHR.BaseURL != "https://ehr.example.com" || cfg.EHR.SiteID != "clinic" {
		t.Errorf("EHR = %+v", cfg.EHR)
	}
	if cfg.Auth.ClientSecret != "s3cret" {
		t.Errorf("ClientSecret = %q, want resolved value", cfg.Auth.ClientSecret)
	}
	if cfg.Resilience.ResetTimeout != time.Minute {
		t.Errorf("ResetTimeout = %v, want 1m", cfg.Resilience.ResetTimeout)
	}
	if cfg.Resilience.MaxAttempts != 3 || cfg.Resilience.AttemptTimeout != 5*time.Second {
		t.Errorf("defaults not applied: %+v", cfg.Resilience)
	}
	if cfg.Auth.RefreshWindow != 5*time.Minute {
		t.Errorf("RefreshWindow = %v, want 5m", cfg.Auth.RefreshWindow)
	}
	if cfg.Scheduling.DefaultDurationMinutes != 30 || cfg.Scheduling.MaxPages != 5 {
		t.Errorf("Scheduling = %+v", cfg.Scheduling)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SCHEDGATE_EHR_BASE_URL", "https://other.example.com")
	t.Setenv("SCHEDGATE_AUTH_CLIENT_ID", "from-env")
	t.Setenv("SCHEDGATE_RESILIENCE_MAX_ATTEMPTS", "5")
	t.Setenv("SCHEDGATE_RULES_BUSINESS_DAYS", "mon,wed")

	cfg, err := Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EHR.BaseURL != "https://other.example.com" {
		t.Errorf("BaseURL = %q", cfg.EHR.BaseURL)
	}
	if cfg.Auth.ClientID != "from-env" {
		t.Errorf("ClientID = %q", cfg.Auth.ClientID)
	}
	if cfg.Resilience.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Resilience.MaxAttempts)
	}
	if len(cfg.Rules.BusinessDays) != 2 {
		t.Errorf("BusinessDays = %v, want [mon wed]", cfg.Rules.BusinessDays)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing file) should fail")
	}

	path := writeConfig(t, "auth:\n  client_secret: secretref:env:SCHEDGATE_TEST_UNSET\n")
	_, err := Load(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "auth.client_secret") {
		t.Errorf("Load() error = %v, want it to name auth.client_secret", err)
	}
}

func TestLoad_RejectsBurst(t *testing.T) {
	path := writeConfig(t, "resilience:\n  rate_limit: 2\n  burst: 5\n")
	if _, err := Load(context.Background(), path); !errors.Is(err, auth.ErrConfiguration) {
		t.Errorf("Load(burst in file) error = %v, want ErrConfiguration", err)
	}

	t.Setenv("SCHEDGATE_RESILIENCE_BURST", "5")
	if _, err := Load(context.Background(), ""); !errors.Is(err, auth.ErrConfiguration) {
		t.Errorf("Load(burst in env) error = %v, want ErrConfiguration", err)
	}
}

func TestRateLimiter_KeepsMinimumSpacing(t *testing.T) {
	cfg := loadValid(t)

	rl := cfg.RateLimiter()
	if got := rl.MinInterval(); got != 250*time.Millisecond {
		t.Errorf("MinInterval() = %v, want 250ms at rate_limit 4", got)
	}

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond-time.Millisecond {
		t.Errorf("3 dispatches at 4/s took %v, want >= 500ms", elapsed)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := loadValid(t)
	cfg.EHR.BaseURL = "not-a-url"
	cfg.Auth.Grant = "password"
	cfg.Resilience.RateLimit = 0
	cfg.Rules.Close = "06:00"
	cfg.Scheduling.MaxPages = 0

	err := cfg.Validate()
	if !errors.Is(err, auth.ErrConfiguration) {
		t.Fatalf("Validate() error = %v, want ErrConfiguration", err)
	}
	for _, want := range []string{"base URL", "auth.grant", "rate_limit", "rules.close", "max_pages"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error missing %q: %v", want, err)
		}
	}
}

func TestValidate_ClientCredentialsNeedSecret(t *testing.T) {
	cfg := loadValid(t)
	cfg.Auth.ClientSecret = ""

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "client_secret") {
		t.Errorf("Validate() error = %v, want client_secret problem", err)
	}
}

func TestValidate_ObserveSettings(t *testing.T) {
	cfg := loadValid(t)
	cfg.Observe.TracingExporter = "zipkin"

	if err := cfg.Validate(); !errors.Is(err, observe.ErrInvalidTracingExporter) {
		t.Errorf("Validate() error = %v, want ErrInvalidTracingExporter", err)
	}
}

func TestSchedulingRules(t *testing.T) {
	cfg := loadValid(t)

	rules, err := cfg.SchedulingRules()
	if err != nil {
		t.Fatalf("SchedulingRules() error = %v", err)
	}
	if len(rules.BusinessDays) != 6 || rules.BusinessDays[5] != time.Saturday {
		t.Errorf("BusinessDays = %v", rules.BusinessDays)
	}
	if rules.OpenAt != 7*time.Hour+30*time.Minute || rules.CloseAt != 19*time.Hour {
		t.Errorf("hours = %v-%v", rules.OpenAt, rules.CloseAt)
	}
	if rules.Location.String() != "America/New_York" {
		t.Errorf("Location = %v", rules.Location)
	}
	if rules.MinNotice != 2*time.Hour {
		t.Errorf("MinNotice = %v", rules.MinNotice)
	}

	cfg.Rules.BusinessDays = []string{"funday"}
	if _, err := cfg.SchedulingRules(); !errors.Is(err, auth.ErrConfiguration) {
		t.Errorf("SchedulingRules() error = %v, want ErrConfiguration", err)
	}
}

func TestSchedulingRules_ZeroMinNotice(t *testing.T) {
	cfg := loadValid(t)
	cfg.Rules.MinNotice = 0

	rules, err := cfg.SchedulingRules()
	if err != nil {
		t.Fatalf("SchedulingRules() error = %v", err)
	}
	if rules.MinNotice != scheduling.NoMinNotice {
		t.Errorf("MinNotice = %v, want NoMinNotice", rules.MinNotice)
	}

	// Wednesday 13:00 New York, one hour ahead.
	now := time.Date(2026, 10, 14, 16, 0, 0, 0, time.UTC)
	start := now.Add(time.Hour)
	if err := rules.Validate(scheduling.TypeRoutine, start, start.Add(30*time.Minute), now); err != nil {
		t.Errorf("Validate() error = %v, want nil with min_notice 0", err)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"08:00", 8 * time.Hour, false},
		{"17:45", 17*time.Hour + 45*time.Minute, false},
		{"24:00", 24 * time.Hour, false},
		{"8am", 0, true},
		{"25:00", 0, true},
	}

	for _, tt := range tests {
		got, err := parseClock(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseClock(%q) = %v, %v, want %v (err %v)", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

type staticTokens struct{}

func (staticTokens) EnsureValidToken(context.Context) (string, error) { return "tok", nil }
func (staticTokens) Renew(context.Context, string) (string, error)    { return "tok", nil }

func TestGatewayConfig(t *testing.T) {
	cfg := loadValid(t)

	gc, err := cfg.GatewayConfig(staticTokens{})
	if err != nil {
		t.Fatalf("GatewayConfig() error = %v", err)
	}
	if gc.FHIRBaseURL != "https://ehr.example.com/apis/clinic/fhir" {
		t.Errorf("FHIRBaseURL = %q", gc.FHIRBaseURL)
	}
	if gc.StandardBaseURL != "https://ehr.example.com/apis/clinic/api" {
		t.Errorf("StandardBaseURL = %q", gc.StandardBaseURL)
	}
	if gc.FHIRBreaker.Name() != scheduling.GroupFHIR || gc.StandardBreaker.Name() != scheduling.GroupStandard {
		t.Errorf("breakers = %q, %q", gc.FHIRBreaker.Name(), gc.StandardBreaker.Name())
	}
	if gc.FHIRBreaker == gc.StandardBreaker {
		t.Error("endpoint groups should not share a breaker")
	}
	if got := gc.RateLimiter.Config(); got.Rate != 4 {
		t.Errorf("limiter = %+v", got)
	}

	g, err := scheduling.NewGateway(gc)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	if len(g.Breakers()) != 2 {
		t.Errorf("Breakers() = %d, want 2", len(g.Breakers()))
	}
}

func TestAuthorityConfig(t *testing.T) {
	cfg := loadValid(t)

	a, err := auth.NewAuthority(cfg.AuthorityConfig())
	if err != nil {
		t.Fatalf("NewAuthority() error = %v", err)
	}
	if got := a.Credentials().TokenURL(); got != "https://ehr.example.com/oauth2/clinic/token" {
		t.Errorf("TokenURL() = %q", got)
	}
}

func TestObserverConfig(t *testing.T) {
	cfg := loadValid(t)
	cfg.Observe.MetricsExporter = "prometheus"
	cfg.Observe.OTLPEndpoint = "collector:4317"

	oc := cfg.ObserverConfig("1.2.3")
	if oc.Tracing.Enabled {
		t.Error("tracing should be disabled for exporter none")
	}
	if !oc.Metrics.Enabled || oc.Metrics.Exporter != "prometheus" {
		t.Errorf("Metrics = %+v", oc.Metrics)
	}
	if oc.Version != "1.2.3" || oc.Exporters.Endpoint != "collector:4317" {
		t.Errorf("ObserverConfig() = %+v", oc)
	}
}

func TestDump_RedactsSecret(t *testing.T) {
	cfg := loadValid(t)

	var buf bytes.Buffer
	if err := cfg.Dump(&buf); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "s3cret") {
		t.Errorf("Dump() leaked the client secret:\n%s", out)
	}
	for _, want := range []string{"[REDACTED]", "base_url: https://ehr.example.com", "reset_timeout: 1m0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("Dump() missing %q:\n%s", want, out)
		}
	}
	if cfg.Auth.ClientSecret != "s3cret" {
		t.Error("Dump() must not modify the config")
	}
}
