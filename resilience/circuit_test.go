package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.State() != StateClosed {
		t.Errorf("Initial state = %v, want closed", cb.State())
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.config.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", cb.config.MaxFailures)
	}
	if cb.config.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", cb.config.ResetTimeout)
	}
	if cb.Name() != "default" {
		t.Errorf("Name() = %q, want default", cb.Name())
	}
}

func TestCircuitBreaker_OpenAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	})

	testErr := errors.New("test error")

	for i := 0; i < 2; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return testErr
		})
		if err != testErr {
			t.Errorf("Execute() error = %v, want %v", err, testErr)
		}
		if cb.State() != StateClosed {
			t.Errorf("After %d failures, state = %v, want closed", i+1, cb.State())
		}
	}

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return testErr
	})
	if cb.State() != StateOpen {
		t.Fatalf("After 3 failures, state = %v, want open", cb.State())
	}

	calls := 0
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() when open = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Errorf("calls while open = %d, want 0", calls)
	}
}

func TestCircuitBreaker_SingleSuccessDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })

	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpenRejectsConcurrentCallers(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	testErr := errors.New("boom")

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })
	}

	var calls atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := cb.Execute(context.Background(), func(ctx context.Context) error {
				calls.Add(1)
				return nil
			})
			if !errors.Is(err, ErrCircuitOpen) {
				t.Errorf("Execute() = %v, want ErrCircuitOpen", err)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})
	if cb.State() != StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Errorf("State = %v, want half-open", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})
	time.Sleep(20 * time.Millisecond)

	record, err := cb.Admit()
	if err != nil {
		t.Fatalf("Admit() trial error = %v", err)
	}

	if _, err := cb.Admit(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second Admit() during trial = %v, want ErrCircuitOpen", err)
	}

	record(nil)
	if cb.State() != StateClosed {
		t.Errorf("State after trial success = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_CancelledTrialDoesNotClose(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})
	time.Sleep(20 * time.Millisecond)

	record, err := cb.Admit()
	if err != nil {
		t.Fatalf("Admit() trial error = %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State = %v, want half-open", cb.State())
	}

	record(fmt.Errorf("attempt: %w", context.Canceled))
	if cb.State() != StateOpen {
		t.Errorf("State after cancelled trial = %v, want open", cb.State())
	}
	if _, err := cb.Admit(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Admit() after cancelled trial = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_CancellationKeepsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	})
	testErr := errors.New("test error")

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })
	}
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return context.Canceled })

	if got := cb.Metrics().ConsecutiveFailures; got != 2 {
		t.Errorf("ConsecutiveFailures after cancellation = %d, want 2", got)
	}

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })
	if cb.State() != StateOpen {
		t.Errorf("State = %v, want open after the third real failure", cb.State())
	}
}

func TestCircuitBreaker_RecoveryFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
	})

	testErr := errors.New("test error")

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return testErr
	})
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return testErr
	})

	if cb.State() != StateOpen {
		t.Errorf("State = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []struct {
		from, to State
	}
	var mu sync.Mutex

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		OnStateChange: func(from, to State) {
			mu.Lock()
			transitions = append(transitions, struct{ from, to State }{from, to})
			mu.Unlock()
		},
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})
	time.Sleep(20 * time.Millisecond)
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})

	mu.Lock()
	defer mu.Unlock()

	want := []struct{ from, to State }{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v -> %v, want %v -> %v",
				i, transitions[i].from, transitions[i].to, want[i].from, want[i].to)
		}
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	})

	testErr := errors.New("test error")
	fail := func(ctx context.Context) error { return testErr }

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)

	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
	if got := cb.Metrics().ConsecutiveFailures; got != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", got)
	}
}

func TestCircuitBreaker_IsFailure(t *testing.T) {
	ignored := errors.New("client error")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, ignored)
		},
	})

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return ignored })
	if err != ignored {
		t.Errorf("Execute() error = %v, want %v", err, ignored)
	}
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Metrics(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "fhir", MaxFailures: 5})

	testErr := errors.New("test error")
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })

	metrics := cb.Metrics()

	if metrics.Name != "fhir" {
		t.Errorf("Metrics.Name = %q, want fhir", metrics.Name)
	}
	if metrics.State != StateClosed {
		t.Errorf("Metrics.State = %v, want closed", metrics.State)
	}
	if metrics.ConsecutiveFailures != 2 {
		t.Errorf("Metrics.ConsecutiveFailures = %d, want 2", metrics.ConsecutiveFailures)
	}
	if metrics.LastTransition.IsZero() {
		t.Error("Metrics.LastTransition is zero")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("State.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
