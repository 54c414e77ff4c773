package resilience

import (
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrCircuitOpen", ErrCircuitOpen, "service unavailable"},
		{"ErrTimeout", ErrTimeout, "timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatalf("%s is nil", tt.name)
			}
			if !strings.Contains(tt.err.Error(), tt.want) {
				t.Errorf("%s = %q, want it to contain %q", tt.name, tt.err.Error(), tt.want)
			}
		})
	}
}
