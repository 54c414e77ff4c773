package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for scheduling operations.
var (
	ErrConflict       = errors.New("scheduling: conflict detected")
	ErrBusinessRule   = errors.New("scheduling: business rule violated")
	ErrNotFound       = errors.New("scheduling: appointment not found")
	ErrInvalidRequest = errors.New("scheduling: invalid request")
)

// ConflictError reports overlapping bookings. Remote is set when the EHR
// itself refused the commit after a clean local check.
type ConflictError struct {
	Conflicts   []string
	Suggestions []Slot
	Remote      bool
}

// Error implements error.
func (e *ConflictError) Error() string {
	msg := ErrConflict.Error()
	if e.Remote {
		msg += " by the EHR"
	}
	if len(e.Conflicts) > 0 {
		msg += ": " + strings.Join(e.Conflicts, "; ")
	}
	return msg
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Rule names reported by RuleViolation.
const (
	RuleInPast        = "in-past"
	RuleMinimumNotice = "minimum-notice"
	RuleBusinessDay   = "business-day"
	RuleBusinessHours = "business-hours"
)

// RuleViolation reports a failed business rule.
type RuleViolation struct {
	Rule    string
	Message string
}

// Error implements error.
func (e *RuleViolation) Error() string {
	return fmt.Sprintf("%s: %s", ErrBusinessRule.Error(), e.Message)
}

// Is matches ErrBusinessRule.
func (e *RuleViolation) Is(target error) bool {
	return target == ErrBusinessRule
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidRequest}, args...)...)
}
