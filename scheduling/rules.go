package scheduling

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonwraymond/schedgate/fhir"
)

// AppointmentType is the booking category.
type AppointmentType string

const (
	TypeRoutine      AppointmentType = "routine"
	TypeFollowUp     AppointmentType = "follow-up"
	TypeUrgent       AppointmentType = "urgent"
	TypeConsultation AppointmentType = "consultation"
)

var typeCodes = map[AppointmentType]string{
	TypeRoutine:      "ROUTINE",
	TypeFollowUp:     "FOLLOWUP",
	TypeUrgent:       "URGENT",
	TypeConsultation: "CONSULT",
}

var typeAliases = map[string]AppointmentType{
	"routine":      TypeRoutine,
	"follow-up":    TypeFollowUp,
	"followup":     TypeFollowUp,
	"follow_up":    TypeFollowUp,
	"urgent":       TypeUrgent,
	"emergency":    TypeUrgent,
	"consultation": TypeConsultation,
	"consult":      TypeConsultation,
}

// ParseAppointmentType maps free text to a type. Unknown values are routine.
func ParseAppointmentType(s string) AppointmentType {
	if t, ok := typeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return TypeRoutine
}

// TypeFromCode maps a wire code back to a type. Unknown codes are routine.
func TypeFromCode(code string) AppointmentType {
	for t, c := range typeCodes {
		if strings.EqualFold(c, code) {
			return t
		}
	}
	return TypeRoutine
}

// Code returns the wire code for the type.
func (t AppointmentType) Code() string {
	if c, ok := typeCodes[t]; ok {
		return c
	}
	return typeCodes[TypeRoutine]
}

// Concept returns the type as a FHIR appointmentType.
func (t AppointmentType) Concept() *fhir.CodeableConcept {
	return &fhir.CodeableConcept{
		Coding: []fhir.Coding{{
			System: fhir.AppointmentTypeSystem,
			Code:   t.Code(),
		}},
		Text: string(t),
	}
}

// Rules are the practice's booking constraints.
type Rules struct {
	// BusinessDays lists the days appointments may fall on.
	// Default: Monday to Friday
	BusinessDays []time.Weekday

	// OpenAt and CloseAt are offsets from local midnight.
	// Default: 08:00 and 17:00
	OpenAt  time.Duration
	CloseAt time.Duration

	// Location is the practice's time zone. Default: UTC
	Location *time.Location

	// MinNotice is the minimum lead time for every type except urgent.
	// Default: 24h. Use NoMinNotice to drop the requirement.
	MinNotice time.Duration
}

// NoMinNotice disables the minimum notice rule.
const NoMinNotice time.Duration = -1

// DefaultRules returns the default booking constraints.
func DefaultRules() Rules {
	return Rules{}.withDefaults()
}

func (r Rules) withDefaults() Rules {
	if len(r.BusinessDays) == 0 {
		r.BusinessDays = []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		}
	}
	if r.OpenAt == 0 && r.CloseAt == 0 {
		r.OpenAt = 8 * time.Hour
		r.CloseAt = 17 * time.Hour
	}
	if r.Location == nil {
		r.Location = time.UTC
	}
	if r.MinNotice == 0 {
		r.MinNotice = 24 * time.Hour
	}
	return r
}

// Validate checks an appointment window against the rules.
func (r Rules) Validate(t AppointmentType, start, end, now time.Time) error {
	r = r.withDefaults()

	if start.Before(now) {
		return &RuleViolation{
			Rule:    RuleInPast,
			Message: fmt.Sprintf("start %s is in the past", start.Format(time.RFC3339)),
		}
	}

	if t != TypeUrgent && r.MinNotice > 0 && start.Before(now.Add(r.MinNotice)) {
		return &RuleViolation{
			Rule: RuleMinimumNotice,
			Message: fmt.Sprintf("%s appointments require %s notice; start %s is %s away",
				t, r.MinNotice, start.Format(time.RFC3339), start.Sub(now).Round(time.Minute)),
		}
	}

	local := start.In(r.Location)
	if !slices.Contains(r.BusinessDays, local.Weekday()) {
		return &RuleViolation{
			Rule:    RuleBusinessDay,
			Message: fmt.Sprintf("%s is not a business day", local.Weekday()),
		}
	}

	opens := wallClock(local, r.OpenAt)
	closes := wallClock(local, r.CloseAt)
	if local.Before(opens) || end.After(closes) {
		return &RuleViolation{
			Rule: RuleBusinessHours,
			Message: fmt.Sprintf("%s-%s is outside business hours %s-%s",
				local.Format("15:04"), end.In(r.Location).Format("15:04"),
				opens.Format("15:04"), closes.Format("15:04")),
		}
	}

	return nil
}

// wallClock returns the instant the local clock on day's date reads offset
// past midnight. An offset of 24h is the following midnight.
func wallClock(day time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	s := int(offset % time.Minute / time.Second)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, 0, day.Location())
}
