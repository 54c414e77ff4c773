package scheduling

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jonwraymond/schedgate/fhir"
)

// CheckSlotAvailability reports whether practitionerID is free for
// [start, start+durationMinutes). When not, every overlapping appointment is
// described and nearby free slots are suggested.
func (g *Gateway) CheckSlotAvailability(ctx context.Context, start time.Time, practitionerID string, durationMinutes int) (*ConflictResult, error) {
	if practitionerID == "" {
		return nil, invalid("practitioner id is required")
	}
	if durationMinutes <= 0 {
		return nil, invalid("duration must be positive, got %d minutes", durationMinutes)
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	conflicts, err := g.findConflicts(ctx, practitionerID, start, end, "")
	if err != nil {
		return nil, err
	}
	if len(conflicts) == 0 {
		return &ConflictResult{Available: true}, nil
	}

	return &ConflictResult{
		Available:   false,
		Conflicts:   describe(conflicts),
		Suggestions: g.suggest(ctx, practitionerID, start, durationMinutes),
	}, nil
}

// checkConflicts returns a *ConflictError when [start, end) overlaps another
// active booking for practitionerID.
func (g *Gateway) checkConflicts(ctx context.Context, practitionerID string, start, end time.Time, excludeID string) error {
	conflicts, err := g.findConflicts(ctx, practitionerID, start, end, excludeID)
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		return nil
	}
	return &ConflictError{
		Conflicts:   describe(conflicts),
		Suggestions: g.suggest(ctx, practitionerID, start, DurationMinutes(start, end)),
	}
}

// findConflicts lists active appointments for practitionerID overlapping the
// half-open window [start, end), skipping excludeID.
func (g *Gateway) findConflicts(ctx context.Context, practitionerID string, start, end time.Time, excludeID string) ([]Appointment, error) {
	query := url.Values{
		"practitioner": {fhir.FormatReference("Practitioner", practitionerID)},
		"date":         {"ge" + fhirTime(start.Add(-g.config.ConflictLookback)), "lt" + fhirTime(end)},
		"_count":       {"100"},
	}

	var out []Appointment
	err := g.search(ctx, "Appointment", query, func(b *fhir.Bundle) error {
		return fhir.Each(b, "Appointment", func(a fhir.Appointment) error {
			appt := fromFHIRAppointment(&a)
			if appt.ID == excludeID && excludeID != "" {
				return nil
			}
			if inactive(appt.Status) || appt.Start.IsZero() || appt.End.IsZero() {
				return nil
			}
			if appt.PractitionerID != "" && appt.PractitionerID != practitionerID {
				return nil
			}
			if overlaps(appt.Start, appt.End, start, end) {
				out = append(out, *appt)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("conflict check: %w", err)
	}
	return out, nil
}

// overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Back-to-back windows do not overlap.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func describe(appts []Appointment) []string {
	out := make([]string, 0, len(appts))
	for _, a := range appts {
		out = append(out, fmt.Sprintf("appointment %s (%s) from %s to %s",
			a.ID, a.Status, fhirTime(a.Start), fhirTime(a.End)))
	}
	return out
}
