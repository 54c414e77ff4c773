package scheduling

import (
	"context"
	"net/url"
	"slices"
	"time"

	"github.com/jonwraymond/schedgate/fhir"
)

// AvailableSlots lists free slots starting in [start, end), optionally for one
// practitioner, ordered by start time.
func (g *Gateway) AvailableSlots(ctx context.Context, start, end time.Time, practitionerID string) ([]Slot, error) {
	if !end.After(start) {
		return nil, invalid("end %s is not after start %s", fhirTime(end), fhirTime(start))
	}

	query := url.Values{
		"status":   {fhir.SlotFree},
		"start":    {"ge" + fhirTime(start), "lt" + fhirTime(end)},
		"_include": {"Slot:schedule"},
		"_count":   {"100"},
	}
	if practitionerID != "" {
		query.Set("schedule.actor", fhir.FormatReference("Practitioner", practitionerID))
	}

	var raw []fhir.Slot
	practitioners := map[string]string{}
	err := g.search(ctx, "Slot", query, func(b *fhir.Bundle) error {
		if err := fhir.Each(b, "Schedule", func(s fhir.Schedule) error {
			refs := make([]string, 0, len(s.Actor))
			for _, a := range s.Actor {
				refs = append(refs, a.Reference)
			}
			practitioners[s.ID] = PractitionerID(refs)
			return nil
		}); err != nil {
			return err
		}
		return fhir.Each(b, "Slot", func(s fhir.Slot) error {
			raw = append(raw, s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slots := make([]Slot, 0, len(raw))
	for _, s := range raw {
		slot := fromFHIRSlot(s, practitioners)
		if slot.Status != "" && slot.Status != fhir.SlotFree {
			continue
		}
		if practitionerID != "" && slot.PractitionerID != "" && slot.PractitionerID != practitionerID {
			continue
		}
		if slot.PractitionerID == "" {
			slot.PractitionerID = practitionerID
		}
		slots = append(slots, slot)
	}

	slices.SortFunc(slots, func(a, b Slot) int { return a.Start.Compare(b.Start) })
	return slots, nil
}

// suggest finds free slots near a rejected request: within SuggestionWindow
// either side, starting in the future, long enough, nearest first. Failures
// yield no suggestions.
func (g *Gateway) suggest(ctx context.Context, practitionerID string, start time.Time, minutes int) []Slot {
	window := g.config.SuggestionWindow
	slots, err := g.AvailableSlots(ctx, start.Add(-window), start.Add(window), practitionerID)
	if err != nil {
		return nil
	}

	now := g.config.Now()
	candidates := slots[:0]
	for _, s := range slots {
		if s.Start.After(now) && s.DurationMinutes >= minutes {
			candidates = append(candidates, s)
		}
	}

	distance := func(s Slot) time.Duration {
		d := s.Start.Sub(start)
		if d < 0 {
			return -d
		}
		return d
	}
	slices.SortStableFunc(candidates, func(a, b Slot) int {
		da, db := distance(a), distance(b)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})

	if len(candidates) > g.config.MaxSuggestions {
		candidates = candidates[:g.config.MaxSuggestions]
	}
	return candidates
}
