package observe

import (
	"context"
	"testing"
	"time"

	"github.com/jonwraymond/schedgate/scheduling"
)

// fakeScheduler records which operations ran.
type fakeScheduler struct {
	calls []string
	err   error
}

func (f *fakeScheduler) AvailableSlots(ctx context.Context, start, end time.Time, practitionerID string) ([]scheduling.Slot, error) {
	f.calls = append(f.calls, OpAvailableSlots)
	return []scheduling.Slot{{ID: "s1"}}, f.err
}

func (f *fakeScheduler) CheckSlotAvailability(ctx context.Context, start time.Time, practitionerID string, durationMinutes int) (*scheduling.ConflictResult, error) {
	f.calls = append(f.calls, OpCheckSlotAvailability)
	return &scheduling.ConflictResult{Available: true}, f.err
}

func (f *fakeScheduler) CreateAppointment(ctx context.Context, req scheduling.AppointmentRequest) (*scheduling.Appointment, error) {
	f.calls = append(f.calls, OpCreateAppointment)
	return &scheduling.Appointment{ID: "new"}, f.err
}

func (f *fakeScheduler) GetAppointment(ctx context.Context, id string) (*scheduling.Appointment, error) {
	f.calls = append(f.calls, OpGetAppointment)
	return &scheduling.Appointment{ID: id}, f.err
}

func (f *fakeScheduler) UpdateAppointment(ctx context.Context, id string, changes scheduling.AppointmentChanges) (*scheduling.Appointment, error) {
	f.calls = append(f.calls, OpUpdateAppointment)
	return &scheduling.Appointment{ID: id}, f.err
}

func (f *fakeScheduler) DeleteAppointment(ctx context.Context, id, reason string) error {
	f.calls = append(f.calls, OpDeleteAppointment)
	return f.err
}

// TestInstrument_ObservesEveryOperation verifies one span per call with results passed through.
func TestInstrument_ObservesEveryOperation(t *testing.T) {
	tel := newTestTelemetry(t)
	inner := &fakeScheduler{}
	s := Instrument(inner, tel.mw)
	ctx := context.Background()
	start := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	practitioner := "dr2"

	slots, _ := s.AvailableSlots(ctx, start, start.Add(time.Hour), "dr1")
	res, _ := s.CheckSlotAvailability(ctx, start, "dr1", 30)
	created, _ := s.CreateAppointment(ctx, scheduling.AppointmentRequest{PractitionerID: "dr1"})
	got, _ := s.GetAppointment(ctx, "a1")
	updated, _ := s.UpdateAppointment(ctx, "a1", scheduling.AppointmentChanges{PractitionerID: &practitioner})
	_ = s.DeleteAppointment(ctx, "a1", "")

	if len(slots) != 1 || !res.Available || created.ID != "new" || got.ID != "a1" || updated.ID != "a1" {
		t.Error("expected results to pass through unchanged")
	}
	if len(inner.calls) != 6 {
		t.Errorf("expected 6 inner calls, got %v", inner.calls)
	}

	var names []string
	for _, sp := range tel.spans.Ended() {
		names = append(names, sp.Name())
	}
	want := []string{
		"scheduling.available_slots",
		"scheduling.check_slot_availability",
		"scheduling.create_appointment",
		"scheduling.get_appointment",
		"scheduling.update_appointment",
		"scheduling.delete_appointment",
	}
	if len(names) != len(want) {
		t.Fatalf("expected spans %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("span %d: expected %q, got %q", i, want[i], names[i])
		}
	}

	update := spanAttrs(tel.spans.Ended()[4])
	if update["scheduling.practitioner_id"].AsString() != "dr2" {
		t.Errorf("expected update span to carry the new practitioner, got %v", update["scheduling.practitioner_id"])
	}
}

// TestInstrument_RecordsErrors verifies errors are counted and returned.
func TestInstrument_RecordsErrors(t *testing.T) {
	tel := newTestTelemetry(t)
	s := Instrument(&fakeScheduler{err: scheduling.ErrNotFound}, tel.mw)

	if _, err := s.GetAppointment(context.Background(), "gone"); err != scheduling.ErrNotFound {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
	if got := sumValue(t, collect(t, tel.reader), "scheduling.op.errors"); got != 1 {
		t.Errorf("expected errors=1, got %d", got)
	}
}

// TestInstrument_NilMiddleware verifies a nil middleware is tolerated.
func TestInstrument_NilMiddleware(t *testing.T) {
	s := Instrument(&fakeScheduler{}, nil)
	if _, err := s.GetAppointment(context.Background(), "a1"); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}
