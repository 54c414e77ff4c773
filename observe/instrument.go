package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/schedgate/scheduling"
)

// Operation names recorded by Instrument.
const (
	OpAvailableSlots        = "available_slots"
	OpCheckSlotAvailability = "check_slot_availability"
	OpCreateAppointment     = "create_appointment"
	OpGetAppointment        = "get_appointment"
	OpUpdateAppointment     = "update_appointment"
	OpDeleteAppointment     = "delete_appointment"
)

// Instrument returns a Scheduler that observes every call to s through m.
func Instrument(s scheduling.Scheduler, m *Middleware) scheduling.Scheduler {
	if m == nil {
		m = NewMiddleware(nil, nil, nil)
	}
	return &instrumented{next: s, mw: m}
}

type instrumented struct {
	next scheduling.Scheduler
	mw   *Middleware
}

func (i *instrumented) AvailableSlots(ctx context.Context, start, end time.Time, practitionerID string) ([]scheduling.Slot, error) {
	var out []scheduling.Slot
	err := i.mw.Observe(ctx, OpMeta{Name: OpAvailableSlots, PractitionerID: practitionerID}, func(ctx context.Context) error {
		var err error
		out, err = i.next.AvailableSlots(ctx, start, end, practitionerID)
		return err
	})
	return out, err
}

func (i *instrumented) CheckSlotAvailability(ctx context.Context, start time.Time, practitionerID string, durationMinutes int) (*scheduling.ConflictResult, error) {
	var out *scheduling.ConflictResult
	err := i.mw.Observe(ctx, OpMeta{Name: OpCheckSlotAvailability, PractitionerID: practitionerID}, func(ctx context.Context) error {
		var err error
		out, err = i.next.CheckSlotAvailability(ctx, start, practitionerID, durationMinutes)
		return err
	})
	return out, err
}

func (i *instrumented) CreateAppointment(ctx context.Context, req scheduling.AppointmentRequest) (*scheduling.Appointment, error) {
	var out *scheduling.Appointment
	meta := OpMeta{Name: OpCreateAppointment, PractitionerID: req.PractitionerID}
	err := i.mw.Observe(ctx, meta, func(ctx context.Context) error {
		var err error
		out, err = i.next.CreateAppointment(ctx, req)
		return err
	})
	return out, err
}

func (i *instrumented) GetAppointment(ctx context.Context, id string) (*scheduling.Appointment, error) {
	var out *scheduling.Appointment
	err := i.mw.Observe(ctx, OpMeta{Name: OpGetAppointment, AppointmentID: id}, func(ctx context.Context) error {
		var err error
		out, err = i.next.GetAppointment(ctx, id)
		return err
	})
	return out, err
}

func (i *instrumented) UpdateAppointment(ctx context.Context, id string, changes scheduling.AppointmentChanges) (*scheduling.Appointment, error) {
	var out *scheduling.Appointment
	meta := OpMeta{Name: OpUpdateAppointment, AppointmentID: id}
	if changes.PractitionerID != nil {
		meta.PractitionerID = *changes.PractitionerID
	}
	err := i.mw.Observe(ctx, meta, func(ctx context.Context) error {
		var err error
		out, err = i.next.UpdateAppointment(ctx, id, changes)
		return err
	})
	return out, err
}

func (i *instrumented) DeleteAppointment(ctx context.Context, id, reason string) error {
	return i.mw.Observe(ctx, OpMeta{Name: OpDeleteAppointment, AppointmentID: id}, func(ctx context.Context) error {
		return i.next.DeleteAppointment(ctx, id, reason)
	})
}

var _ scheduling.Scheduler = (*instrumented)(nil)
