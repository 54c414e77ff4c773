package scheduling

import (
	"context"
	"time"
)

// Slot is a bookable window published by the remote schedule.
type Slot struct {
	ID              string
	Start           time.Time
	End             time.Time
	Status          string
	DurationMinutes int
	ScheduleID      string
	PractitionerID  string
}

// Appointment is the gateway's view of a remote Appointment resource. The
// remote system is the system of record; values are never cached.
type Appointment struct {
	ID             string
	Start          time.Time
	End            time.Time
	Status         string
	PractitionerID string
	PatientID      string
	TypeCode       string
	Description    string
}

// DurationMinutes is the appointment length in whole minutes.
func (a Appointment) DurationMinutes() int {
	return DurationMinutes(a.Start, a.End)
}

// AppointmentRequest describes an appointment to create.
type AppointmentRequest struct {
	PatientID      string
	PractitionerID string
	Start          time.Time

	// DurationMinutes defaults to the gateway's DefaultDurationMinutes.
	DurationMinutes int

	// Type is free text such as "routine", "follow-up" or "urgent".
	// Unknown values are treated as routine.
	Type string

	Description string
}

// AppointmentChanges lists the fields to change. Nil fields are kept.
type AppointmentChanges struct {
	Start           *time.Time
	DurationMinutes *int
	PractitionerID  *string
	Status          *string
	Type            *string
	Description     *string
}

// ConflictResult is the outcome of an availability check.
type ConflictResult struct {
	Available bool

	// Conflicts holds one description per overlapping appointment.
	Conflicts []string

	// Suggestions holds nearby free slots, nearest first.
	Suggestions []Slot
}

// Scheduler is the public scheduling surface. Gateway implements it; callers
// can decorate it (see the observe package).
type Scheduler interface {
	AvailableSlots(ctx context.Context, start, end time.Time, practitionerID string) ([]Slot, error)
	CheckSlotAvailability(ctx context.Context, start time.Time, practitionerID string, durationMinutes int) (*ConflictResult, error)
	CreateAppointment(ctx context.Context, req AppointmentRequest) (*Appointment, error)
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id string, changes AppointmentChanges) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id, reason string) error
}

// TokenSource supplies bearer tokens. *auth.Authority implements it.
type TokenSource interface {
	// EnsureValidToken returns a token that is not about to expire.
	EnsureValidToken(ctx context.Context) (string, error)

	// Renew replaces a token the remote side rejected.
	Renew(ctx context.Context, stale string) (string, error)
}
