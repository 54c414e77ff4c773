package scheduling

import (
	"time"

	"github.com/jonwraymond/schedgate/fhir"
)

// DurationMinutes is the whole minutes between start and end, never negative.
func DurationMinutes(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}

// PractitionerID returns the id of the first practitioner reference in refs,
// or "" if there is none.
func PractitionerID(refs []string) string {
	return firstOfType(refs, "Practitioner")
}

func firstOfType(refs []string, resourceType string) string {
	for _, ref := range refs {
		if id, ok := fhir.ReferenceID(ref, resourceType); ok {
			return id
		}
	}
	return ""
}

func fromFHIRAppointment(a *fhir.Appointment) *Appointment {
	refs := a.ActorReferences()
	out := &Appointment{
		ID:             a.ID,
		Status:         a.Status,
		PractitionerID: PractitionerID(refs),
		PatientID:      firstOfType(refs, "Patient"),
		TypeCode:       a.AppointmentType.Code(),
		Description:    a.Description,
	}
	if a.Start != nil {
		out.Start = *a.Start
	}
	if a.End != nil {
		out.End = *a.End
	}
	return out
}

func fromFHIRSlot(s fhir.Slot, practitioners map[string]string) Slot {
	scheduleID, _ := fhir.ReferenceID(s.Schedule.Reference, "Schedule")
	return Slot{
		ID:              s.ID,
		Start:           s.Start,
		End:             s.End,
		Status:          s.Status,
		DurationMinutes: DurationMinutes(s.Start, s.End),
		ScheduleID:      scheduleID,
		PractitionerID:  practitioners[scheduleID],
	}
}

func participant(resourceType, id string) fhir.AppointmentParticipant {
	return fhir.AppointmentParticipant{
		Actor:    &fhir.Reference{Reference: fhir.FormatReference(resourceType, id)},
		Required: "required",
		Status:   "needs-action",
	}
}

// inactive statuses never block a slot.
func inactive(status string) bool {
	switch status {
	case fhir.AppointmentCancelled, fhir.AppointmentNoShow, fhir.AppointmentEnteredInError:
		return true
	}
	return false
}

var validStatuses = map[string]bool{
	fhir.AppointmentProposed:       true,
	fhir.AppointmentPending:        true,
	fhir.AppointmentBooked:         true,
	fhir.AppointmentArrived:        true,
	fhir.AppointmentFulfilled:      true,
	fhir.AppointmentCancelled:      true,
	fhir.AppointmentNoShow:         true,
	fhir.AppointmentEnteredInError: true,
	"checked-in":                   true,
	"waitlist":                     true,
}
