package fhir

import "time"

// Appointment statuses.
const (
	AppointmentProposed       = "proposed"
	AppointmentPending        = "pending"
	AppointmentBooked         = "booked"
	AppointmentArrived        = "arrived"
	AppointmentFulfilled      = "fulfilled"
	AppointmentCancelled      = "cancelled"
	AppointmentNoShow         = "noshow"
	AppointmentEnteredInError = "entered-in-error"
)

// Slot statuses.
const (
	SlotFree = "free"
	SlotBusy = "busy"
)

// AppointmentTypeSystem is the HL7 v2 table 0276 code system.
const AppointmentTypeSystem = "http://terminology.hl7.org/CodeSystem/v2-0276"

// Appointment is the FHIR R4 Appointment resource, reduced to what the
// scheduling gateway reads and writes.
type Appointment struct {
	ResourceType       string                   `json:"resourceType"`
	ID                 string                   `json:"id,omitempty"`
	Status             string                   `json:"status"`
	CancelationReason  *CodeableConcept         `json:"cancelationReason,omitempty"`
	AppointmentType    *CodeableConcept         `json:"appointmentType,omitempty"`
	Description        string                   `json:"description,omitempty"`
	Start              *time.Time               `json:"start,omitempty"`
	End                *time.Time               `json:"end,omitempty"`
	MinutesDuration    int                      `json:"minutesDuration,omitempty"`
	Comment            string                   `json:"comment,omitempty"`
	PatientInstruction string                   `json:"patientInstruction,omitempty"`
	Participant        []AppointmentParticipant `json:"participant"`
}

type AppointmentParticipant struct {
	Actor    *Reference `json:"actor,omitempty"`
	Required string     `json:"required,omitempty"`
	Status   string     `json:"status"`
}

// ActorReferences lists the participant actor references in order.
func (a *Appointment) ActorReferences() []string {
	refs := make([]string, 0, len(a.Participant))
	for _, p := range a.Participant {
		if p.Actor != nil && p.Actor.Reference != "" {
			refs = append(refs, p.Actor.Reference)
		}
	}
	return refs
}

// Slot is the FHIR R4 Slot resource.
type Slot struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id,omitempty"`
	ServiceType  []CodeableConcept `json:"serviceType,omitempty"`
	Schedule     Reference         `json:"schedule"`
	Status       string            `json:"status"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	Comment      string            `json:"comment,omitempty"`
}

// Schedule is the FHIR R4 Schedule resource.
type Schedule struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id,omitempty"`
	Active       *bool       `json:"active,omitempty"`
	Actor        []Reference `json:"actor"`
	Comment      string      `json:"comment,omitempty"`
}
