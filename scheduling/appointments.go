package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonwraymond/schedgate/fhir"
	"github.com/jonwraymond/schedgate/transport"
)

// DefaultCancelReason is sent by the cancellation fallback when the caller
// gives no reason.
const DefaultCancelReason = "Cancelled via scheduling gateway"

// CreateAppointment books a new appointment. Conflict detection runs first,
// then the business rules; only then is the appointment submitted, with
// status "proposed". A conflict reported by the EHR on commit is returned as
// a *ConflictError with Remote set.
func (g *Gateway) CreateAppointment(ctx context.Context, req AppointmentRequest) (*Appointment, error) {
	if req.PatientID == "" {
		return nil, invalid("patient id is required")
	}
	if req.PractitionerID == "" {
		return nil, invalid("practitioner id is required")
	}
	if req.Start.IsZero() {
		return nil, invalid("start is required")
	}
	minutes := req.DurationMinutes
	if minutes == 0 {
		minutes = g.config.DefaultDurationMinutes
	}
	if minutes < 0 {
		return nil, invalid("duration must be positive, got %d minutes", minutes)
	}
	start := req.Start
	end := start.Add(time.Duration(minutes) * time.Minute)
	apptType := ParseAppointmentType(req.Type)

	if err := g.checkConflicts(ctx, req.PractitionerID, start, end, ""); err != nil {
		return nil, err
	}
	if err := g.config.Rules.Validate(apptType, start, end, g.config.Now()); err != nil {
		return nil, err
	}

	resource := fhir.Appointment{
		ResourceType:    "Appointment",
		Status:          fhir.AppointmentProposed,
		AppointmentType: apptType.Concept(),
		Description:     req.Description,
		Start:           &start,
		End:             &end,
		MinutesDuration: minutes,
		Participant: []fhir.AppointmentParticipant{
			participant("Patient", req.PatientID),
			participant("Practitioner", req.PractitionerID),
		},
	}

	resp, err := g.call(ctx, g.fhir, transport.Request{
		Method: http.MethodPost,
		Path:   "Appointment",
		JSON:   resource,
	})
	if err != nil {
		return nil, commitError("create appointment", err)
	}

	created, err := decodeAppointment(resp)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	if created == nil {
		created = &resource
		created.ID = locationID(resp)
	}
	if created.ID == "" {
		return nil, errors.New("create appointment: EHR returned no appointment id")
	}
	return fromFHIRAppointment(created), nil
}

// GetAppointment reads an appointment from the EHR.
func (g *Gateway) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	resource, _, err := g.readAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromFHIRAppointment(resource), nil
}

func (g *Gateway) readAppointment(ctx context.Context, id string) (*fhir.Appointment, map[string]json.RawMessage, error) {
	if err := validID(id); err != nil {
		return nil, nil, err
	}

	resp, err := g.call(ctx, g.fhir, transport.Request{
		Method: http.MethodGet,
		Path:   "Appointment/" + id,
	})
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, nil, fmt.Errorf("get appointment %s: %w", id, err)
	}

	var resource fhir.Appointment
	if err := resp.DecodeJSON(&resource); err != nil {
		return nil, nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	var raw map[string]json.RawMessage
	if err := resp.DecodeJSON(&raw); err != nil {
		return nil, nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	if resource.ID == "" {
		resource.ID = id
	}
	return &resource, raw, nil
}

// UpdateAppointment applies changes to an existing appointment. When the
// window or practitioner changes, conflict detection (ignoring this
// appointment) and the business rules run against the new values before
// anything is written. Fields the gateway does not model are preserved.
func (g *Gateway) UpdateAppointment(ctx context.Context, id string, changes AppointmentChanges) (*Appointment, error) {
	if changes.Status != nil && !validStatuses[*changes.Status] {
		return nil, invalid("unknown appointment status %q", *changes.Status)
	}
	if changes.DurationMinutes != nil && *changes.DurationMinutes <= 0 {
		return nil, invalid("duration must be positive, got %d minutes", *changes.DurationMinutes)
	}
	if changes.PractitionerID != nil && *changes.PractitionerID == "" {
		return nil, invalid("practitioner id cannot be cleared")
	}

	resource, raw, err := g.readAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	current := fromFHIRAppointment(resource)

	start, end := current.Start, current.End
	if changes.Start != nil {
		start = *changes.Start
		end = start.Add(current.End.Sub(current.Start))
	}
	if changes.DurationMinutes != nil {
		end = start.Add(time.Duration(*changes.DurationMinutes) * time.Minute)
	}
	practitionerID := current.PractitionerID
	if changes.PractitionerID != nil {
		practitionerID = *changes.PractitionerID
	}
	apptType := TypeFromCode(current.TypeCode)
	if changes.Type != nil {
		apptType = ParseAppointmentType(*changes.Type)
	}

	rescheduled := !start.Equal(current.Start) || !end.Equal(current.End) || practitionerID != current.PractitionerID
	if rescheduled {
		if start.IsZero() || !end.After(start) {
			return nil, invalid("appointment %s has no valid window to reschedule", id)
		}
		if practitionerID == "" {
			return nil, invalid("appointment %s has no practitioner", id)
		}
		if err := g.checkConflicts(ctx, practitionerID, start, end, id); err != nil {
			return nil, err
		}
		if err := g.config.Rules.Validate(apptType, start, end, g.config.Now()); err != nil {
			return nil, err
		}
	}

	if rescheduled {
		resource.Start, resource.End = &start, &end
		resource.MinutesDuration = DurationMinutes(start, end)
	}
	if practitionerID != current.PractitionerID {
		resource.Participant = replacePractitioner(resource.Participant, practitionerID)
	}
	if changes.Status != nil {
		resource.Status = *changes.Status
	}
	if changes.Type != nil {
		resource.AppointmentType = apptType.Concept()
	}
	if changes.Description != nil {
		resource.Description = *changes.Description
	}

	body, err := mergeAppointment(raw, resource)
	if err != nil {
		return nil, fmt.Errorf("update appointment %s: %w", id, err)
	}

	resp, err := g.call(ctx, g.fhir, transport.Request{
		Method: http.MethodPut,
		Path:   "Appointment/" + id,
		JSON:   body,
	})
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, commitError("update appointment "+id, err)
	}

	updated, err := decodeAppointment(resp)
	if err != nil {
		return nil, fmt.Errorf("update appointment %s: %w", id, err)
	}
	if updated == nil {
		updated = resource
	}
	if updated.ID == "" {
		updated.ID = id
	}
	return fromFHIRAppointment(updated), nil
}

// DeleteAppointment removes an appointment. If the primary delete fails for
// any reason other than the appointment not existing, the appointment is
// cancelled through the standard API instead, and success of that write is
// success of the delete.
func (g *Gateway) DeleteAppointment(ctx context.Context, id, reason string) error {
	if err := validID(id); err != nil {
		return err
	}

	_, err := g.call(ctx, g.fhir, transport.Request{
		Method: http.MethodDelete,
		Path:   "Appointment/" + id,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, transport.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if ctx.Err() != nil {
		return err
	}

	if reason == "" {
		reason = DefaultCancelReason
	}
	_, ferr := g.call(ctx, g.standard, transport.Request{
		Method: http.MethodPut,
		Path:   "appointment/" + id,
		JSON: map[string]string{
			"status": fhir.AppointmentCancelled,
			"reason": reason,
		},
	})
	if ferr != nil {
		return fmt.Errorf("delete appointment %s: %w", id, errors.Join(err, fmt.Errorf("cancellation fallback: %w", ferr)))
	}
	return nil
}

// commitError maps a rejected create or update. 409 and 412 mean the EHR saw
// a booking the local check missed.
func commitError(op string, err error) error {
	var se *transport.StatusError
	if errors.As(err, &se) && (se.StatusCode == http.StatusConflict || se.StatusCode == http.StatusPreconditionFailed) {
		ce := &ConflictError{Remote: true}
		if d := transport.Diagnostics(se.Body); d != "" {
			ce.Conflicts = []string{d}
		}
		return ce
	}
	return fmt.Errorf("%s: %w", op, err)
}

// decodeAppointment reads an Appointment from a response body. It returns
// nil when the body is empty (e.g. a 201 with only a Location header).
func decodeAppointment(resp *transport.Response) (*fhir.Appointment, error) {
	if resp == nil || len(strings.TrimSpace(string(resp.Body))) == 0 {
		return nil, nil
	}
	var a fhir.Appointment
	if err := resp.DecodeJSON(&a); err != nil {
		return nil, err
	}
	if a.ResourceType != "" && a.ResourceType != "Appointment" {
		return nil, nil
	}
	return &a, nil
}

func locationID(resp *transport.Response) string {
	if resp == nil {
		return ""
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		loc = resp.Header.Get("Content-Location")
	}
	id, _ := fhir.ReferenceID(loc, "Appointment")
	return id
}

// mergeAppointment overlays the modelled fields onto the resource as read, so
// fields the gateway does not model survive the PUT.
func mergeAppointment(raw map[string]json.RawMessage, a *fhir.Appointment) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var modelled map[string]json.RawMessage
	if err := json.Unmarshal(data, &modelled); err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(raw)+len(modelled))
	for k, v := range raw {
		out[k] = v
	}
	for _, k := range modelledKeys {
		if _, ok := modelled[k]; !ok {
			delete(out, k)
		}
	}
	for k, v := range modelled {
		out[k] = v
	}
	return out, nil
}

// modelledKeys are the optional Appointment fields fhir.Appointment carries.
// A field cleared in the model is removed from the merged resource.
var modelledKeys = []string{
	"cancelationReason", "appointmentType", "description", "start", "end",
	"minutesDuration", "comment", "patientInstruction",
}

func replacePractitioner(ps []fhir.AppointmentParticipant, practitionerID string) []fhir.AppointmentParticipant {
	out := make([]fhir.AppointmentParticipant, 0, len(ps)+1)
	for _, p := range ps {
		if p.Actor != nil {
			if _, ok := fhir.ReferenceID(p.Actor.Reference, "Practitioner"); ok {
				continue
			}
		}
		out = append(out, p)
	}
	return append(out, participant("Practitioner", practitionerID))
}

func validID(id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, "/?#") {
		return invalid("appointment id %q is invalid", id)
	}
	return nil
}
