// Package fhir holds the FHIR R4 JSON shapes exchanged with the remote EHR:
// Bundle, Appointment, Slot, Schedule and OperationOutcome, plus reference
// helpers.
package fhir
