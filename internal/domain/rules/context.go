package rules

import (
	"context"
	"time"

	"github.com/careloop/careloop/internal/domain/records"
)

// EvalContext is the joined record set for evaluating one event. Any record
// pointer may be nil when the event payload does not reference it or the
// reference dangles; predicates and rendering treat nil as absent. The
// context is built fresh per event and never mutated afterwards.
type EvalContext struct {
	Event       *records.Event
	Patient     *records.Patient
	Appointment *records.Appointment
	Practice    *records.Practice
	Intake      *records.Intake

	// Now is the event's occurred_at, parsed. NowErr records a malformed
	// timestamp; the event then degrades to a non-match instead of aborting
	// the run.
	Now    time.Time
	NowErr error
}

// BuildContext fans out from the event payload to the four record kinds.
// An appointment_id reference wins for patient/practice resolution; direct
// patient_id / practice_id payload keys are the fallback, matching how
// events reference records in the data files.
func BuildContext(ctx context.Context, store records.Store, event *records.Event) (*EvalContext, error) {
	ec := &EvalContext{Event: event}
	ec.Now, ec.NowErr = parseISO(event.OccurredAt)

	if apptID, ok := event.PayloadString("appointment_id"); ok {
		appt, err := store.GetAppointment(ctx, apptID)
		if err != nil {
			return nil, err
		}
		ec.Appointment = appt
	}

	switch {
	case ec.Appointment != nil:
		patient, err := store.GetPatient(ctx, ec.Appointment.PatientID)
		if err != nil {
			return nil, err
		}
		ec.Patient = patient
	default:
		if patientID, ok := event.PayloadString("patient_id"); ok {
			patient, err := store.GetPatient(ctx, patientID)
			if err != nil {
				return nil, err
			}
			ec.Patient = patient
		}
	}

	switch {
	case ec.Appointment != nil:
		practice, err := store.GetPractice(ctx, ec.Appointment.PracticeID)
		if err != nil {
			return nil, err
		}
		ec.Practice = practice
	default:
		if practiceID, ok := event.PayloadString("practice_id"); ok {
			practice, err := store.GetPractice(ctx, practiceID)
			if err != nil {
				return nil, err
			}
			ec.Practice = practice
		}
	}

	if ec.Appointment != nil {
		intake, err := store.GetIntakeByAppointment(ctx, ec.Appointment.ID)
		if err != nil {
			return nil, err
		}
		ec.Intake = intake
	} else if intakeID, ok := event.PayloadString("intake_id"); ok {
		intake, err := store.GetIntake(ctx, intakeID)
		if err != nil {
			return nil, err
		}
		ec.Intake = intake
	}

	return ec, nil
}

// parseISO parses an ISO 8601 timestamp with timezone offset, accepting the
// trailing-Z form. All time arithmetic happens on the returned instant.
func parseISO(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// AppointmentStart parses the appointment's start_time. ok is false when the
// appointment is absent or its timestamp is malformed.
func (ec *EvalContext) AppointmentStart() (time.Time, bool) {
	if ec.Appointment == nil {
		return time.Time{}, false
	}
	t, err := parseISO(ec.Appointment.StartTime)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
