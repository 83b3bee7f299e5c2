package records

import "context"

// Store is the read-only record source the rules engine evaluates against.
// Lookups return (nil, nil) when no record exists under the id; only
// infrastructure failures surface as errors. Records are immutable for the
// lifetime of a run and may be shared across evaluations without locking.
type Store interface {
	GetPractice(ctx context.Context, id string) (*Practice, error)
	GetPatient(ctx context.Context, id string) (*Patient, error)
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	GetIntake(ctx context.Context, id string) (*Intake, error)
	// GetIntakeByAppointment resolves the intake attached to an appointment.
	GetIntakeByAppointment(ctx context.Context, appointmentID string) (*Intake, error)
	// Events returns the event stream in source order.
	Events(ctx context.Context) ([]*Event, error)
}
