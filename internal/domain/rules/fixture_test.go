package rules

import (
	"context"

	"github.com/careloop/careloop/internal/domain/records"
)

// Fixture records shared by the package tests: an event 24 hours ahead of an
// appointment whose patient has an incomplete intake and opts into SMS and
// email.
func testPatient() *records.Patient {
	return &records.Patient{
		ID:         "pt_0001",
		FirstName:  "Maya",
		LastName:   "Nguyen",
		Phone:      "+14155552001",
		Email:      "maya.nguyen@example.com",
		PracticeID: "prac_001",
		Language:   "en",
		CommPrefs:  records.CommPrefs{SMS: true, Email: true},
		Tags:       []string{"post_op"},
	}
}

func testAppointment() *records.Appointment {
	return &records.Appointment{
		ID:         "appt_001",
		PatientID:  "pt_0001",
		PracticeID: "prac_001",
		StartTime:  "2026-03-02T09:00:00Z",
		Status:     "scheduled",
		Type:       "Ortho consult",
		NoShowRisk: "high",
	}
}

func testPractice() *records.Practice {
	return &records.Practice{
		ID:                 "prac_001",
		Name:               "BayCare Ortho Group",
		Timezone:           "America/Los_Angeles",
		Domain:             "baycare-ortho.com",
		ReplyToEmail:       "noreply@baycare-ortho.com",
		DefaultSenderPhone: "+14155551001",
	}
}

func testIntake() *records.Intake {
	return &records.Intake{
		ID:            "int_001",
		PatientID:     "pt_0001",
		AppointmentID: "appt_001",
		Status:        records.IntakeIncomplete,
		Link:          "https://intake.example.com/int_001",
	}
}

func testEvent() *records.Event {
	return &records.Event{
		Type:       "schedule.tick",
		OccurredAt: "2026-03-01T09:00:00Z",
		Payload:    map[string]any{"appointment_id": "appt_001"},
	}
}

func newTestContext() *EvalContext {
	event := testEvent()
	now, err := parseISO(event.OccurredAt)
	return &EvalContext{
		Event:       event,
		Patient:     testPatient(),
		Appointment: testAppointment(),
		Practice:    testPractice(),
		Intake:      testIntake(),
		Now:         now,
		NowErr:      err,
	}
}

// memStore is an in-memory Store test double.
type memStore struct {
	practices    map[string]*records.Practice
	patients     map[string]*records.Patient
	appointments map[string]*records.Appointment
	intakes      map[string]*records.Intake
	events       []*records.Event
}

func newMemStore() *memStore {
	return &memStore{
		practices:    map[string]*records.Practice{"prac_001": testPractice()},
		patients:     map[string]*records.Patient{"pt_0001": testPatient()},
		appointments: map[string]*records.Appointment{"appt_001": testAppointment()},
		intakes:      map[string]*records.Intake{"appt_001": testIntake()},
	}
}

func (s *memStore) GetPractice(_ context.Context, id string) (*records.Practice, error) {
	return s.practices[id], nil
}

func (s *memStore) GetPatient(_ context.Context, id string) (*records.Patient, error) {
	return s.patients[id], nil
}

func (s *memStore) GetAppointment(_ context.Context, id string) (*records.Appointment, error) {
	return s.appointments[id], nil
}

func (s *memStore) GetIntake(_ context.Context, id string) (*records.Intake, error) {
	for _, i := range s.intakes {
		if i.ID == id {
			return i, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetIntakeByAppointment(_ context.Context, appointmentID string) (*records.Intake, error) {
	return s.intakes[appointmentID], nil
}

func (s *memStore) Events(_ context.Context) ([]*records.Event, error) {
	return s.events, nil
}
