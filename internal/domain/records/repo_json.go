package records

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Data file names expected under the data directory.
const (
	practicesFile    = "practice.json"
	patientsFile     = "patients.json"
	appointmentsFile = "appointments.json"
	intakesFile      = "intakes.json"
	eventsFile       = "events.json"
)

// jsonStore serves records loaded once from JSON files and indexed in memory.
type jsonStore struct {
	practices     map[string]*Practice
	patients      map[string]*Patient
	appointments  map[string]*Appointment
	intakes       map[string]*Intake
	intakesByAppt map[string]*Intake
	events        []*Event
}

// NewJSONStore loads all record collections from dir and the event stream
// from eventsPath (defaults to events.json inside dir when empty).
func NewJSONStore(dir, eventsPath string) (Store, error) {
	s := &jsonStore{
		practices:     make(map[string]*Practice),
		patients:      make(map[string]*Patient),
		appointments:  make(map[string]*Appointment),
		intakes:       make(map[string]*Intake),
		intakesByAppt: make(map[string]*Intake),
	}

	var practices []*Practice
	if err := readJSONFile(filepath.Join(dir, practicesFile), &practices); err != nil {
		return nil, err
	}
	for _, p := range practices {
		s.practices[p.ID] = p
	}

	var patients []*Patient
	if err := readJSONFile(filepath.Join(dir, patientsFile), &patients); err != nil {
		return nil, err
	}
	for _, p := range patients {
		s.patients[p.ID] = p
	}

	var appointments []*Appointment
	if err := readJSONFile(filepath.Join(dir, appointmentsFile), &appointments); err != nil {
		return nil, err
	}
	for _, a := range appointments {
		s.appointments[a.ID] = a
	}

	var intakes []*Intake
	if err := readJSONFile(filepath.Join(dir, intakesFile), &intakes); err != nil {
		return nil, err
	}
	for _, i := range intakes {
		if i.ID != "" {
			s.intakes[i.ID] = i
		}
		if i.AppointmentID != "" {
			s.intakesByAppt[i.AppointmentID] = i
		}
	}

	if eventsPath == "" {
		eventsPath = filepath.Join(dir, eventsFile)
	}
	if err := readJSONFile(eventsPath, &s.events); err != nil {
		return nil, err
	}

	return s, nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (s *jsonStore) GetPractice(_ context.Context, id string) (*Practice, error) {
	return s.practices[id], nil
}

func (s *jsonStore) GetPatient(_ context.Context, id string) (*Patient, error) {
	return s.patients[id], nil
}

func (s *jsonStore) GetAppointment(_ context.Context, id string) (*Appointment, error) {
	return s.appointments[id], nil
}

func (s *jsonStore) GetIntake(_ context.Context, id string) (*Intake, error) {
	return s.intakes[id], nil
}

func (s *jsonStore) GetIntakeByAppointment(_ context.Context, appointmentID string) (*Intake, error) {
	return s.intakesByAppt[appointmentID], nil
}

func (s *jsonStore) Events(_ context.Context) ([]*Event, error) {
	return s.events, nil
}
