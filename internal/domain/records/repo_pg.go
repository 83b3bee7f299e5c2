package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgStore serves records from PostgreSQL. Row shapes mirror the JSON data
// files; see migrations/0001_init.sql.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) GetPractice(ctx context.Context, id string) (*Practice, error) {
	var p Practice
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, timezone, domain, reply_to_email, default_sender_phone
		FROM practice WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Timezone, &p.Domain, &p.ReplyToEmail, &p.DefaultSenderPhone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get practice %s: %w", id, err)
	}
	return &p, nil
}

func (s *pgStore) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var p Patient
	err := s.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, phone, email, practice_id, language,
			dnc, pref_sms, pref_email, pref_call, tags
		FROM patient WHERE id = $1`, id).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.Phone, &p.Email, &p.PracticeID,
			&p.Language, &p.DNC, &p.CommPrefs.SMS, &p.CommPrefs.Email, &p.CommPrefs.Call, &p.Tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return &p, nil
}

func (s *pgStore) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	var a Appointment
	err := s.pool.QueryRow(ctx, `
		SELECT id, patient_id, practice_id, start_time, status, type, no_show_risk
		FROM appointment WHERE id = $1`, id).
		Scan(&a.ID, &a.PatientID, &a.PracticeID, &a.StartTime, &a.Status, &a.Type, &a.NoShowRisk)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return &a, nil
}

const intakeCols = `id, patient_id, appointment_id, status, link`

func scanIntake(row pgx.Row) (*Intake, error) {
	var i Intake
	err := row.Scan(&i.ID, &i.PatientID, &i.AppointmentID, &i.Status, &i.Link)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (s *pgStore) GetIntake(ctx context.Context, id string) (*Intake, error) {
	i, err := scanIntake(s.pool.QueryRow(ctx, `SELECT `+intakeCols+` FROM intake WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get intake %s: %w", id, err)
	}
	return i, nil
}

func (s *pgStore) GetIntakeByAppointment(ctx context.Context, appointmentID string) (*Intake, error) {
	i, err := scanIntake(s.pool.QueryRow(ctx,
		`SELECT `+intakeCols+` FROM intake WHERE appointment_id = $1`, appointmentID))
	if err != nil {
		return nil, fmt.Errorf("get intake for appointment %s: %w", appointmentID, err)
	}
	return i, nil
}

func (s *pgStore) Events(ctx context.Context) ([]*Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT type, occurred_at, payload FROM event ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var payload []byte
		if err := rows.Scan(&e.Type, &e.OccurredAt, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("parse event payload: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
