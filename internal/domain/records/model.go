package records

// CommPrefs holds a patient's per-channel outreach consent. Channels omitted
// in the source data unmarshal to false, which reads as "not opted in".
type CommPrefs struct {
	SMS   bool `json:"sms"`
	Email bool `json:"email"`
	Call  bool `json:"call"`
}

// Practice maps to an entry in practice.json (or the practice table).
type Practice struct {
	ID                 string `json:"id" db:"id"`
	Name               string `json:"name" db:"name"`
	Timezone           string `json:"timezone" db:"timezone"`
	Domain             string `json:"domain" db:"domain"`
	ReplyToEmail       string `json:"reply_to_email" db:"reply_to_email"`
	DefaultSenderPhone string `json:"default_sender_phone" db:"default_sender_phone"`
}

// Patient maps to an entry in patients.json (or the patient table).
type Patient struct {
	ID         string    `json:"id" db:"id"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	Phone      string    `json:"phone" db:"phone"`
	Email      string    `json:"email" db:"email"`
	PracticeID string    `json:"practice_id" db:"practice_id"`
	Language   string    `json:"language" db:"language"`
	DNC        bool      `json:"dnc" db:"dnc"`
	CommPrefs  CommPrefs `json:"comm_prefs"`
	Tags       []string  `json:"tags"`
}

// FullName joins first and last name, tolerating either being empty.
func (p *Patient) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// HasTag reports whether the patient carries the given tag.
func (p *Patient) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Appointment maps to an entry in appointments.json (or the appointment
// table). StartTime stays a string as loaded; callers parse it against the
// evaluation clock so a malformed timestamp degrades to a non-match instead
// of failing the load.
type Appointment struct {
	ID         string `json:"id" db:"id"`
	PatientID  string `json:"patient_id" db:"patient_id"`
	PracticeID string `json:"practice_id" db:"practice_id"`
	StartTime  string `json:"start_time" db:"start_time"`
	Status     string `json:"status" db:"status"`
	Type       string `json:"type" db:"type"`
	NoShowRisk string `json:"no_show_risk" db:"no_show_risk"`
}

// Intake statuses.
const (
	IntakeComplete   = "COMPLETE"
	IntakeIncomplete = "INCOMPLETE"
)

// Intake maps to an entry in intakes.json (or the intake table).
type Intake struct {
	ID            string `json:"id" db:"id"`
	PatientID     string `json:"patient_id" db:"patient_id"`
	AppointmentID string `json:"appointment_id" db:"appointment_id"`
	Status        string `json:"status" db:"status"`
	Link          string `json:"link" db:"link"`
}

// Event is one entry of the event stream. OccurredAt serves as "now" for the
// evaluation of this event. Payload is free-form and typically references a
// patient, appointment, or practice by id.
type Event struct {
	Type       string         `json:"type" db:"type"`
	OccurredAt string         `json:"occurred_at" db:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// PayloadString returns the payload value under key when it is a string.
func (e *Event) PayloadString(key string) (string, bool) {
	if e.Payload == nil {
		return "", false
	}
	s, ok := e.Payload[key].(string)
	return s, ok
}
