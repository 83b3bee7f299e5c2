package rules

import "strings"

// Resolve looks up a dot-separated path against the evaluation context. The
// leading segment selects one of the well-known roots (event, patient,
// appointment, practice, intake); the remainder traverses that record's
// known fields, except event.payload.* which descends generically into the
// free-form payload. The second return is false when any segment is missing
// or the root record is absent — absence is never an error, and it is
// distinct from a present nil/false value.
func Resolve(path string, ec *EvalContext) (any, bool) {
	root, rest, _ := strings.Cut(path, ".")
	switch root {
	case "event":
		return resolveEvent(rest, ec)
	case "patient":
		return resolvePatient(rest, ec)
	case "appointment":
		return resolveAppointment(rest, ec)
	case "practice":
		return resolvePractice(rest, ec)
	case "intake":
		return resolveIntake(rest, ec)
	}
	return nil, false
}

func resolveEvent(rest string, ec *EvalContext) (any, bool) {
	if ec.Event == nil {
		return nil, false
	}
	switch rest {
	case "type":
		return ec.Event.Type, true
	case "occurred_at":
		return ec.Event.OccurredAt, true
	case "payload":
		if ec.Event.Payload == nil {
			return nil, false
		}
		return ec.Event.Payload, true
	}
	if key, ok := strings.CutPrefix(rest, "payload."); ok {
		return deepGet(ec.Event.Payload, key)
	}
	return nil, false
}

func resolvePatient(rest string, ec *EvalContext) (any, bool) {
	p := ec.Patient
	if p == nil {
		return nil, false
	}
	switch rest {
	case "id":
		return p.ID, true
	case "first_name":
		return p.FirstName, true
	case "last_name":
		return p.LastName, true
	case "name":
		return p.FullName(), true
	case "phone":
		return p.Phone, true
	case "email":
		return p.Email, true
	case "practice_id":
		return p.PracticeID, true
	case "language":
		return p.Language, true
	case "dnc":
		return p.DNC, true
	case "tags":
		return p.Tags, true
	case "comm_prefs.sms":
		return p.CommPrefs.SMS, true
	case "comm_prefs.email":
		return p.CommPrefs.Email, true
	case "comm_prefs.call":
		return p.CommPrefs.Call, true
	}
	return nil, false
}

func resolveAppointment(rest string, ec *EvalContext) (any, bool) {
	a := ec.Appointment
	if a == nil {
		return nil, false
	}
	switch rest {
	case "id":
		return a.ID, true
	case "patient_id":
		return a.PatientID, true
	case "practice_id":
		return a.PracticeID, true
	case "start_time":
		return a.StartTime, true
	case "status":
		return a.Status, true
	case "type":
		return a.Type, true
	case "no_show_risk":
		return a.NoShowRisk, true
	}
	return nil, false
}

func resolvePractice(rest string, ec *EvalContext) (any, bool) {
	p := ec.Practice
	if p == nil {
		return nil, false
	}
	switch rest {
	case "id":
		return p.ID, true
	case "name":
		return p.Name, true
	case "timezone":
		return p.Timezone, true
	case "domain":
		return p.Domain, true
	case "reply_to_email":
		return p.ReplyToEmail, true
	case "default_sender_phone":
		return p.DefaultSenderPhone, true
	}
	return nil, false
}

func resolveIntake(rest string, ec *EvalContext) (any, bool) {
	i := ec.Intake
	if i == nil {
		return nil, false
	}
	switch rest {
	case "id":
		return i.ID, true
	case "patient_id":
		return i.PatientID, true
	case "appointment_id":
		return i.AppointmentID, true
	case "status":
		return i.Status, true
	case "link":
		return i.Link, true
	}
	return nil, false
}

// deepGet walks a dot-separated key path through nested maps. The second
// return distinguishes "present but nil" from "missing".
func deepGet(m map[string]any, keyPath string) (any, bool) {
	if m == nil {
		return nil, false
	}
	var cur any = m
	for _, part := range strings.Split(keyPath, ".") {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
