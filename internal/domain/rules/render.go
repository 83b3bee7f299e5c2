package rules

import (
	"strings"
	"time"
)

// RenderedMessage is the final text produced for one channel.
type RenderedMessage struct {
	Channel Channel `json:"channel"`
	To      string  `json:"to"`
	Subject string  `json:"subject,omitempty"`
	Body    string  `json:"body"`
}

// Built-in fallbacks used when a rule declares an action without a template
// for that channel.
var defaultTemplates = map[Channel]Template{
	ChannelSMS:   {Body: "Hi {{patient_name}}"},
	ChannelEmail: {},
	ChannelCall:  {Body: "Call {{patient_name}} about their appointment."},
}

// PlaceholderData builds the flattened substitution view over the context:
// a fixed set of convenience aliases, not arbitrary dotted paths. Aliases
// whose backing record is absent map to the empty string so a missing field
// never aborts a render.
func PlaceholderData(ec *EvalContext) map[string]string {
	data := map[string]string{
		"patient_name":       "",
		"patient_first_name": "",
		"patient_phone":      "",
		"patient_email":      "",
		"patient_language":   "",
		"appointment_time":   "",
		"appointment_type":   "",
		"practice_name":      "",
		"practice_domain":    "",
		"reply_to_email":     "",
		"sender_phone":       "",
		"intake_link":        "",
		"event_type":         "",
	}
	if ec.Event != nil {
		data["event_type"] = ec.Event.Type
	}
	if p := ec.Patient; p != nil {
		data["patient_name"] = p.FullName()
		data["patient_first_name"] = p.FirstName
		data["patient_phone"] = p.Phone
		data["patient_email"] = p.Email
		data["patient_language"] = p.Language
	}
	if a := ec.Appointment; a != nil {
		data["appointment_time"] = a.StartTime
		data["appointment_type"] = a.Type
		if start, ok := ec.AppointmentStart(); ok {
			data["appointment_time"] = start.Format(time.RFC3339)
		}
	}
	if pr := ec.Practice; pr != nil {
		data["practice_name"] = pr.Name
		data["practice_domain"] = pr.Domain
		data["reply_to_email"] = pr.ReplyToEmail
		data["sender_phone"] = pr.DefaultSenderPhone
	}
	if i := ec.Intake; i != nil {
		data["intake_link"] = i.Link
	}
	return data
}

// Render substitutes the flattened context view into the channel's template
// and derives the recipient (phone for SMS/CALL, email address for EMAIL).
// Rendering is pure: it never mutates the context, and the same template and
// context always produce identical output.
func Render(rule *Rule, channel Channel, ec *EvalContext) RenderedMessage {
	tpl, ok := rule.Templates[channel]
	if !ok {
		tpl = defaultTemplates[channel]
	}
	data := PlaceholderData(ec)

	msg := RenderedMessage{
		Channel: channel,
		Subject: substitute(tpl.Subject, data),
		Body:    substitute(tpl.Body, data),
	}
	if p := ec.Patient; p != nil {
		if channel == ChannelEmail {
			msg.To = p.Email
		} else {
			msg.To = p.Phone
		}
	}
	return msg
}

// substitute replaces every known {{name}} placeholder. Placeholders not in
// the alias set render as empty strings rather than failing the message.
func substitute(tpl string, data map[string]string) string {
	if tpl == "" || !strings.Contains(tpl, "{{") {
		return tpl
	}
	out := tpl
	for k, v := range data {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return stripUnknownPlaceholders(out)
}

// stripUnknownPlaceholders removes any {{...}} token left after alias
// substitution so one unresolvable field cannot leak raw template syntax
// into an outbound message.
func stripUnknownPlaceholders(s string) string {
	for {
		open := strings.Index(s, "{{")
		if open < 0 {
			return s
		}
		end := strings.Index(s[open:], "}}")
		if end < 0 {
			return s
		}
		s = s[:open] + s[open+end+2:]
	}
}
