package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Channel is an outreach action channel.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
	ChannelCall  Channel = "CALL"
)

var validChannels = map[Channel]bool{
	ChannelSMS: true, ChannelEmail: true, ChannelCall: true,
}

// Combinator values for the conditions "logic" key.
const (
	LogicAll = "ALL"
	LogicAny = "ANY"
)

// Template is the message template for one channel. A plain string template
// populates Body only; the {subject, body} object form is Email-only.
type Template struct {
	Subject    string
	Body       string
	Structured bool
}

// UnmarshalJSON accepts either a bare string or a {subject, body} object.
func (t *Template) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Body = s
		t.Structured = false
		return nil
	}
	var obj struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("template must be a string or {subject, body} object")
	}
	t.Subject = obj.Subject
	t.Body = obj.Body
	t.Structured = true
	return nil
}

// Rule is a caller-supplied, transient evaluation input. It is validated once
// at entry and never persisted or mutated afterwards.
type Rule struct {
	ID         string               `json:"id"`
	Conditions map[string]any       `json:"conditions"`
	Actions    []Channel            `json:"actions"`
	Templates  map[Channel]Template `json:"templates"`
}

// Logic returns the combinator for the rule's conditions, defaulting to ALL.
func (r *Rule) Logic() string {
	logic, ok := r.Conditions["logic"].(string)
	if !ok || logic == "" {
		return LogicAll
	}
	return strings.ToUpper(logic)
}

// ParseRule decodes and validates a rule from JSON.
func ParseRule(data []byte) (*Rule, error) {
	var raw struct {
		ID         string              `json:"id"`
		Conditions map[string]any      `json:"conditions"`
		Actions    []string            `json:"actions"`
		Templates  map[string]Template `json:"templates"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse rule: %w", err)
	}

	r := &Rule{
		ID:         raw.ID,
		Conditions: raw.Conditions,
	}
	// An empty list or map is well-formed; only a missing key is not.
	if raw.Actions != nil {
		r.Actions = make([]Channel, 0, len(raw.Actions))
		for _, a := range raw.Actions {
			r.Actions = append(r.Actions, Channel(strings.ToUpper(a)))
		}
	}
	if raw.Templates != nil {
		r.Templates = make(map[Channel]Template, len(raw.Templates))
		for ch, tpl := range raw.Templates {
			r.Templates[Channel(strings.ToUpper(ch))] = tpl
		}
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks structural well-formedness. Errors name the offending key
// so the caller can fix the rule; a failed validation aborts only this
// invocation.
func (r *Rule) Validate() error {
	if r.Conditions == nil {
		return fmt.Errorf("rule %s: conditions is required", r.ID)
	}
	if r.Actions == nil {
		return fmt.Errorf("rule %s: actions is required", r.ID)
	}
	if r.Templates == nil {
		return fmt.Errorf("rule %s: templates is required", r.ID)
	}
	if logic := r.Logic(); logic != LogicAll && logic != LogicAny {
		return fmt.Errorf("rule %s: logic must be %s or %s, got %q", r.ID, LogicAll, LogicAny, logic)
	}
	for _, a := range r.Actions {
		if !validChannels[a] {
			return fmt.Errorf("rule %s: unknown action channel %q", r.ID, string(a))
		}
	}
	for ch, tpl := range r.Templates {
		if tpl.Structured && ch != ChannelEmail {
			return fmt.Errorf("rule %s: templates.%s: subject/body form is only valid for EMAIL", r.ID, string(ch))
		}
	}
	return nil
}
