package rules

import "reflect"

// predicate tests a single condition key against the evaluation context.
// Predicates are pure: adding a condition key means adding a table entry,
// the combinator below never changes.
type predicate func(expected any, ec *EvalContext) bool

var predicates = map[string]predicate{
	"event.type": func(expected any, ec *EvalContext) bool {
		return ec.Event != nil && looseEqual(ec.Event.Type, expected)
	},
	"appointment_hours_until": hoursUntil,
	"intake_status": func(expected any, ec *EvalContext) bool {
		return ec.Intake != nil && looseEqual(ec.Intake.Status, expected)
	},
	"appointment.status": func(expected any, ec *EvalContext) bool {
		return ec.Appointment != nil && looseEqual(ec.Appointment.Status, expected)
	},
	"appointment.no_show_risk": func(expected any, ec *EvalContext) bool {
		return ec.Appointment != nil && looseEqual(ec.Appointment.NoShowRisk, expected)
	},
	"patient.dnc": func(expected any, ec *EvalContext) bool {
		return ec.Patient != nil && ec.Patient.DNC == truthy(expected)
	},
	"patient.comm_prefs.sms": func(expected any, ec *EvalContext) bool {
		return ec.Patient != nil && ec.Patient.CommPrefs.SMS == truthy(expected)
	},
	"patient.comm_prefs.email": func(expected any, ec *EvalContext) bool {
		return ec.Patient != nil && ec.Patient.CommPrefs.Email == truthy(expected)
	},
	"patient.comm_prefs.call": func(expected any, ec *EvalContext) bool {
		return ec.Patient != nil && ec.Patient.CommPrefs.Call == truthy(expected)
	},
	"patient.tags.contains": func(expected any, ec *EvalContext) bool {
		tag, ok := expected.(string)
		return ok && ec.Patient != nil && ec.Patient.HasTag(tag)
	},
}

// hoursUntil holds iff the appointment starts within [0, expected] hours of
// the event's occurred_at. A past appointment (negative hours), an absent
// appointment, a malformed timestamp on either side, or a non-numeric
// expected value all fail the predicate.
func hoursUntil(expected any, ec *EvalContext) bool {
	target, ok := asFloat(expected)
	if !ok {
		return false
	}
	if ec.NowErr != nil {
		return false
	}
	start, ok := ec.AppointmentStart()
	if !ok {
		return false
	}
	hours := start.Sub(ec.Now).Hours()
	return hours >= 0 && hours <= target
}

// Matches evaluates the rule's condition block against the context. Every
// key except "logic" is a predicate; keys without a table entry fall back to
// a generic path lookup with equality (or numeric range) matching. With ALL
// logic an empty condition set matches trivially; with ANY it never does.
// Predicate evaluation order does not affect the result.
func Matches(rule *Rule, ec *EvalContext) bool {
	logic := rule.Logic()
	matched := 0
	total := 0
	for key, expected := range rule.Conditions {
		if key == "logic" {
			continue
		}
		total++
		if testCondition(key, expected, ec) {
			matched++
		}
	}
	if logic == LogicAny {
		return matched > 0
	}
	return matched == total
}

func testCondition(key string, expected any, ec *EvalContext) bool {
	if p, ok := predicates[key]; ok {
		return p(expected, ec)
	}
	actual, present := Resolve(key, ec)
	if !present {
		return false
	}
	if rng, ok := expected.(map[string]any); ok {
		return matchRange(actual, rng)
	}
	return looseEqual(actual, expected)
}

// matchRange compares a resolved numeric value against a {"<=": n, ">=": n}
// bound object. Unknown operator keys or a non-numeric value fail.
func matchRange(actual any, bounds map[string]any) bool {
	val, ok := asFloat(actual)
	if !ok {
		return false
	}
	for op, raw := range bounds {
		bound, ok := asFloat(raw)
		if !ok {
			return false
		}
		switch op {
		case "<=":
			if val > bound {
				return false
			}
		case ">=":
			if val < bound {
				return false
			}
		default:
			return false
		}
	}
	return len(bounds) > 0
}

// looseEqual compares a resolved value with a JSON-decoded expected value.
// Numbers compare by value regardless of int/float representation.
func looseEqual(actual, expected any) bool {
	if af, ok := asFloat(actual); ok {
		ef, ok := asFloat(expected)
		return ok && af == ef
	}
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	return reflect.DeepEqual(actual, expected)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		return b == "true"
	}
	return false
}
