package rules

import "testing"

func TestResolve_KnownRoots(t *testing.T) {
	ec := newTestContext()

	tests := []struct {
		path string
		want any
	}{
		{"event.type", "schedule.tick"},
		{"event.occurred_at", "2026-03-01T09:00:00Z"},
		{"event.payload.appointment_id", "appt_001"},
		{"patient.id", "pt_0001"},
		{"patient.name", "Maya Nguyen"},
		{"patient.first_name", "Maya"},
		{"patient.language", "en"},
		{"patient.dnc", false},
		{"patient.comm_prefs.sms", true},
		{"patient.comm_prefs.call", false},
		{"appointment.status", "scheduled"},
		{"appointment.no_show_risk", "high"},
		{"appointment.start_time", "2026-03-02T09:00:00Z"},
		{"practice.name", "BayCare Ortho Group"},
		{"practice.domain", "baycare-ortho.com"},
		{"intake.status", "INCOMPLETE"},
		{"intake.link", "https://intake.example.com/int_001"},
	}
	for _, tt := range tests {
		got, ok := Resolve(tt.path, ec)
		if !ok {
			t.Errorf("Resolve(%q) absent, want %v", tt.path, tt.want)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestResolve_AbsentPaths(t *testing.T) {
	ec := newTestContext()

	absent := []string{
		"patient.unknown_field",
		"appointment.unknown",
		"event.payload.missing_key",
		"unknown_root.field",
		"patient",
	}
	for _, path := range absent {
		if got, ok := Resolve(path, ec); ok {
			t.Errorf("Resolve(%q) = %v, want absent", path, got)
		}
	}
}

func TestResolve_AbsentRootRecords(t *testing.T) {
	ec := &EvalContext{Event: testEvent()}

	for _, path := range []string{"patient.id", "appointment.status", "practice.name", "intake.status"} {
		if got, ok := Resolve(path, ec); ok {
			t.Errorf("Resolve(%q) = %v, want absent when record missing from context", path, got)
		}
	}
}

func TestResolve_PayloadDeepLookup(t *testing.T) {
	ec := newTestContext()
	ec.Event.Payload = map[string]any{
		"changed": map[string]any{
			"status":   "confirmed",
			"explicit": nil,
		},
	}

	got, ok := Resolve("event.payload.changed.status", ec)
	if !ok || got != "confirmed" {
		t.Errorf("nested payload lookup = %v, %v", got, ok)
	}

	// A present nil value is not the same as a missing key.
	got, ok = Resolve("event.payload.changed.explicit", ec)
	if !ok || got != nil {
		t.Errorf("explicit nil = %v present=%v, want nil, true", got, ok)
	}
	if _, ok := Resolve("event.payload.changed.missing", ec); ok {
		t.Error("missing payload key should be absent")
	}
	if _, ok := Resolve("event.payload.changed.status.deeper", ec); ok {
		t.Error("descending through a scalar should be absent")
	}
}
