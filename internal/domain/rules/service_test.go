package rules

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/careloop/careloop/internal/domain/records"
)

func reminderRule() *Rule {
	return &Rule{
		ID: "reminder-24h",
		Conditions: map[string]any{
			"logic":                   "ALL",
			"event.type":              "schedule.tick",
			"appointment_hours_until": float64(24),
			"intake_status":           "INCOMPLETE",
		},
		Actions: []Channel{ChannelSMS},
		Templates: map[Channel]Template{
			ChannelSMS: {Body: "Hi {{patient_name}}, finish intake before {{appointment_time}}."},
		},
	}
}

func newTestService(store records.Store) *Service {
	return NewService(store, zerolog.Nop())
}

func TestEvaluate_ScheduleTickScenario(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	eval, err := svc.Evaluate(context.Background(), reminderRule(), []*records.Event{testEvent()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.RunID == "" {
		t.Error("run id should be assigned")
	}
	if len(eval.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(eval.Results))
	}

	res := eval.Results[0]
	if res.Outcome != OutcomeMatched {
		t.Fatalf("outcome = %s, want matched", res.Outcome)
	}
	if res.Message == nil || res.Message.Channel != ChannelSMS {
		t.Fatalf("message = %+v, want an SMS", res.Message)
	}
	if res.Message.To != "+14155552001" {
		t.Errorf("To = %q", res.Message.To)
	}
	want := "Hi Maya Nguyen, finish intake before 2026-03-02T09:00:00Z."
	if res.Message.Body != want {
		t.Errorf("Body = %q, want %q", res.Message.Body, want)
	}
}

func TestEvaluate_DNCYieldsSkippedNotNoMatch(t *testing.T) {
	store := newMemStore()
	store.patients["pt_0001"].DNC = true
	svc := newTestService(store)

	eval, err := svc.Evaluate(context.Background(), reminderRule(), []*records.Event{testEvent()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eval.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(eval.Results))
	}
	res := eval.Results[0]
	if res.Outcome != OutcomeSkipped {
		t.Errorf("outcome = %s, want skipped (distinguishable from no_match)", res.Outcome)
	}
	if res.Reason != SkipDNC {
		t.Errorf("reason = %q, want %q", res.Reason, SkipDNC)
	}
	if res.Message != nil {
		t.Error("no SMS text should be rendered under DNC")
	}
}

func TestEvaluate_PrefDropYieldsSkippedWhenOnlyAction(t *testing.T) {
	store := newMemStore()
	store.patients["pt_0001"].CommPrefs.SMS = false
	svc := newTestService(store)

	eval, err := svc.Evaluate(context.Background(), reminderRule(), []*records.Event{testEvent()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := eval.Results[0]
	if res.Outcome != OutcomeSkipped || res.Reason != SkipNoChannels {
		t.Errorf("result = %+v, want skipped with %q", res, SkipNoChannels)
	}
	if len(eval.Messages()) != 0 {
		t.Error("zero actions should be rendered")
	}
}

func TestEvaluate_PrefDropIsPerChannel(t *testing.T) {
	store := newMemStore()
	store.patients["pt_0001"].CommPrefs.SMS = false // email stays true
	svc := newTestService(store)

	rule := reminderRule()
	rule.Actions = []Channel{ChannelSMS, ChannelEmail}
	rule.Templates[ChannelEmail] = Template{Subject: "Reminder", Body: "Finish your intake.", Structured: true}

	eval, err := svc.Evaluate(context.Background(), rule, []*records.Event{testEvent()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eval.Results) != 1 {
		t.Fatalf("got %d results, want only the surviving email", len(eval.Results))
	}
	res := eval.Results[0]
	if res.Outcome != OutcomeMatched || res.Message.Channel != ChannelEmail {
		t.Errorf("result = %+v, want matched EMAIL", res)
	}
}

func TestEvaluate_CompleteIntakeIsNoMatch(t *testing.T) {
	store := newMemStore()
	store.intakes["appt_001"].Status = records.IntakeComplete
	svc := newTestService(store)

	eval, err := svc.Evaluate(context.Background(), reminderRule(), []*records.Event{testEvent()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := eval.Results[0]
	if res.Outcome != OutcomeNoMatch {
		t.Errorf("outcome = %s, want no_match", res.Outcome)
	}
	if res.Message != nil {
		t.Error("nothing should be rendered on a non-match")
	}
}

func TestEvaluate_DanglingReferencesDoNotCrash(t *testing.T) {
	store := newMemStore()
	store.appointments["appt_404"] = &records.Appointment{
		ID:         "appt_404",
		PatientID:  "pt_9999",
		PracticeID: "prac_9999",
		StartTime:  "2026-03-02T09:00:00Z",
		Status:     "scheduled",
	}
	svc := newTestService(store)

	event := &records.Event{
		Type:       "schedule.tick",
		OccurredAt: "2026-03-01T09:00:00Z",
		Payload:    map[string]any{"appointment_id": "appt_404"},
	}

	rule := reminderRule()
	delete(rule.Conditions, "intake_status")

	eval, err := svc.Evaluate(context.Background(), rule, []*records.Event{event})
	if err != nil {
		t.Fatalf("dangling references must not error: %v", err)
	}
	// Conditions match, but the absent patient suppresses the action.
	res := eval.Results[0]
	if res.Outcome != OutcomeSkipped || res.Reason != SkipPatientAbsent {
		t.Errorf("result = %+v, want skipped with %q", res, SkipPatientAbsent)
	}
}

func TestEvaluate_MalformedTimestampIsRecoverable(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	events := []*records.Event{
		{Type: "schedule.tick", OccurredAt: "yesterday", Payload: map[string]any{"appointment_id": "appt_001"}},
		testEvent(),
	}

	eval, err := svc.Evaluate(context.Background(), reminderRule(), events)
	if err != nil {
		t.Fatalf("a malformed timestamp must not abort the run: %v", err)
	}
	if len(eval.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(eval.Results))
	}
	if eval.Results[0].Outcome != OutcomeNoMatch {
		t.Errorf("outcome = %s, want no_match for the bad event", eval.Results[0].Outcome)
	}
	if !strings.Contains(eval.Results[0].Reason, "malformed occurred_at") {
		t.Errorf("reason = %q, want the parse cause recorded", eval.Results[0].Reason)
	}
	if eval.Results[1].Outcome != OutcomeMatched {
		t.Errorf("outcome = %s, the following event should still match", eval.Results[1].Outcome)
	}
}

func TestEvaluate_PreservesEventOrder(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	events := []*records.Event{
		{Type: "other.event", OccurredAt: "2026-03-01T09:00:00Z", Payload: map[string]any{}},
		testEvent(),
		{Type: "other.event", OccurredAt: "2026-03-01T10:00:00Z", Payload: map[string]any{}},
	}

	eval, err := svc.Evaluate(context.Background(), reminderRule(), events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eval.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(eval.Results))
	}
	for i, res := range eval.Results {
		if res.EventIndex != i {
			t.Errorf("results[%d].EventIndex = %d, want input order preserved", i, res.EventIndex)
		}
	}
	if eval.Results[0].Outcome != OutcomeNoMatch || eval.Results[2].Outcome != OutcomeNoMatch {
		t.Error("non-matching events should yield no_match rows")
	}
	if eval.Results[1].Outcome != OutcomeMatched {
		t.Error("the matching event should yield a matched row")
	}
}

func TestEvaluate_ActionOrderFollowsRuleDeclaration(t *testing.T) {
	store := newMemStore()
	store.patients["pt_0001"].CommPrefs.Call = true
	svc := newTestService(store)

	rule := reminderRule()
	rule.Actions = []Channel{ChannelCall, ChannelSMS, ChannelEmail}
	rule.Templates[ChannelEmail] = Template{Body: "e"}
	rule.Templates[ChannelCall] = Template{Body: "c"}

	eval, err := svc.Evaluate(context.Background(), rule, []*records.Event{testEvent()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Channel{ChannelCall, ChannelSMS, ChannelEmail}
	msgs := eval.Messages()
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, m := range msgs {
		if m.Channel != want[i] {
			t.Errorf("messages[%d].Channel = %s, want %s", i, m.Channel, want[i])
		}
	}
}

func TestEvaluate_InvalidRuleAbortsInvocationOnly(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	bad := &Rule{ID: "bad", Actions: []Channel{ChannelSMS}, Templates: map[Channel]Template{}}
	if _, err := svc.Evaluate(context.Background(), bad, nil); err == nil {
		t.Fatal("expected a structural rule error")
	}

	// The same service keeps working for valid rules.
	if _, err := svc.Evaluate(context.Background(), reminderRule(), []*records.Event{testEvent()}); err != nil {
		t.Fatalf("service should survive a rejected rule: %v", err)
	}
}

func TestEvaluate_RunsAreIndependent(t *testing.T) {
	store := newMemStore()
	store.events = []*records.Event{testEvent()}
	svc := newTestService(store)

	first, err := svc.EvaluateAll(context.Background(), reminderRule())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.EvaluateAll(context.Background(), reminderRule())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.RunID == second.RunID {
		t.Error("each run should get its own id")
	}
	if len(first.Results) != len(second.Results) {
		t.Error("identical runs should produce identical result counts")
	}
	if first.Results[0].Message.Body != second.Results[0].Message.Body {
		t.Error("rendering should be deterministic across runs")
	}
}
