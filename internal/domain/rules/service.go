package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careloop/careloop/internal/domain/records"
)

// Outcome classifies what one event produced for the rule.
type Outcome string

const (
	// OutcomeMatched: conditions held and the action survived the policy
	// gate; one result row per rendered action.
	OutcomeMatched Outcome = "matched"
	// OutcomeSkipped: conditions held but every action was suppressed by
	// DNC, missing preferences, or an absent patient record.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeNoMatch: conditions did not hold (or the event timestamp was
	// unusable); nothing was gated or rendered.
	OutcomeNoMatch Outcome = "no_match"
)

// Result is one row of an evaluation: a rendered action, a per-event skip
// notice, or a per-event non-match.
type Result struct {
	EventIndex int              `json:"event_index"`
	EventType  string           `json:"event_type"`
	Outcome    Outcome          `json:"outcome"`
	Message    *RenderedMessage `json:"message,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Evaluation is the ordered outcome of one rule run over the event stream.
type Evaluation struct {
	RunID   string   `json:"run_id"`
	RuleID  string   `json:"rule_id"`
	Results []Result `json:"results"`
}

// Summary counts results by outcome.
func (e *Evaluation) Summary() map[Outcome]int {
	sum := make(map[Outcome]int)
	for _, r := range e.Results {
		sum[r.Outcome]++
	}
	return sum
}

// Messages returns the rendered messages in emission order.
func (e *Evaluation) Messages() []*RenderedMessage {
	var msgs []*RenderedMessage
	for _, r := range e.Results {
		if r.Outcome == OutcomeMatched && r.Message != nil {
			msgs = append(msgs, r.Message)
		}
	}
	return msgs
}

// Service drives rule evaluation over the record store. It holds no mutable
// state beyond its collaborators; every run is independent.
type Service struct {
	store  records.Store
	logger zerolog.Logger
}

// NewService constructs a Service.
func NewService(store records.Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// EvaluateAll runs the rule over the store's full event stream.
func (s *Service) EvaluateAll(ctx context.Context, rule *Rule) (*Evaluation, error) {
	events, err := s.store.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return s.Evaluate(ctx, rule, events)
}

// Evaluate runs the rule over the given events, strictly in input order.
// Per event: build context, match conditions, gate the actions, render the
// survivors in the rule's declared action order. Events with a malformed
// occurred_at degrade to a no-match with the cause recorded; only store
// failures abort the run.
func (s *Service) Evaluate(ctx context.Context, rule *Rule, events []*records.Event) (*Evaluation, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	eval := &Evaluation{
		RunID:  uuid.New().String(),
		RuleID: rule.ID,
	}

	for i, event := range events {
		ec, err := BuildContext(ctx, s.store, event)
		if err != nil {
			return nil, fmt.Errorf("event %d: build context: %w", i, err)
		}

		if ec.NowErr != nil {
			s.logger.Warn().
				Int("event_index", i).
				Str("event_type", event.Type).
				Str("occurred_at", event.OccurredAt).
				Err(ec.NowErr).
				Msg("unparseable event timestamp, treating as non-match")
			eval.Results = append(eval.Results, Result{
				EventIndex: i,
				EventType:  event.Type,
				Outcome:    OutcomeNoMatch,
				Reason:     fmt.Sprintf("malformed occurred_at: %v", ec.NowErr),
			})
			continue
		}

		if !Matches(rule, ec) {
			eval.Results = append(eval.Results, Result{
				EventIndex: i,
				EventType:  event.Type,
				Outcome:    OutcomeNoMatch,
			})
			continue
		}

		allowed, skipReason := Gate(rule.Actions, ec.Patient)
		if len(allowed) == 0 {
			s.logger.Debug().
				Int("event_index", i).
				Str("event_type", event.Type).
				Str("reason", skipReason).
				Msg("matched event suppressed by policy gate")
			eval.Results = append(eval.Results, Result{
				EventIndex: i,
				EventType:  event.Type,
				Outcome:    OutcomeSkipped,
				Reason:     skipReason,
			})
			continue
		}

		for _, channel := range allowed {
			msg := Render(rule, channel, ec)
			eval.Results = append(eval.Results, Result{
				EventIndex: i,
				EventType:  event.Type,
				Outcome:    OutcomeMatched,
				Message:    &msg,
			})
		}
	}

	s.logger.Info().
		Str("run_id", eval.RunID).
		Str("rule_id", rule.ID).
		Int("events", len(events)).
		Int("results", len(eval.Results)).
		Msg("evaluation complete")

	return eval, nil
}
