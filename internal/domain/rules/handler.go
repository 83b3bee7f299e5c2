package rules

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Dispatcher hands rendered messages to the outbound transport. Satisfied by
// notification.Dispatcher.
type Dispatcher interface {
	DispatchAll(ctx context.Context, msgs []*RenderedMessage) error
}

// MetricsRecorder counts completed evaluation runs. Satisfied by
// telemetry.Provider.
type MetricsRecorder interface {
	RecordEvaluation(summary map[Outcome]int)
}

// Notifier is told about completed runs after dispatch. Satisfied by
// webhook.Manager.
type Notifier interface {
	EvaluationCompleted(ctx context.Context, eval *Evaluation)
}

// Handler exposes rule evaluation over HTTP.
type Handler struct {
	svc        *Service
	dispatcher Dispatcher
	metrics    MetricsRecorder
	notifier   Notifier
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, dispatcher Dispatcher) *Handler {
	return &Handler{svc: svc, dispatcher: dispatcher}
}

// WithMetrics attaches a metrics recorder.
func (h *Handler) WithMetrics(m MetricsRecorder) *Handler {
	h.metrics = m
	return h
}

// WithNotifier attaches a run-completion notifier.
func (h *Handler) WithNotifier(n Notifier) *Handler {
	h.notifier = n
	return h
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/evaluate", h.Evaluate)
}

// EvaluateResponse is the evaluation API response body.
type EvaluateResponse struct {
	RunID   string          `json:"run_id"`
	RuleID  string          `json:"rule_id"`
	Summary map[Outcome]int `json:"summary"`
	Results []Result        `json:"results"`
}

// Evaluate accepts a rule JSON body, runs it over the store's event stream,
// dispatches the rendered messages, and returns the ordered results. A
// structurally invalid rule is a 400 naming the offending key.
func (h *Handler) Evaluate(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read request body")
	}
	rule, err := ParseRule(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	eval, err := h.svc.EvaluateAll(ctx, rule)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if h.dispatcher != nil {
		if err := h.dispatcher.DispatchAll(ctx, eval.Messages()); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	if h.metrics != nil {
		h.metrics.RecordEvaluation(eval.Summary())
	}
	if h.notifier != nil {
		h.notifier.EvaluationCompleted(ctx, eval)
	}

	return c.JSON(http.StatusOK, EvaluateResponse{
		RunID:   eval.RunID,
		RuleID:  eval.RuleID,
		Summary: eval.Summary(),
		Results: eval.Results,
	})
}
