// Package webhook delivers evaluation-run notifications to registered HTTP
// endpoints. Payloads are signed with HMAC-SHA256 so receivers can verify
// origin; endpoints subscribe per event type.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careloop/careloop/internal/domain/rules"
)

// EventEvaluationCompleted fires after every evaluation run.
const EventEvaluationCompleted = "evaluation.completed"

const (
	maxAttempts    = 3
	requestTimeout = 5 * time.Second
)

// Endpoint is a registered webhook destination.
type Endpoint struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Events    []string  `json:"events"`
	CreatedAt time.Time `json:"created_at"`
}

func (e *Endpoint) subscribed(eventType string) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, ev := range e.Events {
		if ev == eventType {
			return true
		}
	}
	return false
}

// Delivery records one completed delivery attempt sequence.
type Delivery struct {
	ID         string    `json:"id"`
	EndpointID string    `json:"endpoint_id"`
	EventType  string    `json:"event_type"`
	StatusCode int       `json:"status_code"`
	Attempts   int       `json:"attempts"`
	Status     string    `json:"status"` // "success" | "failed"
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Manager keeps the endpoint registry and performs deliveries.
type Manager struct {
	client *http.Client
	logger zerolog.Logger

	mu         sync.Mutex
	endpoints  map[string]*Endpoint
	deliveries []Delivery
}

// NewManager creates a Manager with an empty registry.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		client:    &http.Client{Timeout: requestTimeout},
		logger:    logger,
		endpoints: make(map[string]*Endpoint),
	}
}

// Register adds an endpoint after validating its URL.
func (m *Manager) Register(rawURL, secret string, events []string) (*Endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("url must be a valid http(s) address")
	}

	ep := &Endpoint{
		ID:        uuid.New().String(),
		URL:       rawURL,
		Secret:    secret,
		Events:    events,
		CreatedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.endpoints[ep.ID] = ep
	m.mu.Unlock()
	return ep, nil
}

// Remove deletes an endpoint; it reports whether the id existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[id]; !ok {
		return false
	}
	delete(m.endpoints, id)
	return true
}

// Endpoints returns the registered endpoints.
func (m *Manager) Endpoints() []*Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Endpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		out = append(out, ep)
	}
	return out
}

// Deliveries returns a copy of the delivery log.
func (m *Manager) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delivery, len(m.deliveries))
	copy(out, m.deliveries)
	return out
}

// Sign computes the hex HMAC-SHA256 signature receivers use for verification.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Broadcast delivers the payload to every endpoint subscribed to eventType.
// Failures are logged and recorded, never returned: a dead receiver must not
// fail the evaluation that triggered it.
func (m *Manager) Broadcast(ctx context.Context, eventType string, payload any) {
	body, err := json.Marshal(map[string]any{
		"event_type": eventType,
		"data":       payload,
	})
	if err != nil {
		m.logger.Error().Err(err).Str("event_type", eventType).Msg("webhook payload marshal failed")
		return
	}

	for _, ep := range m.Endpoints() {
		if !ep.subscribed(eventType) {
			continue
		}
		m.deliver(ctx, ep, eventType, body)
	}
}

func (m *Manager) deliver(ctx context.Context, ep *Endpoint, eventType string, body []byte) {
	rec := Delivery{
		ID:         uuid.New().String(),
		EndpointID: ep.ID,
		EventType:  eventType,
		CreatedAt:  time.Now().UTC(),
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rec.Attempts = attempt
		code, err := m.post(ctx, ep, eventType, body)
		rec.StatusCode = code
		if err == nil && code < 300 {
			rec.Status = "success"
			rec.Error = ""
			break
		}
		if err != nil {
			rec.Error = err.Error()
		} else {
			rec.Error = fmt.Sprintf("receiver returned %d", code)
		}
		rec.Status = "failed"
	}

	if rec.Status == "failed" {
		m.logger.Warn().
			Str("endpoint_id", ep.ID).
			Str("event_type", eventType).
			Int("attempts", rec.Attempts).
			Str("error", rec.Error).
			Msg("webhook delivery failed")
	}

	m.mu.Lock()
	m.deliveries = append(m.deliveries, rec)
	m.mu.Unlock()
}

func (m *Manager) post(ctx context.Context, ep *Endpoint, eventType string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Careloop-Event", eventType)
	if ep.Secret != "" {
		req.Header.Set("X-Careloop-Signature", Sign(ep.Secret, body))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// EvaluationCompleted broadcasts a run summary; it satisfies the evaluation
// handler's notifier hook.
func (m *Manager) EvaluationCompleted(ctx context.Context, eval *rules.Evaluation) {
	m.Broadcast(ctx, EventEvaluationCompleted, map[string]any{
		"run_id":  eval.RunID,
		"rule_id": eval.RuleID,
		"summary": eval.Summary(),
	})
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// Handler exposes endpoint registration over the API.
type Handler struct {
	manager *Manager
}

// NewHandler creates a Handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/webhooks")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.DELETE("/:id", h.Delete)
	g.GET("/deliveries", h.ListDeliveries)
}

type createRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}
	ep, err := h.manager.Register(req.URL, req.Secret, req.Events)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ep)
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Endpoints())
}

func (h *Handler) Delete(c echo.Context) error {
	if !h.manager.Remove(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "webhook not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDeliveries(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Deliveries())
}
