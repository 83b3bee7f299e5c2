// Package notification carries rendered outreach messages to their transport.
// The only real transport here is a console stub — no network send occurs —
// but senders are interfaces so a delivery integration can slot in per
// channel.
package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/careloop/internal/domain/rules"
)

// EmailSender delivers email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// CallSender places scripted calls.
type CallSender interface {
	PlaceCall(ctx context.Context, to, script string) error
}

// Dispatched records one message handed to a sender.
type Dispatched struct {
	ID           string                `json:"id"`
	Message      rules.RenderedMessage `json:"message"`
	Status       string                `json:"status"`
	Error        string                `json:"error,omitempty"`
	DispatchedAt time.Time             `json:"dispatched_at"`
}

// Dispatcher routes rendered messages to the per-channel senders and keeps
// an in-memory record of what was sent.
type Dispatcher struct {
	email EmailSender
	sms   SMSSender
	call  CallSender

	mu   sync.Mutex
	sent []Dispatched
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(email EmailSender, sms SMSSender, call CallSender) *Dispatcher {
	return &Dispatcher{email: email, sms: sms, call: call}
}

// Dispatch sends one rendered message through its channel's sender, assigns
// it an ID, and records the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, msg rules.RenderedMessage) (*Dispatched, error) {
	var err error
	switch msg.Channel {
	case rules.ChannelSMS:
		err = d.sms.SendSMS(ctx, msg.To, msg.Body)
	case rules.ChannelEmail:
		err = d.email.SendEmail(ctx, msg.To, msg.Subject, msg.Body)
	case rules.ChannelCall:
		err = d.call.PlaceCall(ctx, msg.To, msg.Body)
	default:
		err = fmt.Errorf("unsupported channel: %s", msg.Channel)
	}

	rec := Dispatched{
		ID:           uuid.New().String(),
		Message:      msg,
		Status:       "sent",
		DispatchedAt: time.Now().UTC(),
	}
	if err != nil {
		rec.Status = "failed"
		rec.Error = err.Error()
	}

	d.mu.Lock()
	d.sent = append(d.sent, rec)
	d.mu.Unlock()

	if err != nil {
		return &rec, err
	}
	return &rec, nil
}

// DispatchAll sends every message in order, continuing past individual
// failures and returning the first error encountered.
func (d *Dispatcher) DispatchAll(ctx context.Context, msgs []*rules.RenderedMessage) error {
	var firstErr error
	for _, m := range msgs {
		if _, err := d.Dispatch(ctx, *m); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Sent returns a copy of the dispatch log.
func (d *Dispatcher) Sent() []Dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Dispatched, len(d.sent))
	copy(out, d.sent)
	return out
}

// ---------------------------------------------------------------------------
// Console transport stub
// ---------------------------------------------------------------------------

// ConsoleSender prints messages to a writer instead of sending them. It
// implements all three sender interfaces.
type ConsoleSender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSender constructs a ConsoleSender writing to w.
func NewConsoleSender(w io.Writer) *ConsoleSender {
	return &ConsoleSender{w: w}
}

func (c *ConsoleSender) SendSMS(_ context.Context, to, body string) error {
	return c.printf("Triggered SMS ▶ To: %s\nMessage: %s\n", to, body)
}

func (c *ConsoleSender) SendEmail(_ context.Context, to, subject, body string) error {
	return c.printf("Triggered Email ▶ To: %s\nSubject: %s\nBody: %s\n", to, subject, body)
}

func (c *ConsoleSender) PlaceCall(_ context.Context, to, script string) error {
	return c.printf("Triggered Call ▶ To: %s\nScript: %s\n", to, script)
}

func (c *ConsoleSender) printf(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, format, args...)
	return err
}

// ---------------------------------------------------------------------------
// Mock senders (test doubles)
// ---------------------------------------------------------------------------

// Call records a single delivery handed to a mock sender.
type Call struct {
	To      string
	Subject string
	Body    string
}

// MockSender is a test double for all three sender interfaces.
type MockSender struct {
	mu         sync.Mutex
	calls      []Call
	ShouldFail bool
	FailError  string
}

func (m *MockSender) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// SendSMS records the call and optionally returns an error.
func (m *MockSender) SendSMS(_ context.Context, to, body string) error {
	return m.record(Call{To: to, Body: body})
}

// SendEmail records the call and optionally returns an error.
func (m *MockSender) SendEmail(_ context.Context, to, subject, body string) error {
	return m.record(Call{To: to, Subject: subject, Body: body})
}

// PlaceCall records the call and optionally returns an error.
func (m *MockSender) PlaceCall(_ context.Context, to, script string) error {
	return m.record(Call{To: to, Body: script})
}

// Calls returns a copy of recorded deliveries.
func (m *MockSender) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
