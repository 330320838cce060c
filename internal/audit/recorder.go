// Package audit emits the broker's security-audit trail. The recorder is a
// constructor-injected dependency so tests can capture events in memory; raw
// token material is never part of an event.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType identifies a security-relevant action.
type EventType string

const (
	EventTokenVerified        EventType = "idp_token_verified"
	EventTokenRejected        EventType = "idp_token_rejected"
	EventSecurityGateBlocked  EventType = "security_gate_blocked"
	EventFederatedLogin       EventType = "federated_login"
	EventFederatedLoginFailed EventType = "federated_login_failed"
	EventSessionRefreshed     EventType = "session_refreshed"
)

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Subject   string    `json:"subject,omitempty"`
	Email     string    `json:"email,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Recorder receives audit events.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// zerologRecorder writes audit events as structured log lines.
type zerologRecorder struct {
	logger zerolog.Logger
}

// NewZerologRecorder creates a Recorder writing through the given zerolog
// logger.
func NewZerologRecorder(logger zerolog.Logger) Recorder {
	return &zerologRecorder{logger: logger}
}

func (r *zerologRecorder) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	entry := r.logger.Log().
		Str("audit_id", event.ID).
		Str("event", string(event.Type)).
		Time("timestamp", event.Timestamp).
		Bool("success", event.Success)
	if event.Subject != "" {
		entry = entry.Str("subject", event.Subject)
	}
	if event.Email != "" {
		entry = entry.Str("email", event.Email)
	}
	if event.Error != "" {
		entry = entry.Str("error", event.Error)
	}
	entry.Msg("audit")
}

// MultiRecorder fans every event out to all recorders.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, event Event) {
	for _, r := range m {
		r.Record(ctx, event)
	}
}

// MemoryRecorder collects events in memory. Test helper.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRecorder() *MemoryRecorder { return &MemoryRecorder{} }

func (m *MemoryRecorder) Record(_ context.Context, event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	m.events = append(m.events, event)
}

// Events returns a copy of everything recorded so far.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
