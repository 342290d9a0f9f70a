package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from whoever listens
// ─────────────────────────────────────────────────────────────

// Events emitted by the services.
const (
	EventDatabaseCreated = "db:created"
	EventDatabaseUpdated = "db:updated"
	EventDatabaseDeleted = "db:deleted"
	EventSchemaChanged   = "db:schema-changed"
	EventImportProgress  = "import:progress"
	EventImportCompleted = "import:job-completed"
)

// EventEmitter is an interface for emitting change notifications.
// Services receive this interface so they stay independently testable
// with a mock emitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event to the log at debug level.
type LogEmitter struct {
	Log *zap.SugaredLogger
}

func (e LogEmitter) Emit(_ context.Context, event string, data any) {
	if e.Log != nil {
		e.Log.Debugw("event", "name", event, "data", data)
	}
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Named returns the recorded events called event.
func (m *MockEmitter) Named(event string) []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EmittedEvent
	for _, e := range m.Events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func emitterOrNop(e EventEmitter, log *zap.SugaredLogger) EventEmitter {
	if e == nil {
		return LogEmitter{Log: log}
	}
	return e
}
