package agentloop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/martinemde/webpilot/memory"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventSessionStart  EventKind = "session_start"
	EventSessionEnd    EventKind = "session_end"
	EventObjective     EventKind = "objective"
	EventTurnStart     EventKind = "turn_start"
	EventAction        EventKind = "action"
	EventFeedback      EventKind = "feedback"
	EventCompaction    EventKind = "compaction"
	EventTerminal      EventKind = "terminal"
	EventTurnLimit     EventKind = "turn_limit"
	EventLoopDetection EventKind = "loop_detection"
	EventReset         EventKind = "reset"
	EventError         EventKind = "error"
)

// SessionEvent is one observation of the loop. Only the fields relevant to
// Kind are set.
type SessionEvent struct {
	Kind       EventKind                `json:"kind"`
	Timestamp  time.Time                `json:"timestamp"`
	SessionID  string                   `json:"session_id"`
	Turn       int                      `json:"turn,omitempty"`
	Role       memory.Role              `json:"role,omitempty"`    // feedback
	Content    string                   `json:"content,omitempty"` // objective, feedback, terminal, loop warning
	Rationale  string                   `json:"rationale,omitempty"`
	Command    string                   `json:"command,omitempty"` // raw command line as recorded
	Compaction *memory.CompactionReport `json:"compaction,omitempty"`
	Terminal   bool                     `json:"terminal,omitempty"` // session_end
	Err        string                   `json:"error,omitempty"`
}

// EventEmitter fans session events out to one consumer through a buffered
// channel. A slow consumer loses events instead of stalling the loop.
type EventEmitter struct {
	sessionID string
	ch        chan SessionEvent
	dropped   atomic.Int64
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates an emitter; bufferSize <= 0 uses 256.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		sessionID: sessionID,
		ch:        make(chan SessionEvent, bufferSize),
	}
}

// Emit stamps ev with the time and session id and queues it. Events after
// Close are ignored.
func (e *EventEmitter) Emit(ev SessionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	ev.Timestamp = time.Now()
	ev.SessionID = e.sessionID
	select {
	case e.ch <- ev:
	default:
		e.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded on a full buffer.
func (e *EventEmitter) Dropped() int64 {
	return e.dropped.Load()
}

// Events returns the read-only event channel. It is closed by Close.
func (e *EventEmitter) Events() <-chan SessionEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
