package agentloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinemde/webpilot/memory"
)

var (
	// ErrTurnLimit is returned by Run when MaxTurns is reached before COMPLETE.
	ErrTurnLimit = errors.New("turn limit reached before the objective was completed")
	// ErrSessionClosed is returned by any operation on a closed session.
	ErrSessionClosed = errors.New("session is closed")
)

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	History             memory.HistoryConfig `json:"history"`
	DocumentMaxTokens   int                  `json:"document_max_tokens"`
	MaxTurns            int                  `json:"max_turns"`      // per Run, 0 = unlimited
	MaxPageChars        int                  `json:"max_page_chars"` // 0 = no truncation
	MaxPageLines        int                  `json:"max_page_lines"` // 0 = no truncation
	EnableLoopDetection bool                 `json:"enable_loop_detection"`
	LoopDetectionWindow int                  `json:"loop_detection_window"`
	UserInstructions    string               `json:"user_instructions,omitempty"` // appended last to system prompt
	EventBufferSize     int                  `json:"event_buffer_size"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		History:             memory.DefaultHistoryConfig(),
		DocumentMaxTokens:   1024,
		MaxTurns:            0, // unlimited
		MaxPageChars:        DefaultMaxPageChars,
		EnableLoopDetection: true,
		LoopDetectionWindow: 6,
		EventBufferSize:     256,
	}
}

// Collaborators are the external services a session drives. The session
// does not own them.
type Collaborators struct {
	Actuator   Actuator
	Oracle     Oracle
	Human      HumanChannel
	Tokenizer  memory.Tokenizer
	Summarizer memory.Summarizer
}

func (c Collaborators) validate() error {
	var missing []string
	if c.Actuator == nil {
		missing = append(missing, "actuator")
	}
	if c.Oracle == nil {
		missing = append(missing, "oracle")
	}
	if c.Human == nil {
		missing = append(missing, "human channel")
	}
	if c.Tokenizer == nil {
		missing = append(missing, "tokenizer")
	}
	if c.Summarizer == nil {
		missing = append(missing, "summarizer")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing collaborators: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LoopState is the observable state of the turn loop.
type LoopState struct {
	Objective string
	Terminal  bool
	Turn      int // turns taken since the last Reset
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Session is the agent loop for one browser. It owns the history and the
// document and runs one action per turn until the oracle issues COMPLETE.
type Session struct {
	id         string
	collab     Collaborators
	config     SessionConfig
	system     string
	history    *memory.History
	document   *memory.Document
	dispatcher *Dispatcher
	emitter    *EventEmitter
	logger     *zap.Logger

	mu         sync.Mutex
	state      LoopState
	signatures []string
	closed     bool
}

// NewSession creates a session over collab. A nil config uses
// DefaultSessionConfig.
func NewSession(collab Collaborators, config *SessionConfig, opts ...Option) (*Session, error) {
	if err := collab.validate(); err != nil {
		return nil, err
	}
	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
	}

	history, err := memory.NewHistory(cfg.History, collab.Tokenizer, collab.Summarizer)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	document, err := memory.NewDocument(cfg.DocumentMaxTokens, collab.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}

	sessionID := uuid.New().String()
	s := &Session{
		id:         sessionID,
		collab:     collab,
		config:     cfg,
		system:     BuildSystemPrompt(cfg.UserInstructions),
		history:    history,
		document:   document,
		dispatcher: NewDispatcher(collab.Actuator, document, collab.Human),
		emitter:    NewEventEmitter(sessionID, cfg.EventBufferSize),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", sessionID))

	history.OnCompact(func(r memory.CompactionReport) {
		s.logger.Debug("history compacted",
			zap.Int("tokens_before", r.TokensBefore),
			zap.Int("tokens_after", r.TokensAfter),
			zap.Int("summarized", r.Summarized),
			zap.Int("passes", r.Passes))
		report := r
		s.emitter.Emit(SessionEvent{Kind: EventCompaction, Turn: s.State().Turn, Compaction: &report})
	})

	s.emitter.Emit(SessionEvent{Kind: EventSessionStart})
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns a snapshot of the loop state.
func (s *Session) State() LoopState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the history.
func (s *Session) Messages() []memory.Message {
	return s.history.Messages()
}

// History returns the rendered history as the oracle sees it.
func (s *Session) History() string {
	return s.history.Render()
}

// Deliverable returns the rendered document, the user-facing result.
func (s *Session) Deliverable() string {
	return s.document.Render()
}

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Run records objective as a user message and takes turns until the oracle
// completes, the turn limit is hit, or a collaborator fails.
func (s *Session) Run(ctx context.Context, objective string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.Objective = objective
	s.state.Terminal = false
	s.mu.Unlock()

	s.logger.Info("objective started", zap.String("objective", objective))
	s.emitter.Emit(SessionEvent{Kind: EventObjective, Content: objective})
	if err := s.record(ctx, memory.NewMessage(memory.RoleUser, objective)); err != nil {
		return s.fail(err)
	}

	for turns := 0; ; turns++ {
		if s.State().Terminal {
			s.logger.Info("objective completed", zap.Int("turns", turns))
			return nil
		}
		if s.config.MaxTurns > 0 && turns >= s.config.MaxTurns {
			s.logger.Warn("turn limit reached", zap.Int("max_turns", s.config.MaxTurns))
			s.emitter.Emit(SessionEvent{Kind: EventTurnLimit, Turn: s.State().Turn})
			return ErrTurnLimit
		}
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
}

// Step takes exactly one turn: prompt the oracle, record its rationale and
// command, dispatch the command and record the feedback. Stepping a
// terminal session does nothing.
func (s *Session) Step(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	if s.state.Terminal {
		s.mu.Unlock()
		return nil
	}
	s.state.Turn++
	turn := s.state.Turn
	objective := s.state.Objective
	s.mu.Unlock()
	s.emitter.Emit(SessionEvent{Kind: EventTurnStart, Turn: turn})

	page, err := s.collab.Actuator.VisibleElements(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("render visible elements: %w", err))
	}
	page = TruncatePage(page, s.config.MaxPageChars, s.config.MaxPageLines)
	prompt := BuildUserPrompt(page, s.history.Render(), s.document.Render(), objective)

	reply, err := s.collab.Oracle.Decide(ctx, s.system, prompt)
	if err != nil {
		return s.fail(err)
	}
	if reply == nil {
		return s.fail(errors.New("oracle returned no reply"))
	}

	raw := strings.TrimSpace(reply.Command + " " + strings.Join(reply.Args, " "))
	s.logger.Debug("oracle decided",
		zap.Int("turn", turn),
		zap.String("command", reply.Command),
		zap.Strings("args", reply.Args),
		zap.String("rationale", reply.Rationale))
	s.emitter.Emit(SessionEvent{Kind: EventAction, Turn: turn, Rationale: reply.Rationale, Command: raw})

	if err := s.record(ctx,
		memory.NewMessage(memory.RoleAgent, reply.Rationale),
		memory.NewMessage(memory.RoleAgent, raw),
	); err != nil {
		return s.fail(err)
	}

	if _, err := s.Apply(ctx, reply.Command, reply.Args); err != nil {
		return err
	}
	return s.detectLoop(ctx, reply.Command, reply.Args)
}

// Apply dispatches a single command outside the oracle loop and records its
// feedback in the history. Step uses it after recording the oracle's reply.
func (s *Session) Apply(ctx context.Context, command string, args []string) (Outcome, error) {
	if err := s.checkOpen(); err != nil {
		return Outcome{}, err
	}
	outcome, err := s.dispatcher.Dispatch(ctx, command, args)
	if err != nil {
		return Outcome{}, s.fail(err)
	}
	if err := s.record(ctx, outcome.Messages...); err != nil {
		return Outcome{}, s.fail(err)
	}

	turn := s.State().Turn
	for _, m := range outcome.Messages {
		s.emitter.Emit(SessionEvent{Kind: EventFeedback, Turn: turn, Role: m.Role, Content: m.Content})
	}
	if outcome.Terminal {
		s.mu.Lock()
		s.state.Terminal = true
		s.mu.Unlock()
		s.emitter.Emit(SessionEvent{Kind: EventTerminal, Turn: turn, Content: outcome.Messages[0].Content})
	}
	return outcome, nil
}

// Reset clears the history, the document and the loop state, and resets the
// actuator when it supports it.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.history.Reset()
	s.document.Reset()
	s.mu.Lock()
	s.state = LoopState{}
	s.signatures = nil
	s.mu.Unlock()

	if r, ok := s.collab.Actuator.(Resetter); ok {
		if err := r.Reset(ctx); err != nil {
			return s.fail(fmt.Errorf("reset actuator: %w", err))
		}
	}
	s.emitter.Emit(SessionEvent{Kind: EventReset})
	return nil
}

// Close terminates the session and closes the event stream. Safe to call
// multiple times.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	state := s.state
	s.mu.Unlock()

	s.emitter.Emit(SessionEvent{Kind: EventSessionEnd, Turn: state.Turn, Terminal: state.Terminal})
	if n := s.emitter.Dropped(); n > 0 {
		s.logger.Warn("events dropped on a full buffer", zap.Int64("dropped", n))
	}
	s.emitter.Close()
}

// record inserts messages into the history in order.
func (s *Session) record(ctx context.Context, messages ...memory.Message) error {
	for _, m := range messages {
		if err := s.history.Insert(ctx, m); err != nil {
			return fmt.Errorf("record %s message: %w", m.Role, err)
		}
	}
	return nil
}

// detectLoop remembers the command and warns the oracle when the recent
// commands repeat. The window starts over after a warning.
func (s *Session) detectLoop(ctx context.Context, command string, args []string) error {
	window := s.config.LoopDetectionWindow
	if !s.config.EnableLoopDetection || window <= 0 {
		return nil
	}

	s.mu.Lock()
	if s.state.Terminal {
		s.mu.Unlock()
		return nil
	}
	s.signatures = append(s.signatures, actionSignature(command, args))
	if len(s.signatures) > window {
		s.signatures = s.signatures[len(s.signatures)-window:]
	}
	looping := DetectLoop(s.signatures, window)
	if looping {
		s.signatures = nil
	}
	s.mu.Unlock()

	if !looping {
		return nil
	}
	warning := loopWarning(window)
	s.logger.Warn("loop detected", zap.Int("window", window))
	s.emitter.Emit(SessionEvent{Kind: EventLoopDetection, Turn: s.State().Turn, Content: warning})
	if err := s.record(ctx, memory.NewMessage(memory.RoleAgent, warning)); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// fail logs and reports a fatal error, then returns it unchanged.
func (s *Session) fail(err error) error {
	s.logger.Error("turn failed", zap.Error(err))
	s.emitter.Emit(SessionEvent{Kind: EventError, Turn: s.State().Turn, Err: err.Error()})
	return err
}
