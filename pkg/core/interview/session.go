// Package interview runs live spoken interview sessions: question dispatch,
// follow-up decisions, transcript capture, and finalization into a stored
// screening.
package interview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/interview-live/pkg/core/engine"
	"github.com/vango-go/interview-live/pkg/core/profile"
	"github.com/vango-go/interview-live/pkg/core/storage"
)

type State int

const (
	StateCreated State = iota
	StateConnecting
	StateActive
	StateClosing
	StateClosed
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// CandidateTurn is one candidate utterance, partial or final. Seq, when
// positive, orders partial fragments of the same utterance.
type CandidateTurn struct {
	Text    string
	IsFinal bool
	Source  string
	Seq     int64
}

type Session struct {
	id           string
	appCtx       profile.ApplicationContext
	cfg          Config
	deps         Dependencies
	logger       *slog.Logger
	createdAt    time.Time
	maxQuestions int
	queue        *EventQueue

	// turnMu serializes connect and candidate turns so the cursor and
	// follow-up counters are only advanced by one flow at a time.
	turnMu sync.Mutex

	// sendMu serializes writes to the engine stream.
	sendMu sync.Mutex

	mu                 sync.Mutex
	state              State
	closedAt           time.Time
	stream             engine.Stream
	questions          []string
	prepared           bool
	cursor             int
	awaitingAnswer     bool
	// retryQuestion is set when dispatching questions[cursor] failed; the
	// next final answer retries it.
	retryQuestion      bool
	closingDispatched  bool
	finalizeSignalSent bool
	followups          map[int]int
	lastAnswerWords    int
	partial            string
	partialSeq         int64
	transcript         []TranscriptItem
	timeline           []TimelineEvent
	history            []Exchange

	ctx     context.Context
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
	timerWG sync.WaitGroup
	done    chan struct{}

	finalizeMu sync.Mutex
	result     *FinalizationResult
	record     *storage.ScreeningRecord
}

func newSession(appCtx profile.ApplicationContext, maxQuestions int, cfg Config, deps Dependencies) *Session {
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()
	if maxQuestions < 1 {
		maxQuestions = 1
	}
	id := deps.NewID()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:           id,
		appCtx:       appCtx,
		cfg:          cfg,
		deps:         deps,
		logger:       deps.Logger.With("session_id", id, "application_id", appCtx.ApplicationID),
		createdAt:    deps.Now().UTC(),
		maxQuestions: maxQuestions,
		queue:        NewEventQueue(cfg.EventQueueSize),
		followups:    make(map[int]int),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) MaxQuestions() int { return s.maxQuestions }

func (s *Session) Context() profile.ApplicationContext { return s.appCtx }

// Events is the outbound queue drained by the transport bridge.
func (s *Session) Events() *EventQueue { return s.queue }

// Done is closed once the session has been closed and its background tasks
// have stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the engine connection is open.
func (s *Session) Active() bool {
	st := s.State()
	return st == StateActive || st == StateClosing
}

func (s *Session) ClosedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closedAt
}

func (s *Session) Questions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.questions...)
}

// Cursor is the number of primary questions dispatched so far.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Session) AwaitingAnswer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingAnswer
}

func (s *Session) ClosingDispatched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closingDispatched
}

// FollowupCount returns the follow-ups issued for the question at index.
func (s *Session) FollowupCount(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.followups[index]
}

func (s *Session) Transcript() []TranscriptItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TranscriptItem(nil), s.transcript...)
}

func (s *Session) Timeline() []TimelineEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TimelineEvent(nil), s.timeline...)
}

func (s *Session) History() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Exchange(nil), s.history...)
}

// Prepare builds the question list once.
func (s *Session) Prepare(ctx context.Context) {
	s.mu.Lock()
	if s.prepared {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	var questions []string
	if s.deps.Planner != nil {
		questions = s.deps.Planner.Plan(ctx, s.appCtx, s.maxQuestions)
	}
	questions = cleanQuestions(questions, s.maxQuestions)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prepared {
		return
	}
	s.questions = questions
	s.prepared = true
	s.logger.Debug("session prepared", "questions", len(questions))
}

func cleanQuestions(in []string, limit int) []string {
	out := make([]string, 0, len(in))
	for _, q := range in {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Connect opens the engine stream, primes it, starts the receive loop and
// dispatches the first question. It is a no-op once connected.
func (s *Session) Connect(ctx context.Context) error {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateActive, StateClosing:
		s.mu.Unlock()
		return nil
	case StateClosed, StateFinalized:
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.deps.Dialer == nil {
		s.mu.Unlock()
		return &SessionError{SessionID: s.id, Op: "connect", Err: errors.New("no engine dialer configured")}
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.Prepare(ctx)
	s.logger.Info("opening engine stream")
	stream, err := s.deps.Dialer.Dial(ctx)
	if err != nil {
		s.mu.Lock()
		if s.state == StateConnecting {
			s.state = StateCreated
		}
		s.mu.Unlock()
		s.logger.Error("engine connect failed", "error", err)
		return &SessionError{SessionID: s.id, Op: "connect", Err: err}
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		_ = stream.Close()
		return ErrSessionClosed
	}
	s.stream = stream
	s.state = StateActive
	s.mu.Unlock()

	s.prime(ctx)

	s.loopWG.Add(1)
	go s.receiveLoop(stream)

	if err := s.sendNextQuestion(ctx); err != nil {
		s.logger.Warn("failed to dispatch first question", "error", err)
	}
	s.queue.Push(StatusEvent(StatusSessionStarted, s.id))
	return nil
}

func (s *Session) prime(ctx context.Context) {
	s.mu.Lock()
	planned := len(s.questions)
	s.mu.Unlock()
	payload := primingPrompt(s.cfg.Greeting, s.appCtx, planned)
	if payload == "" {
		return
	}
	if err := s.send(ctx, payload, false); err != nil {
		s.logger.Warn("failed to prime engine", "error", err)
	}
}

func (s *Session) send(ctx context.Context, text string, endOfTurn bool) error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return ErrSessionClosed
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return stream.Send(ctx, text, endOfTurn)
}

func (s *Session) receiveLoop(stream engine.Stream) {
	defer s.loopWG.Done()
	defer s.queue.Push(StatusEvent(StatusStreamClosed, s.id))

	for {
		ev, err := stream.Receive(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, engine.ErrStreamClosed) {
				s.logger.Debug("receive loop stopped")
				return
			}
			s.logger.Error("engine receive failed", "error", err)
			msg := err.Error()
			if msg == "" {
				msg = "engine stream failed"
			}
			s.queue.Push(ErrorEvent(msg))
			return
		}
		if len(ev.Audio) > 0 {
			s.queue.Push(AudioChunkEvent(ev.Audio, s.cfg.OutputSampleRate))
		}
		if text := strings.TrimSpace(ev.Text); text != "" {
			now := s.deps.Now().UTC()
			s.mu.Lock()
			s.appendLocked(RoleAssistant, TimelineAssistantMessage, text, now, nil)
			s.mu.Unlock()
			s.queue.Push(TranscriptEvent(RoleAssistant, text, now))
		}
	}
}

// appendLocked records a transcript entry and its timeline event. Callers
// hold s.mu.
func (s *Session) appendLocked(role, timelineType, text string, at time.Time, meta map[string]any) {
	s.transcript = append(s.transcript, TranscriptItem{Role: role, Text: text, Timestamp: at})
	s.timeline = append(s.timeline, TimelineEvent{Type: timelineType, Role: role, Text: text, Timestamp: at, Metadata: meta})
}

// Close tears the session down. Subsequent calls are no-ops.
func (s *Session) Close() {
	s.close(true)
}

func (s *Session) close(waitTimers bool) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateFinalized {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.closedAt = s.deps.Now().UTC()
	s.awaitingAnswer = false
	s.partial = ""
	s.partialSeq = 0
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	s.logger.Info("closing session")
	s.cancel()
	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Debug("engine stream close error", "error", err)
		}
	}
	s.loopWG.Wait()
	if waitTimers {
		s.timerWG.Wait()
	}
	s.queue.Push(StatusEvent(StatusSessionClosed, s.id))
	close(s.done)
	s.logger.Debug("session cleanup complete")
}

// sleep waits for d unless the session is closed first.
func (s *Session) sleep(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
