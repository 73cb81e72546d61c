package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/interview-live/pkg/core/engine"
	"github.com/vango-go/interview-live/pkg/core/evaluation"
	"github.com/vango-go/interview-live/pkg/core/profile"
	"github.com/vango-go/interview-live/pkg/core/storage"
)

type sentMessage struct {
	text      string
	endOfTurn bool
}

type fakeStream struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr error

	events  chan engine.Event
	recvErr chan error

	closeOnce sync.Once
	closed    chan struct{}
	closes    int
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events:  make(chan engine.Event, 16),
		recvErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (f *fakeStream) Send(_ context.Context, text string, endOfTurn bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{text: text, endOfTurn: endOfTurn})
	return nil
}

func (f *fakeStream) Receive(ctx context.Context) (engine.Event, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	case err := <-f.recvErr:
		return engine.Event{}, err
	case <-f.closed:
		return engine.Event{}, engine.ErrStreamClosed
	case <-ctx.Done():
		return engine.Event{}, ctx.Err()
	}
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStream) setSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *fakeStream) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeDialer struct {
	mu     sync.Mutex
	stream *fakeStream
	err    error
	dials  int
}

func (d *fakeDialer) Dial(context.Context) (engine.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

type fixedPlanner struct {
	questions []string
}

func (p fixedPlanner) Plan(_ context.Context, _ profile.ApplicationContext, limit int) []string {
	out := append([]string(nil), p.questions...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

type fakeEvaluator struct {
	mu    sync.Mutex
	ev    evaluation.Evaluation
	err   error
	calls int
}

func (f *fakeEvaluator) Evaluate(context.Context, []string, []string) (evaluation.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.ev, f.err
}

type fakeWriter struct {
	mu      sync.Mutex
	errs    []error
	records []storage.ScreeningRecord
}

func (w *fakeWriter) InsertScreening(_ context.Context, rec storage.ScreeningRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, rec)
	if len(w.errs) == 0 {
		return nil
	}
	err := w.errs[0]
	w.errs = w.errs[1:]
	return err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var defaultQuestions = []string{"Question one?", "Question two?", "Question three?", "Question four?"}

type harness struct {
	stream *fakeStream
	dialer *fakeDialer
	eval   *fakeEvaluator
	clock  *fakeClock
	cfg    Config
	deps   Dependencies
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	stream := newFakeStream()
	h := &harness{
		stream: stream,
		dialer: &fakeDialer{stream: stream},
		eval:   &fakeEvaluator{ev: evaluation.Evaluation{CommunicationScore: 80, DomainKnowledgeScore: 81, OverallScore: 82, Summary: "good"}},
		clock:  newFakeClock(),
	}
	cfg := DefaultConfig()
	cfg.FinalizeGrace = 0
	cfg.AutoCloseDelay = time.Hour
	cfg.MinAnswerWords = 30
	cfg.MaxFollowupsPerQuestion = 1
	if mutate != nil {
		mutate(&cfg)
	}
	h.cfg = cfg

	var n int
	var idMu sync.Mutex
	h.deps = Dependencies{
		Planner:   fixedPlanner{questions: defaultQuestions},
		Dialer:    h.dialer,
		Evaluator: h.eval,
		Now:       h.clock.Now,
		NewID: func() string {
			idMu.Lock()
			defer idMu.Unlock()
			n++
			return fmt.Sprintf("id_%d", n)
		},
	}
	return h
}

func (h *harness) session(t *testing.T, maxQuestions int) *Session {
	t.Helper()
	s := newSession(profile.ApplicationContext{ApplicationID: "app_1", CandidateName: "Ada", JobTitle: "SRE"}, maxQuestions, h.cfg, h.deps)
	t.Cleanup(s.Close)
	return s
}

func (h *harness) connected(t *testing.T, maxQuestions int) *Session {
	t.Helper()
	s := h.session(t, maxQuestions)
	s.Prepare(context.Background())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	return s
}

func answer(t *testing.T, s *Session, words int) {
	t.Helper()
	if err := s.HandleCandidateTurn(context.Background(), CandidateTurn{Text: nWords(words), IsFinal: true}); err != nil {
		t.Fatalf("HandleCandidateTurn error: %v", err)
	}
}

func nWords(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func drain(q *EventQueue) []Event {
	var out []Event
	for {
		ev, ok := q.TryPop()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func countTimeline(s *Session, typ string) int {
	n := 0
	for _, ev := range s.Timeline() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func countStatus(events []Event, message string) int {
	n := 0
	for _, ev := range events {
		if ev.Type == EventStatus && ev.Message == message {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

var errBoom = errors.New("boom")
