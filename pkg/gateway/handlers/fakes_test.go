package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/interview-live/pkg/core/engine"
	"github.com/vango-go/interview-live/pkg/core/interview"
	"github.com/vango-go/interview-live/pkg/core/profile"
	"github.com/vango-go/interview-live/pkg/core/storage"
	"github.com/vango-go/interview-live/pkg/core/storage/pending"
	"github.com/vango-go/interview-live/pkg/gateway/config"
	"github.com/vango-go/interview-live/pkg/gateway/lifecycle"
	"github.com/vango-go/interview-live/pkg/gateway/live/bridge"
	"github.com/vango-go/interview-live/pkg/gateway/metrics"
)

type idleStream struct {
	once   sync.Once
	closed chan struct{}
}

func newIdleStream() *idleStream { return &idleStream{closed: make(chan struct{})} }

func (s *idleStream) Send(context.Context, string, bool) error { return nil }

func (s *idleStream) Receive(ctx context.Context) (engine.Event, error) {
	select {
	case <-s.closed:
		return engine.Event{}, engine.ErrStreamClosed
	case <-ctx.Done():
		return engine.Event{}, ctx.Err()
	}
}

func (s *idleStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fixedPlanner []string

func (p fixedPlanner) Plan(context.Context, profile.ApplicationContext, int) []string {
	return append([]string(nil), p...)
}

type stubApplications struct {
	records map[string]map[string]any
	err     error
}

func (s stubApplications) GetApplication(_ context.Context, id string) (map[string]any, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	return rec, nil
}

type stubWriter struct {
	mu      sync.Mutex
	errs    []error
	records []storage.ScreeningRecord
}

func (w *stubWriter) InsertScreening(_ context.Context, rec storage.ScreeningRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		if err != nil {
			return err
		}
	}
	w.records = append(w.records, rec)
	return nil
}

type stubPending struct {
	mu      sync.Mutex
	parked  []pending.Parked
	deleted []string
}

func (p *stubPending) Park(_ context.Context, parked pending.Parked) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parked = append(p.parked, parked)
	return nil
}

func (p *stubPending) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return nil
}

var errDial = errors.New("engine unavailable")

type harness struct {
	cfg       config.Config
	manager   *interview.Manager
	writer    *stubWriter
	pending   *stubPending
	lifecycle *lifecycle.Lifecycle
	tracker   *bridge.Tracker
	metrics   *metrics.Metrics
	mux       *http.ServeMux
	apps      stubApplications
}

type harnessOptions struct {
	dialErr error
	appsErr error
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.Storage.SupabaseURL = "https://example.supabase.co"
	cfg.Storage.SupabaseKey = "service-role"
	cfg.Interview.Greeting = ""
	cfg.Interview.AutoCloseDelay = time.Hour
	cfg.Server.WSPingInterval = time.Second
	cfg.Server.WSWriteTimeout = time.Second

	var n int
	var idMu sync.Mutex
	manager := interview.NewManager(cfg.SessionConfig(), interview.Dependencies{
		Planner: fixedPlanner{"Tell me about a system you built.", "How do you handle incidents?"},
		Dialer: engine.DialerFunc(func(context.Context) (engine.Stream, error) {
			if opts.dialErr != nil {
				return nil, opts.dialErr
			}
			return newIdleStream(), nil
		}),
		Logger: logger,
		NewID: func() string {
			idMu.Lock()
			defer idMu.Unlock()
			n++
			return fmt.Sprintf("id_%d", n)
		},
	})

	h := &harness{
		cfg:       cfg,
		manager:   manager,
		writer:    &stubWriter{},
		pending:   &stubPending{},
		lifecycle: &lifecycle.Lifecycle{},
		tracker:   bridge.NewTracker(),
		metrics:   metrics.New("test"),
		apps: stubApplications{
			err: opts.appsErr,
			records: map[string]map[string]any{
				"app_1": {
					"id": "app_1",
					"candidates": map[string]any{
						"name":        "Ada Lovelace",
						"email":       "ada@example.com",
						"parsed_data": map[string]any{"skills": []any{"go", "postgres"}},
					},
					"jobs": map[string]any{"title": "Backend Engineer"},
				},
			},
		},
	}

	interviews := InterviewsHandler{
		Config:       cfg,
		Manager:      manager,
		Applications: h.apps,
		Screenings:   h.writer,
		Pending:      h.pending,
		Lifecycle:    h.lifecycle,
		Metrics:      h.metrics,
		Logger:       logger,
	}
	h.mux = http.NewServeMux()
	h.mux.HandleFunc("POST /v1/interviews", interviews.Create)
	h.mux.HandleFunc("POST /v1/interviews/{id}/finalize", interviews.Finalize)
	h.mux.Handle("GET /v1/interviews/{id}/live", LiveHandler{
		Config:    cfg,
		Manager:   manager,
		Tracker:   h.tracker,
		Lifecycle: h.lifecycle,
		Metrics:   h.metrics,
		Logger:    logger,
	})
	t.Cleanup(func() { manager.CloseAll() })
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rr := httptest.NewRecorder()
	h.mux.ServeHTTP(rr, req)
	return rr
}

func (h *harness) create(t *testing.T) string {
	t.Helper()
	rr := h.do(t, http.MethodPost, "/v1/interviews", `{"application_id":"app_1","question_count":2}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("create status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatalf("empty session_id")
	}
	return resp.SessionID
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Param   string `json:"param"`
		Code    string `json:"code"`
	} `json:"error"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body %q: %v", rr.Body.String(), err)
	}
	return body
}
