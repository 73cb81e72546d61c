package mw

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordedRequest struct {
	route  string
	status int
}

type fakeRecorder struct {
	mu  sync.Mutex
	got []recordedRequest
}

func (f *fakeRecorder) RecordRequest(route string, status int, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, recordedRequest{route: route, status: status})
}

func (f *fakeRecorder) snapshot() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.got...)
}

func TestMetrics_LabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/interviews/{id}/finalize", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := &fakeRecorder{}
	h := Metrics(rec, mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/interviews/sess_1/finalize", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	if len(rec.got) != 2 {
		t.Fatalf("recorded=%d, want 2", len(rec.got))
	}
	if rec.got[0].route != "POST /v1/interviews/{id}/finalize" || rec.got[0].status != http.StatusNotFound {
		t.Fatalf("first=%+v", rec.got[0])
	}
	if rec.got[1].route != "unmatched" {
		t.Fatalf("second route=%q, want unmatched", rec.got[1].route)
	}
}

func TestMetrics_NilRecorderPassesThrough(t *testing.T) {
	next := okHandler()
	if got := Metrics(nil, next); got == nil {
		t.Fatalf("expected handler")
	}
}
