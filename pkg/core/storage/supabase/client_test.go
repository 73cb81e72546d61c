package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-go/interview-live/pkg/core/storage"
)

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Fatalf("expected error for missing URL")
	}
	if _, err := New(Config{URL: "http://localhost"}); err == nil {
		t.Fatalf("expected error for missing API key")
	}
}

func TestClassify_SchemaCacheColumn(t *testing.T) {
	err := classify(errors.New("(PGRST204) Could not find the 'communication_score' column of 'screenings' in the schema cache"))
	var se *storage.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err=%T %v, want *storage.SchemaError", err, err)
	}
	if se.Code != "PGRST204" || se.Column != "communication_score" {
		t.Fatalf("code=%q column=%q", se.Code, se.Column)
	}
	if !errors.Is(err, storage.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch")
	}
}

func TestClassify_UndefinedColumn(t *testing.T) {
	err := classify(errors.New(`(42703) column "overall_score" of relation "screenings" does not exist`))
	var se *storage.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err=%v, want schema error", err)
	}
	if se.Column != "overall_score" {
		t.Fatalf("column=%q, want overall_score", se.Column)
	}
}

func TestClassify_OtherErrorsPassThrough(t *testing.T) {
	orig := errors.New("(23505) duplicate key value violates unique constraint")
	if got := classify(orig); got != orig {
		t.Fatalf("classify changed non-schema error: %v", got)
	}
	plain := errors.New("dial tcp: connection refused")
	if got := classify(plain); got != plain {
		t.Fatalf("classify changed plain error: %v", got)
	}
	if err := classify(errors.New("(PGRST116) JSON object requested, multiple (or no) rows returned")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestClassify_MentionOfScoreColumnWithoutCodeIsNotSchemaError(t *testing.T) {
	err := classify(errors.New("request failed while writing communication_score"))
	if errors.Is(err, storage.ErrSchemaMismatch) {
		t.Fatalf("free-text column mention must not be classified as schema mismatch")
	}
}

func TestGetApplication_OverHTTP(t *testing.T) {
	var gotPath, gotSelect string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSelect = r.URL.Query().Get("select")
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.RawQuery, "missing") {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"app_1","candidates":{"name":"Ada"},"jobs":{"title":"SRE"}}]`))
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	rec, err := c.GetApplication(context.Background(), "app_1")
	if err != nil {
		t.Fatalf("GetApplication error: %v", err)
	}
	if rec["id"] != "app_1" {
		t.Fatalf("id=%v", rec["id"])
	}
	if !strings.HasSuffix(gotPath, "/applications") {
		t.Fatalf("path=%q, want suffix /applications", gotPath)
	}
	if !strings.Contains(gotSelect, "candidates(*)") {
		t.Fatalf("select=%q, want candidates relation", gotSelect)
	}

	if _, err := c.GetApplication(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestInsertScreening_MergesOnID(t *testing.T) {
	var gotPrefer, gotConflict string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		gotConflict = r.URL.Query().Get("on_conflict")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := c.InsertScreening(context.Background(), storage.ScreeningRecord{ID: "scr_1", ApplicationID: "app_1"}); err != nil {
		t.Fatalf("InsertScreening error: %v", err)
	}
	if !strings.Contains(gotPrefer, "resolution=merge-duplicates") || gotConflict != "id" {
		t.Fatalf("prefer=%q on_conflict=%q, want merge on id", gotPrefer, gotConflict)
	}
}

func TestClient_CanceledContextSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.GetApplication(ctx, "app_1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("GetApplication err=%v, want context.Canceled", err)
	}
	if err := c.InsertScreening(ctx, storage.ScreeningRecord{ID: "scr_1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("InsertScreening err=%v, want context.Canceled", err)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("requests=%d, want 0", n)
	}
}

func TestClient_DeadlineUnblocksSlowRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(Config{URL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = c.InsertScreening(ctx, storage.ScreeningRecord{ID: "scr_1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want context.DeadlineExceeded", err)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("returned after %v, want prompt return on deadline", d)
	}
}
