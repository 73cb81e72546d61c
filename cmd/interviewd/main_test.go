package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/interview-live/pkg/core/storage"
	"github.com/vango-go/interview-live/pkg/core/storage/pending"
	"github.com/vango-go/interview-live/pkg/gateway/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	want := map[string]bool{"serve": false, "migrate": false, "replay-pending": false, "version": false}
	for _, c := range cmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if code := execute(cmd, io.Discard); code != 0 {
		t.Fatalf("exit=%d", code)
	}
	if !strings.HasPrefix(out.String(), "interviewd dev (commit: none") {
		t.Fatalf("output=%q", out.String())
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"nope"})
	var stderr bytes.Buffer
	if code := execute(cmd, &stderr); code != 1 {
		t.Fatalf("exit=%d, want 1", code)
	}
	if !strings.HasPrefix(stderr.String(), "interviewd: ") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	opts := &rootOptions{logLevel: "debug", logFormat: "json"}
	logger, err := opts.newLogger(&buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("hello", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("json output=%q", buf.String())
	}

	if _, err := (&rootOptions{logLevel: "loud"}).newLogger(io.Discard); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if _, err := (&rootOptions{logLevel: "info", logFormat: "xml"}).newLogger(io.Discard); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestRunMigrate_RequiresPostgres(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.SupabaseURL = "https://example.supabase.co"
	cfg.Storage.SupabaseKey = "key"
	err := runMigrate(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "postgres") {
		t.Fatalf("err=%v, want postgres backend error", err)
	}

	cfg.Storage.Backend = config.BackendPostgres
	if err := runMigrate(context.Background(), cfg); err == nil {
		t.Fatalf("expected missing database_url error")
	}
}

type fakeParked struct {
	mu      sync.Mutex
	items   []pending.Parked
	deleted []string
}

func (f *fakeParked) Park(ctx context.Context, p pending.Parked) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, p)
	return nil
}

func (f *fakeParked) List(ctx context.Context) ([]pending.Parked, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pending.Parked(nil), f.items...), nil
}

func (f *fakeParked) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeWriter struct {
	fail map[string]bool
	got  []string
}

func (w *fakeWriter) InsertScreening(ctx context.Context, rec storage.ScreeningRecord) error {
	w.got = append(w.got, rec.ID)
	if w.fail[rec.ID] {
		return errors.New("connection refused")
	}
	return nil
}

func parkedFixture() *fakeParked {
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return &fakeParked{items: []pending.Parked{
		{SessionID: "sess_1", Record: storage.ScreeningRecord{ID: "scr_1", ApplicationID: "app_1"}, Reason: "timeout", ParkedAt: at},
		{SessionID: "sess_2", Record: storage.ScreeningRecord{ID: "scr_2", ApplicationID: "app_2"}, Reason: "timeout", ParkedAt: at},
	}}
}

func TestRunReplay_PersistsAndUnparks(t *testing.T) {
	parked := parkedFixture()
	w := &fakeWriter{}
	var out bytes.Buffer
	if err := runReplay(context.Background(), &out, parked, w, discardLogger(), false); err != nil {
		t.Fatalf("runReplay: %v", err)
	}
	if len(w.got) != 2 {
		t.Fatalf("writes=%v, want 2", w.got)
	}
	if strings.Join(parked.deleted, ",") != "scr_1,scr_2" {
		t.Fatalf("deleted=%v", parked.deleted)
	}
	if !strings.Contains(out.String(), "scr_1\tpersisted") {
		t.Fatalf("output=%q", out.String())
	}
}

func TestRunReplay_ReportsFailures(t *testing.T) {
	parked := parkedFixture()
	w := &fakeWriter{fail: map[string]bool{"scr_2": true}}
	var out bytes.Buffer
	err := runReplay(context.Background(), &out, parked, w, discardLogger(), false)
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("err=%v, want 1 of 2 failed", err)
	}
	if strings.Join(parked.deleted, ",") != "scr_1" {
		t.Fatalf("deleted=%v, want only scr_1", parked.deleted)
	}
}

func TestRunReplay_DryRun(t *testing.T) {
	parked := parkedFixture()
	w := &fakeWriter{}
	var out bytes.Buffer
	if err := runReplay(context.Background(), &out, parked, w, discardLogger(), true); err != nil {
		t.Fatalf("runReplay: %v", err)
	}
	if len(w.got) != 0 || len(parked.deleted) != 0 {
		t.Fatalf("dry run wrote=%v deleted=%v", w.got, parked.deleted)
	}
	if !strings.Contains(out.String(), "session=sess_1") {
		t.Fatalf("output=%q", out.String())
	}
}

func TestRunReplay_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := runReplay(context.Background(), &out, &fakeParked{}, &fakeWriter{}, discardLogger(), false); err != nil {
		t.Fatalf("runReplay: %v", err)
	}
	if strings.TrimSpace(out.String()) != "no parked screenings" {
		t.Fatalf("output=%q", out.String())
	}
}

func fakeServeDeps(closed *bool) serveDeps {
	return serveDeps{
		openBackend: func(context.Context, config.Config, *slog.Logger) (*backend, error) {
			return &backend{Close: func() { *closed = true }}, nil
		},
		openPending: func(context.Context, config.Config) (parkedStore, func(), error) {
			return nil, func() {}, nil
		},
		newAI: func(context.Context, config.Config) (aiServices, error) {
			return aiServices{}, nil
		},
		signalNotify: func(chan<- os.Signal, ...os.Signal) {},
		signalStop:   func(chan<- os.Signal) {},
	}
}

func TestRunServe_RequiresCredentials(t *testing.T) {
	var closed bool
	err := runServe(context.Background(), config.Default(), discardLogger(), fakeServeDeps(&closed))
	if err == nil || !strings.Contains(err.Error(), "gemini api key") {
		t.Fatalf("err=%v, want missing api key", err)
	}
}

func TestRunServe_StopsOnContextCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownGracePeriod = 2 * time.Second
	cfg.Gemini.APIKey = "test-key"
	cfg.Storage.SupabaseURL = "https://example.supabase.co"
	cfg.Storage.SupabaseKey = "key"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var closed bool
	if err := runServe(ctx, cfg, discardLogger(), fakeServeDeps(&closed)); err != nil {
		t.Fatalf("runServe: %v", err)
	}
	if !closed {
		t.Fatalf("expected backend to be closed")
	}
}

func TestRunServe_BackendError(t *testing.T) {
	cfg := config.Default()
	cfg.Gemini.APIKey = "test-key"
	cfg.Storage.SupabaseURL = "https://example.supabase.co"
	cfg.Storage.SupabaseKey = "key"

	var closed bool
	deps := fakeServeDeps(&closed)
	deps.openBackend = func(context.Context, config.Config, *slog.Logger) (*backend, error) {
		return nil, errors.New("dial tcp: refused")
	}
	err := runServe(context.Background(), cfg, discardLogger(), deps)
	if err == nil || !strings.Contains(err.Error(), "open storage") {
		t.Fatalf("err=%v", err)
	}
}
