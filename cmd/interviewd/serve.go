package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/interview-live/pkg/core/evaluation"
	"github.com/vango-go/interview-live/pkg/core/interview"
	"github.com/vango-go/interview-live/pkg/core/planner"
	"github.com/vango-go/interview-live/pkg/core/storage"
	"github.com/vango-go/interview-live/pkg/core/storage/pending"
	"github.com/vango-go/interview-live/pkg/gateway/config"
	"github.com/vango-go/interview-live/pkg/gateway/metrics"
	gatewayserver "github.com/vango-go/interview-live/pkg/gateway/server"
)

const drainingNotice = "server_draining"

type serveDeps struct {
	openBackend  func(context.Context, config.Config, *slog.Logger) (*backend, error)
	openPending  func(context.Context, config.Config) (parkedStore, func(), error)
	newAI        func(context.Context, config.Config) (aiServices, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServeDeps() serveDeps {
	return serveDeps{
		openBackend: openBackend,
		openPending: openPending,
		newAI:       newAIServices,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the interview HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, logger, defaultServeDeps())
		},
	}
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger, deps serveDeps) error {
	if deps.openBackend == nil || deps.openPending == nil || deps.newAI == nil {
		return errors.New("missing serve dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.CheckServe(); err != nil {
		return err
	}

	be, err := deps.openBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer be.Close()

	parked, closePending, err := deps.openPending(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open pending store: %w", err)
	}
	defer closePending()

	ai, err := deps.newAI(ctx, cfg)
	if err != nil {
		return err
	}
	var generator evaluation.QuestionGenerator
	if cfg.Gemini.GenerateQuestions {
		generator = ai.Generator
	}

	manager := interview.NewManager(cfg.SessionConfig(), interview.Dependencies{
		Planner:   &planner.Planner{Generator: generator, Logger: logger},
		Dialer:    ai.Dialer,
		Evaluator: ai.Evaluator,
		Logger:    logger,
	})

	srvDeps := gatewayserver.Dependencies{
		Manager:      manager,
		Applications: be.Applications,
		Screenings:   be.Screenings,
		Logger:       logger,
	}
	if parked != nil {
		srvDeps.Pending = parked
	}
	gw := gatewayserver.New(cfg, srvDeps)
	httpSrv := gw.HTTPServer()

	logger.Info("starting interview gateway",
		"addr", cfg.Server.Addr,
		"storage_backend", string(cfg.Storage.Backend),
		"live_model", cfg.Gemini.LiveModel,
		"pending_store", parked != nil,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	pruneCtx, stopPrune := context.WithCancel(context.Background())
	defer stopPrune()
	settle := settleExpired(pruneCtx, be.Screenings, parked, cfg.Server.HandlerTimeout, gw.Metrics(), logger)
	go pruneClosedSessions(pruneCtx, manager, cfg.Server.SessionRetention, settle, logger)

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		manager.CloseAll()
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.Lifecycle().BeginDrain()
	notified := gw.Tracker().NotifyAll(drainingNotice)
	logger.Info("draining", "live_connections", gw.Tracker().Count(), "notified", notified)

	grace := cfg.Server.ShutdownGracePeriod
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), grace)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}

	// Hijacked websocket connections are not covered by Shutdown.
	canceled := gw.Tracker().CancelAll()
	closed := manager.CloseAll()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), grace)
	defer waitCancel()
	if !gw.Tracker().Wait(waitCtx) {
		logger.Warn("live connections did not drain before the grace period", "remaining", gw.Tracker().Count())
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("interview gateway stopped", "connections_canceled", canceled, "sessions_closed", closed)
	return nil
}

// pruneClosedSessions drops sessions that closed more than retention ago.
// Unfinalized ones go through settle first.
func pruneClosedSessions(ctx context.Context, m *interview.Manager, retention time.Duration, settle func(*interview.Session) bool, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	interval := retention / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := m.PruneClosed(now.Add(-retention), settle); len(removed) > 0 {
				logger.Info("pruned closed sessions", "count", len(removed), "session_ids", removed)
			}
		}
	}
}

// settleExpired finalizes an expired session and parks its record when the
// write fails. It reports false, keeping the session registered, when the
// record could be neither stored nor parked.
func settleExpired(ctx context.Context, w storage.ScreeningWriter, parked parkedStore, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) func(*interview.Session) bool {
	return func(sess *interview.Session) bool {
		logger := logger.With("session_id", sess.ID())
		ctx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		result, err := sess.Finalize(ctx, w)
		if errors.Is(err, interview.ErrFinalized) {
			return true
		}
		if err == nil {
			m.RecordFinalized(result.Persist.String())
			logger.Info("finalized expired session", "screening_id", result.ScreeningID, "persist", result.Persist.String())
			return true
		}
		m.RecordFinalized("failed")

		var persistErr *interview.PersistenceError
		if !errors.As(err, &persistErr) || parked == nil {
			logger.Error("expired session not persisted, keeping it", "error", err)
			return false
		}
		rec, ok := sess.PendingRecord()
		if !ok {
			return false
		}
		err = parked.Park(ctx, pending.Parked{
			SessionID: sess.ID(),
			Record:    rec,
			Reason:    persistErr.Error(),
			ParkedAt:  time.Now().UTC(),
		})
		if err != nil {
			logger.Error("failed to park expired session, keeping it", "screening_id", rec.ID, "error", err)
			return false
		}
		m.RecordParked()
		logger.Warn("parked expired session for replay", "screening_id", rec.ID)
		return true
	}
}
