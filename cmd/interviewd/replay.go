package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vango-go/interview-live/pkg/core/interview"
	"github.com/vango-go/interview-live/pkg/core/storage"
)

func newReplayPendingCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "replay-pending",
		Short: "Retry screening writes parked after a failed finalize",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if cfg.Storage.RedisURL == "" {
				return errors.New("replay-pending: storage.redis_url is not configured")
			}
			parked, closePending, err := openPending(ctx, cfg)
			if err != nil {
				return err
			}
			defer closePending()

			be, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer be.Close()

			return runReplay(ctx, cmd.OutOrStdout(), parked, be.Screenings, logger, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list parked screenings without writing them")
	return cmd
}

// runReplay persists every parked record, deleting each one the store
// accepts.
func runReplay(ctx context.Context, out io.Writer, parked parkedStore, w storage.ScreeningWriter, logger *slog.Logger, dryRun bool) error {
	items, err := parked.List(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "no parked screenings")
		return nil
	}

	failed := 0
	for _, p := range items {
		id := p.Record.ID
		if dryRun {
			fmt.Fprintf(out, "%s\tsession=%s\tparked=%s\treason=%s\n", id, p.SessionID, p.ParkedAt.Format("2006-01-02T15:04:05Z07:00"), p.Reason)
			continue
		}
		outcome, err := interview.Persist(ctx, w, p.Record, logger.With("session_id", p.SessionID))
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s\tfailed\t%v\n", id, err)
			continue
		}
		if err := parked.Delete(ctx, id); err != nil {
			logger.Warn("replayed screening could not be unparked", "screening_id", id, "error", err)
		}
		fmt.Fprintf(out, "%s\t%s\n", id, outcome)
	}
	if failed > 0 {
		return fmt.Errorf("replay-pending: %d of %d parked screenings failed", failed, len(items))
	}
	return nil
}
