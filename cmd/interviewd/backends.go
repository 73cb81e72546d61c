package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"

	"github.com/vango-go/interview-live/pkg/core/engine"
	"github.com/vango-go/interview-live/pkg/core/evaluation"
	"github.com/vango-go/interview-live/pkg/core/interview"
	"github.com/vango-go/interview-live/pkg/core/storage"
	"github.com/vango-go/interview-live/pkg/core/storage/pending"
	"github.com/vango-go/interview-live/pkg/core/storage/postgres"
	"github.com/vango-go/interview-live/pkg/core/storage/supabase"
	"github.com/vango-go/interview-live/pkg/gateway/config"
)

// backend is the selected Profile Store and screening store.
type backend struct {
	Applications storage.ApplicationReader
	Screenings   storage.ScreeningWriter
	Close        func()
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	if err := cfg.CheckStorage(); err != nil {
		return nil, err
	}
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		st, err := postgres.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Storage.MigrateOnStart {
			if err := st.Migrate(ctx); err != nil {
				st.Close()
				return nil, err
			}
			logger.Info("database migrations applied")
		}
		return &backend{Applications: st, Screenings: st, Close: st.Close}, nil
	default:
		c, err := supabase.New(supabase.Config{URL: cfg.Storage.SupabaseURL, APIKey: cfg.Storage.SupabaseKey})
		if err != nil {
			return nil, err
		}
		return &backend{Applications: c, Screenings: c, Close: func() {}}, nil
	}
}

// parkedStore is the pending store surface the commands use.
type parkedStore interface {
	Park(ctx context.Context, p pending.Parked) error
	List(ctx context.Context) ([]pending.Parked, error)
	Delete(ctx context.Context, screeningID string) error
}

// openPending returns nil when no redis url is configured.
func openPending(ctx context.Context, cfg config.Config) (parkedStore, func(), error) {
	if cfg.Storage.RedisURL == "" {
		return nil, func() {}, nil
	}
	opt, err := redis.ParseURL(cfg.Storage.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return pending.NewRedisStore(client, cfg.Storage.PendingTTL), func() { _ = client.Close() }, nil
}

// aiServices are the Gemini-backed engine, question generator and evaluator.
type aiServices struct {
	Dialer    engine.Dialer
	Generator evaluation.QuestionGenerator
	Evaluator evaluation.Evaluator
}

func newAIServices(ctx context.Context, cfg config.Config) (aiServices, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return aiServices{}, fmt.Errorf("create gemini client: %w", err)
	}
	text := evaluation.NewGemini(client, cfg.Gemini.TextModel)
	return aiServices{
		Dialer: engine.NewGeminiLive(client, engine.GeminiLiveConfig{
			Model:             cfg.Gemini.LiveModel,
			Voice:             cfg.Gemini.Voice,
			SystemInstruction: interview.SystemInstruction,
		}),
		Generator: text,
		Evaluator: text,
	}, nil
}
