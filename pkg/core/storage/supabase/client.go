// Package supabase implements the storage contracts on Supabase PostgREST.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/vango-go/interview-live/pkg/core/storage"
)

const (
	applicationsTable = "applications"
	applicationSelect = "*, candidates(*), jobs(*)"
)

// Config holds Supabase connection configuration
type Config struct {
	URL    string
	APIKey string
}

// Client implements storage.ScreeningWriter and storage.ApplicationReader.
type Client struct {
	from func(table string) *postgrest.QueryBuilder
}

// New creates a new Supabase client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &Client{from: client.From}, nil
}

// GetApplication loads one application with its candidate and job relations.
func (c *Client) GetApplication(ctx context.Context, applicationID string) (map[string]any, error) {
	var rows []map[string]any
	err := withContext(ctx, func() error {
		_, err := c.from(applicationsTable).
			Select(applicationSelect, "", false).
			Eq("id", applicationID).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", classify(err))
	}
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}
	return rows[0], nil
}

// InsertScreening writes one screening row. The write merges on id, so an
// insert abandoned by ctx and later replayed lands once.
func (c *Client) InsertScreening(ctx context.Context, rec storage.ScreeningRecord) error {
	err := withContext(ctx, func() error {
		_, _, err := c.from(storage.ScreeningsTable).
			Insert(rec, true, "id", "minimal", "").
			Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert screening: %w", classify(err))
	}
	return nil
}

// withContext returns ctx.Err() as soon as ctx ends. postgrest-go requests
// take no context, so an abandoned call still finishes in the background.
func withContext(ctx context.Context, call func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- call() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// postgrest-go reports HTTP failures as "(CODE) message".
var (
	codePrefix       = regexp.MustCompile(`^\(([A-Za-z0-9]+)\)\s*`)
	schemaCacheCol   = regexp.MustCompile(`Could not find the '([^']+)' column`)
	undefinedColumn  = regexp.MustCompile(`column "?([A-Za-z0-9_]+)"? (?:of relation "[^"]+" )?does not exist`)
	errCodeNotFound  = "PGRST116"
	errCodeSchema    = "PGRST204"
	errCodeUndefined = "42703"
)

// classify maps PostgREST error codes onto storage sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	m := codePrefix.FindStringSubmatch(msg)
	if m == nil {
		return err
	}
	code := m[1]
	switch code {
	case errCodeNotFound:
		return fmt.Errorf("%w: %s", storage.ErrNotFound, msg)
	case errCodeSchema, errCodeUndefined:
		return &storage.SchemaError{Code: code, Column: columnFrom(msg), Err: errors.New(msg)}
	default:
		return err
	}
}

func columnFrom(msg string) string {
	if m := schemaCacheCol.FindStringSubmatch(msg); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := undefinedColumn.FindStringSubmatch(msg); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
