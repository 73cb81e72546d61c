// Package postgres implements the storage contracts directly on PostgreSQL
// through pgx, with schema managed by embedded goose migrations.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vango-go/interview-live/pkg/core/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const codeUndefinedColumn = "42703"

const applicationQuery = `
SELECT to_jsonb(a) || jsonb_build_object('candidates', to_jsonb(c), 'jobs', to_jsonb(j))
FROM applications a
LEFT JOIN candidates c ON c.id = a.candidate_id
LEFT JOIN jobs j ON j.id = a.job_id
WHERE a.id = $1`

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db   querier
	pool *pgxpool.Pool
}

// Open connects a pool to dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: database url is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

func newStore(db querier) *Store { return &Store{db: db} }

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies every pending embedded migration.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres: migrate requires a pool")
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("postgres: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) GetApplication(ctx context.Context, applicationID string) (map[string]any, error) {
	var raw []byte
	if err := s.db.QueryRow(ctx, applicationQuery, applicationID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get application %s: %w", applicationID, err)
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("postgres: decode application %s: %w", applicationID, err)
	}
	return record, nil
}

func (s *Store) InsertScreening(ctx context.Context, rec storage.ScreeningRecord) error {
	sql, args, err := insertStatement(rec)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return classify(err)
	}
	return nil
}

func insertStatement(rec storage.ScreeningRecord) (string, []any, error) {
	summary, err := json.Marshal(rec.AISummary)
	if err != nil {
		return "", nil, fmt.Errorf("postgres: encode ai_summary: %w", err)
	}
	metadata, err := json.Marshal(rec.SessionMetadata)
	if err != nil {
		return "", nil, fmt.Errorf("postgres: encode session_metadata: %w", err)
	}

	cols := []string{"id", "application_id", "transcript", "ai_summary"}
	args := []any{rec.ID, rec.ApplicationID, rec.Transcript, string(summary)}
	if rec.CommunicationScore != nil {
		cols = append(cols, "communication_score")
		args = append(args, *rec.CommunicationScore)
	}
	if rec.DomainKnowledgeScore != nil {
		cols = append(cols, "domain_knowledge_score")
		args = append(args, *rec.DomainKnowledgeScore)
	}
	if rec.OverallScore != nil {
		cols = append(cols, "overall_score")
		args = append(args, *rec.OverallScore)
	}
	cols = append(cols, "score", "mode", "duration_seconds", "session_metadata")
	args = append(args, rec.Score, rec.Mode, rec.DurationSeconds, string(metadata))

	placeholders := make([]string, len(cols))
	for i, col := range cols {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		if col == "ai_summary" || col == "session_metadata" {
			placeholders[i] += "::jsonb"
		}
	}
	sql := "INSERT INTO " + storage.ScreeningsTable + " (" + strings.Join(cols, ", ") +
		") VALUES (" + strings.Join(placeholders, ", ") + ")"
	return sql, args, nil
}

var undefinedColumn = regexp.MustCompile(`column "([^"]+)"`)

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUndefinedColumn {
		column := pgErr.ColumnName
		if column == "" {
			if m := undefinedColumn.FindStringSubmatch(pgErr.Message); m != nil {
				column = m[1]
			}
		}
		return &storage.SchemaError{Code: pgErr.Code, Column: column, Err: err}
	}
	return fmt.Errorf("postgres: insert screening: %w", err)
}
