// Package storage defines the screening persistence and application lookup
// contracts shared by the supabase and postgres backends.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/vango-go/interview-live/pkg/core/evaluation"
)

const (
	ScreeningsTable = "screenings"
	ModeVoice       = "voice"
)

// ScoreColumns are the per-dimension columns dropped by the reduced payload.
var ScoreColumns = []string{"communication_score", "domain_knowledge_score", "overall_score"}

// ScreeningRecord is one row of the screenings table. Nil score pointers are
// omitted from the insert.
type ScreeningRecord struct {
	ID                   string                `json:"id"`
	ApplicationID        string                `json:"application_id"`
	Transcript           string                `json:"transcript"`
	AISummary            evaluation.Evaluation `json:"ai_summary"`
	CommunicationScore   *float64              `json:"communication_score,omitempty"`
	DomainKnowledgeScore *float64              `json:"domain_knowledge_score,omitempty"`
	OverallScore         *float64              `json:"overall_score,omitempty"`
	Score                float64               `json:"score"`
	Mode                 string                `json:"mode"`
	DurationSeconds      *int                  `json:"duration_seconds"`
	SessionMetadata      map[string]any        `json:"session_metadata"`
}

// NewScreeningRecord fills every score column from the evaluation.
func NewScreeningRecord(id, applicationID, transcript string, ev evaluation.Evaluation, duration *int, metadata map[string]any) ScreeningRecord {
	comm, domain, overall := ev.CommunicationScore, ev.DomainKnowledgeScore, ev.OverallScore
	return ScreeningRecord{
		ID:                   id,
		ApplicationID:        applicationID,
		Transcript:           transcript,
		AISummary:            ev,
		CommunicationScore:   &comm,
		DomainKnowledgeScore: &domain,
		OverallScore:         &overall,
		Score:                overall,
		Mode:                 ModeVoice,
		DurationSeconds:      duration,
		SessionMetadata:      metadata,
	}
}

// WithoutScoreColumns returns the reduced payload: the evaluation blob and the
// single score field stay, the per-dimension columns go.
func (r ScreeningRecord) WithoutScoreColumns() ScreeningRecord {
	r.CommunicationScore = nil
	r.DomainKnowledgeScore = nil
	r.OverallScore = nil
	return r
}

// Reduced reports whether the record omits the score columns.
func (r ScreeningRecord) Reduced() bool {
	return r.CommunicationScore == nil && r.DomainKnowledgeScore == nil && r.OverallScore == nil
}

type ScreeningWriter interface {
	InsertScreening(ctx context.Context, rec ScreeningRecord) error
}

// ApplicationReader loads an application record with its candidate and job
// relations embedded as "candidates" and "jobs".
type ApplicationReader interface {
	GetApplication(ctx context.Context, applicationID string) (map[string]any, error)
}

var (
	ErrNotFound       = errors.New("storage: not found")
	ErrSchemaMismatch = errors.New("storage: schema mismatch")
)

// SchemaError reports a write rejected because the table does not have a
// column the payload references.
type SchemaError struct {
	Code   string
	Column string
	Err    error
}

func (e *SchemaError) Error() string {
	if e == nil {
		return ""
	}
	msg := "storage: schema mismatch"
	if e.Column != "" {
		msg += fmt.Sprintf(" (column %q)", e.Column)
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Is(target error) bool { return target == ErrSchemaMismatch }

// AffectsScoreColumns reports whether dropping the score columns could fix
// the write. An unparsed column is treated as possibly affected.
func (e *SchemaError) AffectsScoreColumns() bool {
	if e == nil {
		return false
	}
	if e.Column == "" {
		return true
	}
	return IsScoreColumn(e.Column)
}

func IsScoreColumn(column string) bool {
	for _, c := range ScoreColumns {
		if c == column {
			return true
		}
	}
	return false
}
