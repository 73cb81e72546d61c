package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vango-go/interview-live/pkg/core/evaluation"
	"github.com/vango-go/interview-live/pkg/core/storage"
)

// PersistOutcome reports which payload the store accepted.
type PersistOutcome int

const (
	NotPersisted PersistOutcome = iota
	Persisted
	PersistedReduced
)

func (o PersistOutcome) String() string {
	switch o {
	case Persisted:
		return "persisted"
	case PersistedReduced:
		return "persisted_reduced"
	default:
		return "not_persisted"
	}
}

func (o PersistOutcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *PersistOutcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "persisted":
		*o = Persisted
	case "persisted_reduced":
		*o = PersistedReduced
	case "not_persisted", "":
		*o = NotPersisted
	default:
		return fmt.Errorf("unknown persist outcome %q", b)
	}
	return nil
}

// FinalizationResult is produced once per session.
type FinalizationResult struct {
	SessionID      string                `json:"session_id"`
	ScreeningID    string                `json:"screening_id"`
	Transcript     string                `json:"transcript"`
	Evaluation     evaluation.Evaluation `json:"evaluation"`
	Degraded       bool                  `json:"evaluation_degraded,omitempty"`
	DegradedReason string                `json:"evaluation_degraded_reason,omitempty"`
	Timeline       []TimelineEvent       `json:"timeline"`
	Persist        PersistOutcome        `json:"persist"`
}

// Finalize closes the session, evaluates the transcript and persists the
// screening.
//
// On a PersistenceError the result is returned along with the error so the
// caller can retry out-of-band; the session stays closed and a later Finalize
// call retries the same record. Once persisted, Finalize returns ErrFinalized.
func (s *Session) Finalize(ctx context.Context, w storage.ScreeningWriter) (*FinalizationResult, error) {
	s.finalizeMu.Lock()
	defer s.finalizeMu.Unlock()

	if s.State() == StateFinalized {
		return nil, ErrFinalized
	}
	s.logger.Debug("finalizing interview")
	s.Close()

	if s.record == nil {
		s.buildResult(ctx)
	}
	rec := *s.record
	if w == nil {
		return s.result, &PersistenceError{SessionID: s.id, ScreeningID: rec.ID, Err: errors.New("no screening writer configured")}
	}

	outcome, err := Persist(ctx, w, rec, s.logger)
	if err != nil {
		s.logger.Error("failed to persist interview results", "screening_id", rec.ID, "error", err)
		return s.result, &PersistenceError{SessionID: s.id, ScreeningID: rec.ID, Err: err}
	}

	s.result.Persist = outcome
	s.mu.Lock()
	s.state = StateFinalized
	s.mu.Unlock()
	s.logger.Info("stored screening", "screening_id", rec.ID, "persist", outcome.String())
	return s.result, nil
}

// PendingRecord returns the record built by a failed Finalize, if any.
func (s *Session) PendingRecord() (storage.ScreeningRecord, bool) {
	s.finalizeMu.Lock()
	defer s.finalizeMu.Unlock()
	if s.record == nil || s.State() == StateFinalized {
		return storage.ScreeningRecord{}, false
	}
	return *s.record, true
}

func (s *Session) buildResult(ctx context.Context) {
	transcript := s.Transcript()
	timeline := s.Timeline()
	history := s.History()

	text := FlattenTranscript(transcript)
	questions, answers := PairExchanges(transcript)

	outcome, err := evaluation.Evaluate(ctx, s.deps.Evaluator, questions, answers)
	if err != nil {
		s.logger.Error("evaluation failed, using fallback", "error", err)
	}

	s.mu.Lock()
	closedAt := s.closedAt
	questionList := append([]string(nil), s.questions...)
	s.mu.Unlock()

	duration := int(closedAt.Sub(s.createdAt).Seconds())
	if duration < 1 {
		duration = 1
	}

	metadata := map[string]any{
		"session_id":           s.id,
		"model":                s.cfg.Model,
		"voice":                s.cfg.Voice,
		"items":                transcript,
		"created_at":           formatTime(s.createdAt),
		"closed_at":            formatTime(closedAt),
		"job_title":            s.appCtx.JobTitle,
		"candidate_name":       s.appCtx.CandidateName,
		"questions":            questionList,
		"question_limit":       s.maxQuestions,
		"timeline":             timeline,
		"conversation_history": history,
		"context":              s.appCtx.Snapshot(),
	}
	if outcome.Degraded {
		metadata["evaluation_degraded_reason"] = outcome.Reason
	}

	rec := storage.NewScreeningRecord(s.deps.NewID(), s.appCtx.ApplicationID, text, outcome.Evaluation, &duration, metadata)
	s.record = &rec
	s.result = &FinalizationResult{
		SessionID:      s.id,
		ScreeningID:    rec.ID,
		Transcript:     text,
		Evaluation:     outcome.Evaluation,
		Degraded:       outcome.Degraded,
		DegradedReason: outcome.Reason,
		Timeline:       timeline,
	}
	s.logger.Debug("built screening record", "screening_id", rec.ID, "duration_seconds", duration, "qa_pairs", len(questions))
}

// Persist writes rec, retrying once without the score columns when the store
// reports that one of them is missing.
func Persist(ctx context.Context, w storage.ScreeningWriter, rec storage.ScreeningRecord, logger *slog.Logger) (PersistOutcome, error) {
	if logger == nil {
		logger = slog.Default()
	}
	err := w.InsertScreening(ctx, rec)
	if err == nil {
		if rec.Reduced() {
			return PersistedReduced, nil
		}
		return Persisted, nil
	}

	var schemaErr *storage.SchemaError
	if !errors.As(err, &schemaErr) || !schemaErr.AffectsScoreColumns() || rec.Reduced() {
		return NotPersisted, err
	}

	logger.Warn("retrying screening insert without score columns",
		"screening_id", rec.ID,
		"column", schemaErr.Column,
		"code", schemaErr.Code,
	)
	if retryErr := w.InsertScreening(ctx, rec.WithoutScoreColumns()); retryErr != nil {
		return NotPersisted, fmt.Errorf("reduced payload retry: %w", retryErr)
	}
	return PersistedReduced, nil
}

// FlattenTranscript renders "Interviewer: ..." / "Candidate: ..." lines.
func FlattenTranscript(items []TranscriptItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		role := "Candidate"
		if item.Role == RoleAssistant {
			role = "Interviewer"
		}
		lines = append(lines, role+": "+text)
	}
	return strings.Join(lines, "\n")
}

// PairExchanges pairs each candidate utterance with the latest assistant
// utterance before it that has not been answered yet.
func PairExchanges(items []TranscriptItem) (questions, answers []string) {
	pending := ""
	for _, item := range items {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		switch item.Role {
		case RoleAssistant:
			pending = text
		case RoleCandidate:
			if pending != "" {
				questions = append(questions, pending)
				answers = append(answers, text)
				pending = ""
			}
		}
	}
	return questions, answers
}
