// Package evaluation scores interview transcripts and generates screening
// questions.
package evaluation

import (
	"context"
	"errors"
	"fmt"
)

// Evaluation is the structured result stored with each screening.
type Evaluation struct {
	CommunicationScore   float64  `json:"communication_score"`
	DomainKnowledgeScore float64  `json:"domain_knowledge_score"`
	OverallScore         float64  `json:"overall_score"`
	Summary              string   `json:"summary"`
	Strengths            []string `json:"strengths"`
	Weaknesses           []string `json:"weaknesses"`
}

const (
	ReasonInsufficientData = "insufficient_data"
	ReasonServiceFailure   = "evaluation_service_failure"
)

// Outcome is an Evaluation plus whether it was synthesized locally instead of
// coming from the Evaluation Service.
type Outcome struct {
	Evaluation Evaluation
	Degraded   bool
	Reason     string
}

// Evaluator scores paired questions and answers.
type Evaluator interface {
	Evaluate(ctx context.Context, questions, answers []string) (Evaluation, error)
}

// QuestionGenerator produces up to count screening questions for a role and
// candidate.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, jobRole string, candidateProfile map[string]any, count int) ([]string, error)
}

var ErrEmptyResponse = errors.New("evaluation: empty model response")

// Insufficient is the neutral evaluation used when the transcript holds no
// answered exchanges.
func Insufficient() Evaluation {
	return Evaluation{
		CommunicationScore:   70,
		DomainKnowledgeScore: 70,
		OverallScore:         70,
		Summary:              "Voice interview completed, but insufficient data was captured for a full evaluation.",
		Strengths:            []string{"Participated in interview"},
		Weaknesses:           []string{"Transcript too short for detailed scoring"},
	}
}

// Fallback is the neutral evaluation used when the Evaluation Service fails.
func Fallback() Evaluation {
	return Evaluation{
		CommunicationScore:   72,
		DomainKnowledgeScore: 74,
		OverallScore:         73,
		Summary:              "Voice interview completed. Evaluation fallback used due to scoring error.",
		Strengths:            []string{"Completed voice interview"},
		Weaknesses:           []string{"Automatic scoring unavailable"},
	}
}

// Evaluate never fails: missing pairs and service errors yield degraded
// outcomes. The service error, if any, is returned for logging.
func Evaluate(ctx context.Context, svc Evaluator, questions, answers []string) (Outcome, error) {
	if len(questions) == 0 || len(answers) == 0 {
		return Outcome{Evaluation: Insufficient(), Degraded: true, Reason: ReasonInsufficientData}, nil
	}
	if svc == nil {
		return Outcome{Evaluation: Fallback(), Degraded: true, Reason: ReasonServiceFailure}, fmt.Errorf("evaluation: no evaluator configured")
	}
	ev, err := svc.Evaluate(ctx, questions, answers)
	if err != nil {
		return Outcome{Evaluation: Fallback(), Degraded: true, Reason: ReasonServiceFailure}, err
	}
	return Outcome{Evaluation: ev.normalized()}, nil
}

func (e Evaluation) normalized() Evaluation {
	e.CommunicationScore = clampScore(e.CommunicationScore)
	e.DomainKnowledgeScore = clampScore(e.DomainKnowledgeScore)
	e.OverallScore = clampScore(e.OverallScore)
	if e.Strengths == nil {
		e.Strengths = []string{}
	}
	if e.Weaknesses == nil {
		e.Weaknesses = []string{}
	}
	return e
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
