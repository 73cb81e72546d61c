// Package planner builds the ordered primary question list for a session.
package planner

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vango-go/interview-live/pkg/core/evaluation"
	"github.com/vango-go/interview-live/pkg/core/profile"
)

// DefaultQuestions are asked when generation fails, and top up a generated
// list that comes back short.
var DefaultQuestions = []string{
	"Tell me about a time when you had to learn something new quickly for a project. How did you approach it?",
	"Describe a situation where you had to collaborate with a difficult team member or stakeholder. What was the outcome?",
	"What attracted you to this role, and how does it fit into your career goals?",
	"Walk me through a project you are proud of. What was your specific contribution?",
	"Tell me about a mistake you made at work and what you changed afterwards.",
	"Describe a time you had to make a decision without all the information you wanted.",
	"How do you prioritize when several urgent tasks land at the same time?",
	"Tell me about a time you received critical feedback. How did you respond?",
	"Describe a problem you solved that others had struggled with. What did you do differently?",
	"How do you explain a complex technical or domain topic to someone outside your field?",
}

type Planner struct {
	Generator evaluation.QuestionGenerator
	Logger    *slog.Logger
}

// Plan returns exactly limit questions (limit < 1 is treated as 1): generated
// ones first, then unused defaults. Defaults repeat only when limit exceeds
// everything available.
func (p *Planner) Plan(ctx context.Context, appCtx profile.ApplicationContext, limit int) []string {
	if limit < 1 {
		limit = 1
	}
	logger := slog.Default()
	if p != nil && p.Logger != nil {
		logger = p.Logger
	}

	var questions []string
	if p != nil && p.Generator != nil {
		role := appCtx.JobTitle
		if role == "" {
			role = "Candidate"
		}
		generated, err := p.Generator.GenerateQuestions(ctx, role, appCtx.CandidateProfile, limit)
		if err != nil {
			logger.Warn("question generation failed, using defaults",
				"application_id", appCtx.ApplicationID,
				"error", err,
			)
		}
		questions = clean(generated)
	}
	if len(questions) > limit {
		questions = questions[:limit]
	}
	if short := limit - len(questions); short > 0 && len(questions) > 0 {
		logger.Info("topping up generated questions with defaults",
			"application_id", appCtx.ApplicationID,
			"generated", len(questions),
			"limit", limit,
		)
	}
	return fill(questions, limit)
}

func fill(questions []string, limit int) []string {
	out := make([]string, 0, limit)
	out = append(out, questions...)
	seen := make(map[string]bool, limit)
	for _, q := range out {
		seen[strings.ToLower(q)] = true
	}
	for _, q := range DefaultQuestions {
		if len(out) >= limit {
			return out
		}
		if !seen[strings.ToLower(q)] {
			seen[strings.ToLower(q)] = true
			out = append(out, q)
		}
	}
	for i := 0; len(out) < limit; i++ {
		out = append(out, DefaultQuestions[i%len(DefaultQuestions)])
	}
	return out
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, q := range in {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
