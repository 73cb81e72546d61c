package interview

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/interview-live/pkg/core/engine"
	"github.com/vango-go/interview-live/pkg/core/evaluation"
	"github.com/vango-go/interview-live/pkg/core/profile"
)

const (
	DefaultMaxQuestions            = 3
	DefaultMaxFollowupsPerQuestion = 1
	DefaultMinAnswerWords          = 30
	DefaultOutputSampleRate        = 24000
	DefaultAutoCloseDelay          = 15 * time.Second
	DefaultFinalizeGrace           = 500 * time.Millisecond
	DefaultEventQueueSize          = 1024
	DefaultGreeting                = "Hello! Thank you for joining this interview today."
)

// Config holds the per-session interview policy.
type Config struct {
	MaxQuestions            int
	AllowFollowups          bool
	MaxFollowupsPerQuestion int
	MinAnswerWords          int
	Greeting                string
	OutputSampleRate        int
	AutoCloseDelay          time.Duration
	FinalizeGrace           time.Duration
	EventQueueSize          int

	// Model and Voice are recorded in screening metadata.
	Model string
	Voice string
}

func DefaultConfig() Config {
	return Config{
		MaxQuestions:            DefaultMaxQuestions,
		AllowFollowups:          true,
		MaxFollowupsPerQuestion: DefaultMaxFollowupsPerQuestion,
		MinAnswerWords:          DefaultMinAnswerWords,
		Greeting:                DefaultGreeting,
		OutputSampleRate:        DefaultOutputSampleRate,
		AutoCloseDelay:          DefaultAutoCloseDelay,
		FinalizeGrace:           DefaultFinalizeGrace,
		EventQueueSize:          DefaultEventQueueSize,
		Model:                   engine.DefaultLiveModel,
		Voice:                   engine.DefaultVoice,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxQuestions < 1 {
		c.MaxQuestions = DefaultMaxQuestions
	}
	if c.MaxFollowupsPerQuestion < 0 {
		c.MaxFollowupsPerQuestion = 0
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = DefaultOutputSampleRate
	}
	if c.AutoCloseDelay <= 0 {
		c.AutoCloseDelay = DefaultAutoCloseDelay
	}
	if c.FinalizeGrace < 0 {
		c.FinalizeGrace = 0
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = DefaultEventQueueSize
	}
	return c
}

// QuestionPlanner builds the primary question list for a session.
type QuestionPlanner interface {
	Plan(ctx context.Context, appCtx profile.ApplicationContext, limit int) []string
}

// Dependencies are the collaborators shared by every session of a Manager.
type Dependencies struct {
	Planner   QuestionPlanner
	Dialer    engine.Dialer
	Evaluator evaluation.Evaluator
	Logger    *slog.Logger

	Now   func() time.Time
	NewID func() string
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}
