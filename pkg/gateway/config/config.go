// Package config loads the interview gateway configuration: built-in
// defaults, then an optional YAML file, then INTERVIEW_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-go/interview-live/pkg/core/interview"
)

type Backend string

const (
	BackendSupabase Backend = "supabase"
	BackendPostgres Backend = "postgres"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Interview InterviewConfig `yaml:"interview"`
	Storage   StorageConfig   `yaml:"storage"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`

	MaxBodyBytes        int64         `yaml:"max_body_bytes"`
	ReadHeaderTimeout   time.Duration `yaml:"read_header_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	HandlerTimeout      time.Duration `yaml:"handler_timeout"`
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period"`

	// Empty disables CORS handling.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	WSPingInterval    time.Duration `yaml:"ws_ping_interval"`
	WSWriteTimeout    time.Duration `yaml:"ws_write_timeout"`
	WSReadTimeout     time.Duration `yaml:"ws_read_timeout"`
	WSMaxMessageBytes int64         `yaml:"ws_max_message_bytes"`

	// Closed sessions that were never finalized are dropped after this long.
	SessionRetention time.Duration `yaml:"session_retention"`

	// MetricsEnabled exposes Prometheus metrics on GET /metrics.
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

type GeminiConfig struct {
	APIKey           string `yaml:"api_key"`
	LiveModel        string `yaml:"live_model"`
	Voice            string `yaml:"voice"`
	TextModel        string `yaml:"text_model"`
	OutputSampleRate int    `yaml:"output_sample_rate"`
	// GenerateQuestions enables tailored questions from the text model.
	GenerateQuestions bool `yaml:"generate_questions"`
}

type InterviewConfig struct {
	MaxQuestions            int           `yaml:"max_questions"`
	AllowFollowups          bool          `yaml:"allow_followups"`
	MaxFollowupsPerQuestion int           `yaml:"max_followups_per_question"`
	MinAnswerWords          int           `yaml:"min_answer_words"`
	Greeting                string        `yaml:"greeting"`
	AutoCloseDelay          time.Duration `yaml:"auto_close_delay"`
	FinalizeGrace           time.Duration `yaml:"finalize_grace"`
	EventQueueSize          int           `yaml:"event_queue_size"`
}

type StorageConfig struct {
	Backend        Backend       `yaml:"backend"`
	SupabaseURL    string        `yaml:"supabase_url"`
	SupabaseKey    string        `yaml:"supabase_key"`
	DatabaseURL    string        `yaml:"database_url"`
	MigrateOnStart bool          `yaml:"migrate_on_start"`
	RedisURL       string        `yaml:"redis_url"`
	PendingTTL     time.Duration `yaml:"pending_ttl"`
}

func Default() Config {
	ic := interview.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:                ":8080",
			MaxBodyBytes:        1 << 20,
			ReadHeaderTimeout:   10 * time.Second,
			ReadTimeout:         30 * time.Second,
			HandlerTimeout:      2 * time.Minute,
			ShutdownGracePeriod: 30 * time.Second,
			WSPingInterval:      20 * time.Second,
			WSWriteTimeout:      5 * time.Second,
			WSMaxMessageBytes:   64 * 1024,
			SessionRetention:    time.Hour,
			MetricsEnabled:      true,
		},
		Gemini: GeminiConfig{
			LiveModel:         ic.Model,
			Voice:             ic.Voice,
			TextModel:         "gemini-2.0-flash",
			OutputSampleRate:  ic.OutputSampleRate,
			GenerateQuestions: true,
		},
		Interview: InterviewConfig{
			MaxQuestions:            ic.MaxQuestions,
			AllowFollowups:          ic.AllowFollowups,
			MaxFollowupsPerQuestion: ic.MaxFollowupsPerQuestion,
			MinAnswerWords:          ic.MinAnswerWords,
			Greeting:                ic.Greeting,
			AutoCloseDelay:          ic.AutoCloseDelay,
			FinalizeGrace:           ic.FinalizeGrace,
			EventQueueSize:          ic.EventQueueSize,
		},
		Storage: StorageConfig{
			Backend:    BackendSupabase,
			PendingTTL: 7 * 24 * time.Hour,
		},
	}
}

// Load builds the configuration. An empty path skips the YAML file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadFromEnv() (Config, error) {
	return Load("")
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Addr = envOr("INTERVIEW_ADDR", s.Addr)
	s.MaxBodyBytes = envInt64Or("INTERVIEW_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.ReadHeaderTimeout = envDurationOr("INTERVIEW_READ_HEADER_TIMEOUT", s.ReadHeaderTimeout)
	s.ReadTimeout = envDurationOr("INTERVIEW_READ_TIMEOUT", s.ReadTimeout)
	s.HandlerTimeout = envDurationOr("INTERVIEW_HANDLER_TIMEOUT", s.HandlerTimeout)
	s.ShutdownGracePeriod = envDurationOr("INTERVIEW_SHUTDOWN_GRACE_PERIOD", s.ShutdownGracePeriod)
	if origins := splitCSV(os.Getenv("INTERVIEW_CORS_ORIGINS")); len(origins) > 0 {
		s.CORSAllowedOrigins = origins
	}
	s.WSPingInterval = envDurationOr("INTERVIEW_WS_PING_INTERVAL", s.WSPingInterval)
	s.WSWriteTimeout = envDurationOr("INTERVIEW_WS_WRITE_TIMEOUT", s.WSWriteTimeout)
	s.WSReadTimeout = envDurationOr("INTERVIEW_WS_READ_TIMEOUT", s.WSReadTimeout)
	s.WSMaxMessageBytes = envInt64Or("INTERVIEW_WS_MAX_MESSAGE_BYTES", s.WSMaxMessageBytes)
	s.SessionRetention = envDurationOr("INTERVIEW_SESSION_RETENTION", s.SessionRetention)
	s.MetricsEnabled = envBoolOr("INTERVIEW_METRICS_ENABLED", s.MetricsEnabled)

	g := &c.Gemini
	g.APIKey = envOr("INTERVIEW_GEMINI_API_KEY", envOr("GEMINI_API_KEY", envOr("GOOGLE_API_KEY", g.APIKey)))
	g.LiveModel = envOr("INTERVIEW_GEMINI_LIVE_MODEL", g.LiveModel)
	g.Voice = envOr("INTERVIEW_GEMINI_VOICE", g.Voice)
	g.TextModel = envOr("INTERVIEW_GEMINI_TEXT_MODEL", g.TextModel)
	g.OutputSampleRate = envIntOr("INTERVIEW_OUTPUT_SAMPLE_RATE", g.OutputSampleRate)
	g.GenerateQuestions = envBoolOr("INTERVIEW_GENERATE_QUESTIONS", g.GenerateQuestions)

	i := &c.Interview
	i.MaxQuestions = envIntOr("INTERVIEW_MAX_QUESTIONS", i.MaxQuestions)
	i.AllowFollowups = envBoolOr("INTERVIEW_ALLOW_FOLLOWUPS", i.AllowFollowups)
	i.MaxFollowupsPerQuestion = envIntOr("INTERVIEW_MAX_FOLLOWUPS_PER_QUESTION", i.MaxFollowupsPerQuestion)
	i.MinAnswerWords = envIntOr("INTERVIEW_MIN_ANSWER_WORDS", i.MinAnswerWords)
	if v, ok := os.LookupEnv("INTERVIEW_GREETING"); ok {
		i.Greeting = strings.TrimSpace(v)
	}
	i.AutoCloseDelay = envDurationOr("INTERVIEW_AUTO_CLOSE_DELAY", i.AutoCloseDelay)
	i.FinalizeGrace = envDurationOr("INTERVIEW_FINALIZE_GRACE", i.FinalizeGrace)
	i.EventQueueSize = envIntOr("INTERVIEW_EVENT_QUEUE_SIZE", i.EventQueueSize)

	st := &c.Storage
	st.Backend = Backend(strings.ToLower(envOr("INTERVIEW_STORAGE_BACKEND", string(st.Backend))))
	st.SupabaseURL = envOr("INTERVIEW_SUPABASE_URL", envOr("SUPABASE_URL", st.SupabaseURL))
	st.SupabaseKey = envOr("INTERVIEW_SUPABASE_KEY", envOr("SUPABASE_SERVICE_ROLE_KEY", st.SupabaseKey))
	st.DatabaseURL = envOr("INTERVIEW_DATABASE_URL", envOr("DATABASE_URL", st.DatabaseURL))
	st.MigrateOnStart = envBoolOr("INTERVIEW_MIGRATE_ON_START", st.MigrateOnStart)
	st.RedisURL = envOr("INTERVIEW_REDIS_URL", st.RedisURL)
	st.PendingTTL = envDurationOr("INTERVIEW_PENDING_TTL", st.PendingTTL)
}

func (c *Config) validate() error {
	var errs []string
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, "server.addr must not be empty")
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, "server.max_body_bytes must be > 0")
	}
	for name, d := range map[string]time.Duration{
		"server.read_header_timeout":   c.Server.ReadHeaderTimeout,
		"server.read_timeout":          c.Server.ReadTimeout,
		"server.handler_timeout":       c.Server.HandlerTimeout,
		"server.shutdown_grace_period": c.Server.ShutdownGracePeriod,
		"server.ws_ping_interval":      c.Server.WSPingInterval,
		"server.ws_write_timeout":      c.Server.WSWriteTimeout,
		"server.session_retention":     c.Server.SessionRetention,
		"interview.auto_close_delay":   c.Interview.AutoCloseDelay,
	} {
		if d <= 0 {
			errs = append(errs, name+" must be > 0")
		}
	}
	if c.Server.WSReadTimeout < 0 {
		errs = append(errs, "server.ws_read_timeout must be >= 0")
	}
	if c.Server.WSMaxMessageBytes <= 0 {
		errs = append(errs, "server.ws_max_message_bytes must be > 0")
	}
	if strings.TrimSpace(c.Gemini.LiveModel) == "" {
		errs = append(errs, "gemini.live_model must not be empty")
	}
	if c.Gemini.OutputSampleRate <= 0 {
		errs = append(errs, "gemini.output_sample_rate must be > 0")
	}
	if c.Interview.MaxQuestions <= 0 {
		errs = append(errs, "interview.max_questions must be > 0")
	}
	if c.Interview.MaxFollowupsPerQuestion < 0 {
		errs = append(errs, "interview.max_followups_per_question must be >= 0")
	}
	if c.Interview.MinAnswerWords < 0 {
		errs = append(errs, "interview.min_answer_words must be >= 0")
	}
	if c.Interview.FinalizeGrace < 0 {
		errs = append(errs, "interview.finalize_grace must be >= 0")
	}
	if c.Interview.EventQueueSize <= 0 {
		errs = append(errs, "interview.event_queue_size must be > 0")
	}
	switch c.Storage.Backend {
	case BackendSupabase, BackendPostgres:
	default:
		errs = append(errs, "storage.backend must be one of supabase|postgres")
	}
	if c.Storage.PendingTTL <= 0 {
		errs = append(errs, "storage.pending_ttl must be > 0")
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// CheckServe reports the credentials the serve command needs that Load does
// not require.
func (c Config) CheckServe() error {
	var errs []error
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		errs = append(errs, errors.New("gemini api key is required (INTERVIEW_GEMINI_API_KEY or GEMINI_API_KEY)"))
	}
	if err := c.CheckStorage(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CheckStorage reports missing connection settings for the selected backend.
func (c Config) CheckStorage() error {
	switch c.Storage.Backend {
	case BackendPostgres:
		if strings.TrimSpace(c.Storage.DatabaseURL) == "" {
			return errors.New("storage.database_url is required for the postgres backend")
		}
	default:
		if strings.TrimSpace(c.Storage.SupabaseURL) == "" || strings.TrimSpace(c.Storage.SupabaseKey) == "" {
			return errors.New("storage.supabase_url and storage.supabase_key are required for the supabase backend")
		}
	}
	return nil
}

// SessionConfig maps the interview section onto the session policy.
func (c Config) SessionConfig() interview.Config {
	return interview.Config{
		MaxQuestions:            c.Interview.MaxQuestions,
		AllowFollowups:          c.Interview.AllowFollowups,
		MaxFollowupsPerQuestion: c.Interview.MaxFollowupsPerQuestion,
		MinAnswerWords:          c.Interview.MinAnswerWords,
		Greeting:                c.Interview.Greeting,
		OutputSampleRate:        c.Gemini.OutputSampleRate,
		AutoCloseDelay:          c.Interview.AutoCloseDelay,
		FinalizeGrace:           c.Interview.FinalizeGrace,
		EventQueueSize:          c.Interview.EventQueueSize,
		Model:                   c.Gemini.LiveModel,
		Voice:                   c.Gemini.Voice,
	}
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
