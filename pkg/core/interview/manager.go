package interview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/interview-live/pkg/core/profile"
)

// Manager is the registry of live sessions. Its lock guards map membership
// only; session operations run outside it.
type Manager struct {
	cfg  Config
	deps Dependencies

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg Config, deps Dependencies) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		deps:     deps.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) logger() *slog.Logger {
	if m == nil || m.deps.Logger == nil {
		return slog.Default()
	}
	return m.deps.Logger
}

// CreateSession prepares and connects a new session and registers it.
// maxQuestions <= 0 uses the configured default. A failed session is closed
// and never registered.
func (m *Manager) CreateSession(ctx context.Context, appCtx profile.ApplicationContext, maxQuestions int) (*Session, error) {
	if maxQuestions <= 0 {
		maxQuestions = m.cfg.MaxQuestions
	}
	s := newSession(appCtx, maxQuestions, m.cfg, m.deps)
	s.Prepare(ctx)
	if err := s.Connect(ctx); err != nil {
		s.Close()
		var sessErr *SessionError
		if errors.As(err, &sessErr) {
			return nil, err
		}
		return nil, &SessionError{SessionID: s.ID(), Op: "initialize", Err: err}
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger().Debug("session registered", "session_id", s.ID(), "application_id", appCtx.ApplicationID)
	return s, nil
}

// GetSession returns the registered session or nil.
func (m *Manager) GetSession(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// RemoveSession unregisters and closes the session, returning it if found.
func (m *Manager) RemoveSession(id string) *Session {
	m.mu.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if s != nil {
		s.Close()
		m.logger().Debug("session removed", "session_id", id)
	}
	return s
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every registered session without unregistering it, so
// results can still be finalized during shutdown.
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
	return len(sessions)
}

// PruneClosed unregisters sessions closed before cutoff and returns their ids.
// A session that was never finalized is handed to settle first, outside the
// lock, and stays registered when settle returns false so a later pass can
// retry it. A nil settle drops unfinalized sessions as they are.
func (m *Manager) PruneClosed(cutoff time.Time, settle func(*Session) bool) []string {
	m.mu.Lock()
	var expired []*Session
	for _, s := range m.sessions {
		st := s.State()
		if st != StateClosed && st != StateFinalized {
			continue
		}
		if closedAt := s.ClosedAt(); !closedAt.IsZero() && closedAt.Before(cutoff) {
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	var removed []string
	for _, s := range expired {
		if s.State() != StateFinalized && settle != nil && !settle(s) {
			continue
		}
		m.mu.Lock()
		if m.sessions[s.ID()] == s {
			delete(m.sessions, s.ID())
			removed = append(removed, s.ID())
		}
		m.mu.Unlock()
	}
	return removed
}
