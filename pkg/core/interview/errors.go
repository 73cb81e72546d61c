package interview

import (
	"errors"
	"fmt"
)

var (
	ErrSessionClosed = errors.New("interview: session is closed")
	ErrFinalized     = errors.New("interview: session already finalized")
)

// SessionError reports that a session could not be started. The session is
// torn down before the error is returned.
type SessionError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *SessionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("interview: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// PersistenceError reports that the screening write failed, including after
// the reduced-payload retry where one applied.
type PersistenceError struct {
	SessionID   string
	ScreeningID string
	Err         error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("interview: persist screening %s for session %s: %v", e.ScreeningID, e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
