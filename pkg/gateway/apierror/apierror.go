package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/vango-go/interview-live/pkg/core"
	"github.com/vango-go/interview-live/pkg/core/interview"
	"github.com/vango-go/interview-live/pkg/core/storage"
	"github.com/vango-go/interview-live/pkg/gateway/live/protocol"
)

const (
	MessageStartUnavailable = "Unable to start voice interview at the moment. Please try again shortly."
	MessagePersistFailed    = "Failed to save voice interview results. Ensure database migrations are up to date and try again."
	MessageSessionNotFound  = "Session not found or already finalized"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	// Already canonical.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, statusFromType(coreErr.Type)
	}

	var sessErr *interview.SessionError
	if errors.As(err, &sessErr) && sessErr != nil {
		return &core.Error{
			Type:      core.ErrUnavailable,
			Message:   MessageStartUnavailable,
			Code:      "session_start_failed",
			RequestID: requestID,
		}, http.StatusServiceUnavailable
	}

	var persistErr *interview.PersistenceError
	if errors.As(err, &persistErr) && persistErr != nil {
		return &core.Error{
			Type:      core.ErrPersistence,
			Message:   MessagePersistFailed,
			Code:      "persist_failed",
			RequestID: requestID,
		}, http.StatusInternalServerError
	}

	if errors.Is(err, interview.ErrFinalized) {
		return &core.Error{
			Type:      core.ErrNotFound,
			Message:   MessageSessionNotFound,
			RequestID: requestID,
		}, http.StatusNotFound
	}
	if errors.Is(err, storage.ErrNotFound) {
		return &core.Error{
			Type:      core.ErrNotFound,
			Message:   "not found",
			RequestID: requestID,
		}, http.StatusNotFound
	}

	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) && decodeErr != nil {
		return &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   decodeErr.Message,
			Param:     decodeErr.Param,
			Code:      decodeErr.Code,
			RequestID: requestID,
		}, http.StatusBadRequest
	}

	// Unknown errors: treat as internal API error (do not leak details by default).
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrOverloaded:
		return 529
	case core.ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
