package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/interview-live/pkg/core"
	"github.com/vango-go/interview-live/pkg/core/interview"
	"github.com/vango-go/interview-live/pkg/core/profile"
	"github.com/vango-go/interview-live/pkg/core/storage"
	"github.com/vango-go/interview-live/pkg/core/storage/pending"
	"github.com/vango-go/interview-live/pkg/gateway/apierror"
	"github.com/vango-go/interview-live/pkg/gateway/config"
	"github.com/vango-go/interview-live/pkg/gateway/lifecycle"
	"github.com/vango-go/interview-live/pkg/gateway/metrics"
	"github.com/vango-go/interview-live/pkg/gateway/mw"
)

// PendingStore parks screening records whose write failed.
type PendingStore interface {
	Park(ctx context.Context, p pending.Parked) error
	Delete(ctx context.Context, screeningID string) error
}

// InterviewsHandler serves session creation and finalization.
type InterviewsHandler struct {
	Config       config.Config
	Manager      *interview.Manager
	Applications storage.ApplicationReader
	Screenings   storage.ScreeningWriter
	// Pending is optional.
	Pending   PendingStore
	Lifecycle *lifecycle.Lifecycle
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type createInterviewRequest struct {
	ApplicationID string `json:"application_id"`
	QuestionCount *int   `json:"question_count,omitempty"`
}

type createInterviewResponse struct {
	SessionID string `json:"session_id"`
}

func (h InterviewsHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// Create handles POST /v1/interviews.
func (h InterviewsHandler) Create(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.logger().With("request_id", reqID)

	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrUnavailable,
			Message: "server is draining",
			Code:    "draining",
		}, http.StatusServiceUnavailable)
		return
	}

	if h.Config.Server.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.Config.Server.MaxBodyBytes)
	}
	var req createInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeCoreErrorJSON(w, reqID, &core.Error{
				Type:    core.ErrInvalidRequest,
				Message: "request body too large",
				Code:    "body_too_large",
			}, http.StatusRequestEntityTooLarge)
		case errors.Is(err, io.EOF):
			writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("request body is required"), http.StatusBadRequest)
		default:
			writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("invalid JSON body"), http.StatusBadRequest)
		}
		return
	}
	req.ApplicationID = strings.TrimSpace(req.ApplicationID)
	if req.ApplicationID == "" {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("application_id is required", "application_id"), http.StatusBadRequest)
		return
	}
	maxQuestions := 0
	if req.QuestionCount != nil {
		if *req.QuestionCount <= 0 {
			writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("question_count must be greater than zero", "question_count"), http.StatusBadRequest)
			return
		}
		maxQuestions = *req.QuestionCount
	}
	logger = logger.With("application_id", req.ApplicationID)

	if h.Applications == nil || h.Manager == nil {
		writeCoreErrorJSON(w, reqID, core.NewAPIError("interview service is not configured"), http.StatusInternalServerError)
		return
	}

	record, err := h.Applications.GetApplication(r.Context(), req.ApplicationID)
	if errors.Is(err, storage.ErrNotFound) {
		h.Metrics.RecordSessionCreated("application_not_found")
		writeCoreErrorJSON(w, reqID, core.NewNotFoundError("Application not found"), http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("failed to read application", "error", err)
		h.Metrics.RecordSessionCreated("application_error")
		writeCoreErrorJSON(w, reqID, core.NewAPIError("Failed to load application"), http.StatusInternalServerError)
		return
	}
	appCtx, err := profile.Build(record)
	if err != nil {
		logger.Error("invalid application record", "error", err)
		h.Metrics.RecordSessionCreated("application_error")
		writeCoreErrorJSON(w, reqID, core.NewAPIError("Failed to load application"), http.StatusInternalServerError)
		return
	}

	sess, err := h.Manager.CreateSession(r.Context(), appCtx, maxQuestions)
	if err != nil {
		logger.Error("failed to create interview session", "error", err)
		h.Metrics.RecordSessionCreated("engine_error")
		writeErrorJSON(w, reqID, err)
		return
	}

	h.Metrics.RecordSessionCreated("ok")
	logger.Info("created interview session", "session_id", sess.ID(), "max_questions", sess.MaxQuestions())
	writeJSON(w, http.StatusOK, createInterviewResponse{SessionID: sess.ID()})
}

// Finalize handles POST /v1/interviews/{id}/finalize.
func (h InterviewsHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	id := strings.TrimSpace(r.PathValue("id"))
	logger := h.logger().With("request_id", reqID, "session_id", id)

	var sess *interview.Session
	if h.Manager != nil && id != "" {
		sess = h.Manager.GetSession(id)
	}
	if sess == nil {
		writeCoreErrorJSON(w, reqID, core.NewNotFoundError(apierror.MessageSessionNotFound), http.StatusNotFound)
		return
	}

	// Persistence runs to completion even if the caller goes away.
	ctx := context.WithoutCancel(r.Context())
	if d := h.Config.Server.HandlerTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	logger.Debug("finalizing interview session")
	result, err := sess.Finalize(ctx, h.Screenings)
	if err != nil {
		var persistErr *interview.PersistenceError
		if errors.As(err, &persistErr) {
			h.park(ctx, logger, sess, persistErr)
		}
		h.Metrics.RecordFinalized("failed")
		logger.Error("finalize failed", "error", err)
		writeErrorJSON(w, reqID, err)
		return
	}
	h.Manager.RemoveSession(id)
	if h.Pending != nil {
		if err := h.Pending.Delete(ctx, result.ScreeningID); err != nil {
			logger.Warn("failed to clear parked screening", "screening_id", result.ScreeningID, "error", err)
		}
	}

	h.Metrics.RecordFinalized(result.Persist.String())
	logger.Info("finalized interview session", "screening_id", result.ScreeningID, "persist", result.Persist.String())
	writeJSON(w, http.StatusOK, result)
}

func (h InterviewsHandler) park(ctx context.Context, logger *slog.Logger, sess *interview.Session, cause error) {
	if h.Pending == nil {
		return
	}
	rec, ok := sess.PendingRecord()
	if !ok {
		return
	}
	err := h.Pending.Park(ctx, pending.Parked{
		SessionID: sess.ID(),
		Record:    rec,
		Reason:    cause.Error(),
		ParkedAt:  time.Now().UTC(),
	})
	if err != nil {
		logger.Error("failed to park screening", "screening_id", rec.ID, "error", err)
		return
	}
	h.Metrics.RecordParked()
	logger.Warn("parked screening for replay", "screening_id", rec.ID)
}
