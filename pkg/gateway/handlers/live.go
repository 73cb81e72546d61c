package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/interview-live/pkg/core"
	"github.com/vango-go/interview-live/pkg/core/interview"
	"github.com/vango-go/interview-live/pkg/gateway/config"
	"github.com/vango-go/interview-live/pkg/gateway/lifecycle"
	"github.com/vango-go/interview-live/pkg/gateway/live/bridge"
	"github.com/vango-go/interview-live/pkg/gateway/live/protocol"
	"github.com/vango-go/interview-live/pkg/gateway/metrics"
	"github.com/vango-go/interview-live/pkg/gateway/mw"
)

// LiveHandler handles GET /v1/interviews/{id}/live websocket connections.
type LiveHandler struct {
	Config    config.Config
	Manager   *interview.Manager
	Tracker   *bridge.Tracker
	Lifecycle *lifecycle.Lifecycle
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrUnavailable, Message: "server is draining", Code: "draining"}, http.StatusServiceUnavailable)
		return
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := strings.TrimSpace(r.PathValue("id"))
	logger = logger.With("request_id", reqID, "session_id", id)

	upgrader := websocket.Upgrader{CheckOrigin: h.originAllowed}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	var sess *interview.Session
	if h.Manager != nil && id != "" {
		sess = h.Manager.GetSession(id)
	}
	if sess == nil || !sess.Active() {
		logger.Info("rejecting websocket for unknown or closed session")
		h.Metrics.RecordLiveRejected()
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, protocol.CloseReasonInvalidSession)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout()))
		_ = conn.Close()
		return
	}

	start := time.Now()
	err = bridge.Run(r.Context(), bridge.Dependencies{
		Conn:    conn,
		Session: sess,
		Config: bridge.Config{
			PingInterval:    h.Config.Server.WSPingInterval,
			WriteTimeout:    h.writeTimeout(),
			ReadTimeout:     h.Config.Server.WSReadTimeout,
			MaxMessageBytes: h.Config.Server.WSMaxMessageBytes,
		},
		Logger:  logger,
		Tracker: h.Tracker,
	})
	h.Metrics.RecordLiveConnection(time.Since(start))
	if err != nil {
		logger.Warn("websocket bridge ended with error", "error", err)
	}
}

func (h LiveHandler) writeTimeout() time.Duration {
	if h.Config.Server.WSWriteTimeout > 0 {
		return h.Config.Server.WSWriteTimeout
	}
	return 5 * time.Second
}

// originAllowed accepts same-origin and non-browser clients, and browser
// origins on the CORS allowlist.
func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range h.Config.Server.CORSAllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return strings.EqualFold(strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://"), r.Host)
}
