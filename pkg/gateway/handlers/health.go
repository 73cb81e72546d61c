package handlers

import (
	"net/http"

	"github.com/vango-go/interview-live/pkg/core/interview"
	"github.com/vango-go/interview-live/pkg/gateway/config"
	"github.com/vango-go/interview-live/pkg/gateway/lifecycle"
	"github.com/vango-go/interview-live/pkg/gateway/live/bridge"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports readiness. A draining process is not ready so load
// balancers stop routing new interviews to it.
type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Manager   *interview.Manager
	Tracker   *bridge.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK              bool     `json:"ok"`
		Draining        bool     `json:"draining"`
		Backend         string   `json:"storage_backend"`
		Sessions        int      `json:"sessions"`
		LiveConnections int      `json:"live_connections"`
		Issues          []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}
	if h.Manager == nil {
		issues = append(issues, "session manager is not configured")
	}
	if h.Config.Server.MaxBodyBytes <= 0 {
		issues = append(issues, "max_body_bytes must be > 0")
	}
	if h.Config.Server.WSPingInterval <= 0 || h.Config.Server.WSWriteTimeout <= 0 {
		issues = append(issues, "websocket ping interval and write timeout must be > 0")
	}
	if err := h.Config.CheckStorage(); err != nil {
		issues = append(issues, err.Error())
	}

	resp := readyResp{
		Draining:        draining,
		Backend:         string(h.Config.Storage.Backend),
		LiveConnections: h.Tracker.Count(),
		Issues:          issues,
	}
	if h.Manager != nil {
		resp.Sessions = h.Manager.Count()
	}
	resp.OK = len(issues) == 0

	status := http.StatusOK
	switch {
	case draining:
		status = http.StatusServiceUnavailable
	case !resp.OK:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}
