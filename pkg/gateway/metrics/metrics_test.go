package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordsCounters(t *testing.T) {
	m := New("")

	m.RecordSessionCreated("ok")
	m.RecordSessionCreated("ok")
	m.RecordSessionCreated("engine_error")
	m.RecordFinalized("persisted")
	m.RecordParked()
	m.RecordLiveRejected()
	m.RecordLiveConnection(3 * time.Second)
	m.RecordRequest("POST /v1/interviews", http.StatusOK, 40*time.Millisecond)

	if got := testutil.ToFloat64(m.SessionsCreatedTotal.WithLabelValues("ok")); got != 2 {
		t.Fatalf("sessions ok=%v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SessionsCreatedTotal.WithLabelValues("engine_error")); got != 1 {
		t.Fatalf("sessions engine_error=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FinalizationsTotal.WithLabelValues("persisted")); got != 1 {
		t.Fatalf("finalizations=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ParkedTotal); got != 1 {
		t.Fatalf("parked=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LiveConnectionsTotal.WithLabelValues("rejected")); got != 1 {
		t.Fatalf("live rejected=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST /v1/interviews", "200")); got != 1 {
		t.Fatalf("requests=%v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSessionCreated("ok")
	m.RecordFinalized("persisted")
	m.RecordParked()
	m.RecordLiveRejected()
	m.RecordLiveConnection(time.Second)
	m.RecordRequest("x", 200, time.Second)
	m.WatchGauge("x", "x", func() int { return 1 })

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
}

func TestMetrics_HandlerExposesGauges(t *testing.T) {
	m := New("interview")
	m.WatchGauge("sessions_registered", "Sessions held by the manager", func() int { return 3 })
	m.RecordSessionCreated("ok")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	if !strings.Contains(text, "interview_sessions_registered 3") {
		t.Fatalf("missing gauge in:\n%s", text)
	}
	if !strings.Contains(text, `interview_sessions_created_total{result="ok"} 1`) {
		t.Fatalf("missing counter in:\n%s", text)
	}
}
