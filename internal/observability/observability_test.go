package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := NewStageWindow(8)
	w.Observe("classify", 50*time.Millisecond)
	w.Observe("classify", 70*time.Millisecond)
	w.Observe("classify", 90*time.Millisecond)
	w.Count("keepalive")
	w.Count("keepalive")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "classify" || s.Samples != 3 {
		t.Fatalf("unexpected stage stats: %+v", s)
	}
	if s.LastMS != 90 {
		t.Fatalf("LastMS = %.2f, want 90", s.LastMS)
	}
	if s.P50MS != 70 {
		t.Fatalf("P50MS = %.2f, want 70", s.P50MS)
	}
	if s.P95MS <= 70 || s.P95MS > 90 {
		t.Fatalf("P95MS = %.2f, want (70,90]", s.P95MS)
	}
	if s.TargetP95MS != 120 {
		t.Fatalf("TargetP95MS = %.2f, want 120", s.TargetP95MS)
	}
	if len(snap.Counters) != 1 || snap.Counters[0].Name != "keepalive" || snap.Counters[0].Count != 2 {
		t.Fatalf("Counters = %+v", snap.Counters)
	}
}

func TestStageWindowWrapsAndResets(t *testing.T) {
	w := NewStageWindow(2)
	for i := 1; i <= 5; i++ {
		w.Observe("decode", time.Duration(i)*time.Millisecond)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 2 || s.AvgMS != 4.5 {
		t.Fatalf("stats after wrap = %+v", s)
	}
	w.Reset()
	if got := len(w.Snapshot().Stages); got != 0 {
		t.Fatalf("len(Stages) after reset = %d", got)
	}
}

func TestSessionObserverFeedsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, reg, "test")
	w := NewStageWindow(16)
	o := NewSessionObserver(m, w)

	o.FrameOutcome("classified")
	o.FrameOutcome("classified")
	o.Keepalive()
	o.Throttled()
	o.PersistEvent("written", 3*time.Millisecond)
	o.PersistEvent("dropped", 0)
	o.SessionEvent("connect", 3)

	if got := testutil.ToFloat64(m.FrameOutcomes.WithLabelValues("classified")); got != 2 {
		t.Fatalf("frames classified = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PersistOutcomes.WithLabelValues("throttled")); got != 1 {
		t.Fatalf("persist throttled = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 3 {
		t.Fatalf("active sessions = %v, want 3", got)
	}
	snap := w.Snapshot()
	if len(snap.Stages) != 1 || snap.Stages[0].Stage != "persist" {
		t.Fatalf("stages = %+v, want only persist", snap.Stages)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "test_keepalives_total 1") {
		t.Fatalf("metrics output missing keepalives:\n%s", body)
	}
}
