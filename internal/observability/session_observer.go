package observability

import (
	"time"

	"github.com/ent0n29/facemood/internal/store"
)

// SessionObserver feeds session and persistence telemetry into both the
// Prometheus instruments and the rolling stage window.
type SessionObserver struct {
	metrics *Metrics
	window  *StageWindow
}

func NewSessionObserver(m *Metrics, w *StageWindow) *SessionObserver {
	return &SessionObserver{metrics: m, window: w}
}

func (o *SessionObserver) FrameOutcome(outcome string) {
	if o.metrics != nil {
		o.metrics.FrameOutcomes.WithLabelValues(outcome).Inc()
	}
	o.window.Count("frame_" + outcome)
}

func (o *SessionObserver) Stage(stage string, d time.Duration) {
	if o.metrics != nil {
		o.metrics.ObserveStage(stage, d)
	}
	o.window.Observe(stage, d)
}

func (o *SessionObserver) Keepalive() {
	if o.metrics != nil {
		o.metrics.Keepalives.Inc()
	}
	o.window.Count("keepalive")
}

func (o *SessionObserver) Throttled() {
	o.persist("throttled")
}

// PersistEvent matches store.RecorderConfig.OnEvent.
func (o *SessionObserver) PersistEvent(outcome string, d time.Duration) {
	o.persist(outcome)
	if outcome != store.OutcomeDropped {
		o.Stage("persist", d)
	}
}

func (o *SessionObserver) persist(outcome string) {
	if o.metrics != nil {
		o.metrics.PersistOutcomes.WithLabelValues(outcome).Inc()
	}
	o.window.Count("persist_" + outcome)
}

// SessionEvent matches session.Manager's hook.
func (o *SessionObserver) SessionEvent(event string, active int) {
	if o.metrics == nil {
		return
	}
	o.metrics.SessionEvents.WithLabelValues(event).Inc()
	o.metrics.ActiveSessions.Set(float64(active))
}
