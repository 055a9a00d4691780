package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ent0n29/facemood/internal/emotion"
)

// Recorder outcomes reported through the hook.
const (
	OutcomeWritten = "written"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// RecorderConfig tunes the background writer.
type RecorderConfig struct {
	Mode     Mode
	Matching Matching
	Workers  int
	Queue    int
	Timeout  time.Duration
	// OnEvent, when set, is called for every write outcome.
	OnEvent func(outcome string, d time.Duration)
}

type writeTask struct {
	sessionID string
	subject   string
	label     emotion.Label
	at        time.Time
}

// Recorder moves persistence off the response path: sessions enqueue and a
// small worker pool writes. A full queue drops the write. Failures are logged
// and swallowed.
type Recorder struct {
	store  Store
	cfg    RecorderConfig
	queue  chan writeTask
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewRecorder(s Store, cfg RecorderConfig) *Recorder {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeLatest
	}
	if cfg.Matching == "" {
		cfg.Matching = MatchExact
	}
	r := &Recorder{
		store: s,
		cfg:   cfg,
		queue: make(chan writeTask, cfg.Queue),
	}
	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

func (r *Recorder) Mode() Mode { return r.cfg.Mode }

func (r *Recorder) Matching() Matching { return r.cfg.Matching }

// Wants reports whether an observation for subject would produce any write.
// Sessions consult their throttle only when it does.
func (r *Recorder) Wants(subject string) bool {
	if r == nil || r.store == nil {
		return false
	}
	if r.cfg.Matching.Canonical(subject) != "" && r.cfg.Mode.Latest() {
		return true
	}
	return r.cfg.Mode.Events()
}

// Record enqueues an observation. It never blocks; it returns false when the
// write was dropped.
func (r *Recorder) Record(sessionID, subject string, label emotion.Label, at time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	task := writeTask{
		sessionID: sessionID,
		subject:   r.cfg.Matching.Canonical(subject),
		label:     label,
		at:        at,
	}
	select {
	case r.queue <- task:
		return true
	default:
		log.Printf("persist: queue full, dropping observation session=%s", sessionID)
		r.emit(OutcomeDropped, 0)
		return false
	}
}

// Close stops accepting writes and waits for queued ones to finish.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for task := range r.queue {
		r.write(task)
	}
}

func (r *Recorder) write(task writeTask) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	failed := false
	if task.subject != "" && r.cfg.Mode.Latest() {
		if err := r.store.UpsertLatest(ctx, task.subject, task.label, task.at); err != nil {
			log.Printf("persist: upsert latest subject=%q session=%s failed: %v", task.subject, task.sessionID, err)
			failed = true
		}
	}
	if r.cfg.Mode.Events() {
		obs := Observation{Subject: task.subject, Label: task.label, ObservedAt: task.at}
		if err := r.store.AppendObservation(ctx, obs); err != nil {
			log.Printf("persist: append observation session=%s failed: %v", task.sessionID, err)
			failed = true
		}
	}
	if failed {
		r.emit(OutcomeFailed, time.Since(start))
		return
	}
	r.emit(OutcomeWritten, time.Since(start))
}

func (r *Recorder) emit(outcome string, d time.Duration) {
	if hook := r.cfg.OnEvent; hook != nil {
		hook(outcome, d)
	}
}
