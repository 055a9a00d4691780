package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ent0n29/facemood/internal/throttle"
)

// ManagerConfig configures session admission and per-session throttling.
type ManagerConfig struct {
	// PersistWindow is the minimum spacing between persisted observations
	// of one session, measured from connect time.
	PersistWindow time.Duration
	// MaxConcurrent caps open sessions. Zero means unbounded.
	MaxConcurrent int64
	Now           func() time.Time
}

// Manager is the registry of live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	window   time.Duration
	sem      *semaphore.Weighted
	max      int64
	now      func() time.Time
	onChange func(event string, active int)
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.PersistWindow <= 0 {
		cfg.PersistWindow = 3 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		window:   cfg.PersistWindow,
		max:      cfg.MaxConcurrent,
		now:      cfg.Now,
	}
	if cfg.MaxConcurrent > 0 {
		m.sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}
	return m
}

// SetHook registers a callback for "connect" and "disconnect" events. It must
// be called before the manager serves traffic.
func (m *Manager) SetHook(hook func(event string, active int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = hook
}

// OnConnect admits and registers a new session in the connecting state.
func (m *Manager) OnConnect(identity, remote string) (*Session, error) {
	if m.sem != nil && !m.sem.TryAcquire(1) {
		return nil, ErrCapacity
	}
	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		Identity:  identity,
		Remote:    remote,
		StartedAt: now,
		gate:      throttle.New(m.window, now),
	}
	s.state.Store(int32(StateConnecting))

	m.mu.Lock()
	m.sessions[s.ID] = s
	active := len(m.sessions)
	hook := m.onChange
	m.mu.Unlock()

	if hook != nil {
		hook("connect", active)
	}
	return s, nil
}

// OnDisconnect closes and unregisters a session. Calling it more than once is
// safe.
func (m *Manager) OnDisconnect(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	active := len(m.sessions)
	hook := m.onChange
	m.mu.Unlock()

	if !ok {
		return
	}
	s.BeginClose()
	s.state.Store(int32(StateClosed))
	if m.sem != nil {
		m.sem.Release(1)
	}
	if hook != nil {
		hook("disconnect", active)
	}
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Capacity returns the configured cap, zero when unbounded.
func (m *Manager) Capacity() int64 { return m.max }

func (m *Manager) Window() time.Duration { return m.window }

// List returns snapshots ordered by start time.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
