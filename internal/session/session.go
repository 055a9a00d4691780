package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ent0n29/facemood/internal/throttle"
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	ErrNotFound      = errors.New("session not found")
	ErrCapacity      = errors.New("session capacity reached")
	ErrTransport     = errors.New("session transport failed")
	ErrBadTransition = errors.New("invalid session state transition")
)

// Session is the per-connection state. Sessions are created by
// Manager.OnConnect and never shared between connections.
type Session struct {
	ID        string
	Identity  string
	Remote    string
	StartedAt time.Time

	gate  *throttle.Gate
	state atomic.Int32

	frames    atomic.Int64
	persisted atomic.Int64

	mu      sync.Mutex
	subject string
}

// Info is a read-only snapshot for listings.
type Info struct {
	ID        string    `json:"session_id"`
	Subject   string    `json:"subject,omitempty"`
	State     State     `json:"state"`
	Remote    string    `json:"remote,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Frames    int64     `json:"frames"`
	Persisted int64     `json:"persisted"`
}

func (s *Session) State() State { return State(s.state.Load()) }

// Open moves a connecting session to open once the handshake succeeded.
func (s *Session) Open() error { return s.transition(StateConnecting, StateOpen) }

// BeginClose moves an open session to closing. It is a no-op for sessions
// already closing or closed.
func (s *Session) BeginClose() {
	s.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing))
}

func (s *Session) transition(from, to State) error {
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return ErrBadTransition
	}
	return nil
}

// Subject resolves the persistence subject for a frame. A validated identity
// always wins over the per-message username.
func (s *Session) Subject(username string) string {
	if s.Identity != "" {
		return s.Identity
	}
	return username
}

func (s *Session) noteSubject(subject string) {
	if subject == "" {
		return
	}
	s.mu.Lock()
	s.subject = subject
	s.mu.Unlock()
}

func (s *Session) Info() Info {
	s.mu.Lock()
	subject := s.subject
	s.mu.Unlock()
	if subject == "" {
		subject = s.Identity
	}
	return Info{
		ID:        s.ID,
		Subject:   subject,
		State:     s.State(),
		Remote:    s.Remote,
		StartedAt: s.StartedAt,
		Frames:    s.frames.Load(),
		Persisted: s.persisted.Load(),
	}
}
