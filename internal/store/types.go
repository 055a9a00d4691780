// Package store persists emotion observations: the latest label per subject
// and an append-only event log.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/facemood/internal/emotion"
)

var (
	ErrNotFound       = errors.New("observation not found")
	ErrInvalidSubject = errors.New("invalid subject")
	// ErrPersistence wraps write failures. Callers log and drop it; it never
	// reaches a client.
	ErrPersistence = errors.New("persistence failed")
)

// Observation is one persisted label. Subject is empty for anonymous events.
type Observation struct {
	ID         string        `json:"id,omitempty"`
	Subject    string        `json:"subject,omitempty"`
	Label      emotion.Label `json:"emotion"`
	ObservedAt time.Time     `json:"emotion_timestamp"`
}

// Store is safe for concurrent use by independent sessions.
type Store interface {
	// UpsertLatest keeps one row per subject. Writes older than the stored
	// timestamp are ignored (last write wins by timestamp).
	UpsertLatest(ctx context.Context, subject string, label emotion.Label, at time.Time) error
	// AppendObservation inserts an event row without deduplication.
	AppendObservation(ctx context.Context, obs Observation) error
	Latest(ctx context.Context, subject string) (Observation, error)
	// RecentObservations returns up to limit events, newest first.
	RecentObservations(ctx context.Context, limit int) ([]Observation, error)
	Close() error
}

// Mode selects which writes a permitted observation produces.
type Mode string

const (
	ModeLatest   Mode = "latest"
	ModeEventLog Mode = "eventlog"
	ModeBoth     Mode = "both"
	ModeOff      Mode = "off"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLatest, ModeEventLog, ModeBoth, ModeOff:
		return m, nil
	case "":
		return ModeLatest, nil
	default:
		return "", fmt.Errorf("invalid persist mode %q (expected latest|eventlog|both|off)", s)
	}
}

// Latest reports whether subjects get a latest-state row.
func (m Mode) Latest() bool { return m == ModeLatest || m == ModeBoth }

// Events reports whether observations are appended to the event log.
func (m Mode) Events() bool { return m == ModeEventLog || m == ModeBoth }

// Matching controls how subject identities are compared.
type Matching string

const (
	MatchExact Matching = "exact"
	// MatchFold treats subjects case-insensitively ("Alice" == "alice").
	MatchFold Matching = "fold"
)

func ParseMatching(s string) (Matching, error) {
	switch m := Matching(strings.ToLower(strings.TrimSpace(s))); m {
	case MatchExact, MatchFold:
		return m, nil
	case "":
		return MatchExact, nil
	default:
		return "", fmt.Errorf("invalid subject match %q (expected exact|fold)", s)
	}
}

// Canonical returns the storage key for subject.
func (m Matching) Canonical(subject string) string {
	subject = strings.TrimSpace(subject)
	if m == MatchFold {
		return strings.ToLower(subject)
	}
	return subject
}

func validSubject(subject string) error {
	if strings.TrimSpace(subject) == "" {
		return ErrInvalidSubject
	}
	return nil
}
