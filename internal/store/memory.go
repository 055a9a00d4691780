package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/facemood/internal/emotion"
)

// MemoryStore is an in-process store for local/dev use.
type MemoryStore struct {
	mu     sync.RWMutex
	latest map[string]Observation
	events []Observation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{latest: make(map[string]Observation)}
}

func (s *MemoryStore) UpsertLatest(_ context.Context, subject string, label emotion.Label, at time.Time) error {
	if err := validSubject(subject); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.latest[subject]; ok && cur.ObservedAt.After(at) {
		return nil
	}
	s.latest[subject] = Observation{Subject: subject, Label: label, ObservedAt: at.UTC()}
	return nil
}

func (s *MemoryStore) AppendObservation(_ context.Context, obs Observation) error {
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now()
	}
	obs.ObservedAt = obs.ObservedAt.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, obs)
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, subject string) (Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.latest[subject]
	if !ok {
		return Observation{}, ErrNotFound
	}
	return obs, nil
}

func (s *MemoryStore) RecentObservations(_ context.Context, limit int) ([]Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]Observation, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
