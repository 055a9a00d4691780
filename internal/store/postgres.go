package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/facemood/internal/emotion"
)

// PostgresStore persists observations in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS subject_emotions (
			subject TEXT PRIMARY KEY,
			emotion TEXT NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS emotion_events (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL DEFAULT '',
			emotion TEXT NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_emotion_events_observed ON emotion_events (observed_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertLatest(ctx context.Context, subject string, label emotion.Label, at time.Time) error {
	if err := validSubject(subject); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subject_emotions (subject, emotion, observed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (subject) DO UPDATE
		 SET emotion = EXCLUDED.emotion, observed_at = EXCLUDED.observed_at
		 WHERE subject_emotions.observed_at <= EXCLUDED.observed_at`,
		subject,
		string(label),
		at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert latest: %v", ErrPersistence, err)
	}
	return nil
}

func (s *PostgresStore) AppendObservation(ctx context.Context, obs Observation) error {
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO emotion_events (id, subject, emotion, observed_at) VALUES ($1, $2, $3, $4)`,
		obs.ID,
		obs.Subject,
		string(obs.Label),
		obs.ObservedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: append observation: %v", ErrPersistence, err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, subject string) (Observation, error) {
	var (
		obs   Observation
		label string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT subject, emotion, observed_at FROM subject_emotions WHERE subject=$1`,
		subject,
	).Scan(&obs.Subject, &label, &obs.ObservedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Observation{}, ErrNotFound
		}
		return Observation{}, fmt.Errorf("query latest: %w", err)
	}
	obs.Label = emotion.Label(label)
	obs.ObservedAt = obs.ObservedAt.UTC()
	return obs, nil
}

func (s *PostgresStore) RecentObservations(ctx context.Context, limit int) ([]Observation, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, subject, emotion, observed_at
		 FROM emotion_events ORDER BY observed_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent observations: %w", err)
	}
	defer rows.Close()

	items := make([]Observation, 0, limit)
	for rows.Next() {
		var (
			o     Observation
			label string
		)
		if err := rows.Scan(&o.ID, &o.Subject, &label, &o.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}
		o.Label = emotion.Label(label)
		o.ObservedAt = o.ObservedAt.UTC()
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
