package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ent0n29/facemood/internal/emotion"
)

// SQLiteStore persists observations in a single SQLite file. Timestamps are
// stored as unix nanoseconds so the last-write-wins comparison is numeric.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Writes serialize through one connection; sessions only ever enqueue.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS subject_emotions (
		subject TEXT PRIMARY KEY,
		emotion TEXT NOT NULL,
		observed_at_ns INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS emotion_events (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL DEFAULT '',
		emotion TEXT NOT NULL,
		observed_at_ns INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_emotion_events_observed ON emotion_events(observed_at_ns);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertLatest(ctx context.Context, subject string, label emotion.Label, at time.Time) error {
	if err := validSubject(subject); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subject_emotions (subject, emotion, observed_at_ns) VALUES (?, ?, ?)
		ON CONFLICT(subject) DO UPDATE
		SET emotion = excluded.emotion, observed_at_ns = excluded.observed_at_ns
		WHERE subject_emotions.observed_at_ns <= excluded.observed_at_ns
	`, subject, string(label), at.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: upsert latest: %v", ErrPersistence, err)
	}
	return nil
}

func (s *SQLiteStore) AppendObservation(ctx context.Context, obs Observation) error {
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emotion_events (id, subject, emotion, observed_at_ns) VALUES (?, ?, ?, ?)
	`, obs.ID, obs.Subject, string(obs.Label), obs.ObservedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: append observation: %v", ErrPersistence, err)
	}
	return nil
}

func (s *SQLiteStore) Latest(ctx context.Context, subject string) (Observation, error) {
	var (
		obs   Observation
		label string
		ns    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT subject, emotion, observed_at_ns FROM subject_emotions WHERE subject = ?`, subject,
	).Scan(&obs.Subject, &label, &ns)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Observation{}, ErrNotFound
		}
		return Observation{}, fmt.Errorf("query latest: %w", err)
	}
	obs.Label = emotion.Label(label)
	obs.ObservedAt = time.Unix(0, ns).UTC()
	return obs, nil
}

func (s *SQLiteStore) RecentObservations(ctx context.Context, limit int) ([]Observation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, emotion, observed_at_ns
		FROM emotion_events ORDER BY observed_at_ns DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent observations: %w", err)
	}
	defer rows.Close()

	var items []Observation
	for rows.Next() {
		var (
			o     Observation
			label string
			ns    int64
		)
		if err := rows.Scan(&o.ID, &o.Subject, &label, &ns); err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}
		o.Label = emotion.Label(label)
		o.ObservedAt = time.Unix(0, ns).UTC()
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation rows: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
