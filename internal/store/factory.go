package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/facemood/internal/reliability"
)

// Options selects a backend. With Backend "auto" (or empty) the first
// configured of DatabaseURL, RedisURL and SQLitePath wins; otherwise memory.
type Options struct {
	Backend     string
	DatabaseURL string
	RedisURL    string
	RedisPrefix string
	SQLitePath  string
}

const connectAttempts = 3

// NewStore opens the configured backend and returns it with its resolved name.
func NewStore(ctx context.Context, opts Options) (Store, string, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" || backend == "auto" {
		switch {
		case strings.TrimSpace(opts.DatabaseURL) != "":
			backend = "postgres"
		case strings.TrimSpace(opts.RedisURL) != "":
			backend = "redis"
		case strings.TrimSpace(opts.SQLitePath) != "":
			backend = "sqlite"
		default:
			backend = "memory"
		}
	}

	switch backend {
	case "memory":
		return NewMemoryStore(), backend, nil
	case "postgres":
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, "", fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
		var pg *PostgresStore
		err := reliability.Retry(ctx, connectAttempts, 250*time.Millisecond, 2*time.Second, func(ctx context.Context) error {
			var err error
			pg, err = NewPostgresStore(ctx, opts.DatabaseURL)
			return err
		})
		if err != nil {
			return nil, "", err
		}
		return pg, backend, nil
	case "redis":
		if strings.TrimSpace(opts.RedisURL) == "" {
			return nil, "", fmt.Errorf("STORE_BACKEND=redis requires REDIS_URL")
		}
		rs, err := DialRedis(ctx, opts.RedisURL, WithPrefix(opts.RedisPrefix))
		if err != nil {
			return nil, "", err
		}
		return rs, backend, nil
	case "sqlite":
		if strings.TrimSpace(opts.SQLitePath) == "" {
			return nil, "", fmt.Errorf("STORE_BACKEND=sqlite requires SQLITE_PATH")
		}
		ss, err := NewSQLiteStore(ctx, opts.SQLitePath)
		if err != nil {
			return nil, "", err
		}
		return ss, backend, nil
	default:
		return nil, "", fmt.Errorf("invalid STORE_BACKEND: %q (expected auto|memory|postgres|redis|sqlite)", opts.Backend)
	}
}
