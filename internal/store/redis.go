package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ent0n29/facemood/internal/emotion"
)

// upsertLatestScript applies a write only when it is not older than the stored
// one, atomically on the server.
var upsertLatestScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'observed_at_ns')
if cur and tonumber(cur) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'subject', ARGV[3], 'emotion', ARGV[1], 'observed_at_ns', ARGV[2])
return 1
`)

// RedisStore keeps latest state in one hash per subject and events in a stream.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	streamMax int64
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix. Default is "facemood".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if p := strings.TrimSpace(prefix); p != "" {
			s.prefix = p
		}
	}
}

// WithStreamMaxLen caps the event stream length. Zero keeps every event.
func WithStreamMaxLen(n int64) RedisOption {
	return func(s *RedisStore) {
		s.streamMax = n
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "facemood",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string, opts ...RedisOption) (*RedisStore, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, opts...), nil
}

func (s *RedisStore) UpsertLatest(ctx context.Context, subject string, label emotion.Label, at time.Time) error {
	if err := validSubject(subject); err != nil {
		return err
	}
	err := upsertLatestScript.Run(ctx, s.client,
		[]string{s.subjectKey(subject)},
		string(label), at.UnixNano(), subject,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: redis upsert latest: %v", ErrPersistence, err)
	}
	return nil
}

func (s *RedisStore) AppendObservation(ctx context.Context, obs Observation) error {
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now()
	}
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.eventsKey(),
		MaxLen: s.streamMax,
		Values: map[string]any{
			"subject":        obs.Subject,
			"emotion":        string(obs.Label),
			"observed_at_ns": obs.ObservedAt.UnixNano(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: redis append observation: %v", ErrPersistence, err)
	}
	return nil
}

func (s *RedisStore) Latest(ctx context.Context, subject string) (Observation, error) {
	fields, err := s.client.HGetAll(ctx, s.subjectKey(subject)).Result()
	if err != nil {
		return Observation{}, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return Observation{}, ErrNotFound
	}
	ns, err := strconv.ParseInt(fields["observed_at_ns"], 10, 64)
	if err != nil {
		return Observation{}, fmt.Errorf("parse observed_at_ns: %w", err)
	}
	return Observation{
		Subject:    fields["subject"],
		Label:      emotion.Label(fields["emotion"]),
		ObservedAt: time.Unix(0, ns).UTC(),
	}, nil
}

func (s *RedisStore) RecentObservations(ctx context.Context, limit int) ([]Observation, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs, err := s.client.XRevRangeN(ctx, s.eventsKey(), "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange failed: %w", err)
	}
	out := make([]Observation, 0, len(msgs))
	for _, m := range msgs {
		o := Observation{
			ID:      m.ID,
			Subject: stringField(m.Values, "subject"),
			Label:   emotion.Label(stringField(m.Values, "emotion")),
		}
		if ns, err := strconv.ParseInt(stringField(m.Values, "observed_at_ns"), 10, 64); err == nil {
			o.ObservedAt = time.Unix(0, ns).UTC()
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) subjectKey(subject string) string {
	return fmt.Sprintf("%s:subject:%s", s.prefix, subject)
}

func (s *RedisStore) eventsKey() string {
	return s.prefix + ":events"
}

func stringField(values map[string]any, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}
