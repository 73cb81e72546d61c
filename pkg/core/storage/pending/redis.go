// Package pending parks screening records whose finalize write failed so they
// can be replayed out-of-band once storage recovers.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vango-go/interview-live/pkg/core/storage"
)

const (
	keyPrefix  = "interview:pending:"
	indexKey   = "interview:pending"
	defaultTTL = 7 * 24 * time.Hour
)

// Parked is one record waiting for replay.
type Parked struct {
	SessionID string                  `json:"session_id"`
	Record    storage.ScreeningRecord `json:"record"`
	Reason    string                  `json:"reason,omitempty"`
	ParkedAt  time.Time               `json:"parked_at"`
}

// redisClient is the subset of *redis.Client used here.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// RedisStore keeps parked records as JSON values with a TTL, indexed by a set
// of screening ids.
type RedisStore struct {
	client redisClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a new Redis-based pending store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return newRedisStore(client, ttl)
}

func newRedisStore(client redisClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

// Park stores p under its screening id, replacing any previous entry.
func (s *RedisStore) Park(ctx context.Context, p Parked) error {
	if p.Record.ID == "" {
		return fmt.Errorf("pending: record id is required")
	}
	if p.ParkedAt.IsZero() {
		p.ParkedAt = s.now().UTC()
	}
	val, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("pending: encode %s: %w", p.Record.ID, err)
	}
	if err := s.client.Set(ctx, key(p.Record.ID), val, s.ttl).Err(); err != nil {
		return fmt.Errorf("pending: park %s: %w", p.Record.ID, err)
	}
	if err := s.client.SAdd(ctx, indexKey, p.Record.ID).Err(); err != nil {
		return fmt.Errorf("pending: index %s: %w", p.Record.ID, err)
	}
	return nil
}

// List returns parked records oldest first. Index entries whose value has
// expired are pruned.
func (s *RedisStore) List(ctx context.Context) ([]Parked, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("pending: list: %w", err)
	}
	out := make([]Parked, 0, len(ids))
	for _, id := range ids {
		val, err := s.client.Get(ctx, key(id)).Result()
		if errors.Is(err, redis.Nil) {
			_ = s.client.SRem(ctx, indexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pending: get %s: %w", id, err)
		}
		var p Parked
		if err := json.Unmarshal([]byte(val), &p); err != nil {
			return nil, fmt.Errorf("pending: decode %s: %w", id, err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParkedAt.Before(out[j].ParkedAt) })
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, screeningID string) error {
	if err := s.client.Del(ctx, key(screeningID)).Err(); err != nil {
		return fmt.Errorf("pending: delete %s: %w", screeningID, err)
	}
	if err := s.client.SRem(ctx, indexKey, screeningID).Err(); err != nil {
		return fmt.Errorf("pending: unindex %s: %w", screeningID, err)
	}
	return nil
}

func key(id string) string { return keyPrefix + id }
