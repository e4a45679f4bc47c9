package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/mealprep-intake/internal/intake"
)

const pendingMarker = "pending"

// IdempotencyStore remembers submission results per idempotency key so an
// unchanged retry returns the original record instead of creating a new one.
type IdempotencyStore interface {
	// Begin claims key. When a finished result exists it is returned; when
	// another request holds the claim ErrSubmissionInFlight is returned.
	Begin(ctx context.Context, key string) (*intake.SubmitResult, error)
	Complete(ctx context.Context, key string, res intake.SubmitResult) error
	// Abandon releases a claim so the key can be retried.
	Abandon(ctx context.Context, key string) error
}

// RedisIdempotencyStore keeps claims and results in redis with a TTL.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl, prefix: "idem:intake:"}
}

func (s *RedisIdempotencyStore) Begin(ctx context.Context, key string) (*intake.SubmitResult, error) {
	k := s.prefix + key
	claimed, err := s.client.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("orders: idempotency claim: %w", err)
	}
	if claimed {
		return nil, nil
	}
	raw, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as a fresh claim.
		return s.Begin(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("orders: idempotency lookup: %w", err)
	}
	if raw == pendingMarker {
		return nil, ErrSubmissionInFlight
	}
	var res intake.SubmitResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("orders: idempotency decode: %w", err)
	}
	return &res, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, res intake.SubmitResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("orders: idempotency encode: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("orders: idempotency store: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) Abandon(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// MemoryIdempotencyStore is the in-process variant.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryIdemEntry
}

type memoryIdemEntry struct {
	result  *intake.SubmitResult
	expires time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryIdempotencyStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryIdemEntry)}
}

func (s *MemoryIdempotencyStore) Begin(ctx context.Context, key string) (*intake.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	entry, ok := s.entries[key]
	if ok && now.Before(entry.expires) {
		if entry.result == nil {
			return nil, ErrSubmissionInFlight
		}
		res := *entry.result
		return &res, nil
	}
	s.entries[key] = memoryIdemEntry{expires: now.Add(s.ttl)}
	return nil, nil
}

func (s *MemoryIdempotencyStore) Complete(ctx context.Context, key string, res intake.SubmitResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryIdemEntry{result: &res, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryIdempotencyStore) Abandon(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
