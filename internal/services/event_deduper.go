package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventDedupKeyPrefix namespaces processed payment event ids in Redis
const EventDedupKeyPrefix = "payments:event:"

// EventDeduper remembers which payment events were already handled
type EventDeduper interface {
	// MarkProcessed claims eventID. It returns false if the id was already claimed.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
	// Forget releases a claim so a redelivered event is handled again
	Forget(ctx context.Context, eventID string) error
}

// RedisClient is the subset of the go-redis client used for dedupe
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisEventDeduper claims event ids with SETNX and a TTL
type RedisEventDeduper struct {
	client RedisClient
	ttl    time.Duration
}

// NewRedisEventDeduper creates a new RedisEventDeduper
func NewRedisEventDeduper(client RedisClient, ttl time.Duration) *RedisEventDeduper {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisEventDeduper{client: client, ttl: ttl}
}

// MarkProcessed claims eventID for the dedupe TTL
func (d *RedisEventDeduper) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	claimed, err := d.client.SetNX(ctx, EventDedupKeyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", eventID, err)
	}
	return claimed, nil
}

// Forget deletes the claim on eventID
func (d *RedisEventDeduper) Forget(ctx context.Context, eventID string) error {
	if err := d.client.Del(ctx, EventDedupKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to release event %s: %w", eventID, err)
	}
	return nil
}

// MemoryEventDeduper dedupes within a single process.
// Admission stays idempotent on the payment reference either way.
type MemoryEventDeduper struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	ttl       time.Duration
	lastPrune time.Time
	now       func() time.Time
}

// NewMemoryEventDeduper creates a new MemoryEventDeduper that forgets
// claims after the same 72h window as the Redis deduper
func NewMemoryEventDeduper() *MemoryEventDeduper {
	return &MemoryEventDeduper{
		seen: make(map[string]time.Time),
		ttl:  72 * time.Hour,
		now:  time.Now,
	}
}

// MarkProcessed claims eventID
func (d *MemoryEventDeduper) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.prune(now)
	if claimedAt, ok := d.seen[eventID]; ok && now.Sub(claimedAt) < d.ttl {
		return false, nil
	}
	d.seen[eventID] = now
	return true, nil
}

// prune drops expired claims at most once a minute. Callers hold d.mu.
func (d *MemoryEventDeduper) prune(now time.Time) {
	if now.Sub(d.lastPrune) < time.Minute {
		return
	}
	d.lastPrune = now
	for id, claimedAt := range d.seen {
		if now.Sub(claimedAt) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Forget releases the claim on eventID
func (d *MemoryEventDeduper) Forget(ctx context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
	return nil
}
