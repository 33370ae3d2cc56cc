// Package idempotency lets clients retry order creation safely. The first
// request with a given key runs; later ones replay its stored response.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is what a key resolves to. Done is false while the first request
// is still running.
type Record struct {
	Done   bool   `json:"done"`
	Status int    `json:"status,omitempty"`
	Body   []byte `json:"body,omitempty"`
}

// Store claims keys and remembers completed responses.
type Store interface {
	// Begin claims key. When another request already holds it, the existing
	// record is returned with claimed false.
	Begin(ctx context.Context, key string) (rec Record, claimed bool, err error)
	// Complete stores the final response for key.
	Complete(ctx context.Context, key string, rec Record) error
	// Release forgets key so a later request may run again.
	Release(ctx context.Context, key string) error
}

// MemoryStore keeps keys in process memory.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	rec     Record
	expires time.Time
}

// NewMemoryStore creates a store whose keys expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Begin(ctx context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweepLocked(now)
	if e, ok := s.entries[key]; ok {
		return e.rec, false, nil
	}
	s.entries[key] = memoryEntry{expires: now.Add(s.ttl)}
	return Record{}, true, nil
}

func (s *MemoryStore) Complete(ctx context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Done = true
	s.entries[key] = memoryEntry{rec: rec, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for k, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, k)
		}
	}
}

// RedisStore shares keys between server instances.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) key(key string) string {
	return "coffeenet:idem:" + key
}

func (s *RedisStore) Begin(ctx context.Context, key string) (Record, bool, error) {
	pending, _ := json.Marshal(Record{})
	ok, err := s.rdb.SetNX(ctx, s.key(key), pending, s.ttl).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return Record{}, true, nil
	}

	data, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SetNX and Get; try once more.
		ok, err = s.rdb.SetNX(ctx, s.key(key), pending, s.ttl).Result()
		if err != nil {
			return Record{}, false, fmt.Errorf("claim idempotency key: %w", err)
		}
		return Record{}, ok, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read idempotency key: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return rec, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, rec Record) error {
	rec.Done = true
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(key), data, s.ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}
