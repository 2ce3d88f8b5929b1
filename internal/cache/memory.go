package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sells-group/place-resolver/internal/model"
)

// Memory is a bounded in-process cache. Entries carry their own expiry, and
// the LRU enforces an upper bound on age and size.
type Memory struct {
	lru *expirable.LRU[string, model.CacheEntry]

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewMemory creates a Memory cache holding at most size entries, none kept
// longer than maxAge. A non-positive maxAge disables the LRU-side expiry.
func NewMemory(size int, maxAge time.Duration) *Memory {
	if size <= 0 {
		size = 4096
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return &Memory{
		lru:     expirable.NewLRU[string, model.CacheEntry](size, nil, maxAge),
		nowFunc: time.Now,
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (*model.CacheEntry, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, nil
	}
	if e.Expired(m.nowFunc()) {
		m.lru.Remove(key)
		return nil, nil
	}
	return &e, nil
}

// Set implements Store. A non-positive ttl deletes the key.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		m.lru.Remove(key)
		return nil
	}
	now := m.nowFunc().UTC()
	m.lru.Add(key, model.CacheEntry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	return nil
}

// Len returns the number of entries currently held.
func (m *Memory) Len() int {
	return m.lru.Len()
}
