package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Memory is a process-local Cache. Entries expire after ttl; a zero ttl
// keeps them for the lifetime of the process.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

type memoryItem struct {
	value     string
	expiresAt time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the value stored under key. Expired entries are dropped lazily.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := contextErr(ctx); err != nil {
		return "", false, err
	}

	m.mu.RLock()
	item, found := m.items[key]
	m.mu.RUnlock()
	if !found {
		return "", false, nil
	}

	if !m.expired(item) {
		return item.value, true, nil
	}

	// A Set may have replaced the entry since the read lock was released.
	m.mu.Lock()
	defer m.mu.Unlock()
	item, found = m.items[key]
	if !found {
		return "", false, nil
	}
	if m.expired(item) {
		delete(m.items, key)
		slog.Debug("schema cache entry expired", "key", key)
		return "", false, nil
	}
	return item.value, true, nil
}

func (m *Memory) expired(item memoryItem) bool {
	return !item.expiresAt.IsZero() && m.now().After(item.expiresAt)
}

// Set stores value under key, replacing any previous entry.
func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := contextErr(ctx); err != nil {
		return err
	}
	if key == "" {
		return errbuilder.GenericErr("cache key must not be empty", nil)
	}

	item := memoryItem{value: value}
	if m.ttl > 0 {
		item.expiresAt = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	m.items[key] = item
	m.mu.Unlock()
	return nil
}

// Delete drops the entry under key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := contextErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func contextErr(ctx context.Context) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errbuilder.GenericErr("schema cache call abandoned", err)
	}
	return nil
}
