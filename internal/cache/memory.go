package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultMemorySize bounds the number of keys kept by NewMemory(0).
const DefaultMemorySize = 128

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Cache with per-entry expiry.
type Memory struct {
	entries *lru.Cache[string, entry]
	group   singleflight.Group
	now     func() time.Time
}

var _ Cache = (*Memory)(nil)

func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("cache: new lru: %w", err)
	}
	return &Memory{entries: entries, now: time.Now}, nil
}

func (m *Memory) Fetch(ctx context.Context, key string, ttl time.Duration, fill FillFunc) ([]byte, error) {
	if v, ok := m.get(key); ok {
		return v, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.get(key); ok {
			return v, nil
		}
		v, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		m.entries.Add(key, entry{value: v, expiresAt: m.now().Add(ttl)})
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.entries.Remove(key)
	return nil
}

func (m *Memory) get(key string) ([]byte, bool) {
	e, ok := m.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expiresAt) {
		m.entries.Remove(key)
		return nil, false
	}
	return e.value, true
}
