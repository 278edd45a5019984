package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
)

// MemoryCache keeps the latest tick per symbol in process.
type MemoryCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	ticks map[string]domain.Tick
	now   func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, ticks: make(map[string]domain.Tick), now: time.Now}
}

func (m *MemoryCache) Set(ctx context.Context, tick domain.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[normalize(tick.Symbol)] = tick
	return nil
}

func (m *MemoryCache) Latest(ctx context.Context, symbol string) (*domain.Tick, error) {
	m.mu.RLock()
	tick, ok := m.ticks[normalize(symbol)]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	if m.ttl > 0 && m.now().Sub(tick.EventTime) > m.ttl {
		return nil, domain.ErrNotFound
	}
	return &tick, nil
}

func (m *MemoryCache) Close() error { return nil }

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
