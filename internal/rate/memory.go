package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter es un fixed-window en memoria con la misma semántica que
// RedisLimiter. Para desarrollo y tests; no sirve para múltiples procesos.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memWindow
}

type memWindow struct {
	start time.Time
	win   time.Duration
	hits  int64
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*memWindow)}
}

// AllowWithLimits implementa MultiLimiter.
func (m *MemoryLimiter) AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(window)

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !w.start.Equal(winStart) || w.win != window {
		w = &memWindow{start: winStart, win: window}
		m.windows[key] = w
	}
	w.hits++

	max := int64(limit)
	remaining := max - w.hits
	if remaining < 0 {
		remaining = 0
	}
	ttl := winStart.Add(window).Sub(now)

	res := Result{
		Allowed:     w.hits <= max,
		Remaining:   remaining,
		CurrentHits: w.hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}
