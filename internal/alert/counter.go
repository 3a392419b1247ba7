package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Counter es un contador atómico con ventana de tiempo, clave por
// (regla, usuario-o-IP). Incr y Reset son las únicas operaciones: no hay
// locks largos, cada operación es de una sola key y reintentable.
type Counter interface {
	// Incr incrementa el contador de la key dentro de la ventana y
	// retorna el valor resultante.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// Reset borra el contador de la key. Se llama al cruzar un umbral
	// para que el mismo cruce no dispare dos alertas.
	Reset(ctx context.Context, key string, window time.Duration) error
}

// RedisCounter implementa Counter con INCR + EXPIRE, mismo esquema
// fixed-window que el rate limiter.
type RedisCounter struct {
	Client *rdb.Client
	Prefix string
}

func NewRedisCounter(client *rdb.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "alertc:"
	}
	return &RedisCounter{Client: client, Prefix: prefix}
}

func (c *RedisCounter) key(key string, window time.Duration) string {
	winStart := time.Now().UTC().Truncate(window)
	return fmt.Sprintf("%s%s:%d", c.Prefix, key, winStart.Unix())
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := c.key(key, window)
	n, err := c.Client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		_ = c.Client.Expire(ctx, k, window).Err()
	}
	return n, nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string, window time.Duration) error {
	return c.Client.Del(ctx, c.key(key, window)).Err()
}

// MemoryCounter implementa Counter en memoria, para desarrollo y tests.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*memCounter
}

type memCounter struct {
	start time.Time
	n     int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: make(map[string]*memCounter)}
}

func (c *MemoryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	winStart := time.Now().UTC().Truncate(window)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.start.Equal(winStart) {
		e = &memCounter{start: winStart}
		c.entries[key] = e
	}
	e.n++
	return e.n, nil
}

func (c *MemoryCounter) Reset(ctx context.Context, key string, window time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
