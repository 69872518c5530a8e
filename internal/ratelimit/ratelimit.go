// Package ratelimit bounds repeated failed attempts per key, such as wrong
// share passwords.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"lexdraft/api/internal/metrics"
)

// Limiter tracks failures per key. Blocked reports whether a key has used up
// its attempts for the current window.
type Limiter interface {
	Blocked(ctx context.Context, key string) (bool, time.Duration, error)
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// Redis is a fixed-window limiter shared across API instances.
type Redis struct {
	client   *redis.Client
	prefix   string
	attempts int
	window   time.Duration
}

func NewRedis(client *redis.Client, attempts int, window time.Duration) *Redis {
	if window < time.Second {
		window = time.Second
	}
	return &Redis{client: client, prefix: "rl:share:", attempts: attempts, window: window}
}

func (r *Redis) Blocked(ctx context.Context, key string) (bool, time.Duration, error) {
	count, err := r.client.Get(ctx, r.prefix+key).Int()
	if errors.Is(err, redis.Nil) {
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("read attempts: %w", err)
	}
	if count < r.attempts {
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		return false, 0, nil
	}
	ttl, err := r.client.TTL(ctx, r.prefix+key).Result()
	if err != nil || ttl < 0 {
		ttl = r.window
	}
	metrics.RateLimitRejected.WithLabelValues("redis").Inc()
	return true, ttl, nil
}

// Fail counts an attempt. The counter and its expiry are set in one
// transaction so a key never outlives its window.
func (r *Redis) Fail(ctx context.Context, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.prefix+key)
		pipe.ExpireNX(ctx, r.prefix+key, r.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}

// Memory is a per-process token bucket limiter used when Redis is not
// configured. Each failure consumes a token; tokens refill evenly over the
// window. Buckets that have refilled completely are swept once per window.
type Memory struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	attempts  int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemory(attempts int, window time.Duration) *Memory {
	if attempts < 1 {
		attempts = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Memory{
		limiters: make(map[string]*rate.Limiter),
		attempts: attempts,
		window:   window,
		now:      time.Now,
	}
}

func (m *Memory) limiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.Sub(m.lastSweep) >= m.window {
		m.sweep(now)
	}
	lim, ok := m.limiters[key]
	if !ok {
		every := m.window / time.Duration(m.attempts)
		lim = rate.NewLimiter(rate.Every(every), m.attempts)
		m.limiters[key] = lim
	}
	return lim
}

// sweep drops full buckets, which behave exactly like missing ones.
// Callers hold m.mu.
func (m *Memory) sweep(now time.Time) {
	for key, lim := range m.limiters {
		if lim.TokensAt(now) >= float64(m.attempts) {
			delete(m.limiters, key)
		}
	}
	m.lastSweep = now
}

// Len reports how many keys are currently tracked.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.limiters)
}

func (m *Memory) Blocked(_ context.Context, key string) (bool, time.Duration, error) {
	lim := m.limiter(key)
	tokens := lim.TokensAt(m.now())
	if tokens < 1 {
		metrics.RateLimitRejected.WithLabelValues("memory").Inc()
		every := time.Duration(float64(time.Second) / float64(lim.Limit()))
		return true, time.Duration((1 - tokens) * float64(every)), nil
	}
	metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
	return false, 0, nil
}

func (m *Memory) Fail(_ context.Context, key string) error {
	m.limiter(key).AllowN(m.now(), 1)
	return nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.limiters, key)
	return nil
}
