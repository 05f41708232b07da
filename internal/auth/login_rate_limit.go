package auth

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"station-records/internal/httpx"
	"station-records/internal/observability"
)

// LimitBackend decides whether one more login from key is allowed.
type LimitBackend interface {
	Allow(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}

type LoginRateLimiter struct {
	backend LimitBackend
	logger  *observability.Logger
}

func NewLoginRateLimiter(backend LimitBackend, logger *observability.Logger) *LoginRateLimiter {
	if logger == nil {
		logger = observability.NewLoggerWithWriter(io.Discard)
	}
	return &LoginRateLimiter{backend: backend, logger: logger}
}

// Middleware answers 429 once a client IP runs out of attempts. Backend
// errors let the request through.
func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpx.ClientIP(r)

		allowed, retryAfter, err := l.backend.Allow(r.Context(), ip, time.Now().UTC())
		if err != nil {
			l.logger.Warn("login_rate_limit_unavailable", map[string]any{"ip": ip, "error": err.Error()})
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			httpx.WriteError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimitBackend keeps a token bucket per key in process memory.
type MemoryLimitBackend struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	window    time.Duration
	entries   map[string]*memoryEntry
	maxMemory int
}

// NewMemoryLimitBackend allows maxHits logins per window, refilled evenly.
func NewMemoryLimitBackend(maxHits int, window time.Duration) *MemoryLimitBackend {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &MemoryLimitBackend{
		limit:     rate.Every(window / time.Duration(maxHits)),
		burst:     maxHits,
		window:    window,
		entries:   make(map[string]*memoryEntry),
		maxMemory: 5000,
	}
}

func (b *MemoryLimitBackend) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		entry = &memoryEntry{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.entries[key] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, b.window, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		if delay < time.Second {
			delay = time.Second
		}
		return false, delay, nil
	}

	if len(b.entries) > b.maxMemory {
		b.evict(now)
	}
	return true, 0, nil
}

func (b *MemoryLimitBackend) evict(now time.Time) {
	threshold := now.Add(-b.window)
	for key, entry := range b.entries {
		if entry.lastSeen.Before(threshold) {
			delete(b.entries, key)
		}
	}
}

// RedisLimitBackend counts logins per key in a fixed window shared by all
// instances.
type RedisLimitBackend struct {
	client  *redis.Client
	maxHits int
	window  time.Duration
	prefix  string
}

func NewRedisLimitBackend(client *redis.Client, maxHits int, window time.Duration) *RedisLimitBackend {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimitBackend{client: client, maxHits: maxHits, window: window, prefix: "login_rl:"}
}

func (b *RedisLimitBackend) Allow(ctx context.Context, key string, _ time.Time) (bool, time.Duration, error) {
	redisKey := b.prefix + key

	count, err := b.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr login counter: %w", err)
	}
	if count == 1 {
		if err := b.client.Expire(ctx, redisKey, b.window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire login counter: %w", err)
		}
	}

	if count <= int64(b.maxHits) {
		return true, 0, nil
	}

	ttl, err := b.client.TTL(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ttl login counter: %w", err)
	}
	if ttl < 0 {
		// Counter without expiry; restart the window.
		if err := b.client.Expire(ctx, redisKey, b.window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire login counter: %w", err)
		}
		ttl = b.window
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return false, ttl, nil
}
