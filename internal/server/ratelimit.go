package server

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"orgpulse/config"
	"orgpulse/internal/telemetry"
)

// RateLimiter counts a hit against key and reports whether it stays under
// max for the current window. retryAfter is the seconds the caller should
// wait when rejected.
type RateLimiter interface {
	Hit(ctx context.Context, key string, max int) (allowed bool, retryAfter int, err error)
}

// memoryLimiter is a fixed-window counter kept in process memory. Windows
// are keyed by client and scope; a sweeper drops expired entries so the map
// does not grow with client churn.
type memoryLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*windowEntry
}

type windowEntry struct {
	count int
	reset time.Time
}

func newMemoryLimiter(window, sweepPeriod time.Duration, stop <-chan struct{}) *memoryLimiter {
	l := &memoryLimiter{
		window:  window,
		entries: make(map[string]*windowEntry),
	}
	if sweepPeriod > 0 {
		go l.sweep(sweepPeriod, stop)
	}
	return l
}

func (l *memoryLimiter) Hit(_ context.Context, key string, max int) (bool, int, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || now.After(e.reset) {
		e = &windowEntry{reset: now.Add(l.window)}
		l.entries[key] = e
	}
	e.count++
	if e.count > max {
		retry := int(time.Until(e.reset).Seconds()) + 1
		return false, retry, nil
	}
	return true, 0, nil
}

func (l *memoryLimiter) sweep(period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for k, e := range l.entries {
				if now.After(e.reset) {
					delete(l.entries, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// redisLimiter shares fixed windows across replicas via INCR with a TTL
// set on the first hit of each window.
type redisLimiter struct {
	client *redis.Client
	window time.Duration
}

func newRedisLimiter(client *redis.Client, window time.Duration) *redisLimiter {
	return &redisLimiter{client: client, window: window}
}

func (l *redisLimiter) Hit(ctx context.Context, key string, max int) (bool, int, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count > int64(max) {
		ttl, err := l.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = l.window
		}
		return false, int(ttl.Seconds()) + 1, nil
	}
	return true, 0, nil
}

// NewRateLimiter wires a Redis-backed limiter when an address is configured
// and it answers a ping; otherwise counters stay in process.
func NewRateLimiter(cfg config.RateLimitConfig, rcfg config.RedisConfig, logger *log.Logger, stop <-chan struct{}) RateLimiter {
	if addr := rcfg.Addr(); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: rcfg.Pass,
			DB:       rcfg.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err == nil {
			return newRedisLimiter(client, cfg.Window)
		}
		logger.Printf("redis unreachable at %s, rate limiting in memory", addr)
		_ = client.Close()
	}
	return newMemoryLimiter(cfg.Window, cfg.SweepPeriod, stop)
}

// RateLimitMiddleware rejects requests over max hits per window for the
// given scope, keyed by client IP. A zero max disables the limiter. Limiter
// backend errors fail open; throttling is best effort.
func RateLimitMiddleware(limiter RateLimiter, scope string, max int, metrics *telemetry.Telemetry, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if max <= 0 {
				return next(c)
			}
			key := "ratelimit:" + scope + ":" + c.RealIP()
			allowed, retryAfter, err := limiter.Hit(c.Request().Context(), key, max)
			if err != nil {
				logger.Printf("rate limiter error for %s: %v", scope, err)
				return next(c)
			}
			if !allowed {
				metrics.RateLimited(scope)
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":      "Too Many Requests",
					"message":    "Rate limit exceeded. Please try again later.",
					"retryAfter": retryAfter,
				})
			}
			return next(c)
		}
	}
}
