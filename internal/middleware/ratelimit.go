package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
	"github.com/jwalitptl/clinic-scheduler/pkg/httputil"
)

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter keeps one token bucket per client in process memory. Idle
// buckets expire so the map does not grow without bound.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets *cache.Cache
	rps     rate.Limit
	burst   int
}

func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = int(rps) + 1
	}
	return &LocalLimiter{
		buckets: cache.New(10*time.Minute, 10*time.Minute),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	bucket, ok := l.buckets.Get(key)
	if !ok {
		bucket = rate.NewLimiter(l.rps, l.burst)
	}
	l.buckets.SetDefault(key, bucket)
	l.mu.Unlock()

	return bucket.(*rate.Limiter).Allow(), nil
}

// RedisLimiter is a fixed-window counter shared by every API instance.
type RedisLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRedisLimiter(rdb redis.Scripter, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{rdb: rdb, limit: limit, window: window, prefix: "scheduler:rl"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := fixedWindowScript.Run(ctx, l.rdb, []string{l.prefix + ":" + key}, l.window.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	count, err := scriptCount(res)
	if err != nil {
		return false, err
	}
	return count <= int64(l.limit), nil
}

func scriptCount(res interface{}) (int64, error) {
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected rate limit script result %T", res)
	}
}

// RateLimit rejects clients over their budget with 429. Limiter failures
// let the request through.
func RateLimit(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			httputil.RespondWithError(c, errors.NewTooManyRequests())
			return
		}
		c.Next()
	}
}
