package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soyeahso/supportim/internal/logging"
)

// Counter is an external counting service shared between instances.
type Counter interface {
	// Incr increments key and returns the new value. The key expires after
	// ttl, measured from its first increment.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisCounter implements Counter with INCR and EXPIRE NX sent in one
// pipeline, so every hit re-arms a missing TTL.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter connects to the redis URL (redis://host:port/db).
func NewRedisCounter(url string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &RedisCounter{client: redis.NewClient(opts)}, nil
}

// Incr implements Counter. EXPIRE NX only sets a TTL on a key that has
// none, so the window still runs from the first increment.
func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Ping checks connectivity.
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the redis connection pool.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}

// Shared is the HTTP limiter keyed by client IP. It counts through the
// shared Counter when one is configured and falls back to the in-process
// Limiter whenever the counter fails.
type Shared struct {
	local   *Limiter
	counter Counter
	prefix  string
	timeout time.Duration
	log     *logging.Logger
	now     func() time.Time
}

// NewShared creates an IP limiter. counter may be nil.
func NewShared(local *Limiter, counter Counter, prefix string, timeout time.Duration, log *logging.Logger) *Shared {
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &Shared{
		local:   local,
		counter: counter,
		prefix:  prefix,
		timeout: timeout,
		log:     log.Sub("ratelimit"),
		now:     local.now,
	}
}

// Key returns the shared counter key for ip under this limiter's quota.
func (s *Shared) Key(ip string) string {
	return fmt.Sprintf("%sip:%s:rl:%d:%d", s.prefix, ip, s.local.window.Milliseconds(), s.local.max)
}

// Allow counts one request from ip.
func (s *Shared) Allow(ctx context.Context, ip string) Decision {
	if s.counter != nil {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		n, err := s.counter.Incr(cctx, s.Key(ip), s.local.window)
		cancel()
		if err == nil {
			limit := int64(s.local.max)
			return Decision{
				Allowed:   n <= limit,
				Remaining: int(max(0, limit-n)),
				ResetAt:   s.now().Add(s.local.window),
			}
		}
		s.log.Warn().Err(err).Str("ip", ip).Msg("shared counter unavailable, using local limiter")
	}
	return s.local.Allow(ip)
}
