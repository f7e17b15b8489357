// Package ratelimit provides the per-client request budget enforced before
// any guardrail work begins. Counters live in redis so the budget holds
// across gateway replicas; when redis is unavailable the limiter degrades
// to an in-process token bucket per key instead of failing open.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config configures the limiter.
type Config struct {
	// Addr is the redis address, e.g. "localhost:6379".
	Addr string `yaml:"addr" json:"addr"`

	// Password for redis AUTH.
	Password string `yaml:"password" json:"password"`

	// DB is the redis database number.
	DB int `yaml:"db" json:"db"`

	// RPM is the per-key requests-per-minute budget.
	RPM int `yaml:"rpm" json:"rpm"`
}

// DefaultConfig returns the production limiter defaults.
func DefaultConfig() Config {
	return Config{Addr: "localhost:6379", RPM: 100}
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// KeyFor builds the rate-limit key: the enterprise client identifier when
// present, otherwise the caller's address.
func KeyFor(clientID, remoteAddr string) string {
	if id := strings.TrimSpace(clientID); id != "" && id != "anonymous" {
		return "client:" + id
	}
	return "ip:" + remoteAddr
}

// visitor is one in-process fallback bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter enforces a fixed-window requests-per-minute budget per key.
type Limiter struct {
	rdb    *redis.Client
	rpm    int
	logger *zap.Logger

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewLimiter creates the limiter and starts the fallback-bucket cleanup
// loop. Redis connectivity is probed lazily: a gateway replica starts even
// when redis is briefly down and picks the shared counters back up once it
// returns.
func NewLimiter(ctx context.Context, cfg Config, logger *zap.Logger) *Limiter {
	if cfg.RPM <= 0 {
		cfg.RPM = 100
	}
	l := &Limiter{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		rpm:      cfg.RPM,
		logger:   logger.With(zap.String("component", "ratelimit")),
		visitors: make(map[string]*visitor),
	}
	go l.cleanupLoop(ctx)
	return l
}

// Allow checks and consumes one request from the key's minute budget.
func (l *Limiter) Allow(ctx context.Context, key string) Decision {
	window := time.Now().Truncate(time.Minute)
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, window.Unix())

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("redis unavailable, using in-process limiter", zap.Error(err))
		return l.allowLocal(key)
	}

	if incr.Val() > int64(l.rpm) {
		return Decision{
			Allowed:    false,
			RetryAfter: time.Until(window.Add(time.Minute)),
		}
	}
	return Decision{Allowed: true}
}

// allowLocal is the degraded path: a per-key token bucket refilling at the
// configured RPM.
func (l *Limiter) allowLocal(key string) Decision {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.rpm)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()

	if !v.limiter.Allow() {
		return Decision{Allowed: false, RetryAfter: time.Minute}
	}
	return Decision{Allowed: true}
}

// cleanupLoop evicts idle fallback buckets.
func (l *Limiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			for key, v := range l.visitors {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(l.visitors, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Ping reports redis connectivity for the health endpoint.
func (l *Limiter) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close releases the redis connection.
func (l *Limiter) Close() error {
	return l.rdb.Close()
}
