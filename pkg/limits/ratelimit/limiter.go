package ratelimit

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultIdleTTL is how long the bucket of a silent client is kept.
const DefaultIdleTTL = 10 * time.Minute

// Config controls a ClientLimiter.
type Config struct {
	// RequestsPerSecond is the sustained rate allowed per client.
	RequestsPerSecond float64

	// Burst is the number of requests a client may send at once.
	Burst int

	// IdleTTL drops the bucket of a client silent for this long.
	IdleTTL time.Duration
}

// ClientLimiter keeps one token bucket per client address.
type ClientLimiter struct {
	rate    float64
	burst   int64
	buckets *gocache.Cache
	now     func() time.Time
}

// NewClientLimiter creates a limiter for cfg.
func NewClientLimiter(cfg Config) (*ClientLimiter, error) {
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be positive, got %v", cfg.RequestsPerSecond)
	}
	if cfg.Burst < 1 {
		return nil, fmt.Errorf("burst must be at least 1, got %d", cfg.Burst)
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}

	return &ClientLimiter{
		rate:    cfg.RequestsPerSecond,
		burst:   int64(cfg.Burst),
		buckets: gocache.New(ttl, ttl),
		now:     time.Now,
	}, nil
}

// Allow takes one token from the bucket of client. When the request is
// refused, retryAfter is how long the client should wait.
func (l *ClientLimiter) Allow(client string) (ok bool, retryAfter time.Duration) {
	return l.bucket(client).Take(1)
}

// Clients returns the number of clients currently tracked.
func (l *ClientLimiter) Clients() int {
	return l.buckets.ItemCount()
}

func (l *ClientLimiter) bucket(client string) *TokenBucket {
	if b, ok := l.buckets.Get(client); ok {
		// Touch so active clients do not expire.
		l.buckets.SetDefault(client, b)
		return b.(*TokenBucket)
	}

	b := newTokenBucket(l.burst, l.rate, l.now)
	if err := l.buckets.Add(client, b, gocache.DefaultExpiration); err != nil {
		// Lost the race to another request from the same client.
		if existing, ok := l.buckets.Get(client); ok {
			return existing.(*TokenBucket)
		}
	}
	return b
}
