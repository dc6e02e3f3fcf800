package api

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimiter implements a per-user token bucket. Idle buckets are evicted in
// the background so the map does not grow with every anonymous visitor.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	limit    rate.Limit
	burst    int
	logger   *slog.Logger
	done     chan struct{}
	once     sync.Once
}

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per key and
// starts the background eviction goroutine.
func NewRateLimiter(perMinute int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		limiters: make(map[string]*userLimiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

// Allow reports whether a request for key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	ul, ok := r.limiters[key]
	if !ok {
		ul = &userLimiter{lim: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = ul
	}
	ul.lastSeen = time.Now()
	r.mu.Unlock()

	if !ul.lim.Allow() {
		r.logger.Warn("Rate limit exceeded", "user_id", key)
		return false
	}
	return true
}

// Close stops the eviction goroutine.
func (r *RateLimiter) Close() {
	r.once.Do(func() { close(r.done) })
}

func (r *RateLimiter) evictLoop() {
	ticker := time.NewTicker(limiterIdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.evict(now)
		}
	}
}

// evict drops limiters idle since before now minus limiterIdleTTL.
func (r *RateLimiter) evict(now time.Time) int {
	cutoff := now.Add(-limiterIdleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for key, ul := range r.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(r.limiters, key)
			n++
		}
	}
	return n
}

func (r *RateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}
