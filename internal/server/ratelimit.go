package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/spendlens/guardrails/internal/config"
)

// clientLimiter tracks one caller's token bucket and its last use so
// stale entries can be evicted.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies per-client token bucket rate limiting.
type RateLimiter struct {
	cfg      config.RateLimitConfig
	limiters map[string]*clientLimiter
	mu       sync.Mutex
	done     chan struct{}
	once     sync.Once
}

// NewRateLimiter creates a limiter from configuration.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 120
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMin / 6
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	return &RateLimiter{
		cfg:      cfg,
		limiters: make(map[string]*clientLimiter),
		done:     make(chan struct{}),
	}
}

// Allow reports whether a request from the given client may proceed.
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.cfg.Enabled {
		return true
	}

	r.mu.Lock()
	entry, ok := r.limiters[clientIP]
	if !ok {
		entry = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(r.cfg.RequestsPerMin)/60.0), r.cfg.Burst),
		}
		r.limiters[clientIP] = entry
	}
	entry.lastSeen = time.Now()
	r.mu.Unlock()

	return entry.limiter.Allow()
}

// StartCleanupRoutine evicts limiters idle for over an hour. Call Close
// to stop it.
func (r *RateLimiter) StartCleanupRoutine() {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.cleanup()
			case <-r.done:
				return
			}
		}
	}()
}

func (r *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-time.Hour)

	r.mu.Lock()
	defer r.mu.Unlock()
	for ip, entry := range r.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(r.limiters, ip)
		}
	}
}

// Close stops the cleanup routine.
func (r *RateLimiter) Close() {
	r.once.Do(func() { close(r.done) })
}
