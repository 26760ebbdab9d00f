package security

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/kagemask/kagemask/internal/config"
)

// RateLimiter applies a per-client token bucket over incoming requests.
// Each client IP gets its own rate.Limiter; limits refill continuously at
// the configured per-minute rate with the configured burst capacity.
type RateLimiter struct {
	cfg     config.SecurityConfig
	limit   rate.Limit
	clients map[string]*clientLimiter
	mu      sync.RWMutex
	stop    chan struct{}
	once    sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// NewRateLimiter creates a rate limiter from cfg. When rate limiting is
// disabled every request is allowed and no state is kept.
func NewRateLimiter(cfg config.SecurityConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		limit:   rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		clients: make(map[string]*clientLimiter),
		stop:    make(chan struct{}),
	}
}

// Allow reports whether a request from clientIP may proceed.
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.cfg.RateLimitEnabled {
		return true
	}

	c := r.getClient(clientIP)
	c.lastSeen.Store(time.Now().UnixNano())
	return c.limiter.Allow()
}

// getClient gets or creates the limiter for a client IP.
func (r *RateLimiter) getClient(clientIP string) *clientLimiter {
	r.mu.RLock()
	c, exists := r.clients[clientIP]
	r.mu.RUnlock()

	if exists {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if c, exists := r.clients[clientIP]; exists {
		return c
	}

	c = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.cfg.Burst)}
	c.lastSeen.Store(time.Now().UnixNano())
	r.clients[clientIP] = c
	return c
}

// ClientCount returns how many client IPs currently hold a limiter.
func (r *RateLimiter) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CleanupStale removes limiters that have been idle for over an hour and
// returns how many were removed.
func (r *RateLimiter) CleanupStale() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-time.Hour).UnixNano()
	removed := 0
	for ip, c := range r.clients {
		if c.lastSeen.Load() < cutoff {
			delete(r.clients, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine launches a background sweep of idle client limiters.
// Stop ends it.
func (r *RateLimiter) StartCleanupRoutine() {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.CleanupStale()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop terminates the cleanup routine. Safe to call more than once.
func (r *RateLimiter) Stop() {
	r.once.Do(func() { close(r.stop) })
}
