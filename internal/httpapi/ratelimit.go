package httpapi

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LimiterManager keeps one token bucket per caller.
type LimiterManager struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	done     chan struct{}
	log      *zap.Logger
}

// NewLimiterManager allows requestsPerMin per caller with the given burst.
// Idle buckets are evicted every cleanupInterval.
func NewLimiterManager(requestsPerMin, burst int, cleanupInterval time.Duration, log *zap.Logger) *LimiterManager {
	m := &LimiterManager{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rate.Limit(float64(requestsPerMin) / 60.0),
		burst:    burst,
		done:     make(chan struct{}),
		log:      log,
	}
	if cleanupInterval > 0 {
		go m.cleanupRoutine(cleanupInterval)
	}
	return m
}

// Allow reports whether key may make another request now.
func (m *LimiterManager) Allow(key string) bool {
	return m.limiter(key).Allow()
}

func (m *LimiterManager) limiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.limiters[key]
	if !ok {
		l = rate.NewLimiter(m.rate, m.burst)
		m.limiters[key] = l
	}
	m.lastSeen[key] = time.Now()
	return l
}

// Active returns the number of tracked callers.
func (m *LimiterManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.limiters)
}

func (m *LimiterManager) cleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.evictIdle(interval)
		case <-m.done:
			return
		}
	}
}

func (m *LimiterManager) evictIdle(maxIdle time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, seen := range m.lastSeen {
		if now.Sub(seen) > maxIdle {
			delete(m.limiters, key)
			delete(m.lastSeen, key)
		}
	}
	m.log.Debug("rate limiter cleanup", zap.Int("remaining", len(m.limiters)))
}

// Close stops the cleanup goroutine.
func (m *LimiterManager) Close() {
	close(m.done)
}

// rateLimit rejects callers over their budget with 429. Requests without
// x-user-id pass through; the handler rejects them.
func (h *Handler) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	if h.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(headerUserID)
		if userID != "" && !h.limiter.Allow(userID) {
			h.log.Info("rate limit exceeded", zap.String("user_id", userID), zap.String("path", r.URL.Path))
			h.metrics.limited()
			jsonError(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
