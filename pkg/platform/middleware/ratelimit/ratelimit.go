// Package ratelimit throttles anonymous endpoints per client IP.
package ratelimit

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"certhub/pkg/requestcontext"
)

const (
	// maxTrackedClients bounds the limiter map.
	maxTrackedClients = 10000
	// idleTTL is how long an unused limiter is kept before it may be evicted.
	idleTTL = 10 * time.Minute
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterCache keeps one limiter per key. When full, idle entries are
// evicted first and the least recently seen entry after that.
type limiterCache struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rate     rate.Limit
	burst    int
	max      int
	now      func() time.Time
}

func (lc *limiterCache) get(key string) *rate.Limiter {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	now := lc.now()
	if e, ok := lc.limiters[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	if len(lc.limiters) >= lc.max {
		lc.evict(now)
	}
	e := &entry{limiter: rate.NewLimiter(lc.rate, lc.burst), lastSeen: now}
	lc.limiters[key] = e
	return e.limiter
}

func (lc *limiterCache) evict(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range lc.limiters {
		if now.Sub(e.lastSeen) >= idleTTL {
			delete(lc.limiters, k)
			continue
		}
		if oldestKey == "" || e.lastSeen.Before(oldest) {
			oldestKey, oldest = k, e.lastSeen
		}
	}
	if len(lc.limiters) >= lc.max && oldestKey != "" {
		delete(lc.limiters, oldestKey)
	}
}

func (lc *limiterCache) size() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return len(lc.limiters)
}

// PerIP limits requests per client IP. Client IP comes from the metadata
// middleware, which must run first.
type PerIP struct {
	cache  *limiterCache
	logger *slog.Logger
}

// NewPerIP allows perMinute requests per IP with the given burst.
func NewPerIP(perMinute, burst int, logger *slog.Logger) *PerIP {
	if perMinute < 1 {
		perMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &PerIP{
		cache: &limiterCache{
			limiters: make(map[string]*entry),
			rate:     rate.Every(time.Minute / time.Duration(perMinute)),
			burst:    burst,
			max:      maxTrackedClients,
			now:      time.Now,
		},
		logger: logger,
	}
}

// Allow reports whether a request from ip may proceed now.
func (p *PerIP) Allow(ip string) bool {
	return p.cache.get(ip).Allow()
}

func (p *PerIP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		if !p.Allow(ip) {
			p.logger.WarnContext(ctx, "rate limit exceeded",
				"ip", ip,
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited","error_description":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
