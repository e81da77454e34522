package middleware

import (
	"net/http"
	"sync"
	"time"

	"tgmedia/internal/errors"
	"tgmedia/internal/httputil"
	"tgmedia/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	visitorTTL        = 10 * time.Minute
	visitorSweepEvery = 5000
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Idle buckets are swept
// every visitorSweepEvery lookups.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	logger   *logrus.Logger
	now      func() time.Time
	clientIP func(*http.Request) string

	mu       sync.Mutex
	visitors map[string]*visitor
	lookups  int
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithClientIPResolver keys buckets on the resolver's client address instead
// of the direct peer.
func WithClientIPResolver(resolver *httputil.ClientIPResolver) RateLimiterOption {
	return func(rl *RateLimiter) {
		if resolver != nil {
			rl.clientIP = resolver.ClientIP
		}
	}
}

func NewRateLimiter(rps float64, burst int, logger *logrus.Logger, opts ...RateLimiterOption) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   logger,
		now:      time.Now,
		clientIP: httputil.GetClientIP,
		visitors: make(map[string]*visitor),
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiterFor(key).Allow()
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= visitorSweepEvery {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= visitorTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Middleware rejects requests over the per-IP budget with 429.
func (rl *RateLimiter) Middleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := rl.clientIP(r)
			if rl.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			if rl.logger != nil {
				rl.logger.WithFields(logrus.Fields{
					service.LogFieldRemoteIP: ip,
					"path":                   r.URL.Path,
				}).Warn("API rate limit exceeded")
			}
			w.Header().Set("Retry-After", "1")
			httputil.WriteError(w, r, errors.New(errors.ErrCodeRateLimited, "rate limit exceeded"))
		})
	}
}
