package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tuturu-tech/nft-staking/observability"
)

// RateLimit is a token bucket applied per client.
type RateLimit struct {
	RatePerSecond float64
	Burst         int
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles each client independently. Authenticated requests
// are keyed by caller address, anonymous ones by client IP.
type RateLimiter struct {
	logger   *slog.Logger
	limit    RateLimit
	idleTTL  time.Duration
	mu       sync.Mutex
	visitors map[string]*rateEntry
	swept    time.Time
	clockNow func() time.Time
}

// NewRateLimiter builds a limiter enforcing limit.
func NewRateLimiter(limit RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if limit.RatePerSecond <= 0 {
		limit.RatePerSecond = 1
	}
	if limit.Burst <= 0 {
		limit.Burst = 1
	}
	return &RateLimiter{
		logger:   logger,
		limit:    limit,
		idleTTL:  5 * time.Minute,
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
	}
}

// Middleware throttles requests to route.
func (r *RateLimiter) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id := clientID(req)
			if !r.allow(id) {
				observability.HTTP().RecordThrottle(route)
				r.logger.Debug("rate limit exceeded", "route", route, "client", id)
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *RateLimiter) allow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	if now.Sub(r.swept) > r.idleTTL {
		for key, entry := range r.visitors {
			if now.Sub(entry.lastSeen) > r.idleTTL {
				delete(r.visitors, key)
			}
		}
		r.swept = now
	}
	entry, ok := r.visitors[id]
	if !ok {
		entry = &rateEntry{limiter: rate.NewLimiter(rate.Limit(r.limit.RatePerSecond), r.limit.Burst)}
		r.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func clientID(r *http.Request) string {
	if caller, ok := CallerFromContext(r.Context()); ok {
		return caller.Hex()
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
