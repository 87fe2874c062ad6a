package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/supersquad/eventsweb/internal/config"
	"golang.org/x/time/rate"
)

const (
	// loginRefill is the token refill interval: 5 attempts per 15 minutes
	// refills one attempt every 3 minutes.
	loginRefill = 3 * time.Minute

	limiterTTL      = 15 * time.Minute
	cleanupInterval = 5 * time.Minute
)

// TooManyLoginAttempts is shown when a client exceeds the login budget.
const TooManyLoginAttempts = "Too many login attempts. Please wait a few minutes and try again."

// LoginRateLimiter limits login submissions per client IP with a token
// bucket of cfg.LoginPer15Minutes attempts.
type LoginRateLimiter struct {
	burst        int
	trustedCIDRs []*net.IPNet

	mu       sync.Mutex
	limiters map[string]*limiterEntry
	stop     chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginRateLimiter starts a limiter. A non-positive budget disables it.
// Call Stop to end the background cleanup.
func NewLoginRateLimiter(cfg config.RateLimitConfig) *LoginRateLimiter {
	l := &LoginRateLimiter{
		burst:        cfg.LoginPer15Minutes,
		trustedCIDRs: parseCIDRs(cfg.TrustedProxyCIDRs),
		limiters:     make(map[string]*limiterEntry),
		stop:         make(chan struct{}),
	}
	if l.burst > 0 {
		go l.cleanupLoop()
	}
	return l
}

// Middleware rejects requests over budget with 429 and a Retry-After header.
func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Allow(clientKey(r, l.trustedCIDRs)) {
			next.ServeHTTP(w, r)
			return
		}
		LoggerFromContext(r.Context()).Warn().Str("path", r.URL.Path).Msg("login rate limit exceeded")
		w.Header().Set("Retry-After", "180")
		http.Error(w, TooManyLoginAttempts, http.StatusTooManyRequests)
	})
}

// Allow spends one attempt for key.
func (l *LoginRateLimiter) Allow(key string) bool {
	if l.burst <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(loginRefill), l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

func (l *LoginRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stop:
			return
		}
	}
}

// cleanup forgets clients idle for longer than limiterTTL.
func (l *LoginRateLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(l.limiters, key)
		}
	}
}

// Stop ends the background cleanup. It is safe to call more than once.
func (l *LoginRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// clientKey identifies the client. X-Forwarded-For and X-Real-IP are only
// believed when the connection comes from a trusted proxy.
func clientKey(r *http.Request, trusted []*net.IPNet) string {
	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	if isTrustedProxy(remoteIP, trusted) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}
	return remoteIP
}

func isTrustedProxy(ip string, trusted []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range trusted {
		if cidr.Contains(parsed) {
			return true
		}
	}
	return false
}

func parseCIDRs(values []string) []*net.IPNet {
	var cidrs []*net.IPNet
	for _, value := range values {
		if _, cidr, err := net.ParseCIDR(value); err == nil {
			cidrs = append(cidrs, cidr)
		}
	}
	return cidrs
}
