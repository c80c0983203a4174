package shield

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: Rate requests per second with Burst
// headroom.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP. Rules are matched by path
// prefix; the longest matching prefix wins and unmatched paths use the
// default rule.
type RateLimiter struct {
	def     RateLimitConfig
	rules   map[string]RateLimitConfig
	exclude []string

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewRateLimiter creates a limiter with the default rule def. Paths under
// excludePrefixes are never limited.
func NewRateLimiter(def RateLimitConfig, excludePrefixes ...string) *RateLimiter {
	return &RateLimiter{
		def:      def,
		rules:    make(map[string]RateLimitConfig),
		exclude:  excludePrefixes,
		visitors: make(map[string]*visitor),
	}
}

// Rule sets a specific limit for paths under prefix. Not safe to call
// once the limiter serves requests.
func (rl *RateLimiter) Rule(prefix string, cfg RateLimitConfig) *RateLimiter {
	rl.rules[prefix] = cfg
	return rl
}

func (rl *RateLimiter) match(path string) (string, RateLimitConfig) {
	best, cfg := "", rl.def
	for prefix, c := range rl.rules {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best, cfg = prefix, c
		}
	}
	return best, cfg
}

func (rl *RateLimiter) allow(ip, path string) (bool, RateLimitConfig) {
	prefix, cfg := rl.match(path)
	if cfg.Rate <= 0 {
		return true, cfg
	}
	key := ip + "|" + prefix

	rl.mu.Lock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(cfg.Rate), max(cfg.Burst, 1))}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()
	return v.limiter.Allow(), cfg
}

// Run forgets visitors idle for more than ten minutes. It blocks until ctx
// is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	tick := time.NewTicker(5 * time.Minute)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			rl.gc(10 * time.Minute)
		}
	}
}

func (rl *RateLimiter) gc(idle time.Duration) {
	cutoff := time.Now().Add(-idle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, k)
		}
	}
}

// Middleware enforces the limits. API paths get a 429 JSON response,
// other paths a plain 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := ExtractIP(r)
		ok, cfg := rl.allow(ip, r.URL.Path)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("ratelimit: request blocked", "ip", ip, "path", r.URL.Path)
		retry := 1
		if cfg.Rate > 0 && cfg.Rate < 1 {
			retry = int(1/cfg.Rate + 0.5)
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		if isAPI(r.URL.Path) {
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
