// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/pedrozc90/tenantusers/internal/core"
)

var errRateLimited = errors.New("rate limited")

type RateLimitConfig struct {
	Limit      redis_rate.Limit
	KeyFunc    func(*http.Request) string
	BypassFunc func(*http.Request) bool
}

// RateLimiter counts requests per key in redis. While redis is unreachable
// every instance counts on its own with the same limit.
type RateLimiter struct {
	shared   *redis_rate.Limiter
	local    *localBuckets
	config   RateLimitConfig
	degraded atomic.Bool
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}

	return &RateLimiter{
		shared: redis_rate.NewLimiter(rdb),
		local:  &localBuckets{buckets: map[string]*bucket{}},
		config: cfg,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.config.BypassFunc != nil && rl.config.BypassFunc(r) {
			next.ServeHTTP(w, r)
			return
		}

		res := rl.allow(r.Context(), rl.config.KeyFunc(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit.Rate))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed == 0 {
			tooManyRequests(w, res.RetryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, key string) *redis_rate.Result {
	res, err := rl.shared.Allow(ctx, key, rl.config.Limit)
	if err == nil {
		if rl.degraded.CompareAndSwap(true, false) {
			slog.Info("rate limiter back on redis")
		}
		return res
	}

	if rl.degraded.CompareAndSwap(false, true) {
		slog.Warn("rate limiter falling back to local buckets", "error", err)
	}
	return rl.local.allow(key, rl.config.Limit, time.Now())
}

func tooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	secs := max(int(math.Ceil(retryAfter.Seconds())), 1)

	w.Header().Set("Retry-After", strconv.Itoa(secs))
	core.JSONError(w, core.NewAppError(
		errRateLimited,
		fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", secs),
		http.StatusTooManyRequests,
		"RATE_LIMITED",
	))
}

func KeyByIP(r *http.Request) string {
	return "ratelimit:ip:" + clientIP(r)
}

func KeyByUser(r *http.Request) string {
	if userID, err := CurrentUserID(r.Context()); err == nil {
		return "ratelimit:user:" + strconv.FormatInt(userID, 10)
	}
	return KeyByIP(r)
}

// KeyByIPAndEndpoint scopes a limit to one route per client. Numeric path
// segments count as the same route.
func KeyByIPAndEndpoint(r *http.Request) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for i, part := range parts {
		if _, err := strconv.ParseInt(part, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return KeyByIP(r) + ":endpoint:/" + strings.Join(parts, "/")
}

// clientIP trusts the last X-Forwarded-For hop, the one our proxy appended.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		return strings.TrimSpace(hops[len(hops)-1])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

const bucketIdleTTL = 10 * time.Minute

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// localBuckets is the in-process stand-in for redis. Idle buckets are swept
// on access at most once per bucketIdleTTL.
type localBuckets struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func (l *localBuckets) allow(
	key string,
	limit redis_rate.Limit,
	now time.Time,
) *redis_rate.Result {
	every := limit.Period
	if limit.Rate > 0 {
		every = limit.Period / time.Duration(limit.Rate)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > bucketIdleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > bucketIdleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), limit.Burst)}
		l.buckets[key] = b
	}
	b.seen = now

	res := &redis_rate.Result{Limit: limit, RetryAfter: -1}
	if b.limiter.AllowN(now, 1) {
		res.Allowed = 1
	}

	tokens := b.limiter.TokensAt(now)
	res.Remaining = max(int(tokens), 0)
	if res.Allowed == 0 {
		res.RetryAfter = time.Duration((1 - tokens) * float64(every))
	}

	return res
}

func PerMinute(requests, burst int) redis_rate.Limit {
	return redis_rate.Limit{
		Rate:   requests,
		Burst:  burst,
		Period: time.Minute,
	}
}
