package middleware

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"

	"github.com/cppla/socialbbs/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// RateLimiter is a token bucket per member, or per client IP for anonymous requests.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	buckets  *xsync.MapOf[string, *rateLimiter]
	lastScan atomic.Int64
}

func NewRateLimiter(perMinute int) *RateLimiter {
	perMinute = max(perMinute, 1)
	return &RateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   max(perMinute/2, 1),
		ttl:     5 * time.Minute,
		buckets: xsync.NewMapOf[string, *rateLimiter](),
	}
}

// Middleware rejects requests beyond the configured rate with 429.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !l.Allow(limiterKey(ctx), time.Now()) {
			utils.Error(ctx, 429, utils.CodeRateLimited, "rate limit exceeded")
			return
		}
		ctx.Next()
	}
}

// Allow takes one token from the bucket of key.
func (l *RateLimiter) Allow(key string, now time.Time) bool {
	l.evict(now)
	b, _ := l.buckets.Compute(key, func(old *rateLimiter, loaded bool) (*rateLimiter, bool) {
		if !loaded {
			old = &rateLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		}
		old.expires = now.Add(l.ttl)
		return old, false
	})
	return b.limiter.AllowN(now, 1)
}

func (l *RateLimiter) evict(now time.Time) {
	last := l.lastScan.Load()
	if now.UnixNano()-last < int64(time.Minute) || !l.lastScan.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	l.buckets.Range(func(key string, b *rateLimiter) bool {
		if now.After(b.expires) {
			l.buckets.Delete(key)
		}
		return true
	})
}

func limiterKey(ctx *gin.Context) string {
	if a := ActorFrom(ctx); !a.IsAnonymous() {
		return "m:" + strconv.FormatUint(uint64(a.ID), 10)
	}
	return "ip:" + ctx.ClientIP()
}
