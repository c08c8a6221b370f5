package middleware

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/authgate/internal/pkg/response"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultRatePerSecond = 10
	defaultRateBurst     = 20
	rateLimitWindow      = time.Second

	visitorIdle     = 3 * time.Minute
	visitorSweepCap = 10000
)

// RateLimitConfig configures RateLimit. With Redis set, the limit is shared
// between instances; otherwise, or while Redis is failing, each instance
// limits on its own. A zero Burst defaults to the larger of 20 and
// PerSecond; a positive one is used as given.
type RateLimitConfig struct {
	Redis     *redis.Client
	PerSecond int
	Burst     int
	Prefix    string
	Logger    *zap.Logger
}

// RateLimit limits unauthenticated clients per IP. It is mounted on the
// OAuth entry points.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = defaultRatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(defaultRateBurst, cfg.PerSecond)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "authgate:rate_limit:"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	local := newLocalLimiter(rate.Limit(cfg.PerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if IsAuthenticated(c) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		allowed := true
		if cfg.Redis != nil {
			ok, err := allowRedis(c, cfg, ip)
			if err != nil {
				cfg.Logger.Debug("rate limit falling back to local limiter", zap.Error(err))
				allowed = local.allow(ip)
			} else {
				allowed = ok
			}
		} else {
			allowed = local.allow(ip)
		}

		if !allowed {
			c.Header("Retry-After", "1")
			response.TooManyRequests(c)
			return
		}
		c.Next()
	}
}

// allowRedis is a fixed one-second window counter.
func allowRedis(c *gin.Context, cfg RateLimitConfig, ip string) (bool, error) {
	ctx := c.Request.Context()
	key := fmt.Sprintf("%s%s:%s", cfg.Prefix, ip, strconv.FormatInt(time.Now().Unix(), 10))

	count, err := cfg.Redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := cfg.Redis.PExpire(ctx, key, rateLimitWindow+time.Second).Err(); err != nil {
			cfg.Logger.Warn("rate limit window expiry not set", zap.String("key", key), zap.Error(err))
		}
	}
	return count <= int64(cfg.Burst), nil
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type localLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

func newLocalLimiter(limit rate.Limit, burst int) *localLimiter {
	return &localLimiter{visitors: make(map[string]*visitor), limit: limit, burst: burst}
}

func (l *localLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if len(l.visitors) >= visitorSweepCap {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdle {
				delete(l.visitors, k)
			}
		}
	}
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}
