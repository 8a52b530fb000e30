package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Ventana deslizante sobre un ZSET: poda entradas fuera de ventana, cuenta,
// y solo registra el hit si queda cupo. Devuelve {permitido, conteo, score
// del hit más viejo} en una sola evaluación atómica.
const redisSlidingWindowScript = `
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, ARGV[1])
local count = redis.call("ZCARD", KEYS[1])
if count < tonumber(ARGV[3]) then
  redis.call("ZADD", KEYS[1], ARGV[2], ARGV[4])
  redis.call("PEXPIRE", KEYS[1], ARGV[5])
  return {1, count + 1, 0}
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return {0, count, oldest[2]}
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisRateLimiter struct {
	logger   *zap.Logger
	client   redisEvaler
	prefix   string
	policy   Policy
	fallback RateLimiter
	warnOnce sync.Once
}

func newRedisRateLimiter(logger *zap.Logger, client redisEvaler, action string, policy Policy, fallback RateLimiter) RateLimiter {
	if policy.Max <= 0 {
		policy.Max = 1
	}
	if policy.Window <= 0 {
		policy.Window = time.Minute
	}
	return &redisRateLimiter{
		logger:   logger,
		client:   client,
		prefix:   "rl:" + action + ":",
		policy:   policy,
		fallback: fallback,
	}
}

func (l *redisRateLimiter) Limit(ctx context.Context, identifier string) Decision {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return Decision{Allowed: false, Limit: l.policy.Max, Reason: ReasonLimited}
	}

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	now := time.Now().UTC()
	nowMs := now.UnixMilli()
	windowMs := l.policy.Window.Milliseconds()

	vals, err := l.client.Eval(ctx, redisSlidingWindowScript,
		[]string{l.prefix + identifier},
		nowMs-windowMs,
		nowMs,
		l.policy.Max,
		uuid.NewString(),
		windowMs,
	).Slice()
	if err != nil || len(vals) != 3 {
		// El backend remoto falló en caliente: misma política que si
		// faltara en arranque, nunca "permitir" en silencio.
		l.warnOnce.Do(func() {
			if l.logger != nil {
				l.logger.Warn("rate limit backend call failed, applying fallback policy",
					zap.Error(err),
				)
			}
		})
		return l.fallback.Limit(ctx, identifier)
	}

	allowed := toInt64(vals[0]) == 1
	count := int(toInt64(vals[1]))

	if !allowed {
		resetAt := nowMs + windowMs
		if oldest := toInt64(vals[2]); oldest > 0 {
			resetAt = oldest + windowMs
		}
		return Decision{
			Allowed: false,
			Limit:   l.policy.Max,
			ResetAt: resetAt,
			Reason:  ReasonLimited,
		}
	}

	remaining := l.policy.Max - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   true,
		Limit:     l.policy.Max,
		Remaining: remaining,
		ResetAt:   nowMs + windowMs,
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, err := strconv.ParseInt(strings.SplitN(n, ".", 2)[0], 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
