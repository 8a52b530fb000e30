package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ReasonLimited     = "limited"
	ReasonUnavailable = "unavailable"
)

// Decision es el resultado efímero de evaluar un identificador contra su
// política. No se persiste.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt en epoch millis; cero si no aplica.
	ResetAt int64
	Reason  string
}

// Policy define una ventana deslizante por acción protegida.
type Policy struct {
	Max    int
	Window time.Duration
}

// RateLimiter decide si un identificador puede ejecutar la acción.
type RateLimiter interface {
	Limit(ctx context.Context, identifier string) Decision
}

// memoryRateLimiter cuenta en proceso con ventana deslizante. Solo sirve
// para una instancia y es aproximado: aceptable en desarrollo o como
// degradación explícita.
type memoryRateLimiter struct {
	mu     sync.Mutex
	policy Policy
	hits   map[string][]time.Time
}

func NewMemoryRateLimiter(policy Policy) RateLimiter {
	if policy.Max <= 0 {
		policy.Max = 1
	}
	if policy.Window <= 0 {
		policy.Window = time.Minute
	}
	return &memoryRateLimiter{
		policy: policy,
		hits:   make(map[string][]time.Time),
	}
}

func (l *memoryRateLimiter) Limit(_ context.Context, identifier string) Decision {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return Decision{Allowed: false, Limit: l.policy.Max, Reason: ReasonLimited}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-l.policy.Window)
	entries := l.hits[identifier]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.policy.Max {
		l.hits[identifier] = kept
		return Decision{
			Allowed: false,
			Limit:   l.policy.Max,
			ResetAt: kept[0].Add(l.policy.Window).UnixMilli(),
			Reason:  ReasonLimited,
		}
	}
	kept = append(kept, now)
	l.hits[identifier] = kept
	return Decision{
		Allowed:   true,
		Limit:     l.policy.Max,
		Remaining: l.policy.Max - len(kept),
		ResetAt:   now.Add(l.policy.Window).UnixMilli(),
	}
}

// unavailableLimiter niega todo. Es la opción fallar-cerrado cuando el
// backend remoto falta en producción y la degradación no está permitida:
// permitir tráfico ilimitado en un endpoint sensible es peor que un corte.
type unavailableLimiter struct {
	policy Policy
}

func NewUnavailableLimiter(policy Policy) RateLimiter {
	return unavailableLimiter{policy: policy}
}

func (l unavailableLimiter) Limit(_ context.Context, _ string) Decision {
	return Decision{
		Allowed:   false,
		Limit:     l.policy.Max,
		Remaining: 0,
		Reason:    ReasonUnavailable,
	}
}

// LimiterFactory selecciona el backend por acción una sola vez y cachea la
// instancia por vida del proceso. La selección sigue: backend remoto si está
// configurado; en desarrollo, contador en memoria; en producción sin backend,
// la bandera de degradación decide entre memoria (con warning) o negar todo.
type LimiterFactory struct {
	logger        *zap.Logger
	client        redisEvaler
	production    bool
	allowFallback bool

	// Override inyectable para tests: si está presente gana siempre.
	Override func(action string, policy Policy) RateLimiter

	mu       sync.Mutex
	cache    map[string]RateLimiter
	warnOnce sync.Once
}

func NewLimiterFactory(logger *zap.Logger, client *redis.Client, production, allowFallback bool) *LimiterFactory {
	f := &LimiterFactory{
		logger:        logger,
		production:    production,
		allowFallback: allowFallback,
		cache:         make(map[string]RateLimiter),
	}
	if client != nil {
		f.client = client
	}
	return f
}

// ForAction devuelve el limiter cacheado para la acción, construyéndolo en
// el primer uso.
func (f *LimiterFactory) ForAction(action string, policy Policy) RateLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.cache[action]; ok {
		return l
	}

	var l RateLimiter
	switch {
	case f.Override != nil:
		l = f.Override(action, policy)
	case f.client != nil:
		l = newRedisRateLimiter(f.logger, f.client, action, policy, f.fallbackFor(policy))
	case !f.production:
		l = NewMemoryRateLimiter(policy)
	default:
		f.logSelection(action)
		l = f.fallbackFor(policy)
	}

	f.cache[action] = l
	return l
}

// fallbackFor aplica la bandera de degradación: contador en memoria si está
// permitido, negar todo si no. No loguea; el punto de selección decide eso.
func (f *LimiterFactory) fallbackFor(policy Policy) RateLimiter {
	if f.allowFallback {
		return NewMemoryRateLimiter(policy)
	}
	return NewUnavailableLimiter(policy)
}

func (f *LimiterFactory) logSelection(action string) {
	f.warnOnce.Do(func() {
		if f.logger == nil {
			return
		}
		if f.allowFallback {
			f.logger.Warn("rate limit backend not configured, degrading to in-memory counters",
				zap.String("action", action),
			)
			return
		}
		f.logger.Error("rate limit backend not configured, failing closed",
			zap.String("action", action),
		)
	})
}
