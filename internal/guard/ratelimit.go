package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"golang.org/x/time/rate"
)

// KeyedLimiter is a token-bucket rate limiter per key.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rps      rate.Limit
	burst    int
	idle     time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter allows rps requests per second per key with the given burst.
func NewKeyedLimiter(rps float64, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		limiters: make(map[string]*entry),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

// Check returns a GuardResult indicating whether the key is within rate limits.
func (kl *KeyedLimiter) Check(_ context.Context, key string) domain.GuardResult {
	kl.mu.Lock()
	now := time.Now()
	e, ok := kl.limiters[key]
	if !ok {
		kl.evict(now)
		e = &entry{limiter: rate.NewLimiter(kl.rps, kl.burst)}
		kl.limiters[key] = e
	}
	e.lastSeen = now
	kl.mu.Unlock()

	if !e.limiter.AllowN(now, 1) {
		return domain.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("rate limit exceeded: %g/s burst %d", float64(kl.rps), kl.burst),
			Guard:   "rate_limiter",
		}
	}
	return domain.GuardResult{Allowed: true}
}

// evict drops limiters idle for longer than kl.idle. Caller holds kl.mu.
func (kl *KeyedLimiter) evict(now time.Time) {
	for k, e := range kl.limiters {
		if now.Sub(e.lastSeen) > kl.idle {
			delete(kl.limiters, k)
		}
	}
}
