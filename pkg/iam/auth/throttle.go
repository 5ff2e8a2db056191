package auth

import (
	"sync"
	"time"

	"github.com/Abraxas-365/keystone/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// Throttle enforces a minimum delay between login attempts per identity
type Throttle struct {
	delay time.Duration
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*throttleEntry
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sweepAt is the table size above which idle entries are dropped
const sweepAt = 1024

// NewThrottle allows one attempt per delay for each key. A zero delay
// disables throttling.
func NewThrottle(delay time.Duration) *Throttle {
	return &Throttle{
		delay:    delay,
		now:      time.Now,
		limiters: make(map[string]*throttleEntry),
	}
}

// WithClock returns t reading time from now
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	t.now = now
	return t
}

// Allow records an attempt for key and reports whether it may proceed
func (t *Throttle) Allow(key string) bool {
	if t == nil || t.delay <= 0 || key == "" {
		return true
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.limiters) >= sweepAt {
		for k, e := range t.limiters {
			if now.Sub(e.lastSeen) > t.delay {
				delete(t.limiters, k)
			}
		}
	}

	e, ok := t.limiters[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(rate.Every(t.delay), 1)}
		t.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Middleware rejects a request with 429 when key(c) was tried too recently
func (t *Throttle) Middleware(key func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		k := key(c)
		if !t.Allow(k) {
			logx.WithFields(logx.Fields{
				"identity": k,
				"ip":       c.IP(),
			}).Warn("login attempt throttled")
			return fail(c, ErrTooManyAttempts().WithDetail("retry_after", t.delay.String()))
		}
		return c.Next()
	}
}
