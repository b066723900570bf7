// Package ratelimit paces dispatches to the same host.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// minWait keeps a caller from spinning when float rounding leaves a token a
// hair short of whole.
const minWait = time.Millisecond

// Pacer spaces out dispatches per host. Each run owns its own Pacer, so no
// pacing state leaks between runs.
//
// Every host gets a limiter with a burst of one that is only ever drawn from
// at the moment of dispatch. Its token count therefore encodes the time of
// the last dispatch, and a long stall can never bank more than one slot.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

// NewPacer returns a Pacer allowing one dispatch per host every interval.
// A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow records a dispatch to host at now and reports true when the host's
// last dispatch is at least one interval old. On false nothing is recorded.
func (p *Pacer) Allow(host string, now time.Time) bool {
	if p.disabled() {
		return true
	}
	return p.limiter(host).AllowN(now, 1)
}

// Wait reports how long after now the next dispatch to host may happen.
// It is zero when Allow would succeed.
func (p *Pacer) Wait(host string, now time.Time) time.Duration {
	if p.disabled() {
		return 0
	}
	tokens := p.limiter(host).TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	return max(time.Duration((1-tokens)*float64(p.interval)), minWait)
}

func (p *Pacer) disabled() bool {
	return p == nil || p.interval <= 0
}

func (p *Pacer) limiter(host string) *rate.Limiter {
	key := strings.ToLower(host)
	p.mu.Lock()
	defer p.mu.Unlock()
	limiter, ok := p.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[key] = limiter
	}
	return limiter
}
