package cluster

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// domainDelay implements the sameDomainDelay admission filter (spec §4.3
// step 4 / §8 invariant 4): successive dispatches sharing a domain must be
// separated by at least D. It is built on golang.org/x/time/rate (pulled in
// from the rest of the pack — teranos-QNTX and rezkam-mono both depend on
// it) rather than a hand-rolled "last access" map: a per-domain
// rate.Limiter configured for exactly one event per D is precisely "at
// least D between events", and its non-mutating TokensAt lets the
// dispatcher peek whether a domain is ready without spending its budget —
// important, because the peek (step 4) happens before the job is actually
// committed to a worker (step 7), and a peek must never itself count as a
// dispatch.
type domainDelay struct {
	delay time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newDomainDelay(delay time.Duration) *domainDelay {
	return &domainDelay{delay: delay, limiters: make(map[string]*rate.Limiter)}
}

func (d *domainDelay) limiterFor(domain string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Every(d.delay), 1)
		d.limiters[domain] = l
	}
	return l
}

// peek reports whether domain may be dispatched at now, and if not, the
// earliest time at which it will be.
func (d *domainDelay) peek(domain string, now time.Time) (ready bool, readyAt time.Time) {
	l := d.limiterFor(domain)
	if l.TokensAt(now) >= 1 {
		return true, time.Time{}
	}
	missing := 1 - l.TokensAt(now)
	wait := time.Duration(missing / float64(l.Limit()) * float64(time.Second))
	return false, now.Add(wait)
}

// commit spends domain's token at now. The caller must only call this once
// it has actually decided to dispatch the job — and since the dispatcher is
// single-threaded (spec §5), peek-then-commit from the same goroutine with
// no suspension point in between never races.
func (d *domainDelay) commit(domain string, now time.Time) {
	d.limiterFor(domain).AllowN(now, 1)
}
