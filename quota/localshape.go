package quota

import (
	"sync"

	"golang.org/x/time/rate"
)

// LocalShaper holds one in-process golang.org/x/time/rate.Limiter per
// (tenant, route), mirroring each key's Redis token bucket parameters.
// It never authorizes a request on its own: it only lets the Gatekeeper
// reject an obviously bursty caller without a Redis round trip, smoothing
// load in front of Store.Allow, which remains the sole authority on
// whether a request is actually within quota.
type LocalShaper struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLocalShaper creates an empty LocalShaper.
func NewLocalShaper() *LocalShaper {
	return &LocalShaper{limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether b's (tenant, route) key currently has burst
// headroom in this process's local limiter, lazily creating one sized to
// b's capacity/refill rate on first use.
func (s *LocalShaper) Allow(b Bucket) bool {
	s.mu.Lock()
	limiter, ok := s.limiters[s.key(b)]
	if !ok {
		burst := int(b.Capacity)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(b.RefillRate), burst)
		s.limiters[s.key(b)] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func (s *LocalShaper) key(b Bucket) string { return b.TenantID + ":" + b.Route }
