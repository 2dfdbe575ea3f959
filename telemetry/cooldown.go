package telemetry

import (
	"sync"
	"time"
)

// Cooldown tracks, per (session, dominant error signature), the last
// time a struggle fired for that signature — suppressing a second
// intervention for the same recurring error within the configured
// cooldown period.
type Cooldown struct {
	mu       sync.Mutex
	fired    map[string]time.Time
	duration time.Duration
}

// NewCooldown creates a Cooldown with the given suppression duration.
func NewCooldown(duration time.Duration) *Cooldown {
	return &Cooldown{fired: make(map[string]time.Time), duration: duration}
}

func cooldownKey(sessionID, signature string) string { return sessionID + "\x00" + signature }

// Active reports whether sessionID/signature is still within cooldown
// as of now.
func (c *Cooldown) Active(sessionID, signature string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.fired[cooldownKey(sessionID, signature)]
	if !ok {
		return false
	}
	return now.Sub(last) < c.duration
}

// MarkFired records that sessionID/signature fired at now.
func (c *Cooldown) MarkFired(sessionID, signature string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fired[cooldownKey(sessionID, signature)] = now
}
