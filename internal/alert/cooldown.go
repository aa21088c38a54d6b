package alert

import (
	"sync"
	"time"
)

type cooldownKey struct {
	pointID   string
	signature string
}

// Cooldown remembers when each (point, signature) pair was last escalated.
// It lives as long as the engine and is never persisted.
type Cooldown struct {
	window    time.Duration
	retention time.Duration

	mu   sync.Mutex
	sent map[cooldownKey]time.Time
}

// NewCooldown creates a table suppressing repeats within window and
// forgetting entries older than retention.
func NewCooldown(window, retention time.Duration) *Cooldown {
	return &Cooldown{window: window, retention: retention, sent: make(map[cooldownKey]time.Time)}
}

// Allow reports whether (pointID, signature) may be escalated at now. An
// allowed escalation records now; a suppressed one leaves the original
// timestamp in place so the window is not extended by repeats.
func (c *Cooldown) Allow(pointID, signature string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := cooldownKey{pointID, signature}
	if last, ok := c.sent[k]; ok && now.Sub(last) < c.window {
		return false
	}
	c.sent[k] = now
	c.purgeLocked(now)
	return true
}

// Purge drops entries older than the retention period and returns how many
// were removed.
func (c *Cooldown) Purge(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(now)
}

func (c *Cooldown) purgeLocked(now time.Time) int {
	n := 0
	for k, t := range c.sent {
		if now.Sub(t) > c.retention {
			delete(c.sent, k)
			n++
		}
	}
	return n
}

// Len returns the number of remembered escalations.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}
