// Package guard implements the stop-loss placement deadline. Every executed
// entry gets a named timer; if the stop-loss is not confirmed before the
// deadline the emergency close fires exactly once.
package guard

import (
	"log"
	"sync"
	"time"
)

// EmergencyFunc is invoked when an entry's deadline expires without a
// confirmed stop-loss. It receives the entry order id.
type EmergencyFunc func(entryOrderID string)

// SLPlacementGuard tracks one deadline per executed entry order. Start is
// idempotent per entry in the sense that a second Start discards the earlier
// timer and arms a fresh one.
type SLPlacementGuard struct {
	timeout  time.Duration
	onExpiry EmergencyFunc
	logger   *log.Logger

	mu     sync.Mutex
	gen    uint64
	timers map[string]armedTimer
}

// armedTimer pairs a timer with the generation it was armed under. An
// expiry callback whose generation no longer matches lost the race against
// a re-Start and must not fire.
type armedTimer struct {
	timer *time.Timer
	gen   uint64
}

// New creates a guard with the given deadline. onExpiry runs on the timer
// goroutine, so it must be safe to call concurrently with Start/Cancel.
func New(timeout time.Duration, onExpiry EmergencyFunc, logger *log.Logger) *SLPlacementGuard {
	if logger == nil {
		logger = log.Default()
	}
	return &SLPlacementGuard{
		timeout:  timeout,
		onExpiry: onExpiry,
		logger:   logger,
		timers:   make(map[string]armedTimer),
	}
}

// Start arms the deadline for an entry order. A previous timer for the same
// entry is stopped and replaced.
func (g *SLPlacementGuard) Start(entryOrderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.timers[entryOrderID]; ok {
		old.timer.Stop()
		g.logger.Printf("[WARN] SL guard restarted for entry %s", entryOrderID)
	}

	g.gen++
	gen := g.gen
	g.timers[entryOrderID] = armedTimer{
		timer: time.AfterFunc(g.timeout, func() { g.expire(entryOrderID, gen) }),
		gen:   gen,
	}
	g.logger.Printf("SL guard armed for entry %s (%s)", entryOrderID, g.timeout)
}

// expire fires the emergency close if the timer was not cancelled first.
// Removing the map entry under the lock before calling onExpiry guarantees
// the close runs at most once per armed timer. The generation check covers
// a timer that fired concurrently with a re-Start: Stop returned false but
// the replacement entry must survive.
func (g *SLPlacementGuard) expire(entryOrderID string, gen uint64) {
	g.mu.Lock()
	armed, ok := g.timers[entryOrderID]
	if !ok || armed.gen != gen {
		g.mu.Unlock()
		return
	}
	delete(g.timers, entryOrderID)
	g.mu.Unlock()

	g.logger.Printf("[ERROR] SL guard expired for entry %s, triggering emergency close", entryOrderID)
	g.onExpiry(entryOrderID)
}

// Cancel disarms the deadline after the stop-loss is confirmed. Cancelling
// an unknown entry is a no-op.
func (g *SLPlacementGuard) Cancel(entryOrderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if armed, ok := g.timers[entryOrderID]; ok {
		armed.timer.Stop()
		delete(g.timers, entryOrderID)
		g.logger.Printf("SL guard disarmed for entry %s", entryOrderID)
	}
}

// CancelAll disarms every pending deadline. Used on shutdown and when the
// kill switch fires.
func (g *SLPlacementGuard) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, armed := range g.timers {
		armed.timer.Stop()
		delete(g.timers, id)
	}
}

// Armed reports whether a deadline is pending for the entry.
func (g *SLPlacementGuard) Armed(entryOrderID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.timers[entryOrderID]
	return ok
}

// Pending returns the number of armed deadlines.
func (g *SLPlacementGuard) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}
