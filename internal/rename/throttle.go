// Package rename rate-limits lobby renames: a sliding window of accepted
// renames per lobby, with the overflow request parked on a single deferred
// timer that fires when the oldest accepted rename ages out.
package rename

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ApplyFunc executes an accepted rename. It is called without the throttle
// lock held, both for immediate applies and when a deferred timer fires.
type ApplyFunc func(lobbyID, fragment string)

// entry tracks one lobby's recent accepted renames and, at most, one
// pending deferred rename.
type entry struct {
	applied  []time.Time
	timer    *time.Timer
	pending  string
	deadline time.Time
}

// Throttle owns the per-lobby window/timer map. A new deferred request for
// a lobby replaces the pending one rather than stacking a second timer, and
// teardown purges the entry outright.
type Throttle struct {
	mu      sync.Mutex
	window  time.Duration
	burst   int
	apply   ApplyFunc
	entries map[string]*entry
	log     *logrus.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// New builds a Throttle allowing burst accepted renames per rolling window.
func New(window time.Duration, burst int, apply ApplyFunc, log *logrus.Logger) *Throttle {
	return &Throttle{
		window:  window,
		burst:   burst,
		apply:   apply,
		entries: make(map[string]*entry),
		log:     log,
		now:     time.Now,
	}
}

// Request asks for a rename of lobbyID to fragment. The first burst-1
// requests inside the window apply immediately; later ones are deferred
// until the oldest accepted timestamp ages out. The returned eta is zero
// when the rename applied immediately.
func (t *Throttle) Request(lobbyID, fragment string) (appliedNow bool, eta time.Duration) {
	t.mu.Lock()
	now := t.now()

	e, ok := t.entries[lobbyID]
	if !ok {
		e = &entry{}
		t.entries[lobbyID] = e
	}
	e.prune(now, t.window)

	if len(e.applied) < t.burst-1 {
		e.applied = append(e.applied, now)
		// A request landing after the window freed up supersedes any parked
		// deferred rename; the stale timer must not overwrite this one.
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
			e.pending = ""
		}
		t.mu.Unlock()
		t.apply(lobbyID, fragment)
		return true, 0
	}

	// Deferred slot: last request wins, and a fresh timer replaces any
	// pending one.
	deadline := e.applied[0].Add(t.window)
	eta = deadline.Sub(now)
	if eta < 0 {
		eta = 0
	}
	e.pending = fragment
	e.deadline = deadline
	if e.timer != nil {
		e.timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(eta, func() { t.fire(lobbyID, timer) })
	e.timer = timer
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{"lobby": lobbyID, "eta": eta}).
		Debug("rename deferred")
	return false, eta
}

// fire applies the pending rename when its timer elapses. A stale timer
// (superseded or cancelled while firing) is ignored.
func (t *Throttle) fire(lobbyID string, timer *time.Timer) {
	t.mu.Lock()
	e, ok := t.entries[lobbyID]
	if !ok || e.timer != timer {
		t.mu.Unlock()
		return
	}
	fragment := e.pending
	e.timer = nil
	e.pending = ""
	now := t.now()
	e.prune(now, t.window)
	e.applied = append(e.applied, now)
	t.mu.Unlock()

	t.apply(lobbyID, fragment)
}

// PendingAt returns the absolute time the deferred rename for lobbyID will
// apply, if one is parked.
func (t *Throttle) PendingAt(lobbyID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[lobbyID]
	if !ok || e.timer == nil {
		return time.Time{}, false
	}
	return e.deadline, true
}

// Cancel purges all throttle state for lobbyID, stopping any pending timer.
// Called on lobby teardown.
func (t *Throttle) Cancel(lobbyID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[lobbyID]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(t.entries, lobbyID)
}

func (e *entry) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(e.applied) && !e.applied[i].After(cutoff) {
		i++
	}
	e.applied = e.applied[i:]
}
