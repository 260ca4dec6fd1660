// Package backoff provides the increasing-backoff idle pauser used by
// driver ingress loops (spec.md §4.5 step 2): a short floor, a long
// ceiling, doubling on each empty poll and resetting on any successful
// read. Shaped after the teacher's internal/ticker package, which hands
// out a plain interval ticker; this adds the floor/ceiling/doubling
// policy on top since nothing in the example pack ships an off-the-shelf
// idle-backoff primitive for a tail-polling loop.
package backoff

import "time"

// Pauser implements an increasing-backoff sleep used by a poll loop that
// finds nothing to do. Not safe for concurrent use; each ingress loop owns
// its own Pauser.
type Pauser struct {
	floor   time.Duration
	ceiling time.Duration
	current time.Duration
}

// New creates a Pauser with the given floor and ceiling. The first call to
// Pause after construction or Reset sleeps for floor.
func New(floor, ceiling time.Duration) *Pauser {
	return &Pauser{floor: floor, ceiling: ceiling, current: floor}
}

// Pause sleeps for the current backoff duration, then doubles it (capped at
// the ceiling) for the next call.
func (p *Pauser) Pause() {
	time.Sleep(p.current)
	next := p.current * 2
	if next > p.ceiling || next <= 0 {
		next = p.ceiling
	}
	p.current = next
}

// Reset returns the backoff to its floor. Call this after any successful
// read so the loop goes back to polling tightly.
func (p *Pauser) Reset() {
	p.current = p.floor
}
