// Package throttle decides when a session may persist another observation.
package throttle

import "time"

// Gate allows one action per window. The window is measured from the time the
// gate was created, so the first action of a session also waits a full window.
//
// A Gate belongs to a single session whose frames are processed sequentially;
// it is not safe for concurrent use.
type Gate struct {
	window time.Duration
	last   time.Time
}

func New(window time.Duration, start time.Time) *Gate {
	return &Gate{window: window, last: start}
}

// Permit reports whether at least one window has elapsed since the last
// permitted action and, if so, advances the gate to now.
func (g *Gate) Permit(now time.Time) bool {
	if now.Sub(g.last) < g.window {
		return false
	}
	g.last = now
	return true
}

// Last returns the time of the last permitted action (or the start time).
func (g *Gate) Last() time.Time { return g.last }

func (g *Gate) Window() time.Duration { return g.window }
