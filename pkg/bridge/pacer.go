package bridge

import "time"

// pacer keeps one streaming loop locked to its nominal frame period using an
// absolute deadline cursor rather than fixed-interval sleeps. Each iteration
// the cursor advances by exactly one period and the loop sleeps only the
// time remaining to it, so variable per-iteration work never accumulates
// into drift over a long session.
//
// Overrun policy: when an iteration finishes past its deadline the cursor is
// snapped forward to the current time instead of being left behind. The loop
// loses phase but can never build an unbounded backlog — there is no
// catch-up or frame compression.
//
// A pacer is a pure function of the timestamps passed in, which keeps the
// scheduling logic testable with a synthetic clock. Owned by a single loop
// goroutine; not safe for concurrent use.
type pacer struct {
	period time.Duration
	cursor time.Time // deadline of the frame currently in flight
}

func newPacer(period time.Duration, now time.Time) *pacer {
	return &pacer{period: period, cursor: now}
}

// next advances the cursor by one period and returns the resulting deadline
// for the frame about to be produced. Call once at the top of each
// iteration; the returned deadline bounds that iteration's blocking I/O so
// that pacing and peer I/O share a single clock.
func (p *pacer) next() time.Time {
	p.cursor = p.cursor.Add(p.period)
	return p.cursor
}

// finish reports how long the loop should sleep to reach the current frame
// deadline. If now is already past the deadline the iteration overran: the
// cursor resets to now and the sleep is zero.
func (p *pacer) finish(now time.Time) (sleep time.Duration, overrun bool) {
	if now.Before(p.cursor) {
		return p.cursor.Sub(now), false
	}
	p.cursor = now
	return 0, true
}
