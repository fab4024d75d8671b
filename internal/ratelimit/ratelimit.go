// Package ratelimit decides whether a process may be restarted again, based on
// how many restarts it already had inside a sliding time window.
package ratelimit

import (
	"errors"
	"time"
)

var ErrInvalidLimits = errors.New("ratelimit: max restarts must be >= 0 and window > 0")

// Limiter counts restarts of a single process over a sliding window.
// It holds no state; the caller owns the history of each process.
type Limiter struct {
	MaxRestarts int
	Window      time.Duration
}

func New(maxRestarts int, window time.Duration) (Limiter, error) {
	l := Limiter{MaxRestarts: maxRestarts, Window: window}
	return l, l.Validate()
}

func (l Limiter) Validate() error {
	if l.MaxRestarts < 0 || l.Window <= 0 {
		return ErrInvalidLimits
	}
	return nil
}

// Prune returns the entries of history that are still inside the window at now,
// oldest first. The input slice is not modified.
func (l Limiter) Prune(history []time.Time, now time.Time) []time.Time {
	out := make([]time.Time, 0, len(history))
	for _, t := range history {
		if now.Sub(t) < l.Window {
			out = append(out, t)
		}
	}
	return out
}

// Allow prunes history and reports whether one more restart fits the budget.
func (l Limiter) Allow(history []time.Time, now time.Time) ([]time.Time, bool) {
	pruned := l.Prune(history, now)
	return pruned, len(pruned) < l.MaxRestarts
}

// Remaining is the number of restarts still available at now.
func (l Limiter) Remaining(history []time.Time, now time.Time) int {
	n := l.MaxRestarts - len(l.Prune(history, now))
	if n < 0 {
		return 0
	}
	return n
}
