package service

import (
	"context"
	"time"
)

// Backoff is an immutable retry-delay record. Next and Reset return new
// values; the current delay is never mutated in place.
type Backoff struct {
	Base    time.Duration
	Current time.Duration
	Max     time.Duration
}

// NewBackoff returns a backoff starting at base and doubling up to max.
func NewBackoff(base, max time.Duration) Backoff {
	return Backoff{Base: base, Current: base, Max: max}
}

// Delay is the wait before the next attempt.
func (b Backoff) Delay() time.Duration { return b.Current }

// Next doubles the delay, capped at Max.
func (b Backoff) Next() Backoff {
	next := b.Current * 2
	if next > b.Max {
		next = b.Max
	}
	return Backoff{Base: b.Base, Current: next, Max: b.Max}
}

// Reset returns the backoff to its base delay.
func (b Backoff) Reset() Backoff {
	return Backoff{Base: b.Base, Current: b.Base, Max: b.Max}
}

// sleepCtx waits for d or until ctx is done. It reports false when the
// context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
