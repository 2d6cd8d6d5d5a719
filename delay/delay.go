// Package delay provides the interruptible sleep every timed step of the
// device goes through: countdown seconds, penalty delays, poll intervals.
package delay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTick is how often a sleeping caller re-checks its cancel predicate.
const DefaultTick = 10 * time.Millisecond

// ErrCancelled is recorded when a Token is cancelled without a cause.
var ErrCancelled = errors.New("cancelled")

type Outcome int

const (
	Completed Outcome = iota
	Cancelled
)

func (o Outcome) String() string {
	return [...]string{"COMPLETED", "CANCELLED"}[o]
}

// Predicate reports whether a sleep should end early. It is evaluated once
// per tick and may read shared state.
type Predicate func() bool

type Timer struct {
	clock clockwork.Clock
	tick  time.Duration
}

func New(clock clockwork.Clock, tick time.Duration) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Timer{clock: clock, tick: tick}
}

func (t *Timer) Clock() clockwork.Clock {
	return t.clock
}

// Sleep waits for d in tick-sized steps. It returns Cancelled the first
// tick cancel reports true or as soon as ctx is done, Completed otherwise.
// A nil cancel never fires.
func (t *Timer) Sleep(ctx context.Context, d time.Duration, cancel Predicate) Outcome {
	deadline := t.clock.Now().Add(d)
	for {
		if cancel != nil && cancel() {
			return Cancelled
		}
		remaining := deadline.Sub(t.clock.Now())
		if remaining <= 0 {
			return Completed
		}
		step := t.tick
		if remaining < step {
			step = remaining
		}

		timer := t.clock.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Cancelled
		case <-timer.Chan():
		}
	}
}

// Token is a one-shot cancellation signal for a single timed operation.
// The zero value is ready to use.
type Token struct {
	mu    sync.Mutex
	cause error
}

// Cancel records cause and reports whether this call was the one that
// cancelled the token.
func (t *Token) Cancel(cause error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cause != nil {
		return false
	}
	if cause == nil {
		cause = ErrCancelled
	}
	t.cause = cause
	return true
}

func (t *Token) Cancelled() bool {
	return t.Cause() != nil
}

func (t *Token) Cause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cause
}
