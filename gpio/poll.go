package gpio

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// PollPresses samples sig every interval and reports each Inactive→Active
// edge on presses. A press is dropped when the previous one has not been
// consumed yet. Holding the input does not repeat.
func PollPresses(ctx context.Context, clock clockwork.Clock, r Reader, sig Signal, interval time.Duration, presses chan<- struct{}) error {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	last := r.Read(sig)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			level := r.Read(sig)
			if level == Active && last == Inactive {
				select {
				case presses <- struct{}{}:
				default:
				}
			}
			last = level
		}
	}
}
