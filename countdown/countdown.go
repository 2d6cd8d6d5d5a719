// Package countdown maps a player's remaining seconds onto the timer
// lights. It holds no state and does no timing; the player task calls Show
// once per second.
package countdown

import (
	"fmt"

	"github.com/LBBNetwork/JeopardyRingInPublic/gpio"
	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
)

// Seconds is the length of a ring-in countdown and the number of segments.
const Seconds = 5

// Pattern returns the lit segments for second, Segment1 first. Segment n
// is lit while n <= second, so the top segment goes dark first.
func Pattern(second int) ([Seconds]bool, error) {
	var lit [Seconds]bool
	if second < 0 || second > Seconds {
		return lit, fmt.Errorf("second %d: %w", second, shared.ErrUnknownEventID)
	}
	for i := range lit {
		lit[i] = i < second
	}
	return lit, nil
}

type Display interface {
	Show(p shared.PlayerID, second int) error
}

// New picks the display for the board once, at startup. Boards with the
// countdown lights get the segment display; older boards only have the
// shared lockout line.
func New(out gpio.Writer, countdownHardware bool) Display {
	if countdownHardware {
		return &segmentDisplay{out: out}
	}
	return &lockoutDisplay{out: out}
}

type segmentDisplay struct {
	out gpio.Writer
}

func (d *segmentDisplay) Show(p shared.PlayerID, second int) error {
	relay, err := gpio.EnableFor(p)
	if err != nil {
		return err
	}
	lit, err := Pattern(second)
	if err != nil {
		return err
	}

	d.out.Write(relay, level(second > 0))
	for i, seg := range gpio.Segments() {
		d.out.Write(seg, level(lit[i]))
	}
	return nil
}

type lockoutDisplay struct {
	out gpio.Writer
}

func (d *lockoutDisplay) Show(p shared.PlayerID, second int) error {
	if !p.Valid() {
		return fmt.Errorf("player %d: %w", int(p), shared.ErrUnknownEventID)
	}
	if _, err := Pattern(second); err != nil {
		return err
	}
	d.out.Write(gpio.Lockout, level(second > 0))
	return nil
}

func level(on bool) gpio.Level {
	if on {
		return gpio.Active
	}
	return gpio.Inactive
}
