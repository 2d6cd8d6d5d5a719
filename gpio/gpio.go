// Package gpio is the boundary to the buzzer hardware. The rest of the
// device talks in logical signals (a player's button, a countdown segment)
// and never in pin numbers.
package gpio

import (
	"fmt"

	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
)

type Signal int

const (
	Button1 Signal = iota
	Button2
	Button3
	LED1
	LED2
	LED3
	Enable1
	Enable2
	Enable3
	Segment1
	Segment2
	Segment3
	Segment4
	Segment5
	Lockout
	Enabler
	OperatorInterrupt
	numSignals
)

var signalNames = [...]string{
	"button1", "button2", "button3",
	"led1", "led2", "led3",
	"enable1", "enable2", "enable3",
	"segment1", "segment2", "segment3", "segment4", "segment5",
	"lockout",
	"enabler",
	"operator_interrupt",
}

func (s Signal) String() string {
	if s < 0 || s >= numSignals {
		return fmt.Sprintf("signal(%d)", int(s))
	}
	return signalNames[s]
}

// ParseSignal maps a config key such as "segment3" to its signal.
func ParseSignal(name string) (Signal, error) {
	for i, n := range signalNames {
		if n == name {
			return Signal(i), nil
		}
	}
	return 0, fmt.Errorf("unknown signal %q", name)
}

// IsInput reports whether the signal is read rather than driven.
func (s Signal) IsInput() bool {
	switch s {
	case Button1, Button2, Button3, Enabler, OperatorInterrupt:
		return true
	}
	return false
}

func AllSignals() []Signal {
	all := make([]Signal, 0, numSignals)
	for s := Signal(0); s < numSignals; s++ {
		all = append(all, s)
	}
	return all
}

// Segments lists the countdown segments, Segment1 first.
func Segments() []Signal {
	return []Signal{Segment1, Segment2, Segment3, Segment4, Segment5}
}

func ButtonFor(p shared.PlayerID) (Signal, error) {
	return playerSignal(p, Button1)
}

func LEDFor(p shared.PlayerID) (Signal, error) {
	return playerSignal(p, LED1)
}

func EnableFor(p shared.PlayerID) (Signal, error) {
	return playerSignal(p, Enable1)
}

func playerSignal(p shared.PlayerID, base Signal) (Signal, error) {
	if !p.Valid() {
		return 0, fmt.Errorf("player %d: %w", int(p), shared.ErrUnknownEventID)
	}
	return base + Signal(p-1), nil
}

type Level int

const (
	Inactive Level = iota
	Active
)

func (l Level) String() string {
	return [...]string{"INACTIVE", "ACTIVE"}[l]
}

type Mode int

const (
	Input Mode = iota
	Output
)

type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

type Reader interface {
	Read(sig Signal) Level
}

// Writer drives an output. Writes are fire-and-forget.
type Writer interface {
	Write(sig Signal, level Level)
}

type Driver interface {
	Reader
	Writer
	Configure(sig Signal, mode Mode, pull Pull) error
	Close() error
}
