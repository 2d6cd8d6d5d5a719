package player

import (
	"errors"
	"fmt"
	"time"

	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
)

// Command is written by the round controller and read by the player task.
type Command int

const (
	None Command = iota
	ApplyPenalty
	Enable
	Disable
	RingInAcknowledged
	AnotherPlayerWon
)

func (c Command) String() string {
	return [...]string{"NONE", "APPLY_PENALTY", "ENABLE", "DISABLE", "RING_IN_ACKNOWLEDGED", "ANOTHER_PLAYER_WON"}[c]
}

// Response is written by the player task and read by the round controller.
type Response int

const (
	Idle Response = iota
	RangIn
	TimedOut
)

func (r Response) String() string {
	return [...]string{"IDLE", "RANG_IN", "TIMED_OUT"}[r]
}

type PenaltyMode int

const (
	// PenaltyImmediate serves the penalty delay at the offending press.
	PenaltyImmediate PenaltyMode = iota
	// PenaltyDeferred flags the offending press and serves the delay on
	// the next press, as the legacy boards did.
	PenaltyDeferred
)

func (m PenaltyMode) String() string {
	return [...]string{"immediate", "deferred"}[m]
}

func ParsePenaltyMode(s string) (PenaltyMode, error) {
	switch s {
	case "immediate", "":
		return PenaltyImmediate, nil
	case "deferred":
		return PenaltyDeferred, nil
	}
	return 0, fmt.Errorf("unknown penalty mode %q", s)
}

var (
	ErrTerminatedByPeer  = errors.New("countdown terminated by peer")
	ErrOperatorInterrupt = errors.New("countdown interrupted by operator")
)

// State is one player's view of the round. Only the player's own task
// writes it.
type State struct {
	Enabled      bool
	LockedOut    bool
	EarlyPenalty bool
	CountingDown bool
	LastCommand  Command
	Response     Response
}

type EventKind int

const (
	EventRangIn EventKind = iota
	EventTimedOut
	EventEarlyPress
	EventPenaltyServed
	EventClaimLost
)

func (k EventKind) String() string {
	return [...]string{"RANG_IN", "TIMED_OUT", "EARLY_PRESS", "PENALTY_SERVED", "CLAIM_LOST"}[k]
}

// Event reports a response change to the round controller. For
// EventTimedOut, Cause is nil when the countdown ran out and names the
// interrupting party otherwise.
type Event struct {
	Player shared.PlayerID
	Kind   EventKind
	Cause  error
	At     time.Time
}

// Arbiter decides who rings in first. Claim must be atomic across all
// player tasks: exactly one caller per round gets true.
type Arbiter interface {
	Claim(p shared.PlayerID) bool
}
