package shared

import (
	"fmt"
	"time"
)

// NumPlayers is the number of buzzer stations on the device.
const NumPlayers = 3

// PlayerID identifies a buzzer station, 1..NumPlayers.
type PlayerID int

func (p PlayerID) Valid() bool {
	return p >= 1 && p <= NumPlayers
}

func (p PlayerID) String() string {
	return fmt.Sprintf("P%d", int(p))
}

// Players returns every valid player id in order.
func Players() []PlayerID {
	ids := make([]PlayerID, 0, NumPlayers)
	for i := 1; i <= NumPlayers; i++ {
		ids = append(ids, PlayerID(i))
	}
	return ids
}

type RoundStatus int

const (
	Inactive RoundStatus = iota
	Active
)

func (s RoundStatus) String() string {
	return [...]string{"INACTIVE", "ACTIVE"}[s]
}

// EventID is the one-byte status code relayed to the peer. The values are
// the ASCII digits that go on the wire.
type EventID byte

const (
	EventNone EventID = 0

	EventRingIn1 EventID = '1'
	EventRingIn2 EventID = '2'
	EventRingIn3 EventID = '3'

	EventExpired1 EventID = '4'
	EventExpired2 EventID = '5'
	EventExpired3 EventID = '6'

	EventTerminated1 EventID = '7'
	EventTerminated2 EventID = '8'
	EventTerminated3 EventID = '9'
)

type EventKind int

const (
	KindUnknown EventKind = iota
	KindRingIn
	KindExpired
	KindTerminated
)

func (k EventKind) String() string {
	return [...]string{"UNKNOWN", "RING_IN", "EXPIRED", "TERMINATED"}[k]
}

func RingInEvent(p PlayerID) (EventID, error) {
	return eventFor(p, EventRingIn1)
}

func ExpiredEvent(p PlayerID) (EventID, error) {
	return eventFor(p, EventExpired1)
}

func TerminatedEvent(p PlayerID) (EventID, error) {
	return eventFor(p, EventTerminated1)
}

func eventFor(p PlayerID, base EventID) (EventID, error) {
	if !p.Valid() {
		return EventNone, fmt.Errorf("player %d: %w", int(p), ErrUnknownEventID)
	}
	return base + EventID(p-1), nil
}

// Kind reports which family the event belongs to.
func (e EventID) Kind() EventKind {
	switch {
	case e >= EventRingIn1 && e <= EventRingIn3:
		return KindRingIn
	case e >= EventExpired1 && e <= EventExpired3:
		return KindExpired
	case e >= EventTerminated1 && e <= EventTerminated3:
		return KindTerminated
	default:
		return KindUnknown
	}
}

// Player returns the player the event refers to.
func (e EventID) Player() (PlayerID, error) {
	switch e.Kind() {
	case KindRingIn:
		return PlayerID(e-EventRingIn1) + 1, nil
	case KindExpired:
		return PlayerID(e-EventExpired1) + 1, nil
	case KindTerminated:
		return PlayerID(e-EventTerminated1) + 1, nil
	}
	return 0, fmt.Errorf("event 0x%02x: %w", byte(e), ErrUnknownEventID)
}

func (e EventID) String() string {
	if e == EventNone {
		return "NONE"
	}
	p, err := e.Player()
	if err != nil {
		return fmt.Sprintf("0x%02x", byte(e))
	}
	return fmt.Sprintf("%s(%s)", e.Kind(), p)
}

type PlayerSnapshot struct {
	ID           int    `json:"id"`
	Enabled      bool   `json:"enabled"`
	LockedOut    bool   `json:"lockedOut"`
	EarlyPenalty bool   `json:"earlyPenalty"`
	CountingDown bool   `json:"countingDown"`
	LastCommand  string `json:"lastCommand"`
	Response     string `json:"response"`
}

// Snapshot is the observable state of the device: the round plus every
// player. It is what the journal stores and what /state serves.
type Snapshot struct {
	DeviceID  string           `json:"deviceId"`
	RoundID   string           `json:"roundId"`
	Status    string           `json:"status"`
	Winner    *int             `json:"winner"`
	OpenedAt  *time.Time       `json:"openedAt"`
	LastEvent string           `json:"lastEvent"`
	Players   []PlayerSnapshot `json:"players"`
}

func RoundLockName(deviceID string) string {
	return "tick:" + deviceID
}

func RoundKey(deviceID string) string {
	return "round:" + deviceID
}

func RoundHistoryKey(deviceID string) string {
	return "rounds:" + deviceID
}
