// Package announce fans round events out to scoreboards and listeners
// off the device. Nothing on the round path ever waits for the network.
package announce

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LBBNetwork/JeopardyRingInPublic/telemetry"
)

type Kind int

const (
	RoundOpen Kind = iota
	RoundClosed
	RingIn
	TimeExpired
	CountdownTerminated
	EarlyPress
	PeerPaired
)

func (k Kind) String() string {
	return [...]string{"ROUND_OPEN", "ROUND_CLOSED", "RING_IN", "TIME_EXPIRED", "COUNTDOWN_TERMINATED", "EARLY_PRESS", "PEER_PAIRED"}[k]
}

type Announcement struct {
	Kind      Kind      `json:"-"`
	DeviceID  string    `json:"deviceId"`
	RoundID   string    `json:"roundId,omitempty"`
	Player    int       `json:"player,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	LatencyMs int64     `json:"latencyMs,omitempty"`
	At        time.Time `json:"at"`
}

func (a Announcement) JSON() ([]byte, error) {
	return json.Marshal(a)
}

type Sink interface {
	Name() string
	Publish(ctx context.Context, a Announcement) error
}

// Hub queues announcements and hands them to every sink from its own task.
type Hub struct {
	queue chan Announcement
	sinks []Sink
}

func NewHub(size int, sinks ...Sink) *Hub {
	if size <= 0 {
		size = 64
	}
	return &Hub{queue: make(chan Announcement, size), sinks: sinks}
}

func (h *Hub) Sinks() int {
	return len(h.sinks)
}

// Announce enqueues a without blocking. A full queue drops it.
func (h *Hub) Announce(a Announcement) {
	if len(h.sinks) == 0 {
		return
	}
	select {
	case h.queue <- a:
	default:
		telemetry.AnnouncementsDropped.Inc()
		log.Warn().Str("kind", a.Kind.String()).Msg("announcement queue full, dropping")
	}
}

func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-h.queue:
			for _, s := range h.sinks {
				if err := s.Publish(ctx, a); err != nil {
					log.Error().Err(err).Str("sink", s.Name()).Str("kind", a.Kind.String()).Msg("error publishing announcement")
				}
			}
		}
	}
}
