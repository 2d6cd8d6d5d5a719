// Package round opens and closes rounds from the enabler and settles who
// rang in first.
package round

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/LBBNetwork/JeopardyRingInPublic/announce"
	"github.com/LBBNetwork/JeopardyRingInPublic/gpio"
	"github.com/LBBNetwork/JeopardyRingInPublic/player"
	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
	"github.com/LBBNetwork/JeopardyRingInPublic/telemetry"
)

// Publisher takes the status byte relayed to the peer. Reset marks the
// start of a round so a byte repeated from the last round still goes out.
type Publisher interface {
	Publish(id shared.EventID)
	Reset()
}

type Announcer interface {
	Announce(a announce.Announcement)
}

type Config struct {
	DeviceID     string
	PollInterval time.Duration
}

type Deps struct {
	Clock     clockwork.Clock
	In        gpio.Reader
	Players   []*player.Machine
	Events    <-chan player.Event
	Status    Publisher
	Announcer Announcer
	Arbiter   *Arbiter
}

type Controller struct {
	cfg     Config
	deps    Deps
	players map[shared.PlayerID]*player.Machine

	softEnabler atomic.Bool
	wake        chan struct{}
	changed     chan struct{}
	closed      chan shared.Snapshot

	mu        sync.Mutex
	status    shared.RoundStatus
	roundID   string
	openedAt  time.Time
	winner    shared.PlayerID
	lastEvent shared.EventID
}

func New(cfg Config, deps Deps) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Arbiter == nil {
		deps.Arbiter = NewArbiter()
	}
	players := make(map[shared.PlayerID]*player.Machine, len(deps.Players))
	for _, m := range deps.Players {
		players[m.ID()] = m
	}
	return &Controller{
		cfg:     cfg,
		deps:    deps,
		players: players,
		wake:    make(chan struct{}, 1),
		changed: make(chan struct{}, 1),
		closed:  make(chan shared.Snapshot, 16),
	}
}

// Arbiter is the Claim point handed to the player machines.
func (c *Controller) Arbiter() *Arbiter {
	return c.deps.Arbiter
}

// ClosedRounds yields a snapshot of every round as it closes. Rounds are
// dropped when nobody keeps up.
func (c *Controller) ClosedRounds() <-chan shared.Snapshot {
	return c.closed
}

// Changed fires after the snapshot may have changed. Signals coalesce.
func (c *Controller) Changed() <-chan struct{} {
	return c.changed
}

func (c *Controller) notifyChanged() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

func (c *Controller) Run(ctx context.Context) error {
	log.Info().Str("device", c.cfg.DeviceID).Dur("poll", c.cfg.PollInterval).Msg("round controller started")

	ticker := c.deps.Clock.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	c.poll()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("round controller stopping")
			return nil
		case ev := <-c.deps.Events:
			c.handleEvent(ev)
		case <-c.wake:
			c.poll()
		case <-ticker.Chan():
			c.poll()
		}
	}
}

func (c *Controller) enablerActive() bool {
	if c.softEnabler.Load() {
		return true
	}
	return c.deps.In != nil && c.deps.In.Read(gpio.Enabler) == gpio.Active
}

func (c *Controller) poll() {
	active := c.enablerActive()

	c.mu.Lock()
	status := c.status
	c.mu.Unlock()

	switch {
	case active && status == shared.Inactive:
		c.openRound()
	case !active && status == shared.Active:
		c.closeRound()
	}

	if c.deps.In != nil && c.deps.In.Read(gpio.OperatorInterrupt) == gpio.Active {
		c.InterruptActive()
	}
}

func (c *Controller) openRound() {
	now := c.deps.Clock.Now()
	id := uuid.NewString()

	c.mu.Lock()
	c.status = shared.Active
	c.roundID = id
	c.openedAt = now
	c.winner = 0
	c.mu.Unlock()

	c.deps.Arbiter.Open()
	if c.deps.Status != nil {
		c.deps.Status.Reset()
	}
	for _, m := range c.deps.Players {
		m.Send(player.Enable)
	}
	c.notifyChanged()

	telemetry.Rounds.Inc()
	telemetry.RoundActive.Set(1)
	log.Info().Str("round_id", id).Msg("round open")
	c.announce(announce.Announcement{Kind: announce.RoundOpen, RoundID: id, At: now})
}

func (c *Controller) closeRound() {
	c.deps.Arbiter.Close()
	for _, m := range c.deps.Players {
		m.Send(player.Disable)
	}

	snap := c.Snapshot()
	snap.Status = shared.Inactive.String()

	c.mu.Lock()
	c.status = shared.Inactive
	c.mu.Unlock()
	c.notifyChanged()

	select {
	case c.closed <- snap:
	default:
		log.Warn().Str("round_id", snap.RoundID).Msg("closed round not journaled, queue full")
	}

	telemetry.RoundActive.Set(0)
	log.Info().Str("round_id", snap.RoundID).Msg("round closed")
	c.announce(announce.Announcement{Kind: announce.RoundClosed, RoundID: snap.RoundID, At: c.deps.Clock.Now()})
}

func (c *Controller) handleEvent(ev player.Event) {
	defer c.notifyChanged()

	c.mu.Lock()
	roundID := c.roundID
	openedAt := c.openedAt
	c.mu.Unlock()

	a := announce.Announcement{RoundID: roundID, Player: int(ev.Player), At: ev.At}
	p := ev.Player.String()

	switch ev.Kind {
	case player.EventRangIn:
		c.mu.Lock()
		c.winner = ev.Player
		c.mu.Unlock()

		for _, m := range c.deps.Players {
			if m.ID() == ev.Player {
				m.Send(player.RingInAcknowledged)
			} else {
				m.Send(player.AnotherPlayerWon)
			}
		}
		id, err := shared.RingInEvent(ev.Player)
		if err != nil {
			log.Warn().Err(err).Int("player", int(ev.Player)).Msg("ring-in from unknown player")
			return
		}
		c.publish(id)

		latency := ev.At.Sub(openedAt)
		telemetry.RingIns.WithLabelValues(p).Inc()
		telemetry.RingInLatency.Observe(latency.Seconds())
		a.Kind = announce.RingIn
		a.LatencyMs = latency.Milliseconds()
		log.Info().Str("round_id", roundID).Int("player", int(ev.Player)).Dur("latency", latency).Msg("ring-in accepted")
		c.announce(a)

	case player.EventTimedOut:
		switch {
		case ev.Cause == nil:
			c.publishExpired(ev.Player)
			telemetry.CountdownsEnded.WithLabelValues(p, "expired").Inc()
			a.Kind = announce.TimeExpired
		case errors.Is(ev.Cause, player.ErrOperatorInterrupt):
			c.publishExpired(ev.Player)
			telemetry.CountdownsEnded.WithLabelValues(p, "operator").Inc()
			a.Kind = announce.CountdownTerminated
			a.Reason = "operator"
		case errors.Is(ev.Cause, player.ErrTerminatedByPeer):
			// The peer already knows; nothing goes back on the wire.
			c.mu.Lock()
			if id, err := shared.TerminatedEvent(ev.Player); err == nil {
				c.lastEvent = id
			}
			c.mu.Unlock()
			telemetry.CountdownsEnded.WithLabelValues(p, "peer").Inc()
			a.Kind = announce.CountdownTerminated
			a.Reason = "peer"
		default:
			// Shutdown.
			return
		}
		c.announce(a)

	case player.EventEarlyPress:
		telemetry.EarlyPresses.WithLabelValues(p).Inc()
		a.Kind = announce.EarlyPress
		c.announce(a)

	case player.EventPenaltyServed:
		telemetry.PenaltiesServed.WithLabelValues(p).Inc()

	case player.EventClaimLost:
		log.Debug().Str("round_id", roundID).Int("player", int(ev.Player)).Msg("claim lost")
	}
}

func (c *Controller) publishExpired(p shared.PlayerID) {
	id, err := shared.ExpiredEvent(p)
	if err != nil {
		log.Warn().Err(err).Int("player", int(p)).Msg("expiry from unknown player")
		return
	}
	c.publish(id)
}

func (c *Controller) publish(id shared.EventID) {
	c.mu.Lock()
	c.lastEvent = id
	c.mu.Unlock()
	if c.deps.Status != nil {
		c.deps.Status.Publish(id)
	}
}

func (c *Controller) announce(a announce.Announcement) {
	if c.deps.Announcer == nil {
		return
	}
	a.DeviceID = c.cfg.DeviceID
	c.deps.Announcer.Announce(a)
}

func (c *Controller) machine(p shared.PlayerID) (*player.Machine, error) {
	m, ok := c.players[p]
	if !ok {
		return nil, fmt.Errorf("player %d: %w", int(p), shared.ErrUnknownEventID)
	}
	return m, nil
}

func (c *Controller) stop(p shared.PlayerID, cause error) error {
	m, err := c.machine(p)
	if err != nil {
		return err
	}
	if !m.Interrupt(cause) {
		log.Info().Int("player", int(p)).Err(cause).Msg("player not counting down, ignored")
	}
	return nil
}

// Terminate ends p's countdown on behalf of the peer.
func (c *Controller) Terminate(p shared.PlayerID) error {
	return c.stop(p, player.ErrTerminatedByPeer)
}

// Judge is a console-issued peer termination.
func (c *Controller) Judge(p shared.PlayerID) error {
	return c.Terminate(p)
}

// Interrupt ends p's countdown on behalf of the operator.
func (c *Controller) Interrupt(p shared.PlayerID) error {
	return c.stop(p, player.ErrOperatorInterrupt)
}

// InterruptActive ends whichever countdown is running.
func (c *Controller) InterruptActive() {
	for _, m := range c.deps.Players {
		if m.Interrupt(player.ErrOperatorInterrupt) {
			log.Info().Int("player", int(m.ID())).Msg("operator interrupt")
		}
	}
}

func (c *Controller) Penalize(p shared.PlayerID) error {
	m, err := c.machine(p)
	if err != nil {
		return err
	}
	m.Send(player.ApplyPenalty)
	return nil
}

// SetSoftwareEnabler opens the round regardless of the enabler switch.
func (c *Controller) SetSoftwareEnabler(on bool) {
	c.softEnabler.Store(on)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) OpenRound() {
	c.SetSoftwareEnabler(true)
}

func (c *Controller) CloseRound() {
	c.SetSoftwareEnabler(false)
}

func (c *Controller) Status() shared.RoundStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) Snapshot() shared.Snapshot {
	c.mu.Lock()
	snap := shared.Snapshot{
		DeviceID: c.cfg.DeviceID,
		RoundID:  c.roundID,
		Status:   c.status.String(),
	}
	if c.winner != 0 {
		w := int(c.winner)
		snap.Winner = &w
	}
	if !c.openedAt.IsZero() {
		at := c.openedAt
		snap.OpenedAt = &at
	}
	if c.lastEvent != shared.EventNone {
		snap.LastEvent = c.lastEvent.String()
	}
	c.mu.Unlock()

	for _, m := range c.deps.Players {
		snap.Players = append(snap.Players, m.Snapshot())
	}
	return snap
}
