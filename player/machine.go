// Package player runs one buzzer station: it watches the button, obeys the
// round controller's commands and drives the countdown when it wins.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LBBNetwork/JeopardyRingInPublic/countdown"
	"github.com/LBBNetwork/JeopardyRingInPublic/delay"
	"github.com/LBBNetwork/JeopardyRingInPublic/gpio"
	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
)

type Config struct {
	CountdownStep    time.Duration
	CountdownSeconds int
	PenaltyDelay     time.Duration
	PenaltyMode      PenaltyMode
}

func DefaultConfig() Config {
	return Config{
		CountdownStep:    time.Second,
		CountdownSeconds: countdown.Seconds,
		PenaltyDelay:     250 * time.Millisecond,
		PenaltyMode:      PenaltyImmediate,
	}
}

type Deps struct {
	Timer   *delay.Timer
	Display countdown.Display
	Out     gpio.Writer
	Arbiter Arbiter
	// Events is shared by every player and read by the round controller.
	Events chan<- Event
	// Presses carries button edges from the poller.
	Presses <-chan struct{}
}

type Machine struct {
	id      shared.PlayerID
	cfg     Config
	deps    Deps
	mailbox *Mailbox
	led     gpio.Signal
	// seen is the last mailbox sequence applied. Only the Run goroutine
	// touches it.
	seen uint64

	mu    sync.Mutex
	state State
	token *delay.Token
}

func New(id shared.PlayerID, cfg Config, deps Deps) *Machine {
	led, _ := gpio.LEDFor(id)
	if cfg.CountdownSeconds <= 0 || cfg.CountdownSeconds > countdown.Seconds {
		cfg.CountdownSeconds = countdown.Seconds
	}
	return &Machine{
		id:      id,
		cfg:     cfg,
		deps:    deps,
		mailbox: NewMailbox(),
		led:     led,
	}
}

func (m *Machine) ID() shared.PlayerID {
	return m.id
}

// Send posts a command, replacing any the task has not read yet.
func (m *Machine) Send(cmd Command) {
	m.mailbox.Put(cmd)
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Snapshot() shared.PlayerSnapshot {
	st := m.State()
	return shared.PlayerSnapshot{
		ID:           int(m.id),
		Enabled:      st.Enabled,
		LockedOut:    st.LockedOut,
		EarlyPenalty: st.EarlyPenalty,
		CountingDown: st.CountingDown,
		LastCommand:  st.LastCommand.String(),
		Response:     st.Response.String(),
	}
}

// Interrupt ends a running countdown early with cause. It reports false
// when the player is not counting down.
func (m *Machine) Interrupt(cause error) bool {
	m.mu.Lock()
	tok := m.token
	m.mu.Unlock()
	if tok == nil {
		return false
	}
	return tok.Cancel(cause)
}

func (m *Machine) Run(ctx context.Context) error {
	log.Info().Int("player", int(m.id)).Msg("player task started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Int("player", int(m.id)).Msg("player task stopping")
			return nil
		case <-m.mailbox.Notify():
			m.takeCommand(ctx)
		case <-m.deps.Presses:
			// A command posted before the press wins.
			m.takeCommand(ctx)
			m.handlePress(ctx)
		}
	}
}

func (m *Machine) takeCommand(ctx context.Context) {
	if cmd, seq, ok := m.mailbox.Take(m.seen); ok {
		m.seen = seq
		m.apply(ctx, cmd)
	}
}

// takeAcknowledgement consumes a pending RingInAcknowledged while the
// countdown runs. Any other command stays queued for the main loop.
func (m *Machine) takeAcknowledgement() {
	cmd, seq, ok := m.mailbox.Take(m.seen)
	if !ok || cmd != RingInAcknowledged {
		return
	}
	m.seen = seq
	m.update(func(st *State) { st.LastCommand = cmd })
	log.Debug().Int("player", int(m.id)).Msg("ring-in acknowledged")
}

func (m *Machine) update(fn func(st *State)) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
	return m.state
}

func (m *Machine) apply(ctx context.Context, cmd Command) {
	st := m.update(func(st *State) {
		st.LastCommand = cmd
		switch cmd {
		case Enable:
			st.Enabled = true
			st.LockedOut = false
			st.EarlyPenalty = false
			st.Response = Idle
		case Disable:
			st.Enabled = false
			st.LockedOut = false
			st.EarlyPenalty = false
			st.Response = Idle
		case ApplyPenalty:
			st.EarlyPenalty = true
		case AnotherPlayerWon:
			// Only sent while a round is open, so it also stands in for an
			// Enable it may have overwritten.
			st.Enabled = true
			st.LockedOut = true
		}
	})
	log.Debug().
		Int("player", int(m.id)).
		Str("command", cmd.String()).
		Bool("enabled", st.Enabled).
		Bool("locked_out", st.LockedOut).
		Bool("early_penalty", st.EarlyPenalty).
		Msg("command applied")

	if cmd == ApplyPenalty && m.cfg.PenaltyMode == PenaltyImmediate {
		m.servePenalty(ctx)
	}
}

func (m *Machine) handlePress(ctx context.Context) {
	st := m.State()
	switch {
	case st.EarlyPenalty:
		// Only reachable in deferred mode: immediate penalties are served
		// before the task reads another press.
		log.Info().Int("player", int(m.id)).Msg("press with outstanding penalty")
		m.servePenalty(ctx)
	case !st.Enabled:
		m.update(func(st *State) {
			st.EarlyPenalty = true
			st.Response = Idle
		})
		log.Info().Int("player", int(m.id)).Msg("early press, penalty flagged")
		m.emit(ctx, Event{Kind: EventEarlyPress})
		if m.cfg.PenaltyMode == PenaltyImmediate {
			m.servePenalty(ctx)
		}
	case st.LockedOut:
		log.Debug().Int("player", int(m.id)).Msg("press while locked out ignored")
	default:
		m.ringIn(ctx)
	}
}

func (m *Machine) servePenalty(ctx context.Context) {
	m.deps.Timer.Sleep(ctx, m.cfg.PenaltyDelay, nil)
	m.update(func(st *State) { st.EarlyPenalty = false })
	m.drainPresses()
	log.Info().Int("player", int(m.id)).Dur("delay", m.cfg.PenaltyDelay).Msg("penalty served")
	m.emit(ctx, Event{Kind: EventPenaltyServed})
}

func (m *Machine) ringIn(ctx context.Context) {
	if !m.deps.Arbiter.Claim(m.id) {
		m.update(func(st *State) { st.LockedOut = true })
		log.Info().Int("player", int(m.id)).Msg("pressed after another player won")
		m.emit(ctx, Event{Kind: EventClaimLost})
		return
	}

	tok := &delay.Token{}
	m.mu.Lock()
	m.state.Response = RangIn
	m.state.CountingDown = true
	m.token = tok
	m.mu.Unlock()

	log.Info().Int("player", int(m.id)).Msg("rang in")
	m.emit(ctx, Event{Kind: EventRangIn})

	m.deps.Out.Write(m.led, gpio.Active)
	cause := m.runCountdown(ctx, tok)
	m.deps.Out.Write(m.led, gpio.Inactive)

	m.mu.Lock()
	m.state.LockedOut = true
	m.state.Response = TimedOut
	m.state.CountingDown = false
	m.token = nil
	m.mu.Unlock()
	m.drainPresses()

	if cause != nil {
		log.Info().Int("player", int(m.id)).Err(cause).Msg("countdown ended early")
	} else {
		log.Info().Int("player", int(m.id)).Msg("time expired")
	}
	m.emit(ctx, Event{Kind: EventTimedOut, Cause: cause})
}

// runCountdown shows every second from CountdownSeconds down to zero, one
// step apart. It returns nil when the countdown ran out.
func (m *Machine) runCountdown(ctx context.Context, tok *delay.Token) error {
	stop := func() bool {
		m.takeAcknowledgement()
		return tok.Cancelled()
	}
	m.show(m.cfg.CountdownSeconds)
	for second := m.cfg.CountdownSeconds - 1; second >= 0; second-- {
		if m.deps.Timer.Sleep(ctx, m.cfg.CountdownStep, stop) == delay.Cancelled {
			m.show(0)
			if err := ctx.Err(); err != nil {
				return err
			}
			return tok.Cause()
		}
		m.show(second)
	}
	return nil
}

func (m *Machine) show(second int) {
	if err := m.deps.Display.Show(m.id, second); err != nil {
		log.Warn().Err(err).Int("player", int(m.id)).Int("second", second).Msg("countdown display rejected value")
	}
}

func (m *Machine) drainPresses() {
	for {
		select {
		case <-m.deps.Presses:
		default:
			return
		}
	}
}

func (m *Machine) emit(ctx context.Context, ev Event) {
	ev.Player = m.id
	ev.At = m.deps.Timer.Clock().Now()
	select {
	case m.deps.Events <- ev:
	case <-ctx.Done():
	}
}
