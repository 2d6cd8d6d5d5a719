package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LBBNetwork/JeopardyRingInPublic/countdown"
	"github.com/LBBNetwork/JeopardyRingInPublic/delay"
	"github.com/LBBNetwork/JeopardyRingInPublic/gpio"
	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
)

type fakeArbiter struct {
	mu     sync.Mutex
	deny   bool
	winner shared.PlayerID
	claims int
}

func (a *fakeArbiter) Claim(p shared.PlayerID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.claims++
	if a.deny || a.winner != 0 {
		return false
	}
	a.winner = p
	return true
}

func (a *fakeArbiter) Claims() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.claims
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	m       *Machine
	fc      *clockwork.FakeClock
	sim     *gpio.Sim
	arb     *fakeArbiter
	events  chan Event
	presses chan struct{}
	done    chan error
	cancel  context.CancelFunc
}

func newStoppedFixture(t *testing.T, mode PenaltyMode) *fixture {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	fc := clockwork.NewFakeClock()
	sim := gpio.NewSim()
	f := &fixture{
		t:       t,
		ctx:     ctx,
		fc:      fc,
		sim:     sim,
		arb:     &fakeArbiter{},
		events:  make(chan Event, 16),
		presses: make(chan struct{}, 1),
		done:    make(chan error, 1),
		cancel:  cancel,
	}
	cfg := DefaultConfig()
	cfg.PenaltyMode = mode
	f.m = New(1, cfg, Deps{
		// A one-second tick puts exactly one timer behind each countdown step.
		Timer:   delay.New(fc, time.Second),
		Display: countdown.New(sim, true),
		Out:     sim,
		Arbiter: f.arb,
		Events:  f.events,
		Presses: f.presses,
	})
	t.Cleanup(cancel)
	return f
}

func newFixture(t *testing.T, mode PenaltyMode) *fixture {
	t.Helper()
	f := newStoppedFixture(t, mode)
	f.start()
	return f
}

func (f *fixture) start() {
	go func() { f.done <- f.m.Run(f.ctx) }()
}

func (f *fixture) waitState(desc string, ok func(State) bool) State {
	f.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := f.m.State(); ok(st) {
			return st
		}
		time.Sleep(time.Millisecond)
	}
	f.t.Fatalf("timed out waiting for %s; state = %+v", desc, f.m.State())
	return State{}
}

func (f *fixture) enable() {
	f.t.Helper()
	f.m.Send(Enable)
	f.waitState("enabled", func(st State) bool { return st.Enabled && st.LastCommand == Enable })
}

func (f *fixture) press() {
	f.t.Helper()
	select {
	case f.presses <- struct{}{}:
	case <-time.After(time.Second):
		f.t.Fatalf("press not consumed")
	}
}

func (f *fixture) next(want EventKind) Event {
	f.t.Helper()
	select {
	case ev := <-f.events:
		if ev.Kind != want {
			f.t.Fatalf("event = %v, want %v", ev.Kind, want)
		}
		if ev.Player != 1 {
			f.t.Fatalf("event player = %v, want P1", ev.Player)
		}
		return ev
	case <-time.After(2 * time.Second):
		f.t.Fatalf("no %v event", want)
	}
	return Event{}
}

func (f *fixture) noEvent() {
	f.t.Helper()
	select {
	case ev := <-f.events:
		f.t.Fatalf("unexpected event %v", ev.Kind)
	case <-time.After(30 * time.Millisecond):
	}
}

func (f *fixture) advance(d time.Duration) {
	f.t.Helper()
	if err := f.fc.BlockUntilContext(f.ctx, 1); err != nil {
		f.t.Fatalf("waiting for timer: %v", err)
	}
	f.fc.Advance(d)
}

func (f *fixture) lit() int {
	n := 0
	for _, s := range gpio.Segments() {
		if f.sim.Level(s) == gpio.Active {
			n++
		}
	}
	return n
}

func TestRingInRunsCountdownToExpiry(t *testing.T) {
	f := newFixture(t, PenaltyImmediate)
	f.enable()
	f.press()

	f.next(EventRangIn)
	st := f.m.State()
	if st.Response != RangIn || !st.CountingDown {
		t.Fatalf("state after ring-in = %+v", st)
	}

	for second := countdown.Seconds; second > 0; second-- {
		if err := f.fc.BlockUntilContext(f.ctx, 1); err != nil {
			t.Fatalf("waiting for countdown step: %v", err)
		}
		if got := f.lit(); got != second {
			t.Fatalf("%d segments lit, want %d", got, second)
		}
		if f.sim.Level(gpio.Enable1) != gpio.Active || f.sim.Level(gpio.LED1) != gpio.Active {
			t.Fatalf("relay or LED off during countdown at %d", second)
		}
		f.fc.Advance(time.Second)
	}

	ev := f.next(EventTimedOut)
	if ev.Cause != nil {
		t.Fatalf("expiry cause = %v, want nil", ev.Cause)
	}
	st = f.m.State()
	if st.Response != TimedOut || !st.LockedOut || st.CountingDown {
		t.Fatalf("state after expiry = %+v", st)
	}
	if f.lit() != 0 || f.sim.Level(gpio.Enable1) != gpio.Inactive || f.sim.Level(gpio.LED1) != gpio.Inactive {
		t.Fatalf("outputs still active after expiry")
	}

	// Locked out for the rest of the round.
	f.press()
	f.noEvent()
	if f.arb.Claims() != 1 {
		t.Fatalf("claims = %d, want 1", f.arb.Claims())
	}
}

func TestPressWhileDisabledOnlyFlagsPenalty(t *testing.T) {
	for _, mode := range []PenaltyMode{PenaltyImmediate, PenaltyDeferred} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t, mode)
			f.press()

			f.next(EventEarlyPress)
			st := f.m.State()
			if !st.EarlyPenalty || st.Response != Idle || st.CountingDown {
				t.Fatalf("state after early press = %+v", st)
			}
			if f.arb.Claims() != 0 {
				t.Fatalf("early press reached the arbiter")
			}
			if f.sim.Writes(gpio.Segment1) != 0 || f.sim.Writes(gpio.Enable1) != 0 {
				t.Fatalf("early press touched the countdown")
			}
		})
	}
}

func TestImmediatePenaltyClearsAfterDelay(t *testing.T) {
	f := newFixture(t, PenaltyImmediate)
	f.press()
	f.next(EventEarlyPress)

	f.advance(250 * time.Millisecond)
	f.next(EventPenaltyServed)
	f.waitState("penalty cleared", func(st State) bool { return !st.EarlyPenalty })
}

func TestDeferredPenaltyServedOnNextPress(t *testing.T) {
	f := newFixture(t, PenaltyDeferred)
	f.press()
	f.next(EventEarlyPress)
	f.noEvent()
	if !f.m.State().EarlyPenalty {
		t.Fatalf("penalty cleared without a second press")
	}

	f.press()
	f.advance(250 * time.Millisecond)
	f.next(EventPenaltyServed)
	st := f.waitState("penalty cleared", func(st State) bool { return !st.EarlyPenalty })
	if st.CountingDown || f.arb.Claims() != 0 {
		t.Fatalf("penalty press started a ring-in")
	}
}

func TestOutstandingPenaltyResolvesBeforeRingIn(t *testing.T) {
	f := newFixture(t, PenaltyDeferred)
	f.enable()
	f.m.Send(ApplyPenalty)
	f.waitState("penalty flagged", func(st State) bool { return st.EarlyPenalty })

	f.press()
	f.advance(250 * time.Millisecond)
	f.next(EventPenaltyServed)
	if f.arb.Claims() != 0 {
		t.Fatalf("ring-in honoured before penalty was served")
	}

	f.press()
	f.next(EventRangIn)
}

func TestAnotherPlayerWonLocksOut(t *testing.T) {
	f := newFixture(t, PenaltyImmediate)
	f.enable()
	f.m.Send(AnotherPlayerWon)
	f.waitState("locked out", func(st State) bool { return st.LockedOut })

	f.press()
	f.noEvent()
	if f.arb.Claims() != 0 {
		t.Fatalf("locked out player reached the arbiter")
	}
}

func TestLockoutSurvivesUnreadEnable(t *testing.T) {
	f := newStoppedFixture(t, PenaltyImmediate)
	// Another player won before this task read the round-open command.
	f.m.Send(Enable)
	f.m.Send(AnotherPlayerWon)
	f.start()

	st := f.waitState("locked out", func(st State) bool { return st.LastCommand == AnotherPlayerWon })
	if !st.Enabled || !st.LockedOut || st.EarlyPenalty {
		t.Fatalf("state = %+v, want enabled and locked out", st)
	}

	f.press()
	f.noEvent()
	if st := f.m.State(); st.EarlyPenalty || f.arb.Claims() != 0 {
		t.Fatalf("locked-out press in an open round was treated as early: %+v", st)
	}
}

func TestWinnerTakesAcknowledgementDuringCountdown(t *testing.T) {
	f := newFixture(t, PenaltyImmediate)
	f.enable()
	f.press()
	f.next(EventRangIn)

	f.m.Send(RingInAcknowledged)
	f.advance(time.Second)
	f.waitState("acknowledged", func(st State) bool {
		return st.LastCommand == RingInAcknowledged && st.CountingDown
	})

	for i := 1; i < countdown.Seconds; i++ {
		f.advance(time.Second)
	}
	f.next(EventTimedOut)
	st := f.m.State()
	if st.LastCommand != RingInAcknowledged || st.Response != TimedOut || !st.LockedOut {
		t.Fatalf("state after expiry = %+v", st)
	}

	// The acknowledgement was consumed; nothing is replayed afterwards.
	f.m.Send(Disable)
	f.waitState("disabled", func(st State) bool { return st.LastCommand == Disable && !st.Enabled })
}

func TestLostClaimLocksOut(t *testing.T) {
	f := newFixture(t, PenaltyImmediate)
	f.arb.deny = true
	f.enable()
	f.press()

	f.next(EventClaimLost)
	st := f.m.State()
	if !st.LockedOut || st.Response != Idle || st.CountingDown {
		t.Fatalf("state after lost claim = %+v", st)
	}
	if f.sim.Writes(gpio.Segment1) != 0 {
		t.Fatalf("lost claim started a countdown")
	}
}

func TestInterruptEndsCountdown(t *testing.T) {
	f := newFixture(t, PenaltyImmediate)
	if f.m.Interrupt(ErrTerminatedByPeer) {
		t.Fatalf("Interrupt succeeded with no countdown running")
	}

	f.enable()
	f.press()
	f.next(EventRangIn)
	f.advance(time.Second)
	f.advance(time.Second)

	if err := f.fc.BlockUntilContext(f.ctx, 1); err != nil {
		t.Fatalf("waiting for countdown: %v", err)
	}
	if !f.m.Interrupt(ErrTerminatedByPeer) {
		t.Fatalf("Interrupt = false during countdown")
	}
	f.fc.Advance(time.Second)

	ev := f.next(EventTimedOut)
	if !errors.Is(ev.Cause, ErrTerminatedByPeer) {
		t.Fatalf("cause = %v, want ErrTerminatedByPeer", ev.Cause)
	}
	st := f.m.State()
	if !st.LockedOut || st.Response != TimedOut {
		t.Fatalf("state after interrupt = %+v", st)
	}
	if f.lit() != 0 || f.sim.Level(gpio.Enable1) != gpio.Inactive {
		t.Fatalf("display not blanked after interrupt")
	}
}

func TestDisableIsFullReset(t *testing.T) {
	f := newFixture(t, PenaltyDeferred)
	f.enable()
	f.m.Send(ApplyPenalty)
	f.waitState("penalty flagged", func(st State) bool { return st.EarlyPenalty })
	f.m.Send(AnotherPlayerWon)
	f.waitState("locked out", func(st State) bool { return st.LockedOut })

	f.m.Send(Disable)
	st := f.waitState("disabled", func(st State) bool { return st.LastCommand == Disable })
	if st.Enabled || st.LockedOut || st.EarlyPenalty || st.Response != Idle {
		t.Fatalf("state after Disable = %+v", st)
	}
}

func TestEnableClearsPreviousRound(t *testing.T) {
	f := newFixture(t, PenaltyImmediate)
	f.enable()
	f.m.Send(AnotherPlayerWon)
	f.waitState("locked out", func(st State) bool { return st.LockedOut })
	f.m.Send(Disable)
	f.waitState("disabled", func(st State) bool { return !st.Enabled })

	f.enable()
	st := f.m.State()
	if st.LockedOut || st.EarlyPenalty {
		t.Fatalf("state after new round = %+v", st)
	}
}

func TestShutdownDuringCountdownBlanksDisplay(t *testing.T) {
	f := newFixture(t, PenaltyImmediate)
	f.enable()
	f.press()
	f.next(EventRangIn)
	if err := f.fc.BlockUntilContext(f.ctx, 1); err != nil {
		t.Fatalf("waiting for countdown: %v", err)
	}

	f.cancel()
	select {
	case err := <-f.done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if f.lit() != 0 || f.sim.Level(gpio.LED1) != gpio.Inactive {
		t.Fatalf("outputs left on after shutdown")
	}
}

func TestMailboxOverwritesUnreadCommand(t *testing.T) {
	b := NewMailbox()
	if _, _, ok := b.Take(0); ok {
		t.Fatalf("empty mailbox returned a command")
	}

	b.Put(Enable)
	b.Put(AnotherPlayerWon)
	cmd, seq, ok := b.Take(0)
	if !ok || cmd != AnotherPlayerWon {
		t.Fatalf("Take = %v,%v want ANOTHER_PLAYER_WON", cmd, ok)
	}
	if _, _, ok := b.Take(seq); ok {
		t.Fatalf("same command returned twice")
	}

	// Re-sending the same command is still news.
	b.Put(AnotherPlayerWon)
	if _, _, ok := b.Take(seq); !ok {
		t.Fatalf("repeated command not seen")
	}
}

func TestParsePenaltyMode(t *testing.T) {
	if m, err := ParsePenaltyMode("deferred"); err != nil || m != PenaltyDeferred {
		t.Fatalf("ParsePenaltyMode(deferred) = %v, %v", m, err)
	}
	if m, err := ParsePenaltyMode(""); err != nil || m != PenaltyImmediate {
		t.Fatalf("ParsePenaltyMode(\"\") = %v, %v", m, err)
	}
	if _, err := ParsePenaltyMode("later"); err == nil {
		t.Fatalf("ParsePenaltyMode(later) succeeded")
	}
}
