package gpio

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Board is the set of signals actually wired on this device. Reads of an
// unwired input are Inactive and writes to an unwired output are dropped,
// so optional hardware needs no checks at call sites.
type Board struct {
	drv   Driver
	wired map[Signal]bool
}

func NewBoard(drv Driver, wired []Signal) *Board {
	b := &Board{drv: drv, wired: make(map[Signal]bool, len(wired))}
	for _, s := range wired {
		b.wired[s] = true
	}
	return b
}

// Setup configures every wired signal: inputs pulled up (the buttons and
// switches pull to ground when active), outputs driven inactive.
func (b *Board) Setup() error {
	for _, s := range AllSignals() {
		if !b.wired[s] {
			continue
		}
		if s.IsInput() {
			if err := b.drv.Configure(s, Input, PullUp); err != nil {
				return fmt.Errorf("configure %s: %w", s, err)
			}
			continue
		}
		if err := b.drv.Configure(s, Output, PullNone); err != nil {
			return fmt.Errorf("configure %s: %w", s, err)
		}
		b.drv.Write(s, Inactive)
	}
	log.Info().Int("signals", len(b.wired)).Msg("gpio configured")
	return nil
}

func (b *Board) Has(sig Signal) bool {
	return b.wired[sig]
}

func (b *Board) Read(sig Signal) Level {
	if !b.wired[sig] {
		return Inactive
	}
	return b.drv.Read(sig)
}

func (b *Board) Write(sig Signal, level Level) {
	if !b.wired[sig] {
		return
	}
	b.drv.Write(sig, level)
}

// AllOff forces every wired LED, relay and segment output inactive. It is
// the teardown hook run before the process exits.
func (b *Board) AllOff() {
	for _, s := range AllSignals() {
		if b.wired[s] && !s.IsInput() {
			b.drv.Write(s, Inactive)
		}
	}
	log.Info().Msg("all outputs off")
}

func (b *Board) Close() error {
	return b.drv.Close()
}
