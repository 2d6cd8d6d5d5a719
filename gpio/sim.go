package gpio

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sim is an in-memory driver. It backs the simulation mode and the tests.
type Sim struct {
	mu     sync.Mutex
	levels map[Signal]Level
	modes  map[Signal]Mode
	writes map[Signal]int
}

func NewSim() *Sim {
	return &Sim{
		levels: make(map[Signal]Level),
		modes:  make(map[Signal]Mode),
		writes: make(map[Signal]int),
	}
}

func (s *Sim) Configure(sig Signal, mode Mode, _ Pull) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes[sig] = mode
	return nil
}

func (s *Sim) Read(sig Signal) Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[sig]
}

func (s *Sim) Write(sig Signal, level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[sig] = level
	s.writes[sig]++
}

// Set changes an input as if the hardware had moved.
func (s *Sim) Set(sig Signal, level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[sig] = level
}

// Level is Read without the Reader interface, for assertions.
func (s *Sim) Level(sig Signal) Level {
	return s.Read(sig)
}

// Writes counts how many times an output was driven.
func (s *Sim) Writes(sig Signal) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[sig]
}

func (s *Sim) Mode(sig Signal) (Mode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modes[sig]
	return m, ok
}

func (s *Sim) Close() error {
	return nil
}

// Keyboard drives a Sim from a terminal: 1-3 press a player button for
// hold, e toggles the enabler switch, i pulses the operator interrupt.
func Keyboard(ctx context.Context, in io.Reader, sim *Sim, hold time.Duration) error {
	keys := make(chan byte)
	go func() {
		r := bufio.NewReader(in)
		for {
			b, err := r.ReadByte()
			if err != nil {
				close(keys)
				return
			}
			keys <- b
		}
	}()

	pulse := func(sig Signal) {
		sim.Set(sig, Active)
		time.AfterFunc(hold, func() { sim.Set(sig, Inactive) })
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-keys:
			if !ok {
				log.Info().Msg("keyboard input closed")
				return nil
			}
			switch b {
			case '1', '2', '3':
				pulse(Button1 + Signal(b-'1'))
			case 'e':
				next := Active
				if sim.Read(Enabler) == Active {
					next = Inactive
				}
				sim.Set(Enabler, next)
				log.Info().Str("enabler", next.String()).Msg("enabler toggled")
			case 'i':
				pulse(OperatorInterrupt)
			}
		}
	}
}
