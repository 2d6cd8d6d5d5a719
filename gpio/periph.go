package gpio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
)

// PeriphDriver drives real pins through periph.io. Inputs are active-low:
// a pressed button or closed switch reads as Low.
type PeriphDriver struct {
	mu   sync.Mutex
	pins map[Signal]pgpio.PinIO
}

// NewPeriph initialises the host and resolves every pin name, e.g.
// "GPIO17". Any failure is an ErrHardwareInit.
func NewPeriph(pins map[Signal]string) (*PeriphDriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: host init: %v", shared.ErrHardwareInit, err)
	}
	d := &PeriphDriver{pins: make(map[Signal]pgpio.PinIO, len(pins))}
	for sig, name := range pins {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: no pin named %q for %s", shared.ErrHardwareInit, name, sig)
		}
		d.pins[sig] = p
	}
	return d, nil
}

func (d *PeriphDriver) pin(sig Signal) (pgpio.PinIO, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pins[sig]
	return p, ok
}

func (d *PeriphDriver) Configure(sig Signal, mode Mode, pull Pull) error {
	p, ok := d.pin(sig)
	if !ok {
		return fmt.Errorf("%s is not mapped to a pin", sig)
	}
	if mode == Output {
		return p.Out(pgpio.Low)
	}
	pp := pgpio.Float
	switch pull {
	case PullUp:
		pp = pgpio.PullUp
	case PullDown:
		pp = pgpio.PullDown
	}
	return p.In(pp, pgpio.NoEdge)
}

func (d *PeriphDriver) Read(sig Signal) Level {
	p, ok := d.pin(sig)
	if !ok {
		return Inactive
	}
	if p.Read() == pgpio.Low {
		return Active
	}
	return Inactive
}

func (d *PeriphDriver) Write(sig Signal, level Level) {
	p, ok := d.pin(sig)
	if !ok {
		return
	}
	out := pgpio.Low
	if level == Active {
		out = pgpio.High
	}
	if err := p.Out(out); err != nil {
		log.Warn().Err(err).Str("signal", sig.String()).Msg("gpio write failed")
	}
}

func (d *PeriphDriver) Close() error {
	return nil
}
