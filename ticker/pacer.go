package ticker

import "time"

const (
	TickTime             = 2 * time.Second
	IdleHalfTicksTrigger = 10               // After this many quiet half ticks, idle mode is on.
	IdleInterval         = 10 * time.Second // In idle mode, check once per interval.
)

// Pacer decides how long the journal sleeps between checks.
type Pacer struct {
	tick          time.Duration
	idle          bool
	idleHalfTicks int
}

func NewPacer(tick time.Duration) *Pacer {
	if tick <= 0 {
		tick = TickTime
	}
	return &Pacer{tick: tick}
}

func (p *Pacer) Idle() bool {
	return p.idle
}

// Quiet records a check that found nothing to do and returns the next sleep.
func (p *Pacer) Quiet() time.Duration {
	if !p.idle && p.idleHalfTicks >= IdleHalfTicksTrigger {
		p.idle = true
		p.idleHalfTicks = 0
		return IdleInterval
	}
	if p.idle {
		return IdleInterval
	}
	p.idleHalfTicks++
	return p.tick / 2
}

// Busy records a check that did work taking elapsed and returns the next
// sleep. It always leaves idle mode.
func (p *Pacer) Busy(elapsed time.Duration) time.Duration {
	p.idle = false
	p.idleHalfTicks = 0
	if elapsed >= p.tick/2 {
		return 0
	}
	return p.tick/2 - elapsed
}
