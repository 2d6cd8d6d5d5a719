package round

import (
	"sync"

	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
)

// Arbiter hands out at most one ring-in per open round.
type Arbiter struct {
	mu     sync.Mutex
	open   bool
	winner shared.PlayerID
}

func NewArbiter() *Arbiter {
	return &Arbiter{}
}

func (a *Arbiter) Open() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = true
	a.winner = 0
}

func (a *Arbiter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = false
}

// Claim reports whether p is the first player to ring in this round.
func (a *Arbiter) Claim(p shared.PlayerID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open || a.winner != 0 || !p.Valid() {
		return false
	}
	a.winner = p
	return true
}

// Winner returns the round's winner, or 0 when nobody has rung in.
func (a *Arbiter) Winner() shared.PlayerID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.winner
}
