package peer

import (
	"sync"

	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
)

// StatusMailbox is the one-byte status slot shared with the round
// controller. Outbound and inbound changes are tracked separately; a value
// is overwritten, never queued. A value equal to the last one written to
// the wire is not handed out again until Reset or an inbound event clears
// the cursor.
type StatusMailbox struct {
	mu            sync.Mutex
	outbound      shared.EventID
	outboundDirty bool
	sent          shared.EventID
	hasSent       bool
	inbound       shared.EventID
	inboundDirty  bool
	last          shared.EventID
	notify        chan struct{}
}

func NewStatusMailbox() *StatusMailbox {
	return &StatusMailbox{notify: make(chan struct{}, 1)}
}

// Publish marks id for transmission.
func (m *StatusMailbox) Publish(id shared.EventID) {
	m.mu.Lock()
	m.outbound = id
	m.outboundDirty = true
	m.last = id
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// TakeOutbound returns the pending outbound value and clears its flag.
// It reports false when the pending value is what the wire already has.
func (m *StatusMailbox) TakeOutbound() (shared.EventID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.outboundDirty {
		return shared.EventNone, false
	}
	m.outboundDirty = false
	if m.hasSent && m.outbound == m.sent {
		return shared.EventNone, false
	}
	return m.outbound, true
}

// MarkSent records id as the last value written to the wire.
func (m *StatusMailbox) MarkSent(id shared.EventID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = id
	m.hasSent = true
}

// Reset forgets the last transmitted value so the next Publish goes out
// even if it repeats it. The controller calls it when a round opens.
func (m *StatusMailbox) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasSent = false
}

// requeueOutbound puts back a value whose write failed, unless a newer
// one is already pending.
func (m *StatusMailbox) requeueOutbound(id shared.EventID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.outboundDirty {
		m.outbound = id
		m.outboundDirty = true
	}
}

func (m *StatusMailbox) RecordInbound(id shared.EventID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound = id
	m.inboundDirty = true
	m.last = id
	m.hasSent = false
}

func (m *StatusMailbox) TakeInbound() (shared.EventID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inboundDirty {
		return shared.EventNone, false
	}
	m.inboundDirty = false
	return m.inbound, true
}

// Last is the most recent event in either direction.
func (m *StatusMailbox) Last() shared.EventID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *StatusMailbox) Notify() <-chan struct{} {
	return m.notify
}
