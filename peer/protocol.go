package peer

import (
	"fmt"

	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
)

const (
	HandshakeRequest byte = '!'
	HandshakeReply   byte = '@'
)

type InboundKind int

const (
	InboundHandshake InboundKind = iota
	InboundTermination
)

func (k InboundKind) String() string {
	return [...]string{"HANDSHAKE", "TERMINATION"}[k]
}

type Inbound struct {
	Kind   InboundKind
	Player shared.PlayerID
	ID     shared.EventID
}

// Encode returns the wire byte for an outbound event. Only ring-in and
// expiry events travel to the peer.
func Encode(id shared.EventID) (byte, error) {
	switch id.Kind() {
	case shared.KindRingIn, shared.KindExpired:
		return byte(id), nil
	}
	return 0, fmt.Errorf("outbound %q: %w", byte(id), shared.ErrUnknownEventID)
}

func Decode(b byte) (Inbound, error) {
	if b == HandshakeRequest {
		return Inbound{Kind: InboundHandshake}, nil
	}
	id := shared.EventID(b)
	if id.Kind() != shared.KindTerminated {
		return Inbound{}, fmt.Errorf("inbound %q: %w", b, shared.ErrUnknownEventID)
	}
	p, err := id.Player()
	if err != nil {
		return Inbound{}, err
	}
	return Inbound{Kind: InboundTermination, Player: p, ID: id}, nil
}
