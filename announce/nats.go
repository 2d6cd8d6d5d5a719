package announce

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes on ringin.<device>.<KIND>.
type NATSSink struct {
	nc       *nats.Conn
	deviceID string
}

func NewNATSSink(nc *nats.Conn, deviceID string) *NATSSink {
	return &NATSSink{nc: nc, deviceID: deviceID}
}

func (s *NATSSink) Name() string { return "nats" }

func Subject(deviceID string, k Kind) string {
	return fmt.Sprintf("ringin.%s.%s", deviceID, k)
}

func (s *NATSSink) Publish(_ context.Context, a Announcement) error {
	body, err := a.JSON()
	if err != nil {
		return err
	}
	return s.nc.Publish(Subject(s.deviceID, a.Kind), body)
}
