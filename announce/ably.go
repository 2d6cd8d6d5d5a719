package announce

import (
	"context"

	"github.com/ably/ably-go/ably"
)

// AblySink publishes on the device's realtime channel; the announcement
// kind is the message name and the JSON body its data.
type AblySink struct {
	channel *ably.RealtimeChannel
}

func NewAblySink(channel *ably.RealtimeChannel) *AblySink {
	return &AblySink{channel: channel}
}

func (s *AblySink) Name() string { return "ably" }

func (s *AblySink) Publish(ctx context.Context, a Announcement) error {
	body, err := a.JSON()
	if err != nil {
		return err
	}
	return s.channel.Publish(ctx, a.Kind.String(), string(body))
}
