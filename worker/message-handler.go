package worker

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ably/ably-go/ably"
	"github.com/rs/zerolog/log"
)

type QueueMessage struct {
	Source  string `json:"source"`
	AppId   string `json:"appId"`
	Channel string `json:"channel"`
	Site    string `json:"site"`
	RuleId  string `json:"ruleId"`
}

type PresenceMessage struct {
	*QueueMessage
	Presence []Presence `json:"presence"`
}

type MessageMessage struct {
	*QueueMessage
	Messages []Message `json:"messages"`
}

type Presence struct {
	Id           string `json:"id"`
	ClientId     string `json:"clientId"`
	ConnectionId string `json:"connectionId"`
	Timestamp    int    `json:"timestamp"`
	Name         string `json:"name"`
	Action       int    `json:"action"`
	Data         string `json:"data"`
}

type Message struct {
	Id           string `json:"id"`
	ClientId     string `json:"clientId"`
	ConnectionId string `json:"connectionId"`
	Timestamp    int    `json:"timestamp"`
	Name         string `json:"name"`
	Data         string `json:"data"`
}

func unmarshalPresence(payload []byte) (*PresenceMessage, error) {
	msg := &PresenceMessage{QueueMessage: &QueueMessage{}}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func unmarshalMessage(payload []byte) (*MessageMessage, error) {
	msg := &MessageMessage{QueueMessage: &QueueMessage{}}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Handle decodes one queue delivery. Presence envelopes only log who
// attached to the control channel; message envelopes carry commands.
func (h *Handler) Handle(ctx context.Context, payload []byte) {
	payloadString := string(payload)
	switch {
	case strings.Contains(payloadString, "channel.presence"):
		msg, err := unmarshalPresence(payload)
		if err != nil {
			log.Warn().Err(err).Msg("error unmarshalling presence message")
			return
		}
		h.handlePresence(msg)
	case strings.Contains(payloadString, "channel.message"):
		msg, err := unmarshalMessage(payload)
		if err != nil {
			log.Warn().Err(err).Msg("error unmarshalling message")
			return
		}
		h.handleMessage(ctx, msg)
	default:
		log.Warn().Str("payload", payloadString).Msg("unknown queue message")
	}
}

func (h *Handler) handlePresence(presenceMsg *PresenceMessage) {
	if !h.ours(presenceMsg.Channel) {
		return
	}
	for _, p := range presenceMsg.Presence {
		switch p.Action {
		case int(ably.PresenceActionEnter):
			log.Info().Str("client", p.ClientId).Msg("console attached")
		case int(ably.PresenceActionLeave):
			log.Info().Str("client", p.ClientId).Msg("console detached")
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, messageMsg *MessageMessage) {
	if !h.ours(messageMsg.Channel) {
		return
	}
	for _, msg := range messageMsg.Messages {
		h.onControlChannelMessage(ctx, msg)
	}
}
