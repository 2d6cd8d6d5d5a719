package worker

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
)

type Actions int

const (
	OpenRound Actions = iota
	CloseRound
	Interrupt
	Penalize
	Judge
)

func (a Actions) String() string {
	return [...]string{"OPEN_ROUND", "CLOSE_ROUND", "INTERRUPT", "PENALIZE", "JUDGE"}[a]
}

// Console is what an operator can do to the round from off the device.
type Console interface {
	OpenRound()
	CloseRound()
	Interrupt(p shared.PlayerID) error
	Penalize(p shared.PlayerID) error
	Judge(p shared.PlayerID) error
}

type Handler struct {
	deviceID string
	console  Console
}

func NewHandler(deviceID string, console Console) *Handler {
	return &Handler{deviceID: deviceID, console: console}
}

// ControlChannel is the channel a device takes commands from.
func ControlChannel(deviceID string) string {
	return "control:" + deviceID
}

func (h *Handler) ours(channel string) bool {
	return channel == ControlChannel(h.deviceID)
}

func (h *Handler) onControlChannelMessage(_ context.Context, msg Message) {
	logger := log.With().Str("client", msg.ClientId).Str("command", msg.Name).Logger()

	switch msg.Name {
	case OpenRound.String():
		h.console.OpenRound()
		logger.Info().Msg("round opened from console")
		return
	case CloseRound.String():
		h.console.CloseRound()
		logger.Info().Msg("round closed from console")
		return
	}

	var apply func(shared.PlayerID) error
	switch msg.Name {
	case Interrupt.String():
		apply = h.console.Interrupt
	case Penalize.String():
		apply = h.console.Penalize
	case Judge.String():
		apply = h.console.Judge
	default:
		logger.Warn().Msg("unknown console command")
		return
	}

	n, err := strconv.Atoi(strings.TrimSpace(msg.Data))
	if err != nil || !shared.PlayerID(n).Valid() {
		logger.Warn().Str("data", msg.Data).Msg("console command needs a player 1..3")
		return
	}
	if err := apply(shared.PlayerID(n)); err != nil {
		logger.Warn().Err(err).Int("player", n).Msg("console command failed")
		return
	}
	logger.Info().Int("player", n).Msg("console command applied")
}
