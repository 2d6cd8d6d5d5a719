// Package peer keeps the serial link to the lightbar microcontroller:
// status bytes out, pairing handshakes and remote terminations in.
package peer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/LBBNetwork/JeopardyRingInPublic/announce"
	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
	"github.com/LBBNetwork/JeopardyRingInPublic/telemetry"
)

// Terminator ends a player's countdown on the peer's behalf.
type Terminator interface {
	Terminate(p shared.PlayerID) error
}

type Announcer interface {
	Announce(a announce.Announcement)
}

type Config struct {
	DeviceID   string
	Banner     string
	BackoffMin time.Duration
	BackoffMax time.Duration
}

type Engine struct {
	cfg        Config
	opener     Opener
	clock      clockwork.Clock
	mailbox    *StatusMailbox
	terminator Terminator
	announcer  Announcer
}

func NewEngine(cfg Config, opener Opener, clock clockwork.Clock, mailbox *StatusMailbox, term Terminator, ann Announcer) *Engine {
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 500 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		cfg:        cfg,
		opener:     opener,
		clock:      clock,
		mailbox:    mailbox,
		terminator: term,
		announcer:  ann,
	}
}

// Run opens the port and serves it until ctx is done, reopening with
// exponential backoff whenever the open fails or the link drops.
func (e *Engine) Run(ctx context.Context) error {
	backoff := e.cfg.BackoffMin
	for {
		telemetry.SerialReconnects.Inc()
		port, err := e.opener.Open()
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("serial open failed")
			select {
			case <-ctx.Done():
				return nil
			case <-e.clock.After(backoff):
			}
			backoff *= 2
			if backoff > e.cfg.BackoffMax {
				backoff = e.cfg.BackoffMax
			}
			continue
		}
		backoff = e.cfg.BackoffMin

		log.Info().Msg("serial link open")
		telemetry.PeerConnected.Set(1)
		err = e.serve(ctx, port)
		_ = port.Close()
		telemetry.PeerConnected.Set(0)

		if ctx.Err() != nil {
			log.Info().Msg("peer engine stopping")
			return nil
		}
		log.Warn().Err(err).Msg("serial link lost")
	}
}

func (e *Engine) serve(ctx context.Context, port Port) error {
	if e.cfg.Banner != "" {
		if _, err := port.Write([]byte(e.cfg.Banner)); err != nil {
			return fmt.Errorf("write banner: %w", err)
		}
		telemetry.SerialBytes.WithLabelValues("tx").Add(float64(len(e.cfg.Banner)))
	}

	done := make(chan struct{})
	defer close(done)
	inbound := make(chan byte, 16)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		for {
			n, err := port.Read(buf)
			for _, b := range buf[:n] {
				select {
				case inbound <- b:
				case <-done:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
			select {
			case <-done:
				return
			default:
			}
		}
	}()

	// Anything published while the link was down goes out first.
	if err := e.flush(port); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return fmt.Errorf("read: %w", err)
		case b := <-inbound:
			if err := e.handle(port, b); err != nil {
				return err
			}
		case <-e.mailbox.Notify():
			if err := e.flush(port); err != nil {
				return err
			}
		}
	}
}

// flush writes the outbound status byte if it differs from the last one
// written.
func (e *Engine) flush(port Port) error {
	id, ok := e.mailbox.TakeOutbound()
	if !ok {
		return nil
	}
	b, err := Encode(id)
	if err != nil {
		log.Warn().Err(err).Msg("dropping outbound status")
		return nil
	}
	if _, err := port.Write([]byte{b}); err != nil {
		e.mailbox.requeueOutbound(id)
		return fmt.Errorf("write status: %w", err)
	}
	e.mailbox.MarkSent(id)
	telemetry.SerialBytes.WithLabelValues("tx").Inc()
	log.Debug().Str("byte", string(b)).Msg("status sent")
	return nil
}

func (e *Engine) handle(port Port, b byte) error {
	telemetry.SerialBytes.WithLabelValues("rx").Inc()
	in, err := Decode(b)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring peer byte")
		return nil
	}
	log.Debug().Str("byte", string(b)).Str("kind", in.Kind.String()).Msg("peer byte")

	switch in.Kind {
	case InboundHandshake:
		if _, err := port.Write([]byte{HandshakeReply}); err != nil {
			return fmt.Errorf("write handshake reply: %w", err)
		}
		telemetry.SerialBytes.WithLabelValues("tx").Inc()
		telemetry.Handshakes.Inc()
		log.Info().Msg("peer paired")
		e.announce(announce.Announcement{Kind: announce.PeerPaired})
	case InboundTermination:
		e.mailbox.RecordInbound(in.ID)
		e.applyInbound()
	}
	return nil
}

func (e *Engine) applyInbound() {
	id, ok := e.mailbox.TakeInbound()
	if !ok {
		return
	}
	p, err := id.Player()
	if err != nil {
		log.Warn().Err(err).Msg("inbound termination without a player")
		return
	}
	log.Info().Int("player", int(p)).Msg("peer terminated countdown")
	if e.terminator == nil {
		return
	}
	if err := e.terminator.Terminate(p); err != nil && !errors.Is(err, shared.ErrUnknownEventID) {
		log.Error().Err(err).Int("player", int(p)).Msg("termination failed")
	} else if err != nil {
		log.Warn().Err(err).Int("player", int(p)).Msg("termination for unknown player")
	}
}

func (e *Engine) announce(a announce.Announcement) {
	if e.announcer == nil {
		return
	}
	a.DeviceID = e.cfg.DeviceID
	a.At = e.clock.Now()
	e.announcer.Announce(a)
}
