package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ably/ably-go/ably"
	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/LBBNetwork/JeopardyRingInPublic/announce"
	"github.com/LBBNetwork/JeopardyRingInPublic/config"
	"github.com/LBBNetwork/JeopardyRingInPublic/countdown"
	"github.com/LBBNetwork/JeopardyRingInPublic/delay"
	"github.com/LBBNetwork/JeopardyRingInPublic/gpio"
	"github.com/LBBNetwork/JeopardyRingInPublic/peer"
	"github.com/LBBNetwork/JeopardyRingInPublic/player"
	"github.com/LBBNetwork/JeopardyRingInPublic/round"
	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
	"github.com/LBBNetwork/JeopardyRingInPublic/telemetry"
	"github.com/LBBNetwork/JeopardyRingInPublic/ticker"
	"github.com/LBBNetwork/JeopardyRingInPublic/worker"
)

var version = "dev"

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Logger = log.With().Str("device", cfg.DeviceID).Logger()
}

// optional keeps an outside service from taking the buzzers down with it.
func optional(name string, fn func() error) func() error {
	return func() error {
		if err := fn(); err != nil {
			log.Error().Err(err).Str("service", name).Msg("service stopped")
		}
		return nil
	}
}

func openBoard(cfg *config.Config) (*gpio.Board, *gpio.Sim, error) {
	pins, err := cfg.PinMap()
	if err != nil {
		return nil, nil, err
	}
	wired := make([]gpio.Signal, 0, len(pins))
	for sig := range pins {
		wired = append(wired, sig)
	}

	var drv gpio.Driver
	var sim *gpio.Sim
	switch cfg.GPIO.Backend {
	case "sim":
		sim = gpio.NewSim()
		drv = sim
	default:
		p, err := gpio.NewPeriph(pins)
		if err != nil {
			return nil, nil, err
		}
		drv = p
	}

	board := gpio.NewBoard(drv, wired)
	if err := board.Setup(); err != nil {
		return nil, nil, err
	}
	return board, sim, nil
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("bad configuration")
	}
	setupLogging(cfg)
	log.Info().Str("version", version).Msg("starting")

	if os.Geteuid() != 0 {
		log.Warn().Err(shared.ErrPrivilege).Msg("GPIO and serial access may fail")
	}

	// Outside clients are built before the board so a bad setting exits
	// while every output is still untouched.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("bad redis url")
		}
		redisClient = redis.NewClient(opt)
		defer redisClient.Close()
	}
	var ablyClient *ably.Realtime
	if cfg.AblyAPIKey != "" {
		ablyClient, err = ably.NewRealtime(ably.WithKey(cfg.AblyAPIKey))
		if err != nil {
			log.Fatal().Err(err).Msg("could not create ably client")
		}
		defer ablyClient.Close()
	}

	board, sim, err := openBoard(cfg)
	if err != nil {
		log.Fatal().Err(err).Bool("hardware_init", errors.Is(err, shared.ErrHardwareInit)).Msg("could not bring up the board")
	}
	defer func() {
		board.AllOff()
		if err := board.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing board")
		}
		log.Info().Msg("outputs off, exiting")
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Redis
	if redisClient != nil {
		gCtx = context.WithValue(gCtx, shared.RedisCtxKey{}, redisClient)
	}

	// Ably
	var sinks []announce.Sink
	if ablyClient != nil {
		gCtx = context.WithValue(gCtx, shared.AblyCtxKey{}, ablyClient)
		sinks = append(sinks, announce.NewAblySink(shared.ScoreboardChannel(gCtx, cfg.DeviceID)))
	}

	// NATS
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("ringin-"+cfg.DeviceID), nats.MaxReconnects(-1))
		if err != nil {
			log.Error().Err(err).Msg("nats unavailable, announcements not mirrored")
		} else {
			defer nc.Close()
			sinks = append(sinks, announce.NewNATSSink(nc, cfg.DeviceID))
		}
	}

	hub := announce.NewHub(64, sinks...)
	log.Info().Int("sinks", hub.Sinks()).Msg("announcements configured")
	g.Go(func() error { return hub.Run(gCtx) })

	clock := clockwork.NewRealClock()
	timer := delay.New(clock, cfg.Timing.DelayTick)
	display := countdown.New(board, cfg.GPIO.CountdownHardware)
	events := make(chan player.Event, 16)
	arbiter := round.NewArbiter()

	var machines []*player.Machine
	for _, p := range shared.Players() {
		button, _ := gpio.ButtonFor(p)
		presses := make(chan struct{}, 1)
		g.Go(func() error {
			return gpio.PollPresses(gCtx, clock, board, button, cfg.Timing.PollInterval, presses)
		})

		m := player.New(p, cfg.Player(), player.Deps{
			Timer:   timer,
			Display: display,
			Out:     board,
			Arbiter: arbiter,
			Events:  events,
			Presses: presses,
		})
		machines = append(machines, m)
		g.Go(func() error { return m.Run(gCtx) })
	}

	if !board.Has(gpio.OperatorInterrupt) {
		log.Info().Msg("no operator interrupt pin, console INTERRUPT only")
	}

	status := peer.NewStatusMailbox()
	controller := round.New(round.Config{
		DeviceID:     cfg.DeviceID,
		PollInterval: cfg.Timing.PollInterval,
	}, round.Deps{
		Clock:     clock,
		In:        board,
		Players:   machines,
		Events:    events,
		Status:    status,
		Announcer: hub,
		Arbiter:   arbiter,
	})
	g.Go(func() error { return controller.Run(gCtx) })

	// Serial link to the lightbar
	if cfg.Serial.Enabled {
		engine := peer.NewEngine(peer.Config{
			DeviceID:   cfg.DeviceID,
			Banner:     cfg.Serial.Banner,
			BackoffMin: cfg.Serial.BackoffMin,
			BackoffMax: cfg.Serial.BackoffMax,
		}, peer.SerialOpener{
			Path:        cfg.Serial.Path,
			Baud:        cfg.Serial.Baud,
			ReadTimeout: cfg.Serial.ReadTimeout,
		}, clock, status, controller, hub)
		g.Go(func() error { return engine.Run(gCtx) })
	}

	// Round journal
	if shared.RedisFrom(gCtx) != nil {
		g.Go(optional("journal", ticker.New(gCtx, cfg.DeviceID, cfg.JournalTick, controller)))
	}

	// Operator console listening for commands on the queue
	if cfg.AMQPURL != "" {
		h := worker.NewHandler(cfg.DeviceID, controller)
		g.Go(optional("console", worker.New(gCtx, cfg.AMQPURL, cfg.AMQPQueue, h)))
	}

	if cfg.MetricsAddr != "" {
		telemetry.SetBuildInfo(version, cfg.DeviceID)
		g.Go(optional("status server", telemetry.Serve(gCtx, cfg.MetricsAddr, controller)))
	}

	if sim != nil {
		log.Info().Msg("simulated board: 1-3 press buttons, e toggles the enabler, i interrupts")
		g.Go(func() error { return gpio.Keyboard(gCtx, os.Stdin, sim, 150*time.Millisecond) })
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("error group")
	}
}
