// Package worker consumes operator console commands from an AMQP queue.
package worker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// New dials url and hands every delivery on queue to h until ctx is done.
func New(ctx context.Context, url, queue string, h *Handler) func() error {
	return func() error {
		conn, err := amqp.Dial(url)
		if err != nil {
			return fmt.Errorf("error connecting to console queue: %w", err)
		}
		defer conn.Close()
		log.Info().Msg("connected to console queue")

		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open a channel: %w", err)
		}
		defer ch.Close()

		msgs, err := ch.Consume(
			queue, // queue
			"",    // consumer
			true,  // auto-ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to consume messages: %w", err)
		}
		log.Info().Str("queue", queue).Msg("listening for console commands")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("console worker stopping")
				return nil
			case d, ok := <-msgs:
				if !ok {
					return fmt.Errorf("console queue %s closed", queue)
				}
				h.Handle(ctx, d.Body)
			}
		}
	}
}
