package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Publisher sends reservation events to RabbitMQ.  Each publish dials its
// own connection; events are low volume and this keeps the publisher free
// of reconnect state.  Errors are logged and returned so callers can
// ignore them without interrupting the request.
type Publisher struct {
	url string
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

// defaultDialTimeout bounds a dial when ctx carries no deadline.
const defaultDialTimeout = 5 * time.Second

// dial connects to the broker within ctx's deadline.  The deadline also
// covers the AMQP handshake.
func dial(ctx context.Context, url string) (*amqp.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := defaultDialTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// PublishReservationChanged publishes ev to the reservation.changed queue
// as a persistent JSON message.
func (p *Publisher) PublishReservationChanged(ctx context.Context, ev ReservationChangedEvent) error {
	conn, err := dial(ctx, p.url)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		ReservationChangedQueue, // name
		true,                    // durable
		false,                   // autoDelete
		false,                   // exclusive
		false,                   // noWait
		nil,                     // args
	); err != nil {
		log.Warn().Err(err).Msg("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", ReservationChangedQueue, false, false, pub); err != nil {
		log.Warn().Err(err).Msg("rabbitmq: publish failed")
		return err
	}
	return nil
}
