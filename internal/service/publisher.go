// Package service provides functions to publish domain events to RabbitMQ.
// Errors are logged and returned to allow callers to ignore failures without
// interrupting the main request flow.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	q "github.com/iliyamo/discord-age-gate/internal/queue"
)

// Publisher sends events to the broker at url. A nil Publisher drops
// everything, which is what an empty AMQP_URL configures.
type Publisher struct {
	url string
	log logrus.FieldLogger
}

// NewPublisher returns nil when url is empty.
func NewPublisher(url string, log logrus.FieldLogger) *Publisher {
	if url == "" {
		return nil
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{url: url, log: log.WithField("component", "publisher")}
}

// PublishVerificationCompleted publishes ev to the "verification.completed"
// queue as a persistent message. Each call dials its own connection.
func (p *Publisher) PublishVerificationCompleted(ctx context.Context, ev q.VerificationCompletedEvent) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if err := p.publish(ctx, q.VerificationQueue, body); err != nil {
		p.log.WithError(err).WithField("token", ev.Token).Warn("publish verification event failed")
		return err
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, queue string, body []byte) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(5 * time.Second),
	})
	if err != nil {
		return errors.Wrap(err, "dial broker")
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open channel")
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		return errors.Wrap(err, "declare queue")
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	return errors.Wrap(ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		pub,
	), "publish")
}
