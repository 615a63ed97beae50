// Package queue_publisher provides functions to publish auth events to RabbitMQ.
// Errors are logged and returned to allow callers to ignore failures without
// interrupting the main request flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/techblog-auth/internal/queue"
)

const dialTimeout = 2 * time.Second

// Publisher sends AuthEvents to a durable queue.  Every call dials its own
// connection, so a broker outage only ever costs the event, never the request.
type Publisher struct {
	URL   string
	Queue string
}

func New(url, queue string) *Publisher {
	return &Publisher{URL: url, Queue: queue}
}

// Publish publishes ev to the configured queue. The function attempts to be
// robust and to never panic; any error is logged and returned so the caller
// can choose to ignore it. Messages are marked as persistent.
func (p *Publisher) Publish(ctx context.Context, ev q.AuthEvent) error {
	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		log.Warnf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warnf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		p.Queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		log.Warnf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		log.Warnf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Timestamp:    ev.OccurredAt,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.Queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		log.Warnf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}

// Nop drops every event.  It stands in when EVENTS_ENABLED is off.
type Nop struct{}

func (Nop) Publish(context.Context, q.AuthEvent) error { return nil }
