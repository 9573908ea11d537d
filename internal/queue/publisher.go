package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// Publisher sends events to RabbitMQ. Each publish dials its own connection
// so a broker outage never leaves the HTTP path holding a dead channel.
type Publisher struct {
	url         string
	dialTimeout time.Duration
	log         log.FieldLogger
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, l log.FieldLogger) *Publisher {
	return &Publisher{url: url, dialTimeout: 2 * time.Second, log: l}
}

// PublishSaleCompleted sends ev to the sale.completed queue.
func (p *Publisher) PublishSaleCompleted(ctx context.Context, ev SaleCompletedEvent) error {
	return p.publish(ctx, SaleCompletedQueue, ev)
}

// PublishTicketPurchased sends ev to the ticket.purchased queue.
func (p *Publisher) PublishTicketPurchased(ctx context.Context, ev TicketPurchasedEvent) error {
	return p.publish(ctx, TicketPurchasedQueue, ev)
}

func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.dialTimeout)})
	if err != nil {
		return errors.Wrap(err, "rabbitmq dial")
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "rabbitmq channel")
	}
	defer func() { _ = ch.Close() }()

	if err := declare(ch, queue); err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		return errors.Wrapf(err, "rabbitmq publish %s", queue)
	}
	p.log.WithField("queue", queue).Debug("event published")
	return nil
}

// declare makes sure the durable queue exists; declaring is idempotent.
func declare(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "queue declare %s", name)
	}
	return nil
}
