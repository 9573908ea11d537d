package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// ActivityLogName is the file the consumer appends to inside its directory.
const ActivityLogName = "activity.log"

// Consumer drains the sale and ticket queues into a JSON-lines activity log.
type Consumer struct {
	url string
	dir string
	log log.FieldLogger

	activity *log.Logger
}

// NewConsumer returns a consumer writing to dir/activity.log.
func NewConsumer(url, dir string, l log.FieldLogger) *Consumer {
	return &Consumer{url: url, dir: dir, log: l}
}

// Run connects, consumes and reconnects with a doubling delay until ctx is
// cancelled. Messages that cannot be handled are rejected without requeue.
func (c *Consumer) Run(ctx context.Context) error {
	f, err := c.openActivityLog()
	if err != nil {
		return err
	}
	defer f.Close()

	delay := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).WithField("retry_in", delay).Warn("activity consumer: dial failed")
			if !sleep(ctx, delay) {
				return nil
			}
			if delay < 30*time.Second {
				delay *= 2
			}
			continue
		}
		delay = time.Second // reset after successful connect

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.WithError(err).Warn("activity consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "channel open")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("activity consumer: set QoS failed")
	}

	sales, err := c.subscribe(ch, SaleCompletedQueue)
	if err != nil {
		return err
	}
	tickets, err := c.subscribe(ch, TicketPurchasedQueue)
	if err != nil {
		return err
	}

	for {
		var (
			d  amqp.Delivery
			ok bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok = <-sales:
		case d, ok = <-tickets:
		}
		if !ok {
			return errors.New("deliveries channel closed")
		}
		if err := c.handleMessage(d.RoutingKey, d.Body); err != nil {
			c.log.WithError(err).WithField("queue", d.RoutingKey).Error("activity consumer: handle message failed")
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
}

func (c *Consumer) subscribe(ch *amqp.Channel, queue string) (<-chan amqp.Delivery, error) {
	if err := declare(ch, queue); err != nil {
		return nil, err
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "consume %s", queue)
	}
	return msgs, nil
}

// openActivityLog creates the directory and opens the append-only log.
func (c *Consumer) openActivityLog() (*os.File, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir activity log dir")
	}
	f, err := os.OpenFile(filepath.Join(c.dir, ActivityLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open activity log")
	}
	l := log.New()
	l.SetOutput(f)
	l.SetFormatter(&log.JSONFormatter{})
	c.activity = l
	return f, nil
}

// handleMessage writes one line per event, keyed by the queue it came from.
func (c *Consumer) handleMessage(queue string, body []byte) error {
	switch queue {
	case SaleCompletedQueue:
		var ev SaleCompletedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return errors.Wrap(err, "unmarshal sale event")
		}
		c.activity.WithFields(log.Fields{
			"event":          queue,
			"sale_id":        ev.SaleID,
			"product_id":     ev.ProductID,
			"product":        ev.ProductName,
			"quantity":       ev.Quantity,
			"total_cents":    ev.TotalCents,
			"inventory_left": ev.InventoryLeft,
			"at":             ev.CompletedAt,
		}).Info("Sale completed")
	case TicketPurchasedQueue:
		var ev TicketPurchasedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return errors.Wrap(err, "unmarshal ticket event")
		}
		c.activity.WithFields(log.Fields{
			"event":         queue,
			"ticket_id":     ev.TicketID,
			"raffle_id":     ev.RaffleID,
			"raffle":        ev.RaffleName,
			"ticket_number": ev.TicketNumber,
			"buyer":         ev.BuyerName,
			"sold":          ev.SoldTickets,
			"total":         ev.TotalTickets,
			"remaining":     ev.Remaining,
			"at":            ev.PurchasedAt,
		}).Info("Ticket purchased")
	default:
		return errors.Errorf("unexpected queue %q", queue)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
