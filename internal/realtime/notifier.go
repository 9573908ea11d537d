// Package realtime pushes stock and ticket counters to browsers over PubNub.
package realtime

import (
	"context"

	"github.com/pkg/errors"
	pubnub "github.com/pubnub/go/v7"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/model"
)

// Channels clients subscribe to.
const (
	ProductsChannel = "storefront.products"
	RafflesChannel  = "storefront.raffles"
)

type sendFunc func(ctx context.Context, channel string, msg map[string]any) error

// Notifier publishes an update message after each sale or ticket purchase.
type Notifier struct {
	send sendFunc
	log  log.FieldLogger
}

// New returns a PubNub-backed notifier. Without a publish key every call is
// a no-op.
func New(cfg config.PubNubConfig, l log.FieldLogger) *Notifier {
	n := &Notifier{log: l}
	if !cfg.Enabled() {
		return n
	}

	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pn := pubnub.NewPubNub(pnCfg)

	n.send = func(ctx context.Context, channel string, msg map[string]any) error {
		_, status, err := pn.PublishWithContext(ctx).
			Channel(channel).
			Message(msg).
			Execute()
		if err != nil {
			return errors.Wrapf(err, "pubnub publish %s (status %d)", channel, status.StatusCode)
		}
		return nil
	}
	return n
}

// ProductUpdated announces a product's new inventory.
func (n *Notifier) ProductUpdated(ctx context.Context, p model.Product) error {
	return n.publish(ctx, ProductsChannel, map[string]any{
		"type":      "inventory_update",
		"productId": p.ID,
		"inventory": p.Inventory,
		"updatedAt": p.UpdatedAt,
	})
}

// RaffleUpdated announces a raffle's sold ticket count.
func (n *Notifier) RaffleUpdated(ctx context.Context, r model.Raffle) error {
	return n.publish(ctx, RafflesChannel, map[string]any{
		"type":         "tickets_update",
		"raffleId":     r.ID,
		"soldTickets":  r.SoldTickets,
		"totalTickets": r.TotalTickets,
		"remaining":    r.Remaining(),
		"isActive":     r.IsActive,
	})
}

func (n *Notifier) publish(ctx context.Context, channel string, msg map[string]any) error {
	if n == nil || n.send == nil {
		return nil
	}
	if err := n.send(ctx, channel, msg); err != nil {
		return err
	}
	n.log.WithField("channel", channel).Debug("realtime update sent")
	return nil
}
