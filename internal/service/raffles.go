package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
)

// CreateRaffle validates and stores a new raffle. Raffles start active with
// no tickets sold.
func (s *Storefront) CreateRaffle(ctx context.Context, in model.NewRaffle) (*model.Raffle, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, invalid("name", "name is required")
	case len(name) > maxNameLen:
		return nil, invalid("name", "name must be at most %d characters", maxNameLen)
	case in.TotalTickets == nil:
		return nil, invalid("totalTickets", "totalTickets is required")
	case *in.TotalTickets < 1:
		return nil, invalid("totalTickets", "totalTickets must be at least 1")
	case *in.TotalTickets > maxCount:
		return nil, invalid("totalTickets", "totalTickets must be at most %d", maxCount)
	case in.TicketPrice == nil:
		return nil, invalid("ticketPrice", "ticketPrice is required")
	case *in.TicketPrice <= 0:
		return nil, invalid("ticketPrice", "ticketPrice must be greater than 0")
	}

	now := s.clock()
	r := &model.Raffle{
		ID:           s.newID(),
		Name:         name,
		Description:  optional(in.Description),
		TotalTickets: *in.TotalTickets,
		TicketPrice:  *in.TicketPrice,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.raffles.Create(ctx, r); err != nil {
		return nil, s.fail("create_raffle", "Error creating raffle", err, log.Fields{"name": name})
	}
	s.log.WithFields(log.Fields{"raffle_id": r.ID, "total_tickets": r.TotalTickets}).Info("raffle created")
	return r, nil
}

// ListActiveRaffles returns active raffles, most recently created first.
func (s *Storefront) ListActiveRaffles(ctx context.Context) ([]model.Raffle, error) {
	raffles, err := s.raffles.ListActive(ctx)
	if err != nil {
		return nil, s.fail("list_raffles", "Error fetching raffles", err, nil)
	}
	return raffles, nil
}

// SetRaffleActive opens or closes a raffle for ticket sales.
func (s *Storefront) SetRaffleActive(ctx context.Context, raffleID string, active bool) error {
	err := s.raffles.SetActive(ctx, raffleID, active, s.clock())
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Entity: "Raffle", ID: raffleID}
	}
	if err != nil {
		return s.fail("set_raffle_active", "Error updating raffle", err, log.Fields{"raffle_id": raffleID})
	}
	s.log.WithFields(log.Fields{"raffle_id": raffleID, "active": active}).Info("raffle status changed")
	return nil
}

// BuyTicket sells the next ticket of a raffle. Ticket numbers are handed out
// in commit order starting at 1, and the sold counter and the ticket row
// commit together.
func (s *Storefront) BuyTicket(ctx context.Context, raffleID string, buyer model.Buyer) (*model.TicketResult, error) {
	name, email, err := cleanBuyer(buyer)
	if err != nil {
		return nil, err
	}

	var res model.TicketResult
	err = s.withRetry(ctx, "buy_ticket", func() error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			now := s.clock()
			ok, err := s.raffles.IncrementSoldTx(ctx, tx, raffleID, now)
			if err != nil {
				return err
			}
			r, err := s.raffles.GetTx(ctx, tx, raffleID)
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Entity: "Raffle", ID: raffleID}
			}
			if err != nil {
				return err
			}
			if !ok {
				if !r.IsActive {
					return ErrRaffleInactive
				}
				return ErrSoldOut
			}

			t := model.Ticket{
				ID:           s.newID(),
				RaffleID:     r.ID,
				TicketNumber: r.SoldTickets,
				BuyerName:    name,
				BuyerEmail:   email,
				CreatedAt:    now,
			}
			if err := s.tickets.CreateTx(ctx, tx, &t); err != nil {
				return err
			}
			res = model.TicketResult{Ticket: t, Raffle: *r}
			return nil
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSoldOut):
			metrics.Rejections.WithLabelValues("buy_ticket", "sold_out").Inc()
		case errors.Is(err, ErrRaffleInactive):
			metrics.Rejections.WithLabelValues("buy_ticket", "raffle_inactive").Inc()
		}
		return nil, s.fail("buy_ticket", "Error purchasing ticket", err, log.Fields{"raffle_id": raffleID})
	}

	s.afterTicket(ctx, &res)
	return &res, nil
}

func (s *Storefront) afterTicket(ctx context.Context, res *model.TicketResult) {
	metrics.Tickets.Inc()

	entry := s.log.WithFields(log.Fields{
		"ticket_id":     res.Ticket.ID,
		"raffle_id":     res.Raffle.ID,
		"ticket_number": res.Ticket.TicketNumber,
		"sold":          res.Raffle.SoldTickets,
		"total":         res.Raffle.TotalTickets,
	})
	entry.Info("ticket purchased")

	if s.events == nil && s.notifier == nil {
		return
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	if s.events != nil {
		if err := s.events.PublishTicketPurchased(ctx, queue.NewTicketPurchasedEvent(res.Ticket, res.Raffle)); err != nil {
			entry.WithError(err).Warn("publish ticket event failed")
		}
	}
	if s.notifier != nil {
		if err := s.notifier.RaffleUpdated(ctx, res.Raffle); err != nil {
			entry.WithError(err).Warn("realtime raffle update failed")
		}
	}
}

func cleanBuyer(b model.Buyer) (name, email *string, err error) {
	name = optional(b.Name)
	if name != nil && len(*name) > maxNameLen {
		return nil, nil, invalid("buyerName", "buyerName must be at most %d characters", maxNameLen)
	}
	email = optional(b.Email)
	if email != nil {
		if len(*email) > maxNameLen {
			return nil, nil, invalid("buyerEmail", "buyerEmail must be at most %d characters", maxNameLen)
		}
		addr, perr := mail.ParseAddress(*email)
		if perr != nil || addr.Address != *email {
			return nil, nil, invalid("buyerEmail", "buyerEmail is not a valid email address")
		}
	}
	return name, email, nil
}

// optional trims s and maps blank to nil.
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
