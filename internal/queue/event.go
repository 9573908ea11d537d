// Package queue defines the storefront's domain events and moves them over
// RabbitMQ.
package queue

import (
	"time"

	"github.com/iliyamo/storefront/internal/model"
)

// Queue names; each event type has its own durable queue.
const (
	SaleCompletedQueue   = "sale.completed"
	TicketPurchasedQueue = "ticket.purchased"
)

// SaleCompletedEvent is published when a sale commits. It carries enough for
// consumers to log or report without querying the database.
type SaleCompletedEvent struct {
	SaleID        string `json:"sale_id"`
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	Quantity      int    `json:"quantity"`
	TotalCents    int64  `json:"total_cents"`
	InventoryLeft int    `json:"inventory_left"`
	CompletedAt   string `json:"completed_at"`
}

// NewSaleCompletedEvent builds the event for a committed sale.
func NewSaleCompletedEvent(s model.Sale, p model.Product) SaleCompletedEvent {
	return SaleCompletedEvent{
		SaleID:        s.ID,
		ProductID:     p.ID,
		ProductName:   p.Name,
		Quantity:      s.Quantity,
		TotalCents:    int64(s.Total),
		InventoryLeft: p.Inventory,
		CompletedAt:   s.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// TicketPurchasedEvent is published when a ticket purchase commits.
type TicketPurchasedEvent struct {
	TicketID     string `json:"ticket_id"`
	RaffleID     string `json:"raffle_id"`
	RaffleName   string `json:"raffle_name"`
	TicketNumber int    `json:"ticket_number"`
	BuyerName    string `json:"buyer_name,omitempty"`
	BuyerEmail   string `json:"buyer_email,omitempty"`
	SoldTickets  int    `json:"sold_tickets"`
	TotalTickets int    `json:"total_tickets"`
	Remaining    int    `json:"remaining"`
	PurchasedAt  string `json:"purchased_at"`
}

// NewTicketPurchasedEvent builds the event for a committed ticket.
func NewTicketPurchasedEvent(t model.Ticket, r model.Raffle) TicketPurchasedEvent {
	ev := TicketPurchasedEvent{
		TicketID:     t.ID,
		RaffleID:     r.ID,
		RaffleName:   r.Name,
		TicketNumber: t.TicketNumber,
		SoldTickets:  r.SoldTickets,
		TotalTickets: r.TotalTickets,
		Remaining:    r.Remaining(),
		PurchasedAt:  t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.BuyerName != nil {
		ev.BuyerName = *t.BuyerName
	}
	if t.BuyerEmail != nil {
		ev.BuyerEmail = *t.BuyerEmail
	}
	return ev
}
