package model

import "time"

// Raffle sells numbered tickets until TotalTickets is reached.
type Raffle struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Description  *string   `db:"description" json:"description"`
	TotalTickets int       `db:"total_tickets" json:"totalTickets"`
	TicketPrice  Money     `db:"ticket_price_cents" json:"ticketPrice"`
	SoldTickets  int       `db:"sold_tickets" json:"soldTickets"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Remaining is the number of tickets still for sale.
func (r Raffle) Remaining() int { return r.TotalTickets - r.SoldTickets }

// Ticket is one purchased raffle entry. Numbers start at 1 and are unique
// within a raffle.
type Ticket struct {
	ID           string    `db:"id" json:"id"`
	RaffleID     string    `db:"raffle_id" json:"raffleId"`
	TicketNumber int       `db:"ticket_number" json:"ticketNumber"`
	BuyerName    *string   `db:"buyer_name" json:"buyerName"`
	BuyerEmail   *string   `db:"buyer_email" json:"buyerEmail"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// NewRaffle is the input for creating a raffle.
type NewRaffle struct {
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	TotalTickets *int    `json:"totalTickets"`
	TicketPrice  *Money  `json:"ticketPrice"`
}

// Buyer carries the optional contact details attached to a ticket.
type Buyer struct {
	Name  *string `json:"buyerName"`
	Email *string `json:"buyerEmail"`
}

// TicketResult is returned by a completed purchase.
type TicketResult struct {
	Ticket Ticket `json:"ticket"`
	Raffle Raffle `json:"raffle"`
}
