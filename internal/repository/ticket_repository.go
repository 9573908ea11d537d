package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/iliyamo/storefront/internal/model"
)

const ticketColumns = `id, raffle_id, ticket_number, buyer_name, buyer_email, created_at`

// TicketRepo writes the tickets table. Tickets are only ever touched inside
// the purchase or reset transaction, so it holds no handle of its own.
type TicketRepo struct{}

// NewTicketRepo returns a TicketRepo.
func NewTicketRepo() *TicketRepo { return &TicketRepo{} }

// CreateTx inserts a ticket inside tx. (raffle_id, ticket_number) is unique.
func (r *TicketRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, t *model.Ticket) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tickets (`+ticketColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.RaffleID, t.TicketNumber, t.BuyerName, t.BuyerEmail, t.CreatedAt,
	)
	return errors.Wrap(err, "insert ticket")
}

// DeleteAllTx removes every ticket.
func (r *TicketRepo) DeleteAllTx(ctx context.Context, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM tickets`)
	return errors.Wrap(err, "delete tickets")
}
