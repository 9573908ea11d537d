package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/iliyamo/storefront/internal/model"
)

const raffleColumns = `id, name, description, total_tickets, ticket_price_cents, sold_tickets, is_active, created_at, updated_at`

// RaffleRepo provides access to the raffles table.
type RaffleRepo struct {
	db *sqlx.DB
}

// NewRaffleRepo returns a RaffleRepo bound to db.
func NewRaffleRepo(db *sqlx.DB) *RaffleRepo { return &RaffleRepo{db: db} }

// Create inserts a new raffle row.
func (r *RaffleRepo) Create(ctx context.Context, rf *model.Raffle) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO raffles (`+raffleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rf.ID, rf.Name, rf.Description, rf.TotalTickets, rf.TicketPrice, rf.SoldTickets, rf.IsActive, rf.CreatedAt, rf.UpdatedAt,
	)
	return errors.Wrap(err, "insert raffle")
}

// ListActive returns active raffles, newest first.
func (r *RaffleRepo) ListActive(ctx context.Context) ([]model.Raffle, error) {
	raffles := []model.Raffle{}
	err := r.db.SelectContext(ctx, &raffles,
		`SELECT `+raffleColumns+` FROM raffles WHERE is_active = ? ORDER BY created_at DESC, id DESC`, true)
	return raffles, errors.Wrap(err, "list raffles")
}

// GetTx loads one raffle inside tx or returns ErrNotFound.
func (r *RaffleRepo) GetTx(ctx context.Context, tx *sqlx.Tx, id string) (*model.Raffle, error) {
	var rf model.Raffle
	err := tx.GetContext(ctx, &rf, `SELECT `+raffleColumns+` FROM raffles WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(errors.Wrap(err, "get raffle"))
	}
	return &rf, nil
}

// IncrementSoldTx claims the next ticket of an active raffle that still has
// tickets left. It reports false when the guard did not match; GetTx tells
// the caller whether the raffle is missing, inactive or sold out.
func (r *RaffleRepo) IncrementSoldTx(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE raffles SET sold_tickets = sold_tickets + 1, updated_at = ?
		 WHERE id = ? AND is_active = ? AND sold_tickets < total_tickets`,
		now, id, true,
	)
	if err != nil {
		return false, errors.Wrap(err, "increment sold tickets")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "increment sold tickets rows")
	}
	return n == 1, nil
}

// SetActive opens or closes a raffle. Returns ErrNotFound for unknown ids.
func (r *RaffleRepo) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE raffles SET is_active = ?, updated_at = ? WHERE id = ?`, active, now, id)
	if err != nil {
		return errors.Wrap(err, "set raffle active")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "set raffle active rows")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAllTx removes every raffle. Tickets must be deleted first.
func (r *RaffleRepo) DeleteAllTx(ctx context.Context, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM raffles`)
	return errors.Wrap(err, "delete raffles")
}
