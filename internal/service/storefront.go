// Package service implements the storefront operations: the product catalog
// with its point-of-sale sell path, and raffles with numbered ticket sales.
package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
)

// EventPublisher receives domain events after a mutation has committed.
type EventPublisher interface {
	PublishSaleCompleted(ctx context.Context, ev queue.SaleCompletedEvent) error
	PublishTicketPurchased(ctx context.Context, ev queue.TicketPurchasedEvent) error
}

// Notifier pushes live stock and ticket counts to connected clients.
type Notifier interface {
	ProductUpdated(ctx context.Context, p model.Product) error
	RaffleUpdated(ctx context.Context, r model.Raffle) error
}

// Storefront is safe for concurrent use. All shared state lives in the
// database; SellProduct and BuyTicket serialize per product or raffle row.
type Storefront struct {
	db       *sqlx.DB
	products *repository.ProductRepo
	sales    *repository.SaleRepo
	raffles  *repository.RaffleRepo
	tickets  *repository.TicketRepo

	now        func() time.Time
	newID      func() string
	maxRetries int
	log        log.FieldLogger
	events     EventPublisher
	notifier   Notifier
}

// Option configures a Storefront.
type Option func(*Storefront)

// WithClock replaces time.Now; timestamps are always stored in UTC.
func WithClock(now func() time.Time) Option { return func(s *Storefront) { s.now = now } }

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(f func() string) Option { return func(s *Storefront) { s.newID = f } }

// WithMaxRetries bounds how often a conflicting transaction is re-run.
func WithMaxRetries(n int) Option { return func(s *Storefront) { s.maxRetries = n } }

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option { return func(s *Storefront) { s.log = l } }

// WithEventPublisher enables domain events.
func WithEventPublisher(p EventPublisher) Option { return func(s *Storefront) { s.events = p } }

// WithNotifier enables realtime updates.
func WithNotifier(n Notifier) Option { return func(s *Storefront) { s.notifier = n } }

// New builds a Storefront over a migrated database.
func New(db *sqlx.DB, opts ...Option) *Storefront {
	s := &Storefront{
		db:         db,
		products:   repository.NewProductRepo(db),
		sales:      repository.NewSaleRepo(db),
		raffles:    repository.NewRaffleRepo(db),
		tickets:    repository.NewTicketRepo(),
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
		maxRetries: 5,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks that the store is reachable.
func (s *Storefront) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storefront) clock() time.Time { return s.now().UTC() }

// inTx runs fn in a transaction and commits when it returns nil.
func (s *Storefront) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	committed = true
	return nil
}

// withRetry re-runs op while it fails with a transient conflict. Business
// errors and other store failures stop immediately.
func (s *Storefront) withRetry(ctx context.Context, name string, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 5 * time.Millisecond
	eb.MaxInterval = 200 * time.Millisecond
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.maxRetries)), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !repository.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		metrics.TxRetries.WithLabelValues(name).Inc()
		s.log.WithError(err).WithFields(log.Fields{"op": name, "wait": wait}).Debug("retrying conflicting transaction")
	})
}

// fail passes business errors through and turns everything else into a
// StoreError after logging the cause. op labels metrics and logs; message is
// what the client sees.
func (s *Storefront) fail(op, message string, err error, fields log.Fields) error {
	if isDomainError(err) {
		return err
	}
	metrics.StoreFailures.WithLabelValues(op).Inc()
	s.log.WithError(err).WithFields(fields).WithField("op", op).Error(message)
	return &StoreError{Message: message, Err: err}
}

// detached keeps request values but survives cancellation, for side effects
// that run after a commit.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}
