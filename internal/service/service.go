// Package service implements the ticket inventory engines: booking,
// amendment, revocation and the read paths over the catalog and ledger.
// Every mutating operation runs as one transaction; rule violations are
// returned as *Error values and roll the transaction back.
package service

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/repository"
)

// TxRunner is the transaction boundary.  WithTx is used by writers,
// WithSnapshot by readers that need a consistent view across queries.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	WithSnapshot(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// TicketRepository is the read side of the catalog.
type TicketRepository interface {
	GetByCodeTx(ctx context.Context, tx *sql.Tx, code string) (*model.TicketType, error)
	LockTx(ctx context.Context, tx *sql.Tx, codes []string) (map[string]model.TicketType, error)
	SearchTx(ctx context.Context, tx *sql.Tx, q repository.TicketQuery) ([]model.TicketType, error)
}

// ReservationRepository is the ledger.
type ReservationRepository interface {
	CreateBookingTx(ctx context.Context, tx *sql.Tx, id string, createdAt time.Time) error
	LockBookingTx(ctx context.Context, tx *sql.Tx, id string) (*model.Booking, error)
	DeleteBookingTx(ctx context.Context, tx *sql.Tx, id string) error
	CreateBulkTx(ctx context.Context, tx *sql.Tx, rows []model.Reservation) error
	GetTx(ctx context.Context, tx *sql.Tx, bookingID, code string) (*model.Reservation, error)
	ListByBookingTx(ctx context.Context, tx *sql.Tx, bookingID string) ([]model.Reservation, error)
	UpdateQuantityTx(ctx context.Context, tx *sql.Tx, bookingID, code string, qty int) error
	DeleteTx(ctx context.Context, tx *sql.Tx, bookingID, code string) error
	CountByBookingTx(ctx context.Context, tx *sql.Tx, bookingID string) (int, error)
	SumQuantityTx(ctx context.Context, tx *sql.Tx, code string) (int, error)
}

// Publisher delivers domain events after a transaction commits.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }

// Service wires the engines to their collaborators.
type Service struct {
	store   TxRunner
	tickets TicketRepository
	ledger  ReservationRepository
	clock   clock.Clock
	newID   func() string
	events  Publisher
}

// Option customises a Service.
type Option func(*Service)

// WithPublisher sends committed changes to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithIDGenerator overrides how new booking ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New constructs a Service.  All dependencies must be non-nil.
func New(store TxRunner, tickets TicketRepository, ledger ReservationRepository, clk clock.Clock, opts ...Option) *Service {
	if store == nil || tickets == nil || ledger == nil || clk == nil {
		panic("nil dependency passed to service.New")
	}
	s := &Service{
		store:   store,
		tickets: tickets,
		ledger:  ledger,
		clock:   clk,
		newID:   uuid.NewString,
		events:  noopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// publish is best effort: the transaction has already committed, so a broker
// failure is logged and never reported to the caller.
func (s *Service) publish(ctx context.Context, routingKey string, event any) {
	if err := s.events.Publish(ctx, routingKey, event); err != nil {
		log.Printf("service: publish %s failed: %v", routingKey, err)
	}
}

// dropIfEmptyTx deletes the booking when its last line is gone and reports
// whether it did.
func (s *Service) dropIfEmptyTx(ctx context.Context, tx *sql.Tx, bookingID string) (bool, error) {
	n, err := s.ledger.CountByBookingTx(ctx, tx, bookingID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if err := s.ledger.DeleteBookingTx(ctx, tx, bookingID); err != nil {
		return false, err
	}
	return true, nil
}
