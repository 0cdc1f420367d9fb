package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/repository"
)

type resKey struct{ booking, code string }

// memDB is an in-memory catalog and ledger.  Transactions copy the ledger
// and restore it when fn fails, which is enough to observe atomicity.
type memDB struct {
	mu           sync.Mutex
	tickets      map[string]model.TicketType
	bookings     map[string]time.Time
	reservations map[resKey]model.Reservation

	// failOn makes the named ledger method return errStorage once.
	failOn string
}

var errStorage = errors.New("storage unavailable")

func newMemDB(tickets ...model.TicketType) *memDB {
	db := &memDB{
		tickets:      make(map[string]model.TicketType),
		bookings:     make(map[string]time.Time),
		reservations: make(map[resKey]model.Reservation),
	}
	for _, t := range tickets {
		db.tickets[t.Code] = t
	}
	return db
}

func (m *memDB) run(fn func(tx *sql.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bookings := make(map[string]time.Time, len(m.bookings))
	for k, v := range m.bookings {
		bookings[k] = v
	}
	reservations := make(map[resKey]model.Reservation, len(m.reservations))
	for k, v := range m.reservations {
		reservations[k] = v
	}
	if err := fn(nil); err != nil {
		m.bookings = bookings
		m.reservations = reservations
		return err
	}
	return nil
}

func (m *memDB) WithTx(_ context.Context, fn func(tx *sql.Tx) error) error { return m.run(fn) }

func (m *memDB) WithSnapshot(_ context.Context, fn func(tx *sql.Tx) error) error { return m.run(fn) }

func (m *memDB) fail(op string) error {
	if m.failOn == op {
		m.failOn = ""
		return errStorage
	}
	return nil
}

// seed inserts a committed booking directly.
func (m *memDB) seed(bookingID string, at time.Time, lines map[string]int) {
	m.bookings[bookingID] = at
	for code, qty := range lines {
		m.reservations[resKey{bookingID, code}] = model.Reservation{
			BookingID: bookingID, TicketCode: code, Quantity: qty, BookingCreatedAt: at,
		}
	}
}

func (m *memDB) booked(code string) int {
	n := 0
	for k, r := range m.reservations {
		if k.code == code {
			n += r.Quantity
		}
	}
	return n
}

// memTickets implements TicketRepository.
type memTickets struct{ db *memDB }

func (r memTickets) GetByCodeTx(_ context.Context, _ *sql.Tx, code string) (*model.TicketType, error) {
	t, ok := r.db.tickets[code]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	return &t, nil
}

func (r memTickets) LockTx(_ context.Context, _ *sql.Tx, codes []string) (map[string]model.TicketType, error) {
	if err := r.db.fail("LockTx"); err != nil {
		return nil, err
	}
	out := make(map[string]model.TicketType)
	for _, c := range repository.SortedUnique(codes) {
		if t, ok := r.db.tickets[c]; ok {
			out[c] = t
		}
	}
	return out, nil
}

func (r memTickets) SearchTx(_ context.Context, _ *sql.Tx, q repository.TicketQuery) ([]model.TicketType, error) {
	out := make([]model.TicketType, 0)
	for _, t := range r.db.tickets {
		if q.Category != "" && !strings.Contains(strings.ToLower(t.Category), strings.ToLower(q.Category)) {
			continue
		}
		if q.MaxPriceCents != nil && t.PriceCents > *q.MaxPriceCents {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// memLedger implements ReservationRepository.
type memLedger struct{ db *memDB }

func (l memLedger) CreateBookingTx(_ context.Context, _ *sql.Tx, id string, createdAt time.Time) error {
	if err := l.db.fail("CreateBookingTx"); err != nil {
		return err
	}
	l.db.bookings[id] = createdAt
	return nil
}

func (l memLedger) LockBookingTx(_ context.Context, _ *sql.Tx, id string) (*model.Booking, error) {
	createdAt, ok := l.db.bookings[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	return &model.Booking{ID: id, CreatedAt: createdAt}, nil
}

func (l memLedger) DeleteBookingTx(_ context.Context, _ *sql.Tx, id string) error {
	delete(l.db.bookings, id)
	return nil
}

func (l memLedger) CreateBulkTx(_ context.Context, _ *sql.Tx, rows []model.Reservation) error {
	if err := l.db.fail("CreateBulkTx"); err != nil {
		return err
	}
	for _, r := range rows {
		k := resKey{r.BookingID, r.TicketCode}
		if _, dup := l.db.reservations[k]; dup {
			return errors.New("duplicate reservation key")
		}
		l.db.reservations[k] = r
	}
	return nil
}

func (l memLedger) GetTx(_ context.Context, _ *sql.Tx, bookingID, code string) (*model.Reservation, error) {
	r, ok := l.db.reservations[resKey{bookingID, code}]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	return &r, nil
}

func (l memLedger) ListByBookingTx(_ context.Context, _ *sql.Tx, bookingID string) ([]model.Reservation, error) {
	out := make([]model.Reservation, 0)
	for k, r := range l.db.reservations {
		if k.booking == bookingID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketCode < out[j].TicketCode })
	return out, nil
}

func (l memLedger) UpdateQuantityTx(_ context.Context, _ *sql.Tx, bookingID, code string, qty int) error {
	if err := l.db.fail("UpdateQuantityTx"); err != nil {
		return err
	}
	k := resKey{bookingID, code}
	r, ok := l.db.reservations[k]
	if !ok {
		return repository.ErrReservationNotFound
	}
	r.Quantity = qty
	l.db.reservations[k] = r
	return nil
}

func (l memLedger) DeleteTx(_ context.Context, _ *sql.Tx, bookingID, code string) error {
	k := resKey{bookingID, code}
	if _, ok := l.db.reservations[k]; !ok {
		return repository.ErrReservationNotFound
	}
	delete(l.db.reservations, k)
	return nil
}

func (l memLedger) CountByBookingTx(_ context.Context, _ *sql.Tx, bookingID string) (int, error) {
	n := 0
	for k := range l.db.reservations {
		if k.booking == bookingID {
			n++
		}
	}
	return n, nil
}

func (l memLedger) SumQuantityTx(_ context.Context, _ *sql.Tx, code string) (int, error) {
	return l.db.booked(code), nil
}

// mockPublisher records Publish calls through testify's mock.
type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, key string, ev any) error {
	args := m.Called(ctx, key, ev)
	return args.Error(0)
}

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func ticket(code, name, category string, priceCents int64, quota int, eventDate time.Time) model.TicketType {
	return model.TicketType{
		Code: code, Name: name, Category: category,
		PriceCents: priceCents, TotalQuota: quota, EventDate: eventDate,
	}
}

func newTestService(db *memDB, opts ...Option) *Service {
	seq := 0
	ids := WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("B%d", seq)
	})
	return New(db, memTickets{db}, memLedger{db}, clock.NewFixed(testNow), append([]Option{ids}, opts...)...)
}
