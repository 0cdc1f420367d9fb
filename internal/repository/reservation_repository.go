package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// ReservationRepo provides the ledger operations: bookings and the
// reservation lines that belong to them.  Every method runs inside the
// caller's transaction; the caller must commit or roll back.  All timestamps
// are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// CreateBookingTx inserts the bookings row that groups reservation lines.
func (r *ReservationRepo) CreateBookingTx(ctx context.Context, tx *sql.Tx, id string, createdAt time.Time) error {
	const q = `INSERT INTO bookings (id, created_at) VALUES (?, ?)`
	_, err := tx.ExecContext(ctx, q, id, createdAt.UTC())
	return err
}

// LockBookingTx locks the bookings row for id and returns it.  It returns
// ErrBookingNotFound when the booking does not exist.
func (r *ReservationRepo) LockBookingTx(ctx context.Context, tx *sql.Tx, id string) (*model.Booking, error) {
	const q = `SELECT id, created_at FROM bookings WHERE id = ? FOR UPDATE`
	var b model.Booking
	if err := tx.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

// DeleteBookingTx removes the bookings row.  Deleting an absent booking is a
// no-op.
func (r *ReservationRepo) DeleteBookingTx(ctx context.Context, tx *sql.Tx, id string) error {
	const q = `DELETE FROM bookings WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, id)
	return err
}

// CreateBulkTx inserts multiple reservation rows in a single statement.
// Passing an empty slice has no effect and returns nil.
func (r *ReservationRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, rows []model.Reservation) error {
	if len(rows) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO reservations (booking_id, ticket_code, quantity, booking_created_at) VALUES `)
	args := make([]any, 0, len(rows)*4)
	for i, res := range rows {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?)")
		args = append(args, res.BookingID, res.TicketCode, res.Quantity, res.BookingCreatedAt.UTC())
	}
	_, err := tx.ExecContext(ctx, b.String(), args...)
	return err
}

// GetTx returns the reservation line for (bookingID, code) or
// ErrReservationNotFound.
func (r *ReservationRepo) GetTx(ctx context.Context, tx *sql.Tx, bookingID, code string) (*model.Reservation, error) {
	const q = `SELECT booking_id, ticket_code, quantity, booking_created_at
               FROM reservations WHERE booking_id = ? AND ticket_code = ?`
	var res model.Reservation
	err := tx.QueryRowContext(ctx, q, bookingID, code).Scan(
		&res.BookingID, &res.TicketCode, &res.Quantity, &res.BookingCreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &res, nil
}

// ListByBookingTx returns all lines of a booking ordered by ticket code.  An
// unknown booking yields an empty slice.
func (r *ReservationRepo) ListByBookingTx(ctx context.Context, tx *sql.Tx, bookingID string) ([]model.Reservation, error) {
	const q = `SELECT booking_id, ticket_code, quantity, booking_created_at
               FROM reservations WHERE booking_id = ? ORDER BY ticket_code`
	rows, err := tx.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.BookingID, &res.TicketCode, &res.Quantity, &res.BookingCreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateQuantityTx sets the quantity of an existing line.  Quantity must be
// at least 1; removing a line goes through DeleteTx.
func (r *ReservationRepo) UpdateQuantityTx(ctx context.Context, tx *sql.Tx, bookingID, code string, qty int) error {
	const q = `UPDATE reservations SET quantity = ? WHERE booking_id = ? AND ticket_code = ?`
	res, err := tx.ExecContext(ctx, q, qty, bookingID, code)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrReservationNotFound)
}

// DeleteTx removes a single reservation line.
func (r *ReservationRepo) DeleteTx(ctx context.Context, tx *sql.Tx, bookingID, code string) error {
	const q = `DELETE FROM reservations WHERE booking_id = ? AND ticket_code = ?`
	res, err := tx.ExecContext(ctx, q, bookingID, code)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrReservationNotFound)
}

// CountByBookingTx returns the number of lines left in a booking.
func (r *ReservationRepo) CountByBookingTx(ctx context.Context, tx *sql.Tx, bookingID string) (int, error) {
	const q = `SELECT COUNT(*) FROM reservations WHERE booking_id = ?`
	var n int
	if err := tx.QueryRowContext(ctx, q, bookingID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// SumQuantityTx returns the booked quantity of a ticket code across all
// bookings.
func (r *ReservationRepo) SumQuantityTx(ctx context.Context, tx *sql.Tx, code string) (int, error) {
	const q = `SELECT COALESCE(SUM(quantity), 0) FROM reservations WHERE ticket_code = ?`
	var n int
	if err := tx.QueryRowContext(ctx, q, code).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// requireAffected maps "no row matched" to notFound.  The DSN sets
// clientFoundRows=true so MySQL reports matched rows; an UPDATE that keeps
// the current quantity still counts as one.
func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
