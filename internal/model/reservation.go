package model

import "time"

// Booking groups the reservation lines created by one booking request.  A
// booking row only exists while at least one reservation references it.
type Booking struct {
	ID        string    // bookings.id
	CreatedAt time.Time // bookings.created_at
}

// Reservation is one line of a booking: a quantity of a single ticket code.
// (BookingID, TicketCode) is unique and Quantity is at least 1 while the row
// exists.  BookingCreatedAt is set once when the booking is created and is
// not touched by amendments or revocations.
type Reservation struct {
	BookingID        string    // reservations.booking_id
	TicketCode       string    // reservations.ticket_code
	Quantity         int       // reservations.quantity
	BookingCreatedAt time.Time // reservations.booking_created_at
}
