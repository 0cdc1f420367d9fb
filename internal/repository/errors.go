// Package repository holds the MySQL access code for the ticket catalog and
// the reservation ledger.  Sentinel errors defined here let the service
// layer tell "row absent" apart from storage failures.
package repository

import "errors"

// ErrTicketNotFound is returned when a ticket code is not in the catalog.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrBookingNotFound is returned when a booking id has no bookings row.
var ErrBookingNotFound = errors.New("booking not found")

// ErrReservationNotFound is returned when a (booking id, ticket code) pair
// has no reservation row.
var ErrReservationNotFound = errors.New("reservation not found")
