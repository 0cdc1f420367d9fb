// Package queue defines the domain events published to RabbitMQ after a
// ledger change commits, together with the publisher and the audit-log
// consumer.
package queue

// Routing keys on the tickets exchange.
const (
	RoutingBookingCreated = "booking.created"
	RoutingBookingAmended = "booking.amended"
	RoutingTicketRevoked  = "ticket.revoked"
)

// TicketLine is a (ticket code, quantity) pair carried by events.
type TicketLine struct {
	TicketCode string `json:"ticket_code"`
	Quantity   int    `json:"quantity"`
}

// BookingCreatedEvent is published when a booking commits.  It carries
// enough for downstream consumers to log or notify without reading the
// ledger.
type BookingCreatedEvent struct {
	BookingID         string       `json:"booking_id"`
	Tickets           []TicketLine `json:"tickets"`
	TotalTickets      int          `json:"total_tickets"`
	PriceSummaryCents int64        `json:"price_summary_cents"`
	BookedAt          string       `json:"booked_at"`
}

// BookingAmendedEvent is published after an amendment commits.  Quantity 0
// marks a removed line; BookingRemoved is set when no lines are left.
type BookingAmendedEvent struct {
	BookingID      string       `json:"booking_id"`
	Tickets        []TicketLine `json:"tickets"`
	BookingRemoved bool         `json:"booking_removed"`
	AmendedAt      string       `json:"amended_at"`
}

// TicketRevokedEvent is published after a revocation commits.
type TicketRevokedEvent struct {
	BookingID      string `json:"booking_id"`
	TicketCode     string `json:"ticket_code"`
	Quantity       int    `json:"quantity"`
	QuantityLeft   int    `json:"quantity_left"`
	BookingRemoved bool   `json:"booking_removed"`
	RevokedAt      string `json:"revoked_at"`
}
