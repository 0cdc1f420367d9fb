package model

import "time"

// TicketType is a catalog entry.  The catalog is maintained outside this
// service; bookings only read it.  Quota is a flat counter, not a seat map.
//
// Fields:
//  Code       – unique ticket code (tickets.ticket_code).
//  Name       – display name.
//  Category   – category used to group booking summaries.
//  PriceCents – unit price in cents.
//  TotalQuota – number of tickets that may ever be booked.
//  EventDate  – when the event takes place (UTC).
type TicketType struct {
	Code       string    // tickets.ticket_code
	Name       string    // tickets.name
	Category   string    // tickets.category
	PriceCents int64     // tickets.price_cents
	TotalQuota int       // tickets.quota
	EventDate  time.Time // tickets.event_date
}

// Price returns the unit price as a decimal amount.
func (t TicketType) Price() float64 {
	return float64(t.PriceCents) / 100.0
}
