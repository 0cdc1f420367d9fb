package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/queue"
	"github.com/iliyamo/ticket-reservation/internal/repository"
)

// BookingLine is one requested (ticket code, quantity) pair.
type BookingLine struct {
	TicketCode string `json:"ticketCode"`
	Quantity   int    `json:"quantity"`
}

// TicketSummary describes a booked ticket type in a booking result.
type TicketSummary struct {
	TicketCode string  `json:"ticketCode"`
	TicketName string  `json:"ticketName"`
	PriceCents int64   `json:"priceCents"`
	Price      float64 `json:"price"`
}

// CategorySummary groups the lines of a booking by catalog category.
type CategorySummary struct {
	CategoryName      string          `json:"categoryName"`
	SummaryPriceCents int64           `json:"summaryPriceCents"`
	SummaryPrice      float64         `json:"summaryPrice"`
	Tickets           []TicketSummary `json:"tickets"`
}

// BookingResult is returned by CreateBooking.
type BookingResult struct {
	BookingID            string            `json:"bookingId"`
	Tickets              []TicketSummary   `json:"tickets"`
	TicketsPerCategories []CategorySummary `json:"ticketsPerCategories"`
	PriceSummaryCents    int64             `json:"priceSummaryCents"`
	PriceSummary         float64           `json:"priceSummary"`
	TotalTickets         int               `json:"totalTickets"`
}

// validatedLine is a request line that passed every booking rule.
type validatedLine struct {
	Ticket   model.TicketType
	Quantity int
}

// validateBooking is phase one of CreateBooking.  It checks every line in
// input order against the locked catalog entries and their remaining quota,
// and touches no state.  Lines repeating a ticket code draw on the same
// remaining quota, so a request can never book more than what is left.
func validateBooking(lines []BookingLine, catalog map[string]model.TicketType, remaining map[string]int, now time.Time) ([]validatedLine, error) {
	if len(lines) == 0 {
		return nil, newError(KindValidation, "", "tickets must not be empty")
	}
	left := make(map[string]int, len(remaining))
	for code, n := range remaining {
		left[code] = n
	}
	out := make([]validatedLine, 0, len(lines))
	for _, line := range lines {
		code := line.TicketCode
		if strings.TrimSpace(code) == "" {
			return nil, newError(KindValidation, "", "ticket code must not be empty")
		}
		if line.Quantity <= 0 {
			return nil, newError(KindValidation, code, "quantity for ticket %s must be greater than 0", code)
		}
		t, ok := catalog[code]
		if !ok {
			return nil, newError(KindNotFound, code, "ticket code %s is not registered", code)
		}
		avail := left[code]
		if avail <= 0 {
			return nil, newError(KindQuotaExhausted, code, "quota for ticket %s is exhausted", code)
		}
		if line.Quantity > avail {
			return nil, newError(KindQuotaExceeded, code, "quantity %d exceeds the remaining quota %d for ticket %s", line.Quantity, avail, code)
		}
		if !t.EventDate.After(now) {
			return nil, newError(KindEventExpired, code, "event date of ticket %s must be later than the booking date", code)
		}
		left[code] = avail - line.Quantity
		out = append(out, validatedLine{Ticket: t, Quantity: line.Quantity})
	}
	return out, nil
}

// reservationRows is phase two's write set: one row per distinct ticket code
// in first-appearance order, quantities of repeated codes merged.
func reservationRows(bookingID string, lines []validatedLine, bookedAt time.Time) []model.Reservation {
	idx := make(map[string]int, len(lines))
	rows := make([]model.Reservation, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.Ticket.Code]; ok {
			rows[i].Quantity += l.Quantity
			continue
		}
		idx[l.Ticket.Code] = len(rows)
		rows = append(rows, model.Reservation{
			BookingID:        bookingID,
			TicketCode:       l.Ticket.Code,
			Quantity:         l.Quantity,
			BookingCreatedAt: bookedAt,
		})
	}
	return rows
}

func summarizeBooking(bookingID string, lines []validatedLine) BookingResult {
	res := BookingResult{
		BookingID:            bookingID,
		Tickets:              make([]TicketSummary, 0, len(lines)),
		TicketsPerCategories: make([]CategorySummary, 0),
	}
	catIdx := make(map[string]int)
	for _, l := range lines {
		ts := TicketSummary{
			TicketCode: l.Ticket.Code,
			TicketName: l.Ticket.Name,
			PriceCents: l.Ticket.PriceCents,
			Price:      l.Ticket.Price(),
		}
		res.Tickets = append(res.Tickets, ts)

		i, ok := catIdx[l.Ticket.Category]
		if !ok {
			i = len(res.TicketsPerCategories)
			catIdx[l.Ticket.Category] = i
			res.TicketsPerCategories = append(res.TicketsPerCategories, CategorySummary{
				CategoryName: l.Ticket.Category,
				Tickets:      make([]TicketSummary, 0),
			})
		}
		cat := &res.TicketsPerCategories[i]
		cat.SummaryPriceCents += l.Ticket.PriceCents * int64(l.Quantity)
		cat.Tickets = append(cat.Tickets, ts)

		res.TotalTickets += l.Quantity
	}
	for i := range res.TicketsPerCategories {
		cat := &res.TicketsPerCategories[i]
		cat.SummaryPrice = centsToAmount(cat.SummaryPriceCents)
		res.PriceSummaryCents += cat.SummaryPriceCents
	}
	res.PriceSummary = centsToAmount(res.PriceSummaryCents)
	return res
}

func centsToAmount(cents int64) float64 {
	return float64(cents) / 100.0
}

// CreateBooking books every line or nothing.  The booking timestamp is taken
// once and used both for the rows and for the event-date check.
func (s *Service) CreateBooking(ctx context.Context, lines []BookingLine) (*BookingResult, error) {
	if len(lines) == 0 {
		return nil, newError(KindValidation, "", "tickets must not be empty")
	}
	now := s.clock.Now()
	bookingID := s.newID()

	codes := make([]string, 0, len(lines))
	for _, l := range lines {
		codes = append(codes, l.TicketCode)
	}

	var validated []validatedLine
	var rows []model.Reservation
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		catalog, err := s.tickets.LockTx(ctx, tx, codes)
		if err != nil {
			return fmt.Errorf("lock tickets: %w", err)
		}
		remaining := make(map[string]int, len(catalog))
		for _, code := range repository.SortedUnique(codes) {
			t, ok := catalog[code]
			if !ok {
				continue
			}
			if remaining[code], err = s.remainingTx(ctx, tx, t); err != nil {
				return err
			}
		}

		validated, err = validateBooking(lines, catalog, remaining, now)
		if err != nil {
			return err
		}

		rows = reservationRows(bookingID, validated, now)
		if err := s.ledger.CreateBookingTx(ctx, tx, bookingID, now); err != nil {
			return fmt.Errorf("create booking %s: %w", bookingID, err)
		}
		if err := s.ledger.CreateBulkTx(ctx, tx, rows); err != nil {
			return fmt.Errorf("create reservations for booking %s: %w", bookingID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := summarizeBooking(bookingID, validated)

	ev := queue.BookingCreatedEvent{
		BookingID:         bookingID,
		Tickets:           make([]queue.TicketLine, 0, len(rows)),
		TotalTickets:      res.TotalTickets,
		PriceSummaryCents: res.PriceSummaryCents,
		BookedAt:          now.Format(time.RFC3339),
	}
	for _, r := range rows {
		ev.Tickets = append(ev.Tickets, queue.TicketLine{TicketCode: r.TicketCode, Quantity: r.Quantity})
	}
	s.publish(ctx, queue.RoutingBookingCreated, ev)

	return &res, nil
}
