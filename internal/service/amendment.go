package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/queue"
	"github.com/iliyamo/ticket-reservation/internal/repository"
)

// AmendLine sets the quantity of one line of an existing booking.  Quantity
// 0 removes the line.
type AmendLine struct {
	TicketCode string `json:"ticketCode"`
	Quantity   int    `json:"quantity"`
}

// AmendmentResult reports the catalog state of a ticket after its line was
// amended.
type AmendmentResult struct {
	TicketCode     string `json:"ticketCode"`
	TicketName     string `json:"ticketName"`
	CategoryName   string `json:"categoryName"`
	RemainingQuota int    `json:"remainingQuota"`
}

// AmendBooking applies lines to bookingID one at a time, in order.  A later
// line naming the same ticket code sees the quantity written by an earlier
// one.  Any failure rolls back every line.
func (s *Service) AmendBooking(ctx context.Context, bookingID string, lines []AmendLine) ([]AmendmentResult, error) {
	if strings.TrimSpace(bookingID) == "" {
		return nil, newError(KindValidation, "", "booking id must not be empty")
	}
	if len(lines) == 0 {
		return nil, newError(KindValidation, bookingID, "tickets must not be empty")
	}
	now := s.clock.Now()

	codes := make([]string, 0, len(lines))
	for _, l := range lines {
		codes = append(codes, l.TicketCode)
	}

	var results []AmendmentResult
	var removed bool
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		results = make([]AmendmentResult, 0, len(lines))

		if _, err := s.ledger.LockBookingTx(ctx, tx, bookingID); err != nil {
			if errors.Is(err, repository.ErrBookingNotFound) {
				return newError(KindNotFound, bookingID, "booking %s not found", bookingID)
			}
			return fmt.Errorf("lock booking %s: %w", bookingID, err)
		}
		catalog, err := s.tickets.LockTx(ctx, tx, codes)
		if err != nil {
			return fmt.Errorf("lock tickets: %w", err)
		}

		for _, line := range lines {
			code := line.TicketCode
			cur, err := s.ledger.GetTx(ctx, tx, bookingID, code)
			if err != nil {
				if errors.Is(err, repository.ErrReservationNotFound) {
					return newError(KindNotFound, code, "ticket %s is not part of booking %s", code, bookingID)
				}
				return fmt.Errorf("load reservation %s/%s: %w", bookingID, code, err)
			}
			if line.Quantity < 0 {
				return newError(KindValidation, code, "quantity for ticket %s must not be negative", code)
			}
			t, ok := catalog[code]
			if !ok {
				return newError(KindNotFound, code, "ticket code %s is not registered", code)
			}
			remaining, err := s.remainingTx(ctx, tx, t)
			if err != nil {
				return err
			}
			if headroom := remaining + cur.Quantity; line.Quantity > headroom {
				return newError(KindQuotaExceeded, code, "quantity %d exceeds the available quota %d for ticket %s", line.Quantity, headroom, code)
			}

			if line.Quantity == 0 {
				err = s.ledger.DeleteTx(ctx, tx, bookingID, code)
			} else {
				err = s.ledger.UpdateQuantityTx(ctx, tx, bookingID, code, line.Quantity)
			}
			if err != nil {
				return fmt.Errorf("amend reservation %s/%s: %w", bookingID, code, err)
			}

			after, err := s.remainingTx(ctx, tx, t)
			if err != nil {
				return err
			}
			results = append(results, AmendmentResult{
				TicketCode:     t.Code,
				TicketName:     t.Name,
				CategoryName:   t.Category,
				RemainingQuota: after,
			})
		}

		removed, err = s.dropIfEmptyTx(ctx, tx, bookingID)
		if err != nil {
			return fmt.Errorf("clean up booking %s: %w", bookingID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := queue.BookingAmendedEvent{
		BookingID:      bookingID,
		Tickets:        make([]queue.TicketLine, 0, len(lines)),
		BookingRemoved: removed,
		AmendedAt:      now.Format(time.RFC3339),
	}
	for _, l := range lines {
		ev.Tickets = append(ev.Tickets, queue.TicketLine{TicketCode: l.TicketCode, Quantity: l.Quantity})
	}
	s.publish(ctx, queue.RoutingBookingAmended, ev)

	return results, nil
}
