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

// RevocationResult is the state of a line and its ticket after a revocation.
// QuantityLeft is 0 when the line was removed.
type RevocationResult struct {
	TicketCode     string `json:"ticketCode"`
	TicketName     string `json:"ticketName"`
	CategoryName   string `json:"categoryName"`
	QuantityLeft   int    `json:"quantityLeft"`
	RemainingQuota int    `json:"remainingQuota"`
}

// RevokeTicket releases qty tickets of code from bookingID.  The booking row
// is locked first, then the ticket row, so the reservation cannot change
// between the existence checks and the write.
func (s *Service) RevokeTicket(ctx context.Context, bookingID, code string, qty int) (*RevocationResult, error) {
	if strings.TrimSpace(bookingID) == "" {
		return nil, newError(KindValidation, "", "booking id must not be empty")
	}
	if strings.TrimSpace(code) == "" {
		return nil, newError(KindValidation, bookingID, "ticket code must not be empty")
	}
	if qty <= 0 {
		return nil, newError(KindValidation, code, "quantity for ticket %s must be greater than 0", code)
	}
	now := s.clock.Now()

	var res RevocationResult
	var removed bool
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.ledger.LockBookingTx(ctx, tx, bookingID); err != nil {
			if errors.Is(err, repository.ErrBookingNotFound) {
				return newError(KindNotFound, bookingID, "booking %s not found", bookingID)
			}
			return fmt.Errorf("lock booking %s: %w", bookingID, err)
		}
		cur, err := s.ledger.GetTx(ctx, tx, bookingID, code)
		if err != nil {
			if errors.Is(err, repository.ErrReservationNotFound) {
				return newError(KindNotFound, code, "ticket %s is not part of booking %s", code, bookingID)
			}
			return fmt.Errorf("load reservation %s/%s: %w", bookingID, code, err)
		}
		catalog, err := s.tickets.LockTx(ctx, tx, []string{code})
		if err != nil {
			return fmt.Errorf("lock ticket %s: %w", code, err)
		}
		t, ok := catalog[code]
		if !ok {
			return newError(KindNotFound, code, "ticket code %s is not registered", code)
		}
		if qty > cur.Quantity {
			return newError(KindValidation, code, "cannot revoke %d of ticket %s, only %d booked", qty, code, cur.Quantity)
		}

		left := cur.Quantity - qty
		if left == 0 {
			err = s.ledger.DeleteTx(ctx, tx, bookingID, code)
		} else {
			err = s.ledger.UpdateQuantityTx(ctx, tx, bookingID, code, left)
		}
		if err != nil {
			return fmt.Errorf("revoke reservation %s/%s: %w", bookingID, code, err)
		}

		if removed, err = s.dropIfEmptyTx(ctx, tx, bookingID); err != nil {
			return fmt.Errorf("clean up booking %s: %w", bookingID, err)
		}
		remaining, err := s.remainingTx(ctx, tx, t)
		if err != nil {
			return err
		}
		res = RevocationResult{
			TicketCode:     t.Code,
			TicketName:     t.Name,
			CategoryName:   t.Category,
			QuantityLeft:   left,
			RemainingQuota: remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, queue.RoutingTicketRevoked, queue.TicketRevokedEvent{
		BookingID:      bookingID,
		TicketCode:     code,
		Quantity:       qty,
		QuantityLeft:   res.QuantityLeft,
		BookingRemoved: removed,
		RevokedAt:      now.Format(time.RFC3339),
	})
	return &res, nil
}
