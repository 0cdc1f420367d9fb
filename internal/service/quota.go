package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/repository"
)

// remainingQuota is catalog quota minus what the ledger holds.
func remainingQuota(total, booked int) int {
	return total - booked
}

// remainingTx recomputes the remaining quota of t inside tx.  Writers call it
// only after locking t's catalog row, so the sum cannot change underneath
// them before commit.
func (s *Service) remainingTx(ctx context.Context, tx *sql.Tx, t model.TicketType) (int, error) {
	booked, err := s.ledger.SumQuantityTx(ctx, tx, t.Code)
	if err != nil {
		return 0, fmt.Errorf("sum booked quantity for %s: %w", t.Code, err)
	}
	return remainingQuota(t.TotalQuota, booked), nil
}

// RemainingQuota returns the remaining quota of code.  An unknown code yields
// 0 without an error; callers that care must check existence separately.
func (s *Service) RemainingQuota(ctx context.Context, code string) (int, error) {
	var remaining int
	err := s.store.WithSnapshot(ctx, func(tx *sql.Tx) error {
		t, err := s.tickets.GetByCodeTx(ctx, tx, code)
		if err != nil {
			if errors.Is(err, repository.ErrTicketNotFound) {
				remaining = 0
				return nil
			}
			return fmt.Errorf("load ticket %s: %w", code, err)
		}
		remaining, err = s.remainingTx(ctx, tx, *t)
		return err
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}
