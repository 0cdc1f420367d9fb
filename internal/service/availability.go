package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/repository"
)

// AvailabilityRow is a catalog entry annotated with its remaining quota.
type AvailabilityRow struct {
	CategoryName   string    `json:"categoryName"`
	TicketCode     string    `json:"ticketCode"`
	TicketName     string    `json:"ticketName"`
	EventDate      time.Time `json:"eventDate"`
	PriceCents     int64     `json:"priceCents"`
	Price          float64   `json:"price"`
	RemainingQuota int       `json:"remainingQuota"`
}

// ListAvailable searches the catalog and annotates every row with its
// remaining quota.  All reads share one snapshot, so a multi-line booking
// committing concurrently is seen completely or not at all.
func (s *Service) ListAvailable(ctx context.Context, q repository.TicketQuery) ([]AvailabilityRow, error) {
	out := make([]AvailabilityRow, 0)
	err := s.store.WithSnapshot(ctx, func(tx *sql.Tx) error {
		tickets, err := s.tickets.SearchTx(ctx, tx, q)
		if err != nil {
			return fmt.Errorf("search tickets: %w", err)
		}
		cache := make(map[string]int, len(tickets))
		for _, t := range tickets {
			remaining, ok := cache[t.Code]
			if !ok {
				if remaining, err = s.remainingTx(ctx, tx, t); err != nil {
					return err
				}
				cache[t.Code] = remaining
			}
			out = append(out, AvailabilityRow{
				CategoryName:   t.Category,
				TicketCode:     t.Code,
				TicketName:     t.Name,
				EventDate:      t.EventDate,
				PriceCents:     t.PriceCents,
				Price:          t.Price(),
				RemainingQuota: remaining,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
