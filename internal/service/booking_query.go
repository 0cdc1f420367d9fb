package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/repository"
)

// BookedTicket is one line of a booking as shown to its owner.
type BookedTicket struct {
	TicketCode string    `json:"ticketCode"`
	TicketName string    `json:"ticketName"`
	EventDate  time.Time `json:"eventDate"`
	Quantity   int       `json:"quantity"`
	PriceCents int64     `json:"priceCents"`
	Price      float64   `json:"price"`
}

// BookedCategory groups booked lines of one category.
type BookedCategory struct {
	CategoryName        string         `json:"categoryName"`
	QuantityPerCategory int            `json:"quantityPerCategory"`
	SummaryPriceCents   int64          `json:"summaryPriceCents"`
	SummaryPrice        float64        `json:"summaryPrice"`
	Tickets             []BookedTicket `json:"tickets"`
}

// BookingView is the read model returned by GetBooking.
type BookingView struct {
	BookingID         string           `json:"bookingId"`
	CreatedAt         time.Time        `json:"createdAt"`
	Categories        []BookedCategory `json:"categories"`
	PriceSummaryCents int64            `json:"priceSummaryCents"`
	PriceSummary      float64          `json:"priceSummary"`
}

// GetBooking returns every line of a booking grouped by category.
func (s *Service) GetBooking(ctx context.Context, bookingID string) (*BookingView, error) {
	if strings.TrimSpace(bookingID) == "" {
		return nil, newError(KindValidation, "", "booking id must not be empty")
	}

	var view *BookingView
	err := s.store.WithSnapshot(ctx, func(tx *sql.Tx) error {
		rows, err := s.ledger.ListByBookingTx(ctx, tx, bookingID)
		if err != nil {
			return fmt.Errorf("list booking %s: %w", bookingID, err)
		}
		if len(rows) == 0 {
			return newError(KindNotFound, bookingID, "booking %s not found", bookingID)
		}
		catalog := make(map[string]model.TicketType, len(rows))
		for _, r := range rows {
			t, err := s.tickets.GetByCodeTx(ctx, tx, r.TicketCode)
			if err != nil {
				if errors.Is(err, repository.ErrTicketNotFound) {
					return newError(KindNotFound, r.TicketCode, "ticket code %s is not registered", r.TicketCode)
				}
				return fmt.Errorf("load ticket %s: %w", r.TicketCode, err)
			}
			catalog[r.TicketCode] = *t
		}
		v := buildBookingView(bookingID, rows, catalog)
		view = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func buildBookingView(bookingID string, rows []model.Reservation, catalog map[string]model.TicketType) BookingView {
	v := BookingView{
		BookingID:  bookingID,
		Categories: make([]BookedCategory, 0),
	}
	if len(rows) > 0 {
		v.CreatedAt = rows[0].BookingCreatedAt
	}
	idx := make(map[string]int)
	for _, r := range rows {
		t := catalog[r.TicketCode]
		i, ok := idx[t.Category]
		if !ok {
			i = len(v.Categories)
			idx[t.Category] = i
			v.Categories = append(v.Categories, BookedCategory{
				CategoryName: t.Category,
				Tickets:      make([]BookedTicket, 0),
			})
		}
		cat := &v.Categories[i]
		cat.QuantityPerCategory += r.Quantity
		cat.SummaryPriceCents += t.PriceCents * int64(r.Quantity)
		cat.Tickets = append(cat.Tickets, BookedTicket{
			TicketCode: t.Code,
			TicketName: t.Name,
			EventDate:  t.EventDate,
			Quantity:   r.Quantity,
			PriceCents: t.PriceCents,
			Price:      t.Price(),
		})
	}
	for i := range v.Categories {
		cat := &v.Categories[i]
		cat.SummaryPrice = centsToAmount(cat.SummaryPriceCents)
		v.PriceSummaryCents += cat.SummaryPriceCents
	}
	v.PriceSummary = centsToAmount(v.PriceSummaryCents)
	return v
}
