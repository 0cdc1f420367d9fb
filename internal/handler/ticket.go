// Package handler exposes the ticket engines over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/repository"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

// TicketService is what the handlers need from the engines.
type TicketService interface {
	ListAvailable(ctx context.Context, q repository.TicketQuery) ([]service.AvailabilityRow, error)
	CreateBooking(ctx context.Context, lines []service.BookingLine) (*service.BookingResult, error)
	GetBooking(ctx context.Context, bookingID string) (*service.BookingView, error)
	AmendBooking(ctx context.Context, bookingID string, lines []service.AmendLine) ([]service.AmendmentResult, error)
	RevokeTicket(ctx context.Context, bookingID, code string, qty int) (*service.RevocationResult, error)
}

// TicketHandler serves the /v1 ticket routes.
type TicketHandler struct {
	svc TicketService
}

// NewTicketHandler panics on a nil service.
func NewTicketHandler(svc TicketService) *TicketHandler {
	if svc == nil {
		panic("nil service passed to NewTicketHandler")
	}
	return &TicketHandler{svc: svc}
}

// ticketItem is one request line.  kodeTiket is accepted as an alias of
// ticketCode.
type ticketItem struct {
	TicketCode string `json:"ticketCode"`
	KodeTiket  string `json:"kodeTiket"`
	Quantity   int    `json:"quantity"`
}

func (i ticketItem) code() string {
	if s := strings.TrimSpace(i.TicketCode); s != "" {
		return s
	}
	return strings.TrimSpace(i.KodeTiket)
}

type ticketsRequest struct {
	Tickets []ticketItem `json:"tickets"`
}

func bindTickets(c echo.Context) (ticketsRequest, error) {
	var req ticketsRequest
	if err := c.Bind(&req); err != nil {
		return req, badRequest("", "request body is not valid JSON")
	}
	return req, nil
}

type availableTicket struct {
	CategoryName string  `json:"categoryName"`
	TicketCode   string  `json:"ticketCode"`
	TicketName   string  `json:"ticketName"`
	EventDate    string  `json:"eventDate"`
	Price        float64 `json:"price"`
	PriceCents   int64   `json:"priceCents"`
	Quota        int     `json:"quota"`
}

// GetAvailable handles GET /v1/get-available-ticket.
func (h *TicketHandler) GetAvailable(c echo.Context) error {
	q, err := parseAvailabilityQuery(c)
	if err != nil {
		return err
	}
	rows, err := h.svc.ListAvailable(c.Request().Context(), q)
	if err != nil {
		return err
	}
	out := make([]availableTicket, 0, len(rows))
	for _, r := range rows {
		out = append(out, availableTicket{
			CategoryName: r.CategoryName,
			TicketCode:   r.TicketCode,
			TicketName:   r.TicketName,
			EventDate:    r.EventDate.Format(EventDateLayout),
			Price:        r.Price,
			PriceCents:   r.PriceCents,
			Quota:        r.RemainingQuota,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// BookTicket handles POST /v1/book-ticket.
func (h *TicketHandler) BookTicket(c echo.Context) error {
	req, err := bindTickets(c)
	if err != nil {
		return err
	}
	lines := make([]service.BookingLine, 0, len(req.Tickets))
	for _, t := range req.Tickets {
		lines = append(lines, service.BookingLine{TicketCode: t.code(), Quantity: t.Quantity})
	}
	res, err := h.svc.CreateBooking(c.Request().Context(), lines)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/v1/get-booked-ticket/"+res.BookingID)
	return c.JSON(http.StatusCreated, res)
}

type bookedTicket struct {
	TicketCode string  `json:"ticketCode"`
	TicketName string  `json:"ticketName"`
	EventDate  string  `json:"eventDate"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

type bookedCategory struct {
	QuantityPerCategory int            `json:"quantityPerCategory"`
	CategoryName        string         `json:"categoryName"`
	SummaryPrice        float64        `json:"summaryPrice"`
	Tickets             []bookedTicket `json:"tickets"`
}

type bookedTicketResponse struct {
	BookingID            string           `json:"bookingId"`
	PriceSummary         float64          `json:"priceSummary"`
	TicketsPerCategories []bookedCategory `json:"ticketsPerCategories"`
}

// GetBookedTicket handles GET /v1/get-booked-ticket/:bookingId.
func (h *TicketHandler) GetBookedTicket(c echo.Context) error {
	view, err := h.svc.GetBooking(c.Request().Context(), c.Param("bookingId"))
	if err != nil {
		return err
	}
	out := bookedTicketResponse{
		BookingID:            view.BookingID,
		PriceSummary:         view.PriceSummary,
		TicketsPerCategories: make([]bookedCategory, 0, len(view.Categories)),
	}
	for _, cat := range view.Categories {
		bc := bookedCategory{
			QuantityPerCategory: cat.QuantityPerCategory,
			CategoryName:        cat.CategoryName,
			SummaryPrice:        cat.SummaryPrice,
			Tickets:             make([]bookedTicket, 0, len(cat.Tickets)),
		}
		for _, t := range cat.Tickets {
			bc.Tickets = append(bc.Tickets, bookedTicket{
				TicketCode: t.TicketCode,
				TicketName: t.TicketName,
				EventDate:  t.EventDate.Format(EventDateLayout),
				Quantity:   t.Quantity,
				Price:      t.Price,
			})
		}
		out.TicketsPerCategories = append(out.TicketsPerCategories, bc)
	}
	return c.JSON(http.StatusOK, out)
}

// EditBookedTicket handles PUT /v1/edit-booked-ticket/:bookingId.
func (h *TicketHandler) EditBookedTicket(c echo.Context) error {
	req, err := bindTickets(c)
	if err != nil {
		return err
	}
	lines := make([]service.AmendLine, 0, len(req.Tickets))
	for _, t := range req.Tickets {
		if t.code() == "" {
			return badRequest("", "ticket code must not be empty")
		}
		lines = append(lines, service.AmendLine{TicketCode: t.code(), Quantity: t.Quantity})
	}
	res, err := h.svc.AmendBooking(c.Request().Context(), c.Param("bookingId"), lines)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// RevokeTicket handles DELETE /v1/revoke-ticket/:bookingId/:ticketCode/:qty.
func (h *TicketHandler) RevokeTicket(c echo.Context) error {
	qty, err := strconv.Atoi(c.Param("qty"))
	if err != nil {
		return badRequest("qty", "qty must be an integer, got %q", c.Param("qty"))
	}
	res, err := h.svc.RevokeTicket(c.Request().Context(), c.Param("bookingId"), c.Param("ticketCode"), qty)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
