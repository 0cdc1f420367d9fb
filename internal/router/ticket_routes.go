package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/handler"
	"github.com/iliyamo/ticket-reservation/internal/middleware"
)

// TicketOptions configures the middleware around the ticket routes.  Zero
// values disable the corresponding layer.
type TicketOptions struct {
	// JWTSecret enables bearer authentication on mutating routes.
	JWTSecret string
	// Cache serves availability listings and is invalidated by writes.
	Cache *middleware.ResponseCache
	// RateLimit guards mutating routes.
	RateLimit echo.MiddlewareFunc
}

// RegisterTickets registers the /v1 ticket routes.  Reads are public;
// booking, amendment and revocation go through optional authentication, the
// rate limiter (keyed by the authenticated subject when there is one) and
// cache invalidation, in that order.
func RegisterTickets(e *echo.Echo, h *handler.TicketHandler, opts TicketOptions) {
	v1 := e.Group("/v1")

	v1.GET("/get-available-ticket", h.GetAvailable, opts.Cache.Middleware())
	v1.GET("/get-booked-ticket/:bookingId", h.GetBookedTicket)

	var writes []echo.MiddlewareFunc
	if opts.JWTSecret != "" {
		writes = append(writes,
			middleware.JWTAuth(opts.JWTSecret),
			middleware.RequireRole("CUSTOMER", "ADMIN"),
		)
	}
	if opts.RateLimit != nil {
		writes = append(writes, opts.RateLimit)
	}
	writes = append(writes, opts.Cache.InvalidateOnSuccess())

	v1.POST("/book-ticket", h.BookTicket, writes...)
	v1.PUT("/edit-booked-ticket/:bookingId", h.EditBookedTicket, writes...)
	v1.DELETE("/revoke-ticket/:bookingId/:ticketCode/:qty", h.RevokeTicket, writes...)
}
