package handler

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/repository"
)

// EventDateLayout is how event dates are rendered in responses.
const EventDateLayout = "02-01-2006 15:04"

// dateLayouts are tried in order when parsing date query parameters.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	EventDateLayout,
	"02-01-2006",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// param returns the first non-empty query parameter among names.  The
// English name comes first; the rest are accepted for older clients.
func param(c echo.Context, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(c.QueryParam(n)); v != "" {
			return v
		}
	}
	return ""
}

// parseAvailabilityQuery reads filters, ordering and pagination for the
// availability listing.
func parseAvailabilityQuery(c echo.Context) (repository.TicketQuery, error) {
	q := repository.TicketQuery{
		Category:   param(c, "categoryName", "namaKategori"),
		TicketCode: param(c, "ticketCode", "kodeTiket"),
		Name:       param(c, "ticketName", "namaTiket"),
		OrderBy:    param(c, "orderBy"),
		Descending: strings.EqualFold(param(c, "orderState"), "desc"),
	}

	if s := param(c, "price", "harga"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			return q, badRequest("price", "price must be a non-negative number, got %q", s)
		}
		cents := int64(math.Round(f * 100))
		q.MaxPriceCents = &cents
	}
	if s := param(c, "minEventDate", "tanggalEventMinimal"); s != "" {
		t, ok := parseDate(s)
		if !ok {
			return q, badRequest("minEventDate", "minEventDate %q is not a valid date", s)
		}
		q.EventFrom = &t
	}
	if s := param(c, "maxEventDate", "tanggalEventMaksimal"); s != "" {
		t, ok := parseDate(s)
		if !ok {
			return q, badRequest("maxEventDate", "maxEventDate %q is not a valid date", s)
		}
		q.EventTo = &t
	}

	var err error
	if q.Page, err = intParam(c, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = intParam(c, "pageSize"); err != nil {
		return q, err
	}
	return q, nil
}

// intParam parses an optional integer; absent means 0.
func intParam(c echo.Context, name string) (int, error) {
	s := param(c, name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, badRequest(name, "%s must be an integer, got %q", name, s)
	}
	return n, nil
}
