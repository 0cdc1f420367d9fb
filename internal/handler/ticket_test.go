package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-reservation/internal/repository"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

type mockService struct{ mock.Mock }

func (m *mockService) ListAvailable(ctx context.Context, q repository.TicketQuery) ([]service.AvailabilityRow, error) {
	args := m.Called(ctx, q)
	rows, _ := args.Get(0).([]service.AvailabilityRow)
	return rows, args.Error(1)
}

func (m *mockService) CreateBooking(ctx context.Context, lines []service.BookingLine) (*service.BookingResult, error) {
	args := m.Called(ctx, lines)
	res, _ := args.Get(0).(*service.BookingResult)
	return res, args.Error(1)
}

func (m *mockService) GetBooking(ctx context.Context, id string) (*service.BookingView, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*service.BookingView)
	return v, args.Error(1)
}

func (m *mockService) AmendBooking(ctx context.Context, id string, lines []service.AmendLine) ([]service.AmendmentResult, error) {
	args := m.Called(ctx, id, lines)
	res, _ := args.Get(0).([]service.AmendmentResult)
	return res, args.Error(1)
}

func (m *mockService) RevokeTicket(ctx context.Context, id, code string, qty int) (*service.RevocationResult, error) {
	args := m.Called(ctx, id, code, qty)
	res, _ := args.Get(0).(*service.RevocationResult)
	return res, args.Error(1)
}

func newServer(svc TicketService) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	h := NewTicketHandler(svc)
	e.GET("/v1/get-available-ticket", h.GetAvailable)
	e.POST("/v1/book-ticket", h.BookTicket)
	e.GET("/v1/get-booked-ticket/:bookingId", h.GetBookedTicket)
	e.PUT("/v1/edit-booked-ticket/:bookingId", h.EditBookedTicket)
	e.DELETE("/v1/revoke-ticket/:bookingId/:ticketCode/:qty", h.RevokeTicket)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) Problem {
	t.Helper()
	assert.Equal(t, MIMEProblemJSON, rec.Header().Get(echo.HeaderContentType))
	var p Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

var eventDate = time.Date(2026, 5, 17, 19, 30, 0, 0, time.UTC)

func TestGetAvailable(t *testing.T) {
	svc := &mockService{}
	e := newServer(svc)

	cents := int64(150000)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	want := repository.TicketQuery{
		Category:      "Cinema",
		Name:          "one",
		MaxPriceCents: &cents,
		EventFrom:     &from,
		OrderBy:       "harga",
		Descending:    true,
		Page:          2,
		PageSize:      10,
	}
	svc.On("ListAvailable", mock.Anything, want).Return([]service.AvailabilityRow{{
		CategoryName: "Cinema", TicketCode: "C1", TicketName: "Cinema One",
		EventDate: eventDate, PriceCents: 150000, Price: 1500, RemainingQuota: 7,
	}}, nil)

	rec := do(e, http.MethodGet, "/v1/get-available-ticket?categoryName=Cinema&namaTiket=one&price=1500&minEventDate=2026-01-01&orderBy=harga&orderState=DESC&page=2&pageSize=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"categoryName":"Cinema","ticketCode":"C1","ticketName":"Cinema One","eventDate":"17-05-2026 19:30","price":1500,"priceCents":150000,"quota":7}]`, rec.Body.String())
	svc.AssertExpectations(t)
}

func TestGetAvailable_BadQuery(t *testing.T) {
	e := newServer(&mockService{})
	for _, q := range []string{"price=abc", "price=-1", "minEventDate=yesterday", "page=x", "pageSize=1.5"} {
		rec := do(e, http.MethodGet, "/v1/get-available-ticket?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		p := decodeProblem(t, rec)
		assert.Equal(t, string(service.KindValidation), p.Kind, q)
	}
}

func TestBookTicket(t *testing.T) {
	svc := &mockService{}
	e := newServer(svc)

	lines := []service.BookingLine{{TicketCode: "C1", Quantity: 2}, {TicketCode: "H1", Quantity: 1}}
	svc.On("CreateBooking", mock.Anything, lines).Return(&service.BookingResult{BookingID: "b-1", TotalTickets: 3}, nil)

	rec := do(e, http.MethodPost, "/v1/book-ticket", `{"tickets":[{"ticketCode":"C1","quantity":2},{"kodeTiket":"H1","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/v1/get-booked-ticket/b-1", rec.Header().Get(echo.HeaderLocation))

	var got service.BookingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "b-1", got.BookingID)
	assert.Equal(t, 3, got.TotalTickets)
	svc.AssertExpectations(t)
}

func TestBookTicket_DomainErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   service.Kind
	}{
		{&service.Error{Kind: service.KindQuotaExceeded, Ref: "C1", Detail: "too many"}, http.StatusBadRequest, service.KindQuotaExceeded},
		{&service.Error{Kind: service.KindQuotaExhausted, Ref: "C1", Detail: "sold out"}, http.StatusBadRequest, service.KindQuotaExhausted},
		{&service.Error{Kind: service.KindEventExpired, Ref: "C1", Detail: "past"}, http.StatusBadRequest, service.KindEventExpired},
		{&service.Error{Kind: service.KindNotFound, Ref: "C1", Detail: "no such ticket"}, http.StatusNotFound, service.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			svc := &mockService{}
			svc.On("CreateBooking", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := do(newServer(svc), http.MethodPost, "/v1/book-ticket", `{"tickets":[{"ticketCode":"C1","quantity":1}]}`)
			assert.Equal(t, tt.status, rec.Code)
			p := decodeProblem(t, rec)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, string(tt.kind), p.Kind)
			assert.Equal(t, "C1", p.Ref)
			assert.Equal(t, "/v1/book-ticket", p.Instance)
			assert.NotEmpty(t, p.Title)
		})
	}
}

func TestBookTicket_InvalidJSON(t *testing.T) {
	rec := do(newServer(&mockService{}), http.MethodPost, "/v1/book-ticket", `{"tickets":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(service.KindValidation), decodeProblem(t, rec).Kind)
}

func TestStorageErrorIsOpaque(t *testing.T) {
	svc := &mockService{}
	svc.On("GetBooking", mock.Anything, "b-1").Return(nil, errors.New("dial tcp 10.0.0.5:3306: connection refused"))

	rec := do(newServer(svc), http.MethodGet, "/v1/get-booked-ticket/b-1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	p := decodeProblem(t, rec)
	assert.NotContains(t, p.Detail, "3306")
	assert.Empty(t, p.Kind)
}

func TestGetBookedTicket(t *testing.T) {
	svc := &mockService{}
	svc.On("GetBooking", mock.Anything, "b-1").Return(&service.BookingView{
		BookingID:    "b-1",
		PriceSummary: 3500,
		Categories: []service.BookedCategory{{
			CategoryName: "Cinema", QuantityPerCategory: 2, SummaryPrice: 3500,
			Tickets: []service.BookedTicket{{
				TicketCode: "C1", TicketName: "Cinema One", EventDate: eventDate, Quantity: 2, Price: 1750,
			}},
		}},
	}, nil)

	rec := do(newServer(svc), http.MethodGet, "/v1/get-booked-ticket/b-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"bookingId": "b-1",
		"priceSummary": 3500,
		"ticketsPerCategories": [{
			"quantityPerCategory": 2,
			"categoryName": "Cinema",
			"summaryPrice": 3500,
			"tickets": [{"ticketCode":"C1","ticketName":"Cinema One","eventDate":"17-05-2026 19:30","quantity":2,"price":1750}]
		}]
	}`, rec.Body.String())
}

func TestEditBookedTicket(t *testing.T) {
	svc := &mockService{}
	lines := []service.AmendLine{{TicketCode: "C1", Quantity: 0}, {TicketCode: "H1", Quantity: 3}}
	svc.On("AmendBooking", mock.Anything, "b-1", lines).Return([]service.AmendmentResult{
		{TicketCode: "C1", TicketName: "Cinema One", CategoryName: "Cinema", RemainingQuota: 10},
		{TicketCode: "H1", TicketName: "Hotel One", CategoryName: "Hotel", RemainingQuota: 0},
	}, nil)

	rec := do(newServer(svc), http.MethodPut, "/v1/edit-booked-ticket/b-1", `{"tickets":[{"kodeTiket":"C1","quantity":0},{"ticketCode":"H1","quantity":3}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []service.AmendmentResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
	svc.AssertExpectations(t)
}

func TestEditBookedTicket_EmptyCode(t *testing.T) {
	svc := &mockService{}
	rec := do(newServer(svc), http.MethodPut, "/v1/edit-booked-ticket/b-1", `{"tickets":[{"quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "AmendBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestRevokeTicket(t *testing.T) {
	svc := &mockService{}
	svc.On("RevokeTicket", mock.Anything, "b-1", "C1", 2).Return(&service.RevocationResult{
		TicketCode: "C1", TicketName: "Cinema One", CategoryName: "Cinema", QuantityLeft: 1, RemainingQuota: 9,
	}, nil)

	rec := do(newServer(svc), http.MethodDelete, "/v1/revoke-ticket/b-1/C1/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ticketCode":"C1","ticketName":"Cinema One","categoryName":"Cinema","quantityLeft":1,"remainingQuota":9}`, rec.Body.String())

	rec = do(newServer(svc), http.MethodDelete, "/v1/revoke-ticket/b-1/C1/two", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "qty", decodeProblem(t, rec).Ref)
}

func TestErrorHandler_UnknownRoute(t *testing.T) {
	rec := do(newServer(&mockService{}), http.MethodGet, "/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, http.StatusNotFound, p.Status)
	assert.Equal(t, "/v1/nope", p.Instance)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 5, 17, 19, 30, 0, 0, time.UTC)
	for _, s := range []string{"2026-05-17T19:30:00Z", "2026-05-17 19:30", "17-05-2026 19:30", "2026-05-17T21:30:00+02:00"} {
		got, ok := parseDate(s)
		require.True(t, ok, s)
		assert.True(t, want.Equal(got), s)
	}
	_, ok := parseDate("17/05/2026")
	assert.False(t, ok)
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/up", Health(stubPinger{}))
	e.GET("/down", Health(stubPinger{err: errors.New("gone")}))

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/up", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/down", "").Code)
}
