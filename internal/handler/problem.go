package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/service"
)

// MIMEProblemJSON is the RFC 7807 media type.
const MIMEProblemJSON = "application/problem+json"

// Problem is an RFC 7807 problem document.  Kind and Ref carry the
// machine-readable failure and the ticket code or booking id behind it.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
	Kind     string `json:"kind,omitempty"`
	Ref      string `json:"ref,omitempty"`
}

var kindTitles = map[service.Kind]string{
	service.KindValidation:     "Validation failed",
	service.KindNotFound:       "Resource not found",
	service.KindQuotaExhausted: "Ticket quota exhausted",
	service.KindQuotaExceeded:  "Ticket quota exceeded",
	service.KindEventExpired:   "Event already started",
}

// ProblemFor maps err to a problem document for a request on path.
// Errors that are neither domain nor HTTP errors become an opaque 500.
func ProblemFor(err error, path string) Problem {
	if e, ok := service.AsError(err); ok {
		status := http.StatusBadRequest
		typ := "https://tools.ietf.org/html/rfc7231#section-6.5.1"
		if e.Kind.Class() == service.ClassNotFound {
			status = http.StatusNotFound
			typ = "https://tools.ietf.org/html/rfc7231#section-6.5.4"
		}
		return Problem{
			Type:     typ,
			Title:    kindTitles[e.Kind],
			Status:   status,
			Detail:   e.Detail,
			Instance: path,
			Kind:     string(e.Kind),
			Ref:      e.Ref,
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		detail := http.StatusText(he.Code)
		if he.Message != nil {
			detail = fmt.Sprint(he.Message)
		}
		return Problem{
			Type:     "about:blank",
			Title:    http.StatusText(he.Code),
			Status:   he.Code,
			Detail:   detail,
			Instance: path,
		}
	}

	return Problem{
		Type:     "https://tools.ietf.org/html/rfc7807#section-3.1",
		Title:    "An error occurred while processing your request",
		Status:   http.StatusInternalServerError,
		Detail:   "internal server error",
		Instance: path,
	}
}

// ErrorHandler is installed as echo.Echo.HTTPErrorHandler so every failure,
// including unknown routes and bad methods, is rendered as problem+json.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	p := ProblemFor(err, c.Request().URL.Path)
	if p.Status >= http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(p.Status)
	} else {
		c.Response().Header().Set(echo.HeaderContentType, MIMEProblemJSON)
		werr = c.JSON(p.Status, p)
	}
	if werr != nil {
		c.Logger().Error(werr)
	}
}

// badRequest reports malformed client input in the same shape the engines
// use for their own validation failures.
func badRequest(ref, format string, args ...any) error {
	return &service.Error{Kind: service.KindValidation, Ref: ref, Detail: fmt.Sprintf(format, args...)}
}
