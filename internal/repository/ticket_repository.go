package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// TicketRepo reads the ticket catalog.  The catalog is owned by another
// system; nothing here writes to the tickets table.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `ticket_code, name, category, price_cents, quota, event_date`

func scanTicket(row interface{ Scan(...any) error }) (model.TicketType, error) {
	var t model.TicketType
	err := row.Scan(&t.Code, &t.Name, &t.Category, &t.PriceCents, &t.TotalQuota, &t.EventDate)
	return t, err
}

// GetByCodeTx returns the catalog entry for code or ErrTicketNotFound.
func (r *TicketRepo) GetByCodeTx(ctx context.Context, tx *sql.Tx, code string) (*model.TicketType, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_code = ?`
	t, err := scanTicket(tx.QueryRowContext(ctx, q, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

// LockTx takes row locks on the given ticket codes and returns the catalog
// entries that exist, keyed by code.  Codes are deduplicated and locked in
// ascending order so concurrent writers always acquire locks in the same
// order.  Unknown codes are simply absent from the result.
func (r *TicketRepo) LockTx(ctx context.Context, tx *sql.Tx, codes []string) (map[string]model.TicketType, error) {
	out := make(map[string]model.TicketType, len(codes))
	uniq := SortedUnique(codes)
	if len(uniq) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(uniq)), ",")
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_code IN (` + placeholders + `) ORDER BY ticket_code FOR UPDATE`
	args := make([]any, 0, len(uniq))
	for _, c := range uniq {
		args = append(args, c)
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out[t.Code] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SortedUnique returns the distinct non-empty values of codes in ascending
// order.
func SortedUnique(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// TicketQuery defines filters, ordering and pagination for catalog searches.
// Zero values mean "no filter".  Pagination applies only when both Page and
// PageSize are positive.
type TicketQuery struct {
	Category      string
	TicketCode    string
	Name          string
	MaxPriceCents *int64
	EventFrom     *time.Time
	EventTo       *time.Time
	OrderBy       string
	Descending    bool
	Page          int
	PageSize      int
}

// SearchTx returns catalog entries matching q.
func (r *TicketRepo) SearchTx(ctx context.Context, tx *sql.Tx, q TicketQuery) ([]model.TicketType, error) {
	query, args := buildTicketSearch(q)
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.TicketType, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func buildTicketSearch(q TicketQuery) (string, []any) {
	where := []string{}
	args := []any{}

	if s := strings.TrimSpace(q.Category); s != "" {
		where = append(where, `LOWER(category) LIKE ? ESCAPE '\\'`)
		args = append(args, containsPattern(s))
	}
	if s := strings.TrimSpace(q.TicketCode); s != "" {
		where = append(where, `LOWER(ticket_code) LIKE ? ESCAPE '\\'`)
		args = append(args, containsPattern(s))
	}
	if s := strings.TrimSpace(q.Name); s != "" {
		where = append(where, `LOWER(name) LIKE ? ESCAPE '\\'`)
		args = append(args, containsPattern(s))
	}
	if q.MaxPriceCents != nil {
		where = append(where, "price_cents <= ?")
		args = append(args, *q.MaxPriceCents)
	}
	if q.EventFrom != nil {
		where = append(where, "event_date >= ?")
		args = append(args, q.EventFrom.UTC())
	}
	if q.EventTo != nil {
		where = append(where, "event_date <= ?")
		args = append(args, q.EventTo.UTC())
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ` + cond + ` ORDER BY ` + orderClause(q.OrderBy, q.Descending)
	if q.Page > 0 && q.PageSize > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.PageSize, (q.Page-1)*q.PageSize)
	}
	return query, args
}

// containsPattern lower-cases s and escapes LIKE wildcards so user input is
// matched literally as a substring.
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

const defaultTicketOrder = "event_date DESC, price_cents ASC, ticket_code ASC"

// orderClause maps a caller-supplied sort key to a column.  Both the English
// keys and the original catalog vocabulary are accepted; anything else falls
// back to the default ordering.
func orderClause(key string, desc bool) string {
	var col string
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "ticketcode", "code", "kodetiket":
		col = "ticket_code"
	case "ticketname", "name", "namatiket":
		col = "name"
	case "category", "categoryname", "kategori":
		col = "category"
	case "price", "harga":
		col = "price_cents"
	case "eventdate", "event_date", "date":
		col = "event_date"
	default:
		return defaultTicketOrder
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	if col == "ticket_code" {
		return col + " " + dir
	}
	return col + " " + dir + ", ticket_code ASC"
}
