package orders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// OrderSummary is the admin list projection of an order.
type OrderSummary struct {
	ID           string     `json:"id"`
	Status       Status     `json:"status"`
	Email        string     `json:"email"`
	CustomerName string     `json:"customer_name"`
	TotalCents   int64      `json:"total_cents"`
	ServiceIDs   []string   `json:"service_ids"`
	CreatedAt    time.Time  `json:"created_at"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
}

// AdminReader serves the admin dashboard.
type AdminReader interface {
	ListOrders(ctx context.Context, filter ListFilter) ([]OrderSummary, error)
	StatusCounts(ctx context.Context) (map[Status]int, error)
}

// AdminQuery reads admin projections straight from Postgres through database/sql.
type AdminQuery struct {
	db *sql.DB
}

func NewAdminQuery(db *sql.DB) *AdminQuery {
	return &AdminQuery{db: db}
}

func (q *AdminQuery) ListOrders(ctx context.Context, filter ListFilter) ([]OrderSummary, error) {
	filter = filter.normalized()
	query := `
		SELECT id, status, email, customer_name, total_cents,
		       ARRAY(SELECT jsonb_array_elements(lines)->>'id') AS service_ids,
		       created_at, paid_at
		FROM orders
		WHERE (cardinality($1::text[]) = 0 OR status = ANY($1))
		  AND ($2 = '' OR email = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := q.db.QueryContext(ctx, query, pq.Array(filter.statusStrings()), filter.Email, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("orders: admin list: %w", err)
	}
	defer rows.Close()

	out := []OrderSummary{}
	for rows.Next() {
		var (
			s      OrderSummary
			status string
			paidAt sql.NullTime
		)
		if err := rows.Scan(&s.ID, &status, &s.Email, &s.CustomerName, &s.TotalCents,
			pq.Array(&s.ServiceIDs), &s.CreatedAt, &paidAt); err != nil {
			return nil, fmt.Errorf("orders: admin scan: %w", err)
		}
		s.Status = Status(status)
		if paidAt.Valid {
			t := paidAt.Time.UTC()
			s.PaidAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *AdminQuery) StatusCounts(ctx context.Context) (map[Status]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("orders: status counts: %w", err)
	}
	defer rows.Close()

	counts := map[Status]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("orders: status counts scan: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// RepositoryAdminReader derives admin projections from any Repository.
type RepositoryAdminReader struct {
	repo Repository
}

func NewRepositoryAdminReader(repo Repository) *RepositoryAdminReader {
	return &RepositoryAdminReader{repo: repo}
}

func (r *RepositoryAdminReader) ListOrders(ctx context.Context, filter ListFilter) ([]OrderSummary, error) {
	list, err := r.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]OrderSummary, 0, len(list))
	for _, o := range list {
		out = append(out, summarize(o))
	}
	return out, nil
}

func (r *RepositoryAdminReader) StatusCounts(ctx context.Context) (map[Status]int, error) {
	counts := map[Status]int{}
	for _, status := range []Status{StatusPending, StatusPaid, StatusFailed} {
		offset := 0
		for {
			page, err := r.repo.List(ctx, ListFilter{Statuses: []Status{status}, Limit: 200, Offset: offset})
			if err != nil {
				return nil, err
			}
			counts[status] += len(page)
			if len(page) < 200 {
				break
			}
			offset += len(page)
		}
	}
	return counts, nil
}

func summarize(o *Order) OrderSummary {
	ids := make([]string, 0, len(o.Lines))
	for _, line := range o.Lines {
		ids = append(ids, line.ID)
	}
	return OrderSummary{
		ID:           o.ID,
		Status:       o.Status,
		Email:        o.Email,
		CustomerName: o.CustomerName,
		TotalCents:   o.TotalCents,
		ServiceIDs:   ids,
		CreatedAt:    o.CreatedAt,
		PaidAt:       o.PaidAt,
	}
}
