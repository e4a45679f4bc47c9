package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxExec interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores orders in the relational database.
type PostgresRepository struct {
	pool pgxExec
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("orders: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithExec(exec pgxExec) *PostgresRepository {
	if exec == nil {
		panic("orders: exec required")
	}
	return &PostgresRepository{pool: exec}
}

const orderColumns = `id, status, email, customer_name, total_cents, lines, record,
		provider, provider_ref, idempotency_key, failure_reason, created_at, updated_at, paid_at`

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, order *Order) error {
	lines, record, err := encodeOrderJSON(order)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO orders (id, status, email, customer_name, total_cents, lines, record, provider, provider_ref, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		order.ID,
		string(order.Status),
		order.Email,
		order.CustomerName,
		order.TotalCents,
		lines,
		record,
		order.Provider,
		order.ProviderRef,
		order.IdempotencyKey,
	).Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("orders: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) GetByProviderRef(ctx context.Context, providerRef string) (*Order, error) {
	if providerRef == "" {
		return nil, ErrOrderNotFound
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE provider_ref = $1`
	return scanOrder(r.pool.QueryRow(ctx, query, providerRef))
}

func (r *PostgresRepository) SetProviderRef(ctx context.Context, id, provider, providerRef string) error {
	query := `
		UPDATE orders
		SET provider = $2, provider_ref = $3, updated_at = now()
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query, id, provider, providerRef)
	if err != nil {
		return fmt.Errorf("orders: set provider ref: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'paid', paid_at = $2, failure_reason = '', updated_at = now()
		WHERE id = $1 AND status <> 'paid'
	`
	ct, err := r.pool.Exec(ctx, query, id, paidAt.UTC())
	if err != nil {
		return false, fmt.Errorf("orders: mark paid: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'failed', failure_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	ct, err := r.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return false, fmt.Errorf("orders: mark failed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Order, error) {
	filter = filter.normalized()
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE (cardinality($1::text[]) = 0 OR status = ANY($1))
		  AND ($2 = '' OR email = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, filter.statusStrings(), filter.Email, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("orders: list: %w", err)
	}
	defer rows.Close()

	out := []*Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		order  Order
		status string
		lines  []byte
		record []byte
		paidAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&order.ID,
		&status,
		&order.Email,
		&order.CustomerName,
		&order.TotalCents,
		&lines,
		&record,
		&order.Provider,
		&order.ProviderRef,
		&order.IdempotencyKey,
		&order.FailureReason,
		&order.CreatedAt,
		&order.UpdatedAt,
		&paidAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("orders: select failed: %w", err)
	}
	order.Status = Status(status)
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		order.PaidAt = &t
	}
	if err := decodeOrderJSON(&order, lines, record); err != nil {
		return nil, err
	}
	return &order, nil
}

func encodeOrderJSON(order *Order) ([]byte, []byte, error) {
	lines, err := json.Marshal(order.Lines)
	if err != nil {
		return nil, nil, fmt.Errorf("orders: marshal lines: %w", err)
	}
	record, err := json.Marshal(order.Record)
	if err != nil {
		return nil, nil, fmt.Errorf("orders: marshal record: %w", err)
	}
	return lines, record, nil
}

func decodeOrderJSON(order *Order, lines, record []byte) error {
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &order.Lines); err != nil {
			return fmt.Errorf("orders: decode lines: %w", err)
		}
	}
	if len(record) > 0 {
		if err := json.Unmarshal(record, &order.Record); err != nil {
			return fmt.Errorf("orders: decode record: %w", err)
		}
	}
	return nil
}
