package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is a single-file store for local development.
// Timestamps are stored as unix microseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the database at path.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("orders: open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL"} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("orders: %s: %w", pragma, err)
			}
		}
	}
	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("orders: init schema: %w", err)
	}
	return repo, nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			email TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			total_cents INTEGER NOT NULL,
			lines TEXT NOT NULL,
			record TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT '',
			provider_ref TEXT NOT NULL DEFAULT '',
			idempotency_key TEXT NOT NULL DEFAULT '',
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			paid_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_provider_ref ON orders(provider_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) Create(ctx context.Context, order *Order) error {
	lines, record, err := encodeOrderJSON(order)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (id, status, email, customer_name, total_cents, lines, record, provider, provider_ref, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, string(order.Status), order.Email, order.CustomerName, order.TotalCents,
		string(lines), string(record), order.Provider, order.ProviderRef, order.IdempotencyKey,
		order.CreatedAt.UnixMicro(), order.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("orders: insert failed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	return scanSQLiteOrder(row)
}

func (r *SQLiteRepository) GetByProviderRef(ctx context.Context, providerRef string) (*Order, error) {
	if providerRef == "" {
		return nil, ErrOrderNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE provider_ref = ?`, providerRef)
	return scanSQLiteOrder(row)
}

func (r *SQLiteRepository) SetProviderRef(ctx context.Context, id, provider, providerRef string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET provider = ?, provider_ref = ?, updated_at = ? WHERE id = ?`,
		provider, providerRef, time.Now().UTC().UnixMicro(), id)
	if err != nil {
		return fmt.Errorf("orders: set provider ref: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *SQLiteRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = 'paid', paid_at = ?, failure_reason = '', updated_at = ? WHERE id = ? AND status <> 'paid'`,
		paidAt.UTC().UnixMicro(), time.Now().UTC().UnixMicro(), id)
	if err != nil {
		return false, fmt.Errorf("orders: mark paid: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = 'failed', failure_reason = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
		reason, time.Now().UTC().UnixMicro(), id)
	if err != nil {
		return false, fmt.Errorf("orders: mark failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter) ([]*Order, error) {
	filter = filter.normalized()
	var (
		where []string
		args  []any
	)
	if statuses := filter.statusStrings(); len(statuses) > 0 {
		where = append(where, "status IN (?"+strings.Repeat(", ?", len(statuses)-1)+")")
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	if filter.Email != "" {
		where = append(where, "email = ?")
		args = append(args, filter.Email)
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("orders: list: %w", err)
	}
	defer rows.Close()

	out := []*Order{}
	for rows.Next() {
		order, err := scanSQLiteOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteOrder(row sqlScanner) (*Order, error) {
	var (
		out                  Order
		lines, record        string
		createdAt, updatedAt int64
		paidAt               sql.NullInt64
	)
	if err := row.Scan(
		&out.ID, &out.Status, &out.Email, &out.CustomerName, &out.TotalCents,
		&lines, &record, &out.Provider, &out.ProviderRef, &out.IdempotencyKey,
		&out.FailureReason, &createdAt, &updatedAt, &paidAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("orders: select failed: %w", err)
	}
	out.CreatedAt = time.UnixMicro(createdAt).UTC()
	out.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	if paidAt.Valid {
		t := time.UnixMicro(paidAt.Int64).UTC()
		out.PaidAt = &t
	}
	if err := decodeOrderJSON(&out, []byte(lines), []byte(record)); err != nil {
		return nil, err
	}
	return &out, nil
}
