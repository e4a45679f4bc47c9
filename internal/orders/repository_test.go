package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/mealprep-intake/internal/intake"
)

func testOrder(id string) *Order {
	catalog := intake.DefaultCatalog()
	rec := intake.NewRecord(catalog)
	rec.Identity.FirstName, rec.Identity.LastName, rec.Identity.Email = "Ada", "Lovelace", "ada@example.com"
	rec.Scheduling.SelectedServices = []string{"consultation", "meal-plan"}
	return &Order{
		ID:           id,
		Status:       StatusPending,
		Email:        "ada@example.com",
		CustomerName: "Ada Lovelace",
		TotalCents:   5500,
		Lines:        catalog.Lines(rec.Scheduling.SelectedServices),
		Record:       rec,
	}
}

// repositoryContract runs the same lifecycle against every Repository.
func repositoryContract(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	order := testOrder("o1")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, testOrder("o2")); err != nil {
		t.Fatalf("create o2: %v", err)
	}
	got, err := repo.GetByID(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalCents != 5500 || len(got.Lines) != 2 || got.Record.Identity.FirstName != "Ada" {
		t.Fatalf("unexpected order %+v", got)
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	if err := repo.SetProviderRef(ctx, "o1", "fake", "pi_1"); err != nil {
		t.Fatalf("set provider ref: %v", err)
	}
	if err := repo.SetProviderRef(ctx, "missing", "fake", "pi_x"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	byRef, err := repo.GetByProviderRef(ctx, "pi_1")
	if err != nil || byRef.ID != "o1" || byRef.Provider != "fake" {
		t.Fatalf("get by ref: %+v %v", byRef, err)
	}
	if _, err := repo.GetByProviderRef(ctx, ""); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("empty ref should not match, got %v", err)
	}

	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	changed, err := repo.MarkPaid(ctx, "o1", paidAt)
	if err != nil || !changed {
		t.Fatalf("mark paid: %v %v", changed, err)
	}
	changed, err = repo.MarkPaid(ctx, "o1", paidAt)
	if err != nil || changed {
		t.Fatalf("second mark paid should be a no-op: %v %v", changed, err)
	}
	if changed, _ := repo.MarkFailed(ctx, "o1", "declined"); changed {
		t.Fatalf("paid order must not become failed")
	}
	paid, _ := repo.GetByID(ctx, "o1")
	if paid.Status != StatusPaid || paid.PaidAt == nil || !paid.PaidAt.Equal(paidAt) {
		t.Fatalf("unexpected paid order %+v", paid)
	}

	if changed, err := repo.MarkFailed(ctx, "o2", "declined"); err != nil || !changed {
		t.Fatalf("mark failed: %v %v", changed, err)
	}

	list, err := repo.List(ctx, ListFilter{Statuses: []Status{StatusFailed}})
	if err != nil || len(list) != 1 || list[0].ID != "o2" || list[0].FailureReason != "declined" {
		t.Fatalf("list failed: %+v %v", list, err)
	}
	all, err := repo.List(ctx, ListFilter{Email: "ada@example.com"})
	if err != nil || len(all) != 2 {
		t.Fatalf("list by email: %d %v", len(all), err)
	}
	none, err := repo.List(ctx, ListFilter{Email: "nobody@example.com"})
	if err != nil || len(none) != 0 {
		t.Fatalf("list unknown email: %d %v", len(none), err)
	}
}

func TestInMemoryRepository(t *testing.T) {
	repositoryContract(t, NewInMemoryRepository())
}

func TestInMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	order := testOrder("o1")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	order.Lines[0].Name = "mutated"
	got, _ := repo.GetByID(ctx, "o1")
	got.Record.Scheduling.SelectedServices[0] = "mutated"
	again, _ := repo.GetByID(ctx, "o1")
	if again.Lines[0].Name == "mutated" || again.Record.Scheduling.SelectedServices[0] == "mutated" {
		t.Fatalf("repository leaked internal state: %+v", again)
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := NewSQLiteRepository(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer repo.Close()
	repositoryContract(t, repo)
}

func TestPostgresRepositoryCreateAndGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock)
	ctx := context.Background()
	now := time.Now().UTC()
	order := testOrder("o1")

	mock.ExpectQuery("INSERT INTO orders").
		WithArgs("o1", "pending", "ada@example.com", "Ada Lovelace", int64(5500),
			pgxmock.AnyArg(), pgxmock.AnyArg(), "", "", "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !order.CreatedAt.Equal(now) {
		t.Fatalf("created_at not populated")
	}

	lines, record, err := encodeOrderJSON(order)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cols := []string{"id", "status", "email", "customer_name", "total_cents", "lines", "record",
		"provider", "provider_ref", "idempotency_key", "failure_reason", "created_at", "updated_at", "paid_at"}
	mock.ExpectQuery("SELECT id, status").WithArgs("o1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow("o1", "paid", "ada@example.com", "Ada Lovelace", int64(5500),
			lines, record, "stripe", "pi_1", "k1", "", now, now, now))
	got, err := repo.GetByID(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPaid || got.PaidAt == nil || len(got.Lines) != 2 || got.ProviderRef != "pi_1" {
		t.Fatalf("unexpected order %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepositoryTransitions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := newPostgresRepositoryWithExec(mock)
	ctx := context.Background()

	mock.ExpectExec("UPDATE orders").WithArgs("o1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if changed, err := repo.MarkPaid(ctx, "o1", time.Now()); err != nil || !changed {
		t.Fatalf("mark paid: %v %v", changed, err)
	}
	mock.ExpectExec("UPDATE orders").WithArgs("o1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if changed, err := repo.MarkPaid(ctx, "o1", time.Now()); err != nil || changed {
		t.Fatalf("already paid should report false: %v %v", changed, err)
	}
	mock.ExpectExec("UPDATE orders").WithArgs("o2", "declined").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if changed, err := repo.MarkFailed(ctx, "o2", "declined"); err != nil || !changed {
		t.Fatalf("mark failed: %v %v", changed, err)
	}
	mock.ExpectExec("UPDATE orders").WithArgs("missing", "fake", "pi").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if err := repo.SetProviderRef(ctx, "missing", "fake", "pi"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
