package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/mealprep-intake/internal/config"
	"github.com/wolfman30/mealprep-intake/internal/events"
	"github.com/wolfman30/mealprep-intake/internal/orders"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// Storage bundles the persistence collaborators selected by STORE_DRIVER.
type Storage struct {
	Driver    string
	Orders    orders.Repository
	Outbox    events.Outbox
	Pending   events.PendingStore
	Processed events.Deduper
	Admin     orders.AdminReader

	// Ping backs the readiness probe; nil for the memory driver.
	Ping func(ctx context.Context) error

	closers []func()
}

// Close releases every underlying handle.
func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// BuildStorage opens the configured order store. Postgres also backs the
// outbox and webhook dedupe tables; the other drivers keep those in process.
func BuildStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Storage, error) {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.StoreDriver {
	case "", "memory":
		return memoryStorage(orders.NewInMemoryRepository(), "memory"), nil
	case "sqlite":
		repo, err := orders.NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		st := memoryStorage(repo, "sqlite")
		st.closers = append(st.closers, func() { _ = repo.Close() })
		logger.Info("sqlite order store ready", "path", cfg.SQLitePath)
		return st, nil
	case "postgres":
		return postgresStorage(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func memoryStorage(repo orders.Repository, driver string) *Storage {
	outbox := events.NewMemoryOutbox()
	return &Storage{
		Driver:    driver,
		Orders:    repo,
		Outbox:    outbox,
		Pending:   outbox,
		Processed: events.NewMemoryProcessedStore(),
		Admin:     orders.NewRepositoryAdminReader(repo),
	}
}

func postgresStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Storage, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("bootstrap: postgres driver requires DATABASE_URL")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	// Admin projections use database/sql so array scanning goes through lib/pq.
	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: open admin db: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)

	outbox := events.NewOutboxStore(pool)
	logger.Info("postgres order store ready")
	return &Storage{
		Driver:    "postgres",
		Orders:    orders.NewPostgresRepository(pool),
		Outbox:    outbox,
		Pending:   outbox,
		Processed: events.NewProcessedStore(pool),
		Admin:     orders.NewAdminQuery(sqlDB),
		Ping:      pool.Ping,
		closers:   []func(){pool.Close, func() { _ = sqlDB.Close() }},
	}, nil
}
