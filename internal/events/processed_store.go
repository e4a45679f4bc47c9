package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// Deduper remembers which external events were already acted on. The scope
// keeps id spaces apart: Stripe webhook deliveries and receipt sends both
// record outbox or provider ids, under "stripe" and "receipt".
type Deduper interface {
	AlreadyProcessed(ctx context.Context, scope, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, scope, eventID string) (bool, error)
}

// Pruner forgets dedupe records older than a cutoff. Providers stop
// redelivering after a few days, so old ids only cost storage.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const (
	sqlProcessedExists = `SELECT EXISTS (SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2)`
	sqlProcessedMark   = `INSERT INTO processed_events (provider, event_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	sqlProcessedPrune  = `DELETE FROM processed_events WHERE processed_at < $1`
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore keeps dedupe records in the processed_events table.
type ProcessedStore struct {
	db rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{db: pool}
}

func newProcessedStoreWithExec(db rowQuerier) *ProcessedStore {
	if db == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{db: db}
}

func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, scope, eventID string) (bool, error) {
	var seen bool
	if err := s.db.QueryRow(ctx, sqlProcessedExists, scope, eventID).Scan(&seen); err != nil {
		return false, fmt.Errorf("events: check processed %s/%s: %w", scope, eventID, err)
	}
	return seen, nil
}

// MarkProcessed reports false when the id was already recorded.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, scope, eventID string) (bool, error) {
	tag, err := s.db.Exec(ctx, sqlProcessedMark, scope, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed %s/%s: %w", scope, eventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *ProcessedStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, sqlProcessedPrune, cutoff)
	if err != nil {
		return 0, fmt.Errorf("events: prune processed: %w", err)
	}
	return tag.RowsAffected(), nil
}

type processedKey struct{ scope, id string }

// MemoryProcessedStore is the in-process Deduper used by the memory and
// sqlite storage drivers.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[processedKey]time.Time
	now  func() time.Time
}

func NewMemoryProcessedStore() *MemoryProcessedStore {
	return &MemoryProcessedStore{seen: make(map[processedKey]time.Time), now: time.Now}
}

func (m *MemoryProcessedStore) AlreadyProcessed(ctx context.Context, scope, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[processedKey{scope, eventID}]
	return ok, nil
}

func (m *MemoryProcessedStore) MarkProcessed(ctx context.Context, scope, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := processedKey{scope, eventID}
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = m.now()
	return true, nil
}

func (m *MemoryProcessedStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned int64
	for key, at := range m.seen {
		if at.Before(cutoff) {
			delete(m.seen, key)
			pruned++
		}
	}
	return pruned, nil
}

// RunPruner drops records older than retention every interval until ctx is done.
func RunPruner(ctx context.Context, p Pruner, retention, interval time.Duration, logger *logging.Logger) {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := p.PruneBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Warn("failed to prune processed events", "error", err)
				continue
			}
			if pruned > 0 {
				logger.Info("pruned processed events", "count", pruned, "retention", retention.String())
			}
		}
	}
}

var (
	_ Pruner = (*ProcessedStore)(nil)
	_ Pruner = (*MemoryProcessedStore)(nil)
)
