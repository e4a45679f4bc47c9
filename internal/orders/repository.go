package orders

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByProviderRef(ctx context.Context, providerRef string) (*Order, error)
	SetProviderRef(ctx context.Context, id, provider, providerRef string) error
	// MarkPaid moves a pending or failed order to paid. It reports false when
	// the order was already paid.
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error)
	// MarkFailed moves a pending order to failed.
	MarkFailed(ctx context.Context, id, reason string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*Order, error)
}

// InMemoryRepository keeps orders in process
type InMemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{orders: make(map[string]*Order)}
}

func (r *InMemoryRepository) Create(ctx context.Context, order *Order) error {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	r.mu.Lock()
	r.orders[order.ID] = cloneOrder(order)
	r.mu.Unlock()
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *InMemoryRepository) GetByProviderRef(ctx context.Context, providerRef string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, order := range r.orders {
		if providerRef != "" && order.ProviderRef == providerRef {
			return cloneOrder(order), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (r *InMemoryRepository) SetProviderRef(ctx context.Context, id, provider, providerRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	order.Provider = provider
	order.ProviderRef = providerRef
	order.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return false, ErrOrderNotFound
	}
	if order.Status == StatusPaid {
		return false, nil
	}
	paidAt = paidAt.UTC()
	order.Status = StatusPaid
	order.PaidAt = &paidAt
	order.FailureReason = ""
	order.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *InMemoryRepository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return false, ErrOrderNotFound
	}
	if order.Status != StatusPending {
		return false, nil
	}
	order.Status = StatusFailed
	order.FailureReason = reason
	order.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Order, error) {
	filter = filter.normalized()
	r.mu.RLock()
	var matched []*Order
	for _, order := range r.orders {
		if filter.matches(order) {
			matched = append(matched, cloneOrder(order))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if filter.Offset >= len(matched) {
		return []*Order{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func cloneOrder(o *Order) *Order {
	out := *o
	out.Lines = slices.Clone(o.Lines)
	out.Record = o.Record.Clone()
	if o.PaidAt != nil {
		paid := *o.PaidAt
		out.PaidAt = &paid
	}
	return &out
}
