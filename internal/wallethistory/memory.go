package wallethistory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mtlprog/cashin-detector/internal/domain"
)

type identity struct {
	integrationLayerID string
	address            string
}

// MemoryRepository implements Repository in process memory. Data is lost on restart.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[identity]domain.WalletHistoryAggregate
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[identity]domain.WalletHistoryAggregate)}
}

func (r *MemoryRepository) GetOrAdd(_ context.Context, integrationLayerID, address string, factory Factory) (domain.WalletHistoryAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := identity{integrationLayerID, address}
	if a, ok := r.items[key]; ok {
		return a, nil
	}
	a := factory()
	a.BlockchainType = integrationLayerID
	a.WalletAddress = address
	r.items[key] = a
	return a, nil
}

func (r *MemoryRepository) TryGet(_ context.Context, integrationLayerID, address string) (domain.WalletHistoryAggregate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[identity{integrationLayerID, address}]
	return a, ok, nil
}

func (r *MemoryRepository) Save(_ context.Context, a domain.WalletHistoryAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := identity{a.BlockchainType, a.WalletAddress}
	existing, ok := r.items[key]
	if !ok {
		return fmt.Errorf("saving wallet history %s/%s: %w", a.BlockchainType, a.WalletAddress, ErrNotFound)
	}
	a.AggregateID = existing.AggregateID
	a.CreatedAt = existing.CreatedAt
	r.items[key] = a
	return nil
}

func (r *MemoryRepository) matching(filter Filter) []domain.WalletHistoryAggregate {
	r.mu.Lock()
	all := lo.Values(r.items)
	r.mu.Unlock()

	return lo.Filter(all, func(a domain.WalletHistoryAggregate, _ int) bool {
		return (filter.BlockchainType == "" || a.BlockchainType == filter.BlockchainType) &&
			(filter.State == "" || a.State == filter.State)
	})
}

func (r *MemoryRepository) List(_ context.Context, filter Filter) ([]domain.WalletHistoryAggregate, error) {
	matched := r.matching(filter)
	slices.SortFunc(matched, func(x, y domain.WalletHistoryAggregate) int {
		if c := y.UpdatedAt.Compare(x.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(x.AggregateID.String(), y.AggregateID.String())
	})
	if len(matched) > filter.limit() {
		matched = matched[:filter.limit()]
	}
	return matched, nil
}

func (r *MemoryRepository) ListAfter(_ context.Context, filter Filter, after uuid.UUID, size int) ([]domain.WalletHistoryAggregate, error) {
	matched := lo.Filter(r.matching(filter), func(a domain.WalletHistoryAggregate, _ int) bool {
		return compareIDs(a.AggregateID, after) > 0
	})
	slices.SortFunc(matched, func(x, y domain.WalletHistoryAggregate) int {
		return compareIDs(x.AggregateID, y.AggregateID)
	})
	if len(matched) > size {
		matched = matched[:size]
	}
	return matched, nil
}

// compareIDs orders ids the way PostgreSQL orders uuid values.
func compareIDs(x, y uuid.UUID) int {
	return slices.Compare(x[:], y[:])
}
