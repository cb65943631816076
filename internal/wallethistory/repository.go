package wallethistory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/cashin-detector/internal/domain"
)

// ErrNotFound indicates that no wallet history exists for the identity.
var ErrNotFound = errors.New("wallet history not found")

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Factory builds a new aggregate when none exists for the identity yet.
type Factory func() domain.WalletHistoryAggregate

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	BlockchainType string
	State          domain.WalletHistoryState
	Limit          int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// Repository defines persistent storage for wallet history aggregates,
// keyed by (integration layer id, wallet address).
type Repository interface {
	// GetOrAdd returns the stored aggregate, creating it with factory if absent.
	// Concurrent calls for one identity create at most one aggregate.
	GetOrAdd(ctx context.Context, integrationLayerID, address string, factory Factory) (domain.WalletHistoryAggregate, error)
	TryGet(ctx context.Context, integrationLayerID, address string) (domain.WalletHistoryAggregate, bool, error)
	Save(ctx context.Context, aggregate domain.WalletHistoryAggregate) error
	List(ctx context.Context, filter Filter) ([]domain.WalletHistoryAggregate, error)
	// ListAfter returns up to size aggregates matching filter in aggregate id
	// order, starting after the given id (uuid.Nil for the first page).
	// filter.Limit is ignored.
	ListAfter(ctx context.Context, filter Filter, after uuid.UUID, size int) ([]domain.WalletHistoryAggregate, error)
}

// querier is the part of pgxpool.Pool the repository uses.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool querier
}

// NewPgRepository creates a new PostgreSQL wallet history repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const selectColumns = `aggregate_id, blockchain_type, wallet_address, asset_id,
	wallet_address_type, state, created_at, updated_at`

func scanAggregate(row pgx.Row) (domain.WalletHistoryAggregate, error) {
	var (
		a           domain.WalletHistoryAggregate
		id          uuid.UUID
		addressType string
		state       string
	)
	if err := row.Scan(&id, &a.BlockchainType, &a.WalletAddress, &a.AssetID,
		&addressType, &state, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.WalletHistoryAggregate{}, err
	}
	a.AggregateID = id
	a.WalletAddressType = domain.WalletAddressType(addressType)
	a.State = domain.WalletHistoryState(state)
	return a, nil
}

func (r *PgRepository) GetOrAdd(ctx context.Context, integrationLayerID, address string, factory Factory) (domain.WalletHistoryAggregate, error) {
	if a, ok, err := r.TryGet(ctx, integrationLayerID, address); err != nil || ok {
		return a, err
	}

	n := factory()
	a, err := scanAggregate(r.pool.QueryRow(ctx,
		`INSERT INTO wallet_history (`+selectColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT DO NOTHING
		 RETURNING `+selectColumns,
		n.AggregateID, integrationLayerID, address, n.AssetID,
		string(n.WalletAddressType), string(n.State), n.CreatedAt, n.UpdatedAt))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.WalletHistoryAggregate{}, fmt.Errorf("adding wallet history %s/%s: %w", integrationLayerID, address, err)
	}

	// Lost the race: another writer inserted the row in between. The
	// aggregate id is derived from the identity, so the conflict may be
	// reported on either unique constraint.
	a, ok, err := r.TryGet(ctx, integrationLayerID, address)
	if err != nil {
		return domain.WalletHistoryAggregate{}, err
	}
	if !ok {
		return domain.WalletHistoryAggregate{}, fmt.Errorf("wallet history %s/%s vanished after conflict: %w", integrationLayerID, address, ErrNotFound)
	}
	return a, nil
}

func (r *PgRepository) TryGet(ctx context.Context, integrationLayerID, address string) (domain.WalletHistoryAggregate, bool, error) {
	a, err := scanAggregate(r.pool.QueryRow(ctx,
		`SELECT `+selectColumns+`
		 FROM wallet_history
		 WHERE blockchain_type = $1 AND wallet_address = $2`, integrationLayerID, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WalletHistoryAggregate{}, false, nil
		}
		return domain.WalletHistoryAggregate{}, false, fmt.Errorf("getting wallet history %s/%s: %w", integrationLayerID, address, err)
	}
	return a, true, nil
}

func (r *PgRepository) Save(ctx context.Context, a domain.WalletHistoryAggregate) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE wallet_history
		 SET asset_id = $3, wallet_address_type = $4, state = $5, updated_at = $6
		 WHERE blockchain_type = $1 AND wallet_address = $2`,
		a.BlockchainType, a.WalletAddress, a.AssetID,
		string(a.WalletAddressType), string(a.State), a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving wallet history %s: %w", a.AggregateID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("saving wallet history %s/%s: %w", a.BlockchainType, a.WalletAddress, ErrNotFound)
	}
	return nil
}

func (r *PgRepository) List(ctx context.Context, filter Filter) ([]domain.WalletHistoryAggregate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectColumns+`
		 FROM wallet_history
		 WHERE ($1 = '' OR blockchain_type = $1)
		   AND ($2 = '' OR state = $2)
		 ORDER BY updated_at DESC, aggregate_id
		 LIMIT $3`, filter.BlockchainType, string(filter.State), filter.limit())
	if err != nil {
		return nil, fmt.Errorf("listing wallet history: %w", err)
	}
	return collectAggregates(rows)
}

func (r *PgRepository) ListAfter(ctx context.Context, filter Filter, after uuid.UUID, size int) ([]domain.WalletHistoryAggregate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectColumns+`
		 FROM wallet_history
		 WHERE ($1 = '' OR blockchain_type = $1)
		   AND ($2 = '' OR state = $2)
		   AND aggregate_id > $3
		 ORDER BY aggregate_id
		 LIMIT $4`, filter.BlockchainType, string(filter.State), after, size)
	if err != nil {
		return nil, fmt.Errorf("listing wallet history after %s: %w", after, err)
	}
	return collectAggregates(rows)
}

func collectAggregates(rows pgx.Rows) ([]domain.WalletHistoryAggregate, error) {
	defer rows.Close()

	var result []domain.WalletHistoryAggregate
	for rows.Next() {
		a, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning wallet history: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating wallet history: %w", err)
	}
	return result, nil
}
