package wallethistory

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mtlprog/cashin-detector/internal/domain"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

func rowOf(a domain.WalletHistoryAggregate) fakeRow {
	return fakeRow{values: []any{
		a.AggregateID, a.BlockchainType, a.WalletAddress, a.AssetID,
		string(a.WalletAddressType), string(a.State), a.CreatedAt, a.UpdatedAt,
	}}
}

// fakeDB answers QueryRow calls in order and records the statements.
type fakeDB struct {
	rows    []fakeRow
	queries []string
	tag     pgconn.CommandTag
	execErr error
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.queries = append(f.queries, sql)
	r := f.rows[0]
	f.rows = f.rows[1:]
	return r
}

func (f *fakeDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, sql)
	return f.tag, f.execErr
}

func TestPgGetOrAddInserts(t *testing.T) {
	created := domain.CreateNewWalletHistory("ETH", "0xABC", "ETH", domain.WalletAddressTypeTo)
	db := &fakeDB{rows: []fakeRow{{err: pgx.ErrNoRows}, rowOf(created)}}
	repo := &PgRepository{pool: db}

	got, err := repo.GetOrAdd(context.Background(), "ETH", "0xABC", newWallet("ETH", "0xABC"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AggregateID != created.AggregateID || got.State != domain.WalletHistoryStateStarted {
		t.Errorf("got %+v", got)
	}
	if len(db.queries) != 2 {
		t.Errorf("queries = %d, want select + insert", len(db.queries))
	}
}

func TestPgGetOrAddInsertIgnoresEveryConstraint(t *testing.T) {
	stored := domain.CreateNewWalletHistory("ETH", "0xABC", "ETH", domain.WalletAddressTypeTo)
	db := &fakeDB{rows: []fakeRow{{err: pgx.ErrNoRows}, rowOf(stored)}}
	repo := &PgRepository{pool: db}

	if _, err := repo.GetOrAdd(context.Background(), "ETH", "0xABC", newWallet("ETH", "0xABC")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// aggregate_id and (blockchain_type, wallet_address) are both unique; a
	// conflict target would let a concurrent insert fail on the other one.
	insert := db.queries[1]
	if !strings.Contains(insert, "ON CONFLICT DO NOTHING") {
		t.Errorf("insert does not ignore conflicts on all constraints:\n%s", insert)
	}
}

func TestPgGetOrAddLostRaceReturnsStored(t *testing.T) {
	stored := domain.CreateNewWalletHistory("ETH", "0xABC", "USDT", domain.WalletAddressTypeTo)
	stored.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db := &fakeDB{rows: []fakeRow{
		{err: pgx.ErrNoRows}, // not there yet
		{err: pgx.ErrNoRows}, // insert skipped on conflict
		rowOf(stored),        // the winner's row
	}}
	repo := &PgRepository{pool: db}

	got, err := repo.GetOrAdd(context.Background(), "ETH", "0xABC", newWallet("ETH", "0xABC"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AssetID != "USDT" || !got.CreatedAt.Equal(stored.CreatedAt) {
		t.Errorf("got %+v, want the stored aggregate", got)
	}
}

func TestPgGetOrAddVanishedAfterConflict(t *testing.T) {
	db := &fakeDB{rows: []fakeRow{{err: pgx.ErrNoRows}, {err: pgx.ErrNoRows}, {err: pgx.ErrNoRows}}}
	repo := &PgRepository{pool: db}

	_, err := repo.GetOrAdd(context.Background(), "ETH", "0xABC", newWallet("ETH", "0xABC"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPgGetOrAddInsertError(t *testing.T) {
	boom := &pgconn.PgError{Code: "53300", Message: "too many connections"}
	db := &fakeDB{rows: []fakeRow{{err: pgx.ErrNoRows}, {err: boom}}}
	repo := &PgRepository{pool: db}

	_, err := repo.GetOrAdd(context.Background(), "ETH", "0xABC", newWallet("ETH", "0xABC"))
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "53300" {
		t.Errorf("err = %v, want wrapped PgError", err)
	}
}

func TestPgTryGetMissing(t *testing.T) {
	repo := &PgRepository{pool: &fakeDB{rows: []fakeRow{{err: pgx.ErrNoRows}}}}

	_, ok, err := repo.TryGet(context.Background(), "ETH", "0xABC")
	if err != nil || ok {
		t.Errorf("ok = %v, err = %v, want not found without error", ok, err)
	}
}

func TestPgSaveUnknown(t *testing.T) {
	repo := &PgRepository{pool: &fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")}}

	err := repo.Save(context.Background(), domain.CreateNewWalletHistory("ETH", "0xABC", "ETH", domain.WalletAddressTypeTo))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPgSave(t *testing.T) {
	repo := &PgRepository{pool: &fakeDB{tag: pgconn.NewCommandTag("UPDATE 1")}}

	err := repo.Save(context.Background(), domain.CreateNewWalletHistory("ETH", "0xABC", "ETH", domain.WalletAddressTypeTo))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
