package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/mtlprog/cashin-detector/internal/domain"
	"github.com/mtlprog/cashin-detector/internal/wallethistory"
)

type mockSheetWriter struct {
	values [][]any
	err    error
}

func (m *mockSheetWriter) Write(_ context.Context, values [][]any) error {
	m.values = values
	return m.err
}

func seed(t *testing.T) *wallethistory.MemoryRepository {
	t.Helper()
	repo := wallethistory.NewMemoryRepository()
	ctx := context.Background()
	for _, w := range []struct{ chain, addr string }{{"ETH", "0xA"}, {"BTC", "bc1"}} {
		_, err := repo.GetOrAdd(ctx, w.chain, w.addr, func() domain.WalletHistoryAggregate {
			return domain.CreateNewWalletHistory(w.chain, w.addr, w.chain, domain.WalletAddressTypeTo)
		})
		if err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
	return repo
}

func TestServiceExport(t *testing.T) {
	w := &mockSheetWriter{}
	n, err := NewService(seed(t), w).Export(context.Background(), wallethistory.Filter{BlockchainType: "ETH"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("exported = %d, want 1", n)
	}
	if len(w.values) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(w.values))
	}
	if w.values[0][0] != "Aggregate ID" {
		t.Errorf("header = %v", w.values[0])
	}
	row := w.values[1]
	want := domain.WalletHistoryAggregateID("ETH", "0xA").String()
	if row[0] != want || row[1] != "ETH" || row[2] != "0xA" || row[4] != "To" || row[5] != "Started" {
		t.Errorf("row = %v", row)
	}
}

type pageCounter struct {
	*wallethistory.MemoryRepository
	calls int
}

func (p *pageCounter) ListAfter(ctx context.Context, f wallethistory.Filter, after uuid.UUID, size int) ([]domain.WalletHistoryAggregate, error) {
	p.calls++
	return p.MemoryRepository.ListAfter(ctx, f, after, size)
}

func seedMany(t *testing.T, n int) *wallethistory.MemoryRepository {
	t.Helper()
	repo := wallethistory.NewMemoryRepository()
	for i := range n {
		addr := fmt.Sprintf("0x%04d", i)
		_, err := repo.GetOrAdd(context.Background(), "ETH", addr, func() domain.WalletHistoryAggregate {
			return domain.CreateNewWalletHistory("ETH", addr, "ETH", domain.WalletAddressTypeTo)
		})
		if err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
	return repo
}

func TestServiceExportPagesThroughAllWallets(t *testing.T) {
	repo := &pageCounter{MemoryRepository: seedMany(t, 1500)}
	w := &mockSheetWriter{}

	n, err := NewService(repo, w).Export(context.Background(), wallethistory.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1500 {
		t.Errorf("exported = %d, want 1500", n)
	}
	if len(w.values) != 1501 {
		t.Errorf("rows = %d, want header + 1500", len(w.values))
	}
	if repo.calls != 2 {
		t.Errorf("listing calls = %d, want 2", repo.calls)
	}

	seen := make(map[any]bool, n)
	for _, row := range w.values[1:] {
		if seen[row[0]] {
			t.Fatalf("aggregate %v exported twice", row[0])
		}
		seen[row[0]] = true
	}
}

func TestServiceExportLimitAboveListCap(t *testing.T) {
	w := &mockSheetWriter{}
	n, err := NewService(seedMany(t, 1500), w).Export(context.Background(), wallethistory.Filter{Limit: 1200})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1200 || len(w.values) != 1201 {
		t.Errorf("exported = %d, rows = %d, want 1200", n, len(w.values))
	}
}

func TestServiceExportWriterError(t *testing.T) {
	boom := errors.New("quota exceeded")
	_, err := NewService(seed(t), &mockSheetWriter{err: boom}).Export(context.Background(), wallethistory.Filter{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestXLSXWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.xlsx")
	n, err := NewService(seed(t), NewXLSXWriter(path)).Export(context.Background(), wallethistory.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("exported = %d, want 2", n)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("opening workbook: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != SheetName {
		t.Errorf("sheets = %v, want [%s]", sheets, SheetName)
	}
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("reading rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0][7] != "Updated" {
		t.Errorf("header = %v", rows[0])
	}
}
