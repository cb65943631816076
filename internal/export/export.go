package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mtlprog/cashin-detector/internal/domain"
	"github.com/mtlprog/cashin-detector/internal/wallethistory"
)

// SheetName is the sheet the wallet history is written to.
const SheetName = "WALLET_HISTORY"

var header = []any{
	"Aggregate ID", "Blockchain", "Address", "Asset",
	"Address type", "State", "Created", "Updated",
}

// pageSize is the number of aggregates read per listing call.
const pageSize = wallethistory.MaxListLimit

// WalletLister pages through wallet history aggregates.
type WalletLister interface {
	ListAfter(ctx context.Context, filter wallethistory.Filter, after uuid.UUID, size int) ([]domain.WalletHistoryAggregate, error)
}

// SheetWriter writes wallet history rows to a spreadsheet destination.
type SheetWriter interface {
	Write(ctx context.Context, values [][]any) error
}

// Service exports the wallet history for audit.
type Service struct {
	wallets WalletLister
	writer  SheetWriter
}

// NewService creates a new export Service.
func NewService(wallets WalletLister, writer SheetWriter) *Service {
	return &Service{wallets: wallets, writer: writer}
}

// Export writes every aggregate matching filter, in aggregate id order.
// A positive filter.Limit caps the number of rows; zero exports everything.
// Returns the number of exported aggregates.
func (s *Service) Export(ctx context.Context, filter wallethistory.Filter) (int, error) {
	aggregates, err := s.collect(ctx, filter)
	if err != nil {
		return 0, err
	}

	if err := s.writer.Write(ctx, buildValues(aggregates)); err != nil {
		return 0, fmt.Errorf("writing wallet history: %w", err)
	}

	slog.Info("wallet history exported", "rows", len(aggregates))
	return len(aggregates), nil
}

func (s *Service) collect(ctx context.Context, filter wallethistory.Filter) ([]domain.WalletHistoryAggregate, error) {
	var (
		all   []domain.WalletHistoryAggregate
		after = uuid.Nil
	)
	for {
		size := pageSize
		if filter.Limit > 0 {
			size = min(size, filter.Limit-len(all))
		}
		if size <= 0 {
			return all, nil
		}

		page, err := s.wallets.ListAfter(ctx, filter, after, size)
		if err != nil {
			return nil, fmt.Errorf("listing wallet history after %s: %w", after, err)
		}
		all = append(all, page...)
		if len(page) < size {
			return all, nil
		}
		after = page[len(page)-1].AggregateID
	}
}

// buildValues builds the sheet data including the header row.
// Columns: Aggregate ID | Blockchain | Address | Asset | Address type | State | Created | Updated
func buildValues(aggregates []domain.WalletHistoryAggregate) [][]any {
	rows := lo.Map(aggregates, func(a domain.WalletHistoryAggregate, _ int) []any {
		return []any{
			a.AggregateID.String(),
			a.BlockchainType,
			a.WalletAddress,
			a.AssetID,
			string(a.WalletAddressType),
			string(a.State),
			a.CreatedAt.UTC().Format(time.RFC3339),
			a.UpdatedAt.UTC().Format(time.RFC3339),
		}
	})
	return append([][]any{header}, rows...)
}
