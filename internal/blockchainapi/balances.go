package blockchainapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mtlprog/cashin-detector/internal/domain"
)

// AccuracyResolver returns the accuracy of an asset. Errors wrapping
// domain.ErrUnknownAsset are treated as per-entry failures; any other error
// aborts the enumeration.
type AccuracyResolver func(ctx context.Context, assetID string) (int, error)

// BatchHandler receives one page of converted wallet balances.
type BatchHandler func(ctx context.Context, batch []domain.WalletBalance) error

// SkippedEntriesError lists the balance entries that were skipped during an
// otherwise complete enumeration.
type SkippedEntriesError struct {
	Errs []error
}

func (e *SkippedEntriesError) Error() string {
	return fmt.Sprintf("%d balance entries skipped: %v", len(e.Errs), errors.Join(e.Errs...))
}

func (e *SkippedEntriesError) Unwrap() []error {
	return e.Errs
}

// EnumerationStatistics summarizes one pass over the wallet balances.
type EnumerationStatistics struct {
	ItemsCount   int           `json:"itemsCount"`
	BatchesCount int           `json:"batchesCount"`
	SkippedCount int           `json:"skippedCount"`
	Elapsed      time.Duration `json:"elapsed"`
}

// EnumerateWalletBalanceBatches pages through the wallet balances of the integration,
// converts raw balances using the resolved asset accuracy and passes every
// non-empty page to onBatch.
//
// Entries with an unresolvable asset or an unparseable balance are skipped;
// their errors are returned after the last page together with complete
// statistics as a *SkippedEntriesError. Transport errors and onBatch errors stop the enumeration.
func (c *Client) EnumerateWalletBalanceBatches(
	ctx context.Context,
	batchSize int,
	resolve AccuracyResolver,
	onBatch BatchHandler,
) (EnumerationStatistics, error) {
	start := time.Now()
	var stats EnumerationStatistics
	var entryErrs []error
	continuation := ""

	for {
		var page paginationResponse[walletBalanceResponse]
		if err := c.getJSON(ctx, pagePath("/api/balances", batchSize, continuation), &page); err != nil {
			stats.Elapsed = time.Since(start)
			return stats, fmt.Errorf("fetching %s balances: %w", c.blockchainType, err)
		}

		batch := make([]domain.WalletBalance, 0, len(page.Items))
		for _, item := range page.Items {
			accuracy, err := resolve(ctx, item.AssetID)
			if err != nil {
				if !errors.Is(err, domain.ErrUnknownAsset) {
					stats.Elapsed = time.Since(start)
					return stats, fmt.Errorf("resolving accuracy of %s: %w", item.AssetID, err)
				}
				stats.SkippedCount++
				entryErrs = append(entryErrs, fmt.Errorf("wallet %s: %w", item.Address, err))
				continue
			}

			amount, err := domain.ScaleRawBalance(item.Balance, accuracy)
			if err != nil {
				stats.SkippedCount++
				entryErrs = append(entryErrs, fmt.Errorf("wallet %s asset %s: %w", item.Address, item.AssetID, err))
				continue
			}

			batch = append(batch, domain.WalletBalance{
				Address: item.Address,
				AssetID: item.AssetID,
				Balance: amount,
				Block:   item.Block,
			})
		}

		if len(batch) > 0 {
			stats.BatchesCount++
			stats.ItemsCount += len(batch)
			if err := onBatch(ctx, batch); err != nil {
				stats.Elapsed = time.Since(start)
				return stats, fmt.Errorf("processing %s balance batch %d: %w", c.blockchainType, stats.BatchesCount, err)
			}
		}

		if page.Continuation == "" || len(page.Items) == 0 {
			break
		}
		continuation = page.Continuation
	}

	stats.Elapsed = time.Since(start)
	if len(entryErrs) > 0 {
		return stats, &SkippedEntriesError{Errs: entryErrs}
	}
	return stats, nil
}
