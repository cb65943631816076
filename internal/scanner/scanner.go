package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/cashin-detector/internal/blockchainapi"
	"github.com/mtlprog/cashin-detector/internal/domain"
	"github.com/mtlprog/cashin-detector/internal/metrics"
)

// Client defines the subset of the blockchain integration API used by the scanner.
type Client interface {
	AssetFetcher
	EnumerateWalletBalanceBatches(
		ctx context.Context,
		batchSize int,
		resolve blockchainapi.AccuracyResolver,
		onBatch blockchainapi.BatchHandler,
	) (blockchainapi.EnumerationStatistics, error)
}

// EventPublisher delivers detection events downstream.
type EventPublisher interface {
	PublishDepositDetected(ctx context.Context, event domain.DepositBalanceDetectedEvent) error
}

// Result summarizes one scan of a blockchain.
type Result struct {
	BlockchainType    string        `json:"blockchainType"`
	BalancesCount     int           `json:"balancesCount"`
	WalletsCount      int           `json:"walletsCount"`
	BatchesCount      int           `json:"batchesCount"`
	SkippedCount      int           `json:"skippedCount"`
	DetectedCount     int           `json:"detectedCount"`
	ProcessingElapsed time.Duration `json:"processingElapsed"`
	TotalElapsed      time.Duration `json:"totalElapsed"`
}

// Scanner detects positive balances on the deposit wallets of one blockchain.
type Scanner struct {
	blockchainType string
	hotWallet      string
	client         Client
	publisher      EventPublisher
	catalog        *AssetCatalog
	batchSize      int
	metrics        *metrics.Collector
	log            *slog.Logger
}

// NewScanner creates a scanner with its own asset catalog.
func NewScanner(
	blockchainType, hotWallet string,
	client Client,
	publisher EventPublisher,
	batchSize int,
	m *metrics.Collector,
) *Scanner {
	return &Scanner{
		blockchainType: blockchainType,
		hotWallet:      hotWallet,
		client:         client,
		publisher:      publisher,
		catalog:        NewAssetCatalog(blockchainType, client, batchSize, m),
		batchSize:      batchSize,
		metrics:        m,
		log:            slog.With("component", "scanner", "blockchain", blockchainType),
	}
}

// BlockchainType returns the blockchain the scanner works on.
func (s *Scanner) BlockchainType() string {
	return s.blockchainType
}

// Scan enumerates all wallet balances once and publishes a detection event
// for every positive balance. Entries with unresolvable assets are skipped and
// reported in the returned error after the scan completes; transport and
// publish errors abort the scan.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{BlockchainType: s.blockchainType}
	wallets := make(map[string]struct{})

	stats, err := s.client.EnumerateWalletBalanceBatches(ctx, s.batchSize, s.catalog.Resolve,
		func(ctx context.Context, batch []domain.WalletBalance) error {
			for _, b := range batch {
				wallets[b.Address] = struct{}{}
			}

			positive := lo.Filter(batch, func(b domain.WalletBalance, _ int) bool {
				return b.IsPositive()
			})
			for _, b := range positive {
				if err := s.publisher.PublishDepositDetected(ctx, s.detection(b)); err != nil {
					return fmt.Errorf("publishing deposit of %s on %s: %w", b.AssetID, b.Address, err)
				}
				result.DetectedCount++
				s.metrics.DepositDetected(s.blockchainType)
			}
			return nil
		})

	result.BalancesCount = stats.ItemsCount
	result.BatchesCount = stats.BatchesCount
	result.SkippedCount = stats.SkippedCount
	result.WalletsCount = len(wallets)
	result.ProcessingElapsed = stats.Elapsed
	result.TotalElapsed = time.Since(start)

	var skipped *blockchainapi.SkippedEntriesError
	if err != nil && !errors.As(err, &skipped) {
		s.metrics.ScanFailed(s.blockchainType)
		return result, fmt.Errorf("scanning %s: %w", s.blockchainType, err)
	}

	s.metrics.ScanCompleted(s.blockchainType, result.BalancesCount, result.WalletsCount, result.SkippedCount, result.TotalElapsed)

	if result.BalancesCount > 0 {
		s.log.Info("positive balance on the deposit wallets is detected",
			"balances", result.BalancesCount,
			"wallets", result.WalletsCount,
			"batches", result.BatchesCount,
			"detected", result.DetectedCount,
			"processing_elapsed", result.ProcessingElapsed,
			"total_elapsed", result.TotalElapsed)
	}

	if skipped != nil {
		s.log.Warn("balance entries skipped", "count", result.SkippedCount, "error", skipped)
		return result, fmt.Errorf("scanning %s: %w", s.blockchainType, skipped)
	}
	return result, nil
}

func (s *Scanner) detection(b domain.WalletBalance) domain.DepositBalanceDetectedEvent {
	return domain.DepositBalanceDetectedEvent{
		BlockchainType:       s.blockchainType,
		DepositWalletAddress: b.Address,
		BlockchainAssetID:    b.AssetID,
		Amount:               b.Balance,
		HotWalletAddress:     s.hotWallet,
	}
}
