package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mtlprog/cashin-detector/internal/blockchainapi"
	"github.com/mtlprog/cashin-detector/internal/lease"
	"github.com/mtlprog/cashin-detector/internal/scanner"
)

// BalanceScanner defines the scanner used by the worker.
type BalanceScanner interface {
	BlockchainType() string
	Scan(ctx context.Context) (scanner.Result, error)
}

// ScanWorker periodically scans the deposit wallets of one blockchain.
type ScanWorker struct {
	scanner  BalanceScanner
	interval time.Duration
	grace    time.Duration
	locker   lease.Locker
	log      *slog.Logger
}

// NewScanWorker creates a new ScanWorker. A nil locker means every tick runs.
func NewScanWorker(s BalanceScanner, interval, grace time.Duration, locker lease.Locker) *ScanWorker {
	if locker == nil {
		locker = lease.NopLocker{}
	}
	return &ScanWorker{
		scanner:  s,
		interval: interval,
		grace:    grace,
		locker:   locker,
		log:      slog.With("component", "worker", "blockchain", s.BlockchainType()),
	}
}

// Run starts the scan loop. It blocks until the context is cancelled and the
// in-flight scan, if any, has finished or exceeded the grace period.
func (w *ScanWorker) Run(ctx context.Context) {
	w.log.Info("ScanWorker: starting", "interval", w.interval)

	// Scan immediately on startup
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("ScanWorker: shutting down")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ScanWorker) tick(parent context.Context) {
	if parent.Err() != nil {
		return
	}

	ctx, cancel := w.graceContext(parent)
	defer cancel()

	// The lease covers most of the period so that replicas do not rescan
	// the same blockchain within one period. It is kept after a successful
	// scan and released on failure so another replica may retry.
	l, ok, err := w.locker.Acquire(ctx, w.scanner.BlockchainType(), w.interval*9/10)
	if err != nil {
		w.log.Error("ScanWorker: acquiring scan lease failed", "error", err)
		return
	}
	if !ok {
		w.log.Debug("ScanWorker: scan lease held elsewhere, skipping tick")
		return
	}

	result, err := w.scanner.Scan(ctx)
	var skipped *blockchainapi.SkippedEntriesError
	switch {
	case err == nil:
		w.log.Info("ScanWorker: scan completed",
			"balances", result.BalancesCount,
			"detected", result.DetectedCount,
			"elapsed", result.TotalElapsed)
	case errors.As(err, &skipped):
		w.log.Warn("ScanWorker: scan completed with skipped entries",
			"balances", result.BalancesCount,
			"detected", result.DetectedCount,
			"skipped", result.SkippedCount,
			"error", err)
	default:
		w.log.Error("ScanWorker: scan failed", "error", err)
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			w.log.Warn("ScanWorker: releasing scan lease failed", "error", err)
		}
	}
}

// graceContext detaches the scan from parent cancellation for at most the
// grace period.
func (w *ScanWorker) graceContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, func() {
		w.log.Info("ScanWorker: shutdown requested, waiting for in-flight scan", "grace", w.grace)
		time.AfterFunc(w.grace, cancel)
	})
	return ctx, func() {
		stop()
		cancel()
	}
}
