package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtlprog/cashin-detector/internal/lease"
	"github.com/mtlprog/cashin-detector/internal/scanner"
)

type mockScanner struct {
	callCount atomic.Int32
	delay     time.Duration
	err       error
	cancelled atomic.Bool
}

func (m *mockScanner) BlockchainType() string { return "Bitcoin" }

func (m *mockScanner) Scan(ctx context.Context) (scanner.Result, error) {
	m.callCount.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			m.cancelled.Store(true)
			return scanner.Result{}, ctx.Err()
		}
	}
	return scanner.Result{BlockchainType: "Bitcoin"}, m.err
}

type denyLocker struct{ calls atomic.Int32 }

func (d *denyLocker) Acquire(context.Context, string, time.Duration) (lease.Lease, bool, error) {
	d.calls.Add(1)
	return nil, false, nil
}

type countingLease struct{ released atomic.Int32 }

func (c *countingLease) Release(context.Context) error {
	c.released.Add(1)
	return nil
}

type grantLocker struct{ lease *countingLease }

func (g grantLocker) Acquire(context.Context, string, time.Duration) (lease.Lease, bool, error) {
	return g.lease, true, nil
}

func TestScanWorkerRunsAndShutdown(t *testing.T) {
	mock := &mockScanner{}
	w := NewScanWorker(mock, 50*time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	// initial scan + at least 2 ticks in 200ms with 50ms interval
	if got := mock.callCount.Load(); got < 3 {
		t.Errorf("call count = %d, want >= 3", got)
	}
}

func TestScanWorkerContinuesAfterError(t *testing.T) {
	mock := &mockScanner{err: errors.New("integration down")}
	w := NewScanWorker(mock, 30*time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := mock.callCount.Load(); got < 2 {
		t.Errorf("call count = %d, want >= 2 (errors must not stop the loop)", got)
	}
}

func TestScanWorkerNoTickAfterCancel(t *testing.T) {
	mock := &mockScanner{}
	w := NewScanWorker(mock, time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w.Run(ctx)

	if got := mock.callCount.Load(); got != 0 {
		t.Errorf("call count = %d, want 0 for an already cancelled context", got)
	}
}

func TestScanWorkerInFlightScanFinishesWithinGrace(t *testing.T) {
	mock := &mockScanner{delay: 100 * time.Millisecond}
	w := NewScanWorker(mock, time.Hour, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	w.Run(ctx)

	if mock.cancelled.Load() {
		t.Error("in-flight scan was cancelled before the grace period elapsed")
	}
}

func TestScanWorkerInFlightScanCancelledAfterGrace(t *testing.T) {
	mock := &mockScanner{delay: 5 * time.Second}
	w := NewScanWorker(mock, time.Hour, 30*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	w.Run(ctx)

	if !mock.cancelled.Load() {
		t.Error("in-flight scan must be cancelled once the grace period elapses")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run returned after %v, want well under the scan delay", elapsed)
	}
}

func TestScanWorkerSkipsTickWithoutLease(t *testing.T) {
	mock := &mockScanner{}
	locker := &denyLocker{}
	w := NewScanWorker(mock, 20*time.Millisecond, time.Second, locker)

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := mock.callCount.Load(); got != 0 {
		t.Errorf("scans = %d, want 0 without the lease", got)
	}
	if locker.calls.Load() < 2 {
		t.Errorf("lease attempts = %d, want >= 2", locker.calls.Load())
	}
}

func TestScanWorkerReleasesLeaseOnFailure(t *testing.T) {
	l := &countingLease{}
	failing := &mockScanner{err: errors.New("boom")}
	w := NewScanWorker(failing, time.Hour, time.Second, grantLocker{lease: l})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if got := l.released.Load(); got != 1 {
		t.Errorf("released = %d, want 1 after a failed scan", got)
	}

	l2 := &countingLease{}
	w = NewScanWorker(&mockScanner{}, time.Hour, time.Second, grantLocker{lease: l2})
	ctx2, cancel2 := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel2()
	w.Run(ctx2)

	if got := l2.released.Load(); got != 0 {
		t.Errorf("released = %d, want 0 after a successful scan", got)
	}
}
