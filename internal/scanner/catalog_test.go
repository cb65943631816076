package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mtlprog/cashin-detector/internal/domain"
)

type mockAssetFetcher struct {
	mu       sync.Mutex
	versions []map[string]domain.Asset // returned in order; last one repeats
	err      error
	calls    atomic.Int32
}

func (m *mockAssetFetcher) GetAllAssets(_ context.Context, _ int) (map[string]domain.Asset, error) {
	n := int(m.calls.Add(1))
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := min(n-1, len(m.versions)-1)
	return m.versions[idx], nil
}

func assets(list ...domain.Asset) map[string]domain.Asset {
	out := make(map[string]domain.Asset, len(list))
	for _, a := range list {
		out[a.ID] = a
	}
	return out
}

func TestCatalogLoadsLazily(t *testing.T) {
	fetcher := &mockAssetFetcher{versions: []map[string]domain.Asset{
		assets(domain.Asset{ID: "BTC", Accuracy: 8}),
	}}
	c := NewAssetCatalog("Bitcoin", fetcher, 100, nil)

	if got := fetcher.calls.Load(); got != 0 {
		t.Fatalf("catalog fetched %d times before first use", got)
	}

	acc, err := c.Resolve(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc != 8 {
		t.Errorf("accuracy = %d, want 8", acc)
	}

	// Cached from now on.
	if _, err := c.Resolve(context.Background(), "BTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestCatalogRefreshesOnceOnMiss(t *testing.T) {
	fetcher := &mockAssetFetcher{versions: []map[string]domain.Asset{
		assets(domain.Asset{ID: "BTC", Accuracy: 8}),
		assets(domain.Asset{ID: "BTC", Accuracy: 8}, domain.Asset{ID: "USDT", Accuracy: 6}),
	}}
	c := NewAssetCatalog("Bitcoin", fetcher, 100, nil)
	ctx := context.Background()

	if _, err := c.Resolve(ctx, "BTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acc, err := c.Resolve(ctx, "USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc != 6 {
		t.Errorf("USDT accuracy = %d, want 6", acc)
	}
	if got := fetcher.calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestCatalogUnknownAfterRefresh(t *testing.T) {
	fetcher := &mockAssetFetcher{versions: []map[string]domain.Asset{
		assets(domain.Asset{ID: "BTC", Accuracy: 8}),
	}}
	c := NewAssetCatalog("Bitcoin", fetcher, 100, nil)
	ctx := context.Background()

	if _, err := c.Resolve(ctx, "BTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := fetcher.calls.Load()

	_, err := c.Resolve(ctx, "DOGE")
	if !errors.Is(err, domain.ErrUnknownAsset) {
		t.Fatalf("err = %v, want ErrUnknownAsset", err)
	}
	if got := fetcher.calls.Load() - before; got != 1 {
		t.Errorf("refreshes for unknown asset = %d, want exactly 1", got)
	}
	if c.Len() != 1 {
		t.Errorf("catalog size = %d, want 1", c.Len())
	}
}

func TestCatalogFailedRefreshKeepsCache(t *testing.T) {
	fetcher := &mockAssetFetcher{versions: []map[string]domain.Asset{
		assets(domain.Asset{ID: "BTC", Accuracy: 8}),
	}}
	c := NewAssetCatalog("Bitcoin", fetcher, 100, nil)
	ctx := context.Background()
	if _, err := c.Resolve(ctx, "BTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fetcher.err = errors.New("integration down")
	_, err := c.Resolve(ctx, "USDT")
	if err == nil || errors.Is(err, domain.ErrUnknownAsset) {
		t.Fatalf("err = %v, want infrastructure error", err)
	}

	acc, err := c.Resolve(ctx, "BTC")
	if err != nil || acc != 8 {
		t.Errorf("cached BTC lost after failed refresh: acc=%d err=%v", acc, err)
	}
}

func TestCatalogConcurrentResolve(t *testing.T) {
	fetcher := &mockAssetFetcher{versions: []map[string]domain.Asset{
		assets(domain.Asset{ID: "BTC", Accuracy: 8}, domain.Asset{ID: "USDT", Accuracy: 6}),
	}}
	c := NewAssetCatalog("Bitcoin", fetcher, 100, nil)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "BTC"
			if i%2 == 0 {
				id = "USDT"
			}
			if _, err := c.Resolve(context.Background(), id); err != nil {
				t.Errorf("Resolve(%s): %v", id, err)
			}
		}()
	}
	wg.Wait()

	if c.Len() != 2 {
		t.Errorf("catalog size = %d, want 2", c.Len())
	}
}
