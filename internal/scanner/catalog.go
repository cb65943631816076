package scanner

import (
	"context"
	"fmt"
	"sync"

	"github.com/mtlprog/cashin-detector/internal/domain"
	"github.com/mtlprog/cashin-detector/internal/metrics"
)

// AssetFetcher loads the full asset list of a blockchain integration.
type AssetFetcher interface {
	GetAllAssets(ctx context.Context, batchSize int) (map[string]domain.Asset, error)
}

// AssetCatalog caches the asset list of one blockchain. It is loaded lazily
// and refreshed only when an asset id is missing.
type AssetCatalog struct {
	blockchainType string
	fetcher        AssetFetcher
	batchSize      int
	metrics        *metrics.Collector

	mu     sync.RWMutex
	assets map[string]domain.Asset

	// refreshMu serializes refreshes; readers only wait on mu for the swap.
	refreshMu sync.Mutex
}

// NewAssetCatalog creates an empty catalog for the blockchain type.
func NewAssetCatalog(blockchainType string, fetcher AssetFetcher, batchSize int, m *metrics.Collector) *AssetCatalog {
	return &AssetCatalog{
		blockchainType: blockchainType,
		fetcher:        fetcher,
		batchSize:      batchSize,
		metrics:        m,
		assets:         make(map[string]domain.Asset),
	}
}

func (c *AssetCatalog) get(assetID string) (domain.Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.assets[assetID]
	return a, ok
}

func (c *AssetCatalog) set(assets map[string]domain.Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.assets = assets
}

// Len returns the number of cached assets.
func (c *AssetCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.assets)
}

// Refresh reloads the catalog from the integration. On failure the cached
// catalog is kept unchanged.
func (c *AssetCatalog) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	assets, err := c.fetcher.GetAllAssets(ctx, c.batchSize)
	if err != nil {
		return fmt.Errorf("refreshing %s asset catalog: %w", c.blockchainType, err)
	}
	c.set(assets)
	c.metrics.CatalogRefreshed(c.blockchainType)
	return nil
}

// Resolve returns the accuracy of the asset. A cache miss triggers exactly one
// refresh; an asset still missing afterwards yields an error wrapping
// domain.ErrUnknownAsset.
func (c *AssetCatalog) Resolve(ctx context.Context, assetID string) (int, error) {
	if a, ok := c.get(assetID); ok {
		return a.Accuracy, nil
	}

	if err := c.Refresh(ctx); err != nil {
		return 0, err
	}

	if a, ok := c.get(assetID); ok {
		return a.Accuracy, nil
	}
	return 0, fmt.Errorf("%s: %w", c.blockchainType, domain.UnknownAssetError(assetID))
}
