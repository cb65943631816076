package blockchainapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mtlprog/cashin-detector/internal/domain"
)

// GetAllAssets pages through the integration's asset list and returns it keyed by asset id.
// batchSize is used as the page size.
func (c *Client) GetAllAssets(ctx context.Context, batchSize int) (map[string]domain.Asset, error) {
	assets := make(map[string]domain.Asset)
	continuation := ""

	for {
		var page paginationResponse[assetResponse]
		if err := c.getJSON(ctx, pagePath("/api/assets", batchSize, continuation), &page); err != nil {
			return nil, fmt.Errorf("fetching %s assets: %w", c.blockchainType, err)
		}

		for _, a := range page.Items {
			assets[a.AssetID] = domain.Asset{
				ID:       a.AssetID,
				Address:  a.Address,
				Name:     a.Name,
				Accuracy: a.Accuracy,
			}
		}

		if page.Continuation == "" || len(page.Items) == 0 {
			break
		}
		continuation = page.Continuation
	}

	return assets, nil
}

func pagePath(base string, take int, continuation string) string {
	params := url.Values{}
	params.Set("take", strconv.Itoa(take))
	if continuation != "" {
		params.Set("continuation", continuation)
	}
	return base + "?" + params.Encode()
}
