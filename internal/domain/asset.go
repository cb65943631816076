package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrUnknownAsset indicates that an asset id is absent from the blockchain's asset catalog.
var ErrUnknownAsset = errors.New("unknown asset")

// Asset describes an asset as exposed by a blockchain integration API.
type Asset struct {
	ID       string `json:"assetId"`
	Address  string `json:"address,omitempty"`
	Name     string `json:"name,omitempty"`
	Accuracy int    `json:"accuracy"`
}

// WalletBalance is a single (wallet, asset) balance observed during one scan.
// Balance is already scaled by the asset accuracy.
type WalletBalance struct {
	Address string          `json:"address"`
	AssetID string          `json:"assetId"`
	Balance decimal.Decimal `json:"balance"`
	Block   int64           `json:"block"`
}

// IsPositive reports whether the balance is strictly greater than zero.
func (b WalletBalance) IsPositive() bool {
	return b.Balance.IsPositive()
}

// UnknownAssetError returns an error wrapping ErrUnknownAsset for the given asset id.
func UnknownAssetError(assetID string) error {
	return fmt.Errorf("asset %q: %w", assetID, ErrUnknownAsset)
}
