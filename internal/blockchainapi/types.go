package blockchainapi

// paginationResponse is the continuation-token page envelope used by the integration API.
type paginationResponse[T any] struct {
	Continuation string `json:"continuation"`
	Items        []T    `json:"items"`
}

// assetResponse represents an item of GET /api/assets.
type assetResponse struct {
	AssetID  string `json:"assetId"`
	Address  string `json:"address"`
	Name     string `json:"name"`
	Accuracy int    `json:"accuracy"`
}

// walletBalanceResponse represents an item of GET /api/balances.
// Balance is the raw integer amount in the asset's smallest unit.
type walletBalanceResponse struct {
	Address string `json:"address"`
	AssetID string `json:"assetId"`
	Balance string `json:"balance"`
	Block   int64  `json:"block"`
}
