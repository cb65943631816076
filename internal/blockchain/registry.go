// Package blockchain resolves the enabled blockchain integrations once at startup.
package blockchain

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/cashin-detector/internal/blockchainapi"
	"github.com/mtlprog/cashin-detector/internal/config"
	"github.com/mtlprog/cashin-detector/internal/hotwallet"
)

// ErrNotRegistered indicates that a blockchain type is unknown or disabled.
var ErrNotRegistered = errors.New("blockchain not registered")

// Bundle groups everything the service owns for one enabled blockchain type.
type Bundle struct {
	Type             string
	APIURL           string
	HotWalletAddress string
	Client           *blockchainapi.Client
}

// Registry maps enabled blockchain types to their bundles.
type Registry struct {
	bundles map[string]Bundle
}

// NewRegistry builds a bundle for every enabled blockchain. Disabled blockchains are skipped.
func NewRegistry(blockchains []config.BlockchainConfig, hotWallets *hotwallet.Registry, retryMax int, retryBaseDelay time.Duration) (*Registry, error) {
	r := &Registry{bundles: make(map[string]Bundle)}

	enabled := lo.Filter(blockchains, func(b config.BlockchainConfig, _ int) bool {
		if b.Disabled {
			slog.Info("blockchain disabled, skipping registration", "blockchain", b.Type)
		}
		return !b.Disabled
	})

	for _, b := range enabled {
		hw, err := hotWallets.Get(b.Type)
		if err != nil {
			return nil, fmt.Errorf("registering blockchain %s: %w", b.Type, err)
		}

		slog.Info("registering blockchain", "blockchain", b.Type, "api", b.APIURL, "hotWallet", hw)

		r.bundles[b.Type] = Bundle{
			Type:             b.Type,
			APIURL:           b.APIURL,
			HotWalletAddress: hw,
			Client:           blockchainapi.NewClient(b.Type, b.APIURL, retryMax, retryBaseDelay),
		}
	}

	return r, nil
}

// Get returns the bundle of an enabled blockchain type.
func (r *Registry) Get(blockchainType string) (Bundle, error) {
	b, ok := r.bundles[blockchainType]
	if !ok {
		return Bundle{}, fmt.Errorf("%s: %w", blockchainType, ErrNotRegistered)
	}
	return b, nil
}

// Types returns the registered blockchain types in sorted order.
func (r *Registry) Types() []string {
	types := lo.Keys(r.bundles)
	slices.Sort(types)
	return types
}

// Bundles returns all registered bundles ordered by type.
func (r *Registry) Bundles() []Bundle {
	return lo.Map(r.Types(), func(t string, _ int) Bundle {
		return r.bundles[t]
	})
}
