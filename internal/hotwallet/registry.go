package hotwallet

import (
	"errors"
	"fmt"
)

// ErrNotConfigured indicates that no hot wallet is configured for a blockchain type.
var ErrNotConfigured = errors.New("hot wallet not configured")

// Registry maps blockchain types to the operator's hot wallet address.
type Registry struct {
	addresses map[string]string
}

// NewRegistry creates a Registry from a blockchain type → address mapping.
// The mapping is copied; empty addresses are ignored.
func NewRegistry(addresses map[string]string) *Registry {
	r := &Registry{addresses: make(map[string]string, len(addresses))}
	for blockchainType, addr := range addresses {
		if addr != "" {
			r.addresses[blockchainType] = addr
		}
	}
	return r
}

// Get returns the hot wallet address of the blockchain type.
func (r *Registry) Get(blockchainType string) (string, error) {
	addr, ok := r.addresses[blockchainType]
	if !ok {
		return "", fmt.Errorf("%s: %w", blockchainType, ErrNotConfigured)
	}
	return addr, nil
}
