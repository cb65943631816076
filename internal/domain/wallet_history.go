package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition indicates a wallet history state change that the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid wallet history transition")

// WalletAddressType is the direction in which a wallet is observed.
type WalletAddressType string

const (
	WalletAddressTypeTo   WalletAddressType = "To"
	WalletAddressTypeFrom WalletAddressType = "From"
	WalletAddressTypeBoth WalletAddressType = "Both"
)

// Valid reports whether t is one of the known address types.
func (t WalletAddressType) Valid() bool {
	switch t {
	case WalletAddressTypeTo, WalletAddressTypeFrom, WalletAddressTypeBoth:
		return true
	}
	return false
}

// WalletHistoryState is the observation lifecycle state of a wallet.
type WalletHistoryState string

const (
	WalletHistoryStateStarted WalletHistoryState = "Started"
	WalletHistoryStateStopped WalletHistoryState = "Stopped"
)

// walletHistoryNamespace seeds the name-based aggregate ids.
var walletHistoryNamespace = uuid.MustParse("5d1e7c36-9a0b-4f59-8d5e-3b2f6a1c4e70")

// WalletHistoryAggregateID derives the aggregate id of a wallet from its
// integration-layer id (blockchain type) and address. The same pair always
// yields the same id.
func WalletHistoryAggregateID(integrationLayerID, address string) uuid.UUID {
	return uuid.NewSHA1(walletHistoryNamespace, []byte(integrationLayerID+"\x00"+address))
}

// WalletHistoryAggregate records whether a wallet is actively observed.
// Values are immutable; transitions return a new value.
type WalletHistoryAggregate struct {
	AggregateID       uuid.UUID          `json:"aggregateId"`
	BlockchainType    string             `json:"blockchainType"`
	WalletAddress     string             `json:"walletAddress"`
	AssetID           string             `json:"assetId"`
	WalletAddressType WalletAddressType  `json:"walletAddressType"`
	State             WalletHistoryState `json:"state"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// CreateNewWalletHistory builds a freshly started aggregate for the wallet.
func CreateNewWalletHistory(blockchainType, address, assetID string, addressType WalletAddressType) WalletHistoryAggregate {
	now := time.Now().UTC()
	return WalletHistoryAggregate{
		AggregateID:       WalletHistoryAggregateID(blockchainType, address),
		BlockchainType:    blockchainType,
		WalletAddress:     address,
		AssetID:           assetID,
		WalletAddressType: addressType,
		State:             WalletHistoryStateStarted,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// IsStarted reports whether the wallet is under active observation.
func (a WalletHistoryAggregate) IsStarted() bool {
	return a.State == WalletHistoryStateStarted
}

// StopObservation returns a copy of the aggregate in the Stopped state.
// Stopping an already stopped aggregate is allowed and only refreshes UpdatedAt.
func (a WalletHistoryAggregate) StopObservation(addressType WalletAddressType) (WalletHistoryAggregate, error) {
	if !addressType.Valid() {
		return WalletHistoryAggregate{}, fmt.Errorf("stopping %s with address type %q: %w", a.AggregateID, addressType, ErrInvalidTransition)
	}
	a.State = WalletHistoryStateStopped
	a.WalletAddressType = addressType
	a.UpdatedAt = time.Now().UTC()
	return a, nil
}

// RestartObservation returns a copy of a stopped aggregate moved back to Started.
func (a WalletHistoryAggregate) RestartObservation() (WalletHistoryAggregate, error) {
	if a.State != WalletHistoryStateStopped {
		return WalletHistoryAggregate{}, fmt.Errorf("restarting %s in state %s: %w", a.AggregateID, a.State, ErrInvalidTransition)
	}
	a.State = WalletHistoryStateStarted
	a.WalletAddressType = WalletAddressTypeTo
	a.UpdatedAt = time.Now().UTC()
	return a, nil
}
