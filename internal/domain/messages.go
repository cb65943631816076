package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Message type names carried in the bus envelope.
const (
	MessageTypeWalletCreated                = "WalletCreatedEvent"
	MessageTypeWalletDeleted                = "WalletDeletedEvent"
	MessageTypeMonitoringTransactionHistory = "MonitoringTransactionHistoryCommand"
	MessageTypeDepositBalanceDetected       = "DepositBalanceDetectedEvent"
)

// WalletCreatedEvent is published by the wallet management service when a deposit wallet is created.
type WalletCreatedEvent struct {
	_msgpack struct{} `msgpack:",as_array"`

	IntegrationLayerID string `json:"integrationLayerId"`
	Address            string `json:"address"`
	AssetID            string `json:"assetId"`
}

func (WalletCreatedEvent) MessageType() string { return MessageTypeWalletCreated }

func (e WalletCreatedEvent) PartitionKey() string { return e.IntegrationLayerID + ":" + e.Address }

// WalletDeletedEvent is published by the wallet management service when a deposit wallet is deleted.
type WalletDeletedEvent struct {
	_msgpack struct{} `msgpack:",as_array"`

	IntegrationLayerID string `json:"integrationLayerId"`
	Address            string `json:"address"`
}

func (WalletDeletedEvent) MessageType() string { return MessageTypeWalletDeleted }

func (e WalletDeletedEvent) PartitionKey() string { return e.IntegrationLayerID + ":" + e.Address }

// MonitoringTransactionHistoryCommand asks the transactions history monitor to start observing a wallet.
type MonitoringTransactionHistoryCommand struct {
	_msgpack struct{} `msgpack:",as_array"`

	BlockchainType    string            `json:"blockchainType"`
	WalletAddress     string            `json:"walletAddress"`
	WalletAddressType WalletAddressType `json:"walletAddressType"`
}

func (MonitoringTransactionHistoryCommand) MessageType() string {
	return MessageTypeMonitoringTransactionHistory
}

func (c MonitoringTransactionHistoryCommand) PartitionKey() string {
	return c.BlockchainType + ":" + c.WalletAddress
}

// DepositBalanceDetectedEvent reports a positive balance on a deposit wallet.
// On the wire it is a five element array: blockchain type, deposit wallet
// address, blockchain asset id, amount, hot wallet address.
type DepositBalanceDetectedEvent struct {
	BlockchainType       string          `json:"blockchainType"`
	DepositWalletAddress string          `json:"depositWalletAddress"`
	BlockchainAssetID    string          `json:"blockchainAssetId"`
	Amount               decimal.Decimal `json:"amount"`
	HotWalletAddress     string          `json:"hotWalletAddress"`
}

const depositBalanceDetectedFields = 5

func (DepositBalanceDetectedEvent) MessageType() string { return MessageTypeDepositBalanceDetected }

func (e DepositBalanceDetectedEvent) PartitionKey() string {
	return e.BlockchainType + ":" + e.DepositWalletAddress
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (e DepositBalanceDetectedEvent) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(depositBalanceDetectedFields); err != nil {
		return err
	}
	for _, s := range []string{
		e.BlockchainType,
		e.DepositWalletAddress,
		e.BlockchainAssetID,
		e.Amount.String(),
		e.HotWalletAddress,
	} {
		if err := enc.EncodeString(s); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (e *DepositBalanceDetectedEvent) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != depositBalanceDetectedFields {
		return fmt.Errorf("deposit balance detected event: got %d fields, want %d", n, depositBalanceDetectedFields)
	}

	var fields [depositBalanceDetectedFields]string
	for i := range fields {
		if fields[i], err = dec.DecodeString(); err != nil {
			return fmt.Errorf("deposit balance detected event field %d: %w", i, err)
		}
	}

	amount, err := decimal.NewFromString(fields[3])
	if err != nil {
		return fmt.Errorf("deposit balance detected event amount: %w", err)
	}

	*e = DepositBalanceDetectedEvent{
		BlockchainType:       fields[0],
		DepositWalletAddress: fields[1],
		BlockchainAssetID:    fields[2],
		Amount:               amount,
		HotWalletAddress:     fields[4],
	}
	return nil
}
