package saga

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mtlprog/cashin-detector/internal/bus"
	"github.com/mtlprog/cashin-detector/internal/chaos"
	"github.com/mtlprog/cashin-detector/internal/domain"
	"github.com/mtlprog/cashin-detector/internal/metrics"
	"github.com/mtlprog/cashin-detector/internal/wallethistory"
)

// CommandSender delivers monitoring commands.
type CommandSender interface {
	SendCommand(ctx context.Context, cmd domain.MonitoringTransactionHistoryCommand) error
}

// Options tunes saga behaviour.
type Options struct {
	// RearmStoppedWallets restarts observation when a wallet-created event
	// arrives for a stopped wallet. Disabled by default.
	RearmStoppedWallets bool
}

// WalletHistorySaga keeps the observation state of deposit wallets in sync
// with wallet lifecycle events.
type WalletHistorySaga struct {
	repo    wallethistory.Repository
	sender  CommandSender
	chaos   chaos.Injector
	metrics *metrics.Collector
	opts    Options
	log     *slog.Logger
}

// New creates a saga. A nil injector disables fault injection.
func New(repo wallethistory.Repository, sender CommandSender, injector chaos.Injector, m *metrics.Collector, opts Options) *WalletHistorySaga {
	if injector == nil {
		injector = chaos.Nop{}
	}
	return &WalletHistorySaga{
		repo:    repo,
		sender:  sender,
		chaos:   injector,
		metrics: m,
		opts:    opts,
		log:     slog.With("component", "saga"),
	}
}

// Register binds the saga handlers to the dispatcher.
func (s *WalletHistorySaga) Register(d *bus.Dispatcher) {
	bus.Register(d, s.HandleWalletCreated)
	bus.Register(d, s.HandleWalletDeleted)
}

// HandleWalletCreated starts observation of a new deposit wallet and asks the
// transactions history monitor to watch it. Redelivery is safe: the aggregate
// is created at most once and the command is idempotent downstream.
func (s *WalletHistorySaga) HandleWalletCreated(ctx context.Context, evt domain.WalletCreatedEvent) error {
	log := s.log.With(
		"event", evt.MessageType(),
		"blockchain", evt.IntegrationLayerID,
		"address", evt.Address,
		"asset", evt.AssetID)

	outcome, err := s.walletCreated(ctx, evt)
	if err != nil {
		log.Error("failed to handle wallet created event", "error", err)
		s.metrics.SagaEvent(evt.MessageType(), metrics.OutcomeFailed)
		return err
	}
	log.Debug("wallet created event handled", "outcome", outcome)
	s.metrics.SagaEvent(evt.MessageType(), outcome)
	return nil
}

func (s *WalletHistorySaga) walletCreated(ctx context.Context, evt domain.WalletCreatedEvent) (string, error) {
	agg, err := s.repo.GetOrAdd(ctx, evt.IntegrationLayerID, evt.Address, func() domain.WalletHistoryAggregate {
		return domain.CreateNewWalletHistory(evt.IntegrationLayerID, evt.Address, evt.AssetID, domain.WalletAddressTypeTo)
	})
	if err != nil {
		return "", fmt.Errorf("getting wallet history: %w", err)
	}

	if err := s.chaos.Meow(agg.AggregateID.String()); err != nil {
		return "", err
	}

	if !agg.IsStarted() {
		if !s.opts.RearmStoppedWallets {
			return metrics.OutcomeSkipped, nil
		}
		if agg, err = agg.RestartObservation(); err != nil {
			return "", err
		}
		if err := s.repo.Save(ctx, agg); err != nil {
			return "", fmt.Errorf("saving restarted wallet history: %w", err)
		}
	}

	if err := s.sender.SendCommand(ctx, domain.MonitoringTransactionHistoryCommand{
		BlockchainType:    agg.BlockchainType,
		WalletAddress:     agg.WalletAddress,
		WalletAddressType: agg.WalletAddressType,
	}); err != nil {
		return "", fmt.Errorf("sending monitoring command: %w", err)
	}
	return metrics.OutcomeHandled, nil
}

// HandleWalletDeleted stops observation of a deposit wallet. Unknown wallets
// are ignored.
func (s *WalletHistorySaga) HandleWalletDeleted(ctx context.Context, evt domain.WalletDeletedEvent) error {
	log := s.log.With(
		"event", evt.MessageType(),
		"blockchain", evt.IntegrationLayerID,
		"address", evt.Address)

	outcome, err := s.walletDeleted(ctx, evt)
	if err != nil {
		log.Error("failed to handle wallet deleted event", "error", err)
		s.metrics.SagaEvent(evt.MessageType(), metrics.OutcomeFailed)
		return err
	}
	log.Debug("wallet deleted event handled", "outcome", outcome)
	s.metrics.SagaEvent(evt.MessageType(), outcome)
	return nil
}

func (s *WalletHistorySaga) walletDeleted(ctx context.Context, evt domain.WalletDeletedEvent) (string, error) {
	agg, ok, err := s.repo.TryGet(ctx, evt.IntegrationLayerID, evt.Address)
	if err != nil {
		return "", fmt.Errorf("getting wallet history: %w", err)
	}
	if !ok {
		return metrics.OutcomeSkipped, nil
	}

	if err := s.chaos.Meow(agg.AggregateID.String()); err != nil {
		return "", err
	}

	stopped, err := agg.StopObservation(domain.WalletAddressTypeBoth)
	if err != nil {
		return "", err
	}
	if err := s.repo.Save(ctx, stopped); err != nil {
		return "", fmt.Errorf("saving stopped wallet history: %w", err)
	}
	return metrics.OutcomeHandled, nil
}
