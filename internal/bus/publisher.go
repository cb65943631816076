package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mtlprog/cashin-detector/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends commands and events to Kafka.
type Publisher struct {
	writer        messageWriter
	commandsTopic string
	eventsTopic   string
}

// NewPublisher creates a synchronous publisher. Messages carry their own topic.
func NewPublisher(brokers []string, commandsTopic, eventsTopic string) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
	}, commandsTopic, eventsTopic)
}

func newPublisher(w messageWriter, commandsTopic, eventsTopic string) *Publisher {
	return &Publisher{writer: w, commandsTopic: commandsTopic, eventsTopic: eventsTopic}
}

// Publish encodes msg and writes it to topic.
func (p *Publisher) Publish(ctx context.Context, topic string, msg Message) error {
	m, err := Encode(topic, msg)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, m); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", msg.MessageType(), topic, err)
	}
	return nil
}

// SendCommand sends a monitoring command to the commands topic.
func (p *Publisher) SendCommand(ctx context.Context, cmd domain.MonitoringTransactionHistoryCommand) error {
	return p.Publish(ctx, p.commandsTopic, cmd)
}

// PublishDepositDetected publishes a detection event to the events topic.
func (p *Publisher) PublishDepositDetected(ctx context.Context, event domain.DepositBalanceDetectedEvent) error {
	return p.Publish(ctx, p.eventsTopic, event)
}

// WriteMessages writes raw messages, used for dead-lettering.
func (p *Publisher) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// LogPublisher logs commands and events instead of sending them. Used when no
// Kafka brokers are configured.
type LogPublisher struct{}

func (LogPublisher) SendCommand(_ context.Context, cmd domain.MonitoringTransactionHistoryCommand) error {
	slog.Info("bus disabled: command not sent",
		"type", cmd.MessageType(),
		"blockchain", cmd.BlockchainType,
		"address", cmd.WalletAddress,
		"address_type", cmd.WalletAddressType)
	return nil
}

func (LogPublisher) PublishDepositDetected(_ context.Context, e domain.DepositBalanceDetectedEvent) error {
	slog.Info("bus disabled: deposit detected",
		"blockchain", e.BlockchainType,
		"address", e.DepositWalletAddress,
		"asset", e.BlockchainAssetID,
		"amount", e.Amount.String(),
		"hot_wallet", e.HotWalletAddress)
	return nil
}
