package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type deadLetterWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Brokers         []string
	GroupID         string
	Topic           string
	DeadLetterTopic string
	MaxAttempts     int
	BaseDelay       time.Duration
}

// Consumer reads messages of one topic, dispatches them and commits offsets.
// Failed messages are retried and finally moved to the dead-letter topic.
type Consumer struct {
	reader          messageReader
	dispatcher      *Dispatcher
	deadLetter      deadLetterWriter
	deadLetterTopic string
	maxAttempts     int
	baseDelay       time.Duration
	log             *slog.Logger
}

// NewConsumer creates a consumer-group reader for cfg.Topic.
func NewConsumer(cfg ConsumerConfig, dispatcher *Dispatcher, deadLetter deadLetterWriter) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(reader, cfg, dispatcher, deadLetter)
}

func newConsumer(reader messageReader, cfg ConsumerConfig, dispatcher *Dispatcher, deadLetter deadLetterWriter) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	return &Consumer{
		reader:          reader,
		dispatcher:      dispatcher,
		deadLetter:      deadLetter,
		deadLetterTopic: cfg.DeadLetterTopic,
		maxAttempts:     cfg.MaxAttempts,
		baseDelay:       cfg.BaseDelay,
		log:             slog.With("component", "consumer", "topic", cfg.Topic),
	}
}

// Run consumes until the context is cancelled. It returns nil on cancellation
// and an error when a message could neither be handled nor dead-lettered.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("Consumer: starting", "types", c.dispatcher.Types())

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Consumer: shutting down")
				return nil
			}
			c.log.Error("Consumer: fetch failed", "error", err)
			if !sleep(ctx, c.baseDelay) {
				return nil
			}
			continue
		}

		if err := c.process(ctx, m); err != nil {
			if ctx.Err() != nil {
				c.log.Info("Consumer: shutting down, message left uncommitted", "offset", m.Offset)
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("Consumer: commit failed", "offset", m.Offset, "error", err)
		}
	}
}

// process handles one message. A nil result means the message may be committed.
func (c *Consumer) process(ctx context.Context, m kafka.Message) error {
	messageType := Header(m, HeaderMessageType)
	log := c.log.With(
		"type", messageType,
		"message_id", Header(m, HeaderMessageID),
		"key", string(m.Key),
		"partition", m.Partition,
		"offset", m.Offset)

	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.dispatcher.Dispatch(ctx, messageType, m.Value)
		if err == nil {
			log.Debug("Consumer: message handled", "attempt", attempt)
			return nil
		}
		if errors.Is(err, ErrUnknownMessageType) {
			log.Warn("Consumer: skipping message of unknown type")
			return nil
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := c.baseDelay * time.Duration(1<<(attempt-1))
		log.Warn("Consumer: handler failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
	}

	log.Error("Consumer: attempts exhausted, dead-lettering", "attempts", c.maxAttempts, "error", err)
	if dlErr := c.sendToDeadLetter(ctx, m, err); dlErr != nil {
		return fmt.Errorf("dead-lettering %s at offset %d: %w", messageType, m.Offset, dlErr)
	}
	return nil
}

func (c *Consumer) sendToDeadLetter(ctx context.Context, m kafka.Message, cause error) error {
	if c.deadLetter == nil || c.deadLetterTopic == "" {
		return fmt.Errorf("no dead-letter topic configured: %w", cause)
	}

	headers := make([]kafka.Header, 0, len(m.Headers)+2)
	headers = append(headers, m.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderError, Value: []byte(cause.Error())},
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(m.Topic)},
	)

	return c.deadLetter.WriteMessages(ctx, kafka.Message{
		Topic:   c.deadLetterTopic,
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
	})
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
