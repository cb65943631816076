package bus

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/vmihailenco/msgpack/v5"
)

// Envelope header names.
const (
	HeaderMessageType   = "message-type"
	HeaderMessageID     = "message-id"
	HeaderError         = "error"
	HeaderOriginalTopic = "original-topic"
)

// Message is a typed command or event carried on the bus.
type Message interface {
	MessageType() string
	PartitionKey() string
}

// Encode wraps msg into a Kafka message addressed to topic.
func Encode(topic string, msg Message) (kafka.Message, error) {
	body, err := msgpack.Marshal(msg)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding %s: %w", msg.MessageType(), err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(msg.PartitionKey()),
		Value: body,
		Headers: []kafka.Header{
			{Key: HeaderMessageType, Value: []byte(msg.MessageType())},
			{Key: HeaderMessageID, Value: []byte(uuid.NewString())},
		},
	}, nil
}

// Header returns the value of the named header, or "" when absent.
func Header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
