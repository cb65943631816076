package bus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownMessageType indicates that no handler is registered for a message type.
var ErrUnknownMessageType = errors.New("unknown message type")

// HandlerFunc handles a raw message body.
type HandlerFunc func(ctx context.Context, body []byte) error

// Dispatcher routes message bodies to handlers by message type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Handle registers a raw handler, replacing any previous one for the type.
func (d *Dispatcher) Handle(messageType string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[messageType] = h
}

// Register binds a typed handler. The body is decoded into T before the call.
func Register[T Message](d *Dispatcher, handle func(ctx context.Context, msg T) error) {
	var zero T
	messageType := zero.MessageType()
	d.Handle(messageType, func(ctx context.Context, body []byte) error {
		var msg T
		if err := msgpack.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("decoding %s: %w", messageType, err)
		}
		return handle(ctx, msg)
	})
}

// Dispatch calls the handler registered for messageType.
func (d *Dispatcher) Dispatch(ctx context.Context, messageType string, body []byte) error {
	d.mu.RLock()
	h, ok := d.handlers[messageType]
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%q: %w", messageType, ErrUnknownMessageType)
	}
	return h(ctx, body)
}

// Types returns the registered message types, sorted.
func (d *Dispatcher) Types() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := lo.Keys(d.handlers)
	slices.Sort(types)
	return types
}
