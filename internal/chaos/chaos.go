package chaos

import (
	"errors"
	"fmt"
	"hash/fnv"
)

// ErrInjected is returned by an Injector that decided to fail the call.
var ErrInjected = errors.New("chaos: injected failure")

// Injector injects failures into aggregate processing.
type Injector interface {
	Meow(aggregateID string) error
}

// Nop never injects failures.
type Nop struct{}

func (Nop) Meow(string) error { return nil }

const resolution = 10000

// Kitty fails a fixed fraction of aggregate ids. The decision depends only on
// the seed and the id, so redelivery of the same aggregate fails again.
type Kitty struct {
	threshold uint32
	seed      string
}

// NewKitty creates a Kitty failing stateOfChaos (0..1) of aggregate ids.
func NewKitty(stateOfChaos float64, seed string) (*Kitty, error) {
	if stateOfChaos < 0 || stateOfChaos > 1 {
		return nil, fmt.Errorf("state of chaos %v out of range [0, 1]", stateOfChaos)
	}
	return &Kitty{threshold: uint32(stateOfChaos * resolution), seed: seed}, nil
}

func (k *Kitty) Meow(aggregateID string) error {
	h := fnv.New32a()
	h.Write([]byte(k.seed))
	h.Write([]byte(aggregateID))
	if h.Sum32()%resolution < k.threshold {
		return fmt.Errorf("aggregate %s: %w", aggregateID, ErrInjected)
	}
	return nil
}

// New returns Nop for a zero state of chaos and a Kitty otherwise.
func New(stateOfChaos float64, seed string) (Injector, error) {
	if stateOfChaos == 0 {
		return Nop{}, nil
	}
	return NewKitty(stateOfChaos, seed)
}
