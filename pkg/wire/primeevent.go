package wire

import (
	"fmt"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
)

// PrimeOrderedEvent is the FROM_PRIME event fed to ITRC-Master over
// the Prime IPC path: an ordinal stamped onto an inner signed
// envelope, since Prime orders events but the envelope format itself
// carries no position in the total order.
type PrimeOrderedEvent struct {
	Ord      ordinal.Ordinal
	Envelope *SignedMessage
}

// Encode marshals a PrimeOrderedEvent: a fixed ordinal header
// followed by the inner envelope's own wire encoding.
func (e *PrimeOrderedEvent) Encode() []byte {
	buf := make([]byte, ordinalSize)
	putOrdinal(buf, e.Ord)
	return append(buf, e.Envelope.Encode()...)
}

// DecodePrimeOrderedEvent parses a PrimeOrderedEvent previously
// produced by Encode.
func DecodePrimeOrderedEvent(buf []byte) (*PrimeOrderedEvent, error) {
	if len(buf) < ordinalSize {
		return nil, fmt.Errorf("wire: prime ordered event too short")
	}
	envelope, err := Decode(buf[ordinalSize:])
	if err != nil {
		return nil, fmt.Errorf("wire: prime ordered event envelope: %w", err)
	}
	return &PrimeOrderedEvent{Ord: getOrdinal(buf[0:]), Envelope: envelope}, nil
}
