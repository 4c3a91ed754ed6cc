// Package inject implements ITRC-Inject: the task that feeds client
// traffic into the local Prime replica. It validates and forwards
// UPDATE messages arriving over the external overlay, and on
// Master's request constructs and signs a self-targeted
// PRIME_STATE_TRANSFER request wrapped in an UPDATE envelope, since
// Prime orders events it does not originate.
//
// Grounded on ITRC_Prime_Inject in original_source/common/itrc.c.
package inject

import (
	"fmt"

	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// PrimeLink hands an encoded, signed envelope to the local Prime
// replica over its IPC channel.
type PrimeLink interface {
	Send(encoded []byte) error
}

// Verifier checks a client's RSA signature on an encoded envelope
// before it is trusted and handed to Prime.
type Verifier func(senderID uint32, encoded []byte) error

// Signer produces the outer RSA signature for an Inject-originated
// envelope, backed by wire.Sign with this replica's own key.
type Signer func(encoded []byte) ([]byte, error)

// Dependencies bundles Inject's external collaborators.
type Dependencies struct {
	Prime  PrimeLink
	Verify Verifier
	Sign   Signer
}

// Inject is stateless beyond its own replica identity and
// collaborators: every received message is handled independently, as
// in the original's single select loop.
type Inject struct {
	selfID uint32
	deps   Dependencies
}

// New creates an Inject task for the given replica.
func New(selfID uint32, deps Dependencies) *Inject {
	return &Inject{selfID: selfID, deps: deps}
}

// HandleExternal processes one datagram received from a client over
// the external overlay: the origin whitelist admits only UPDATE, the
// client's RSA signature is verified, and the envelope is forwarded
// to Prime unchanged. Prime, not Inject, is responsible for
// sequencing and eventually handing the update back to ITRC-Master as
// an ordered event.
func (in *Inject) HandleExternal(raw []byte) error {
	decoded, err := wire.Decode(raw)
	if err != nil {
		return fmt.Errorf("inject: decode external message: %w", err)
	}
	if err := wire.ValidateEnvelope(wire.FromExternal, decoded); err != nil {
		return err
	}
	if err := in.deps.Verify(decoded.MachineID, raw); err != nil {
		return fmt.Errorf("inject: verify client %d: %w", decoded.MachineID, err)
	}
	if err := in.deps.Prime.Send(raw); err != nil {
		return fmt.Errorf("inject: forward update from %d to prime: %w", decoded.MachineID, err)
	}
	return nil
}

// RequestStateTransfer implements master.PrimeSignal: it builds a
// self-targeted PRIME_STATE_TRANSFER request, wraps it the same way a
// client's update is wrapped (an UPDATE envelope naming this replica
// as server_id around the inner signed request), signs it, and
// forwards it to Prime so the request gets assigned an ordinal like
// any other event.
func (in *Inject) RequestStateTransfer() error {
	inner := wire.NewSignedMessage(0, in.selfID, wire.PrimeStateTransfer, 0, 0, 0, nil)
	up := &wire.UpdateMessage{ServerID: in.selfID}

	payload := append(up.Encode(), inner.Encode()...)
	outer := wire.NewSignedMessage(0, in.selfID, wire.Update, 0, 0, 0, payload)

	signed, err := in.deps.Sign(outer.Encode())
	if err != nil {
		return fmt.Errorf("inject: sign state transfer request: %w", err)
	}
	if err := in.deps.Prime.Send(signed); err != nil {
		return fmt.Errorf("inject: forward state transfer request to prime: %w", err)
	}
	return nil
}
