// Package client implements ITRC-Client: the per-endpoint (RTU or
// HMI) proxy task that signs and fans a client's SCADA command out to
// the current control-center replica set, and validates and delivers
// the TC_FINAL replies that return over the external overlay.
//
// Grounded on ITRC_Client in original_source/common/itrc.c.
package client

import (
	"fmt"
	"sync"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// Destination names one control-center replica's external overlay
// address, the fan-out target for a client's signed update.
type Destination struct {
	ReplicaID uint32
	Addr      string
	Port      int
}

// OverlaySender delivers one datagram to a specific CC replica over
// the external overlay.
type OverlaySender interface {
	SendTo(dest Destination, data []byte) error
}

// LocalLink hands a verified, freshly-applied SCADA reply to the
// local endpoint process (an emulated RTU or an HMI) over IPC.
type LocalLink interface {
	Send(payload []byte) error
}

// Dependencies bundles Client's external collaborators and
// cryptographic callbacks.
type Dependencies struct {
	Overlay OverlaySender
	Local   LocalLink

	// VerifyEnvelope checks a TC_FINAL envelope's outer RSA signature
	// against the claimed sending replica's public key.
	VerifyEnvelope func(senderID uint32, encoded []byte) error
	// VerifyThreshold checks the combined threshold signature over
	// (ordinal, payload) against the SM threshold public key.
	VerifyThreshold func(o ordinal.Ordinal, payload []byte, sig [wire.SignatureSize]byte) error
	// SignEnvelope produces the outer RSA signature for a
	// Client-originated UPDATE envelope.
	SignEnvelope func(encoded []byte) ([]byte, error)
}

// Client is one endpoint's proxy state: its own identity within
// Prime, the fan-out replica set and thresholds derived from the
// current configuration, and the highest ordinal it has accepted a
// reply for.
type Client struct {
	mu sync.Mutex

	primeClientID             uint32
	extBasePort               int
	incarnation               uint32
	globalConfigurationNumber uint32
	f, k                      int
	replicas                  []Destination
	applied                   ordinal.Ordinal

	deps Dependencies
}

// New creates a Client for the given Prime client identity. extBasePort
// is the external overlay port offset added to a replica's id to reach
// its client-facing socket, mirroring SM_EXT_BASE_PORT in the original.
func New(primeClientID uint32, extBasePort int, incarnation uint32, deps Dependencies) *Client {
	return &Client{
		primeClientID: primeClientID,
		extBasePort:   extBasePort,
		incarnation:   incarnation,
		deps:          deps,
	}
}

// SetReplicasFromConfig installs the CC replica fan-out set and
// Byzantine/crash thresholds from a newly accepted configuration.
func (c *Client) SetReplicasFromConfig(cfg *wire.ConfigMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dests []Destination
	for i := 0; i < wire.MaxNumServerSlots; i++ {
		if cfg.SlotEmpty(i) || wire.ReplicaType(cfg.ReplicaFlag[i]) != wire.ReplicaTypeCC {
			continue
		}
		dests = append(dests, Destination{
			ReplicaID: cfg.TpmBasedID[i],
			Addr:      wire.Address(cfg.SmAddresses[i]),
			Port:      c.extBasePort + int(cfg.TpmBasedID[i]),
		})
	}
	c.replicas = dests
	c.f = int(cfg.F)
	c.k = int(cfg.K)
	c.globalConfigurationNumber = cfg.GlobalConfigurationNumber
}

// fanoutCount is rep = min(f+k+1, 2*(f+2)): enough replicas that at
// least one correct replica receives the update even if f are
// Byzantine and k are crashed, capped at 2*(f+2) so a single client
// update never floods the whole replica set.
func (c *Client) fanoutCount() int {
	a := c.f + c.k + 1
	b := 2 * (c.f + 2)
	if a < b {
		return a
	}
	return b
}

// Send wraps a client's SCADA command payload in an UPDATE envelope
// and fans it out to the current CC replica set, stopping at the
// first overlay send failure the way the original's spines_sendto
// loop does (a broken overlay socket fails every subsequent send in
// the same round, so continuing would only repeat the error).
func (c *Client) Send(seq ordinal.SeqPair, payload []byte) error {
	c.mu.Lock()
	replicas := c.replicas
	rep := c.fanoutCount()
	if rep > len(replicas) {
		rep = len(replicas)
	}
	up := &wire.UpdateMessage{ServerID: c.primeClientID, SeqNum: seq.SeqNum}
	outer := wire.NewSignedMessage(0, c.primeClientID, wire.Update, seq.Incarnation, 0, c.globalConfigurationNumber, append(up.Encode(), payload...))
	c.mu.Unlock()

	signed, err := c.deps.SignEnvelope(outer.Encode())
	if err != nil {
		return fmt.Errorf("client: sign update: %w", err)
	}

	for i := 0; i < rep; i++ {
		if err := c.deps.Overlay.SendTo(replicas[i], signed); err != nil {
			return fmt.Errorf("client: send to replica %d: %w", replicas[i].ReplicaID, err)
		}
	}
	return nil
}

// Receive processes one TC_FINAL datagram arriving from a
// control-center replica: the outer RSA signature and the combined
// threshold signature are both verified, the embedded SCADA reply's
// type is checked against the TO_CLIENT whitelist, and — if its
// ordinal is newer than the last one accepted — the reply is
// delivered to the local endpoint.
func (c *Client) Receive(raw []byte) error {
	decoded, err := wire.Decode(raw)
	if err != nil {
		return fmt.Errorf("client: decode tc_final envelope: %w", err)
	}
	if decoded.Type != wire.TcFinal {
		return fmt.Errorf("client: unexpected envelope type %s, want TC_FINAL", decoded.Type)
	}
	if err := c.deps.VerifyEnvelope(decoded.MachineID, raw); err != nil {
		return fmt.Errorf("client: verify envelope from replica %d: %w", decoded.MachineID, err)
	}

	tcf, err := wire.DecodeTcFinalMsg(decoded.Payload)
	if err != nil {
		return fmt.Errorf("client: decode tc_final: %w", err)
	}
	if err := c.deps.VerifyThreshold(tcf.Ord, tcf.Payload[:], tcf.ThreshSig); err != nil {
		return fmt.Errorf("client: verify threshold signature at %s: %w", tcf.Ord, err)
	}

	inner, err := wire.Decode(tcf.Payload[:])
	if err != nil {
		return fmt.Errorf("client: decode scada reply: %w", err)
	}
	if err := wire.ValidateEnvelope(wire.ToClient, inner); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ordinal.LessOrEqual(tcf.Ord, c.applied) {
		return nil
	}
	c.applied = tcf.Ord

	if err := c.deps.Local.Send(inner.Encode()); err != nil {
		return fmt.Errorf("client: deliver reply to local endpoint: %w", err)
	}
	return nil
}

// OnConfigAgentMessage applies a reconfiguration: the fan-out set and
// thresholds are rebuilt from the new configuration and the applied
// ordinal watermark is reset, mirroring ITRC_Client's PRIME_OOB_CONFIG_MSG
// handling. Key-material reload happens one layer up via KeySnapshot.
func (c *Client) OnConfigAgentMessage(cfg *wire.ConfigMessage) {
	c.SetReplicasFromConfig(cfg)
	c.mu.Lock()
	c.applied = ordinal.Zero
	c.mu.Unlock()
}

// Applied returns the highest ordinal this client has accepted a
// reply for.
func (c *Client) Applied() ordinal.Ordinal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}
