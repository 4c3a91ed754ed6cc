// Package master implements the ITRC-Master: the single task that
// owns all replicated state for one replica and runs every operation
// that changes it. Everything else (Inject, Client, the overlay and
// IPC sockets) only ever reaches this state by calling into Master.
//
// Grounded on ITRC_Master and ITRC_Reset_Master_Data_Structures in
// original_source/common/itrc.c, generalized from the C dispatch loop
// (a single-threaded switch over FROM_PRIME / FROM_SM_MAIN /
// FROM_INTERNAL / PRIME_OOB_CONFIG_MSG events) into four exported
// methods guarded by one mutex, matching the Design Notes instruction
// to fold progress[]/up_hist[]/ord_queue/config into a single
// Master-owned ReplicaState.
package master

import (
	"fmt"
	"sync"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/replicastate"
	"github.com/spire-resilient-systems/itrc/pkg/stqueue"
	"github.com/spire-resilient-systems/itrc/pkg/tcqueue"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// SMLink pushes a payload down to the local SCADA state machine over
// the SM_MAIN IPC channel.
type SMLink interface {
	Send(payload []byte) error
}

// PrimeSignal asks the Inject task to submit a PRIME_STATE_TRANSFER
// request on this replica's behalf, used when Master notices it is
// missing ordinals it has never received.
type PrimeSignal interface {
	RequestStateTransfer() error
}

// InternalLink carries TC_SHARE and STATE_XFER traffic among
// control-center replicas over the internal overlay.
type InternalLink interface {
	Broadcast(encoded []byte) error
	Unicast(target uint32, encoded []byte) error
}

// ClientLink delivers a completed TC_FINAL to its addressed client.
type ClientLink interface {
	Send(final *wire.TcFinalMsg) error
}

// Dependencies bundles Master's external collaborators and
// cryptographic callbacks. Everything here is injected so this
// package stays testable without real sockets or key material.
type Dependencies struct {
	SM       SMLink
	Prime    PrimeSignal
	Internal InternalLink
	Client   ClientLink

	// ForwardToPrime relays an accepted reconfiguration envelope into
	// the local Prime process. Optional: nil skips the forward, for
	// tests that only exercise Master's own state transition.
	ForwardToPrime func(cfg *wire.ConfigMessage) error

	// SignShare produces this replica's partial signature bytes over
	// (ordinal, payload), backed by pkg/threshold.GenerateSigShare.
	SignShare func(o ordinal.Ordinal, payload []byte) [wire.SignatureSize]byte
	// SignEnvelope produces the outer RSA signature for an encoded
	// SignedMessage, backed by wire.Sign.
	SignEnvelope func(encoded []byte) ([]byte, error)
	// VerifyEnvelope checks the outer RSA signature of an encoded
	// SignedMessage against the claimed sender's public key, backed
	// by wire.Verify.
	VerifyEnvelope func(senderID uint32, encoded []byte) error

	// Combine assembles a TC_FINAL once reqShares partial signatures
	// have been collected for an ordinal, backed by
	// pkg/threshold.CombineShares. The result carries no outer RSA
	// signature; the ClientLink signs the TC_FINAL envelope it sends.
	Combine tcqueue.Combiner
	// Digest computes the comparison digest for a state-transfer
	// snapshot, used to validate f+1 matching copies before trust.
	Digest stqueue.Digester
}

type pendingEnvelope struct {
	Ord     ordinal.Ordinal
	Payload *wire.SignedMessage
}

// Master is the exclusive owner of one replica's ITRC state: the
// per-client progress table and pending-ordinal queue (via
// ReplicaState), the TC-share and state-transfer collection queues,
// and the collecting_signal/pending-replay bookkeeping for an
// in-flight self state transfer. Every exported method takes the same
// mutex, so Master never needs internal synchronization beyond it.
type Master struct {
	mu sync.Mutex

	selfID    uint32
	reqShares int
	isCC      bool

	state *replicastate.ReplicaState
	tcq   *tcqueue.Queue
	stq   *stqueue.Queue

	sawFirstOrdinal bool
	collecting      bool
	pending         []pendingEnvelope

	deps Dependencies
}

// New creates a Master for the given replica. reqShares is f+1, the
// number of partial signatures (or matching state-transfer digests)
// required before a threshold artifact is trusted. isCC marks whether
// this replica participates in threshold signing; disaster-recovery
// replicas order but never sign, so skipOrdinal becomes a no-op for
// them.
func New(selfID uint32, reqShares int, isCC bool, state *replicastate.ReplicaState, deps Dependencies) *Master {
	return &Master{
		selfID:    selfID,
		reqShares: reqShares,
		isCC:      isCC,
		state:     state,
		tcq:       tcqueue.New(),
		stq:       stqueue.New(),
		deps:      deps,
	}
}

// Reset clears the TC/ST queues and collecting-signal bookkeeping,
// the ITRC_Reset_Master_Data_Structures startup path. Reconfiguration
// uses OnConfigAgentMessage instead, which also rewinds ReplicaState.
func (m *Master) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetQueuesLocked()
}

func (m *Master) resetQueuesLocked() {
	m.tcq.Reset()
	m.stq.Reset()
	m.collecting = false
	m.pending = nil
}

// OnPrimeOrdered handles one Prime-ordered event at ordinal o. It is
// the Master's busiest path: duplicate and stale-ordinal rejection,
// gap detection that triggers a self state-transfer request, SKIP_ORD
// bookkeeping for no-ops and replayed duplicates, and real SCADA
// payload hand-off to the local SM.
func (m *Master) OnPrimeOrdered(o ordinal.Ordinal, payload *wire.SignedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onPrimeOrderedLocked(o, payload)
}

func (m *Master) onPrimeOrderedLocked(o ordinal.Ordinal, payload *wire.SignedMessage) error {
	if payload.Type == wire.PrimeSystemReset || payload.Type == wire.PrimeSystemReconf {
		m.resetQueuesLocked()
		return m.deps.SM.Send(payload.Payload)
	}

	recvdOrd := m.state.RecvdOrd()

	if !m.sawFirstOrdinal {
		m.sawFirstOrdinal = true
		if !ordinal.Consecutive(recvdOrd, o) && m.deps.Prime != nil {
			if err := m.deps.Prime.RequestStateTransfer(); err != nil {
				return fmt.Errorf("master: request state transfer: %w", err)
			}
		}
	}

	if ordinal.LessOrEqual(o, recvdOrd) {
		return nil
	}

	if m.collecting {
		m.pending = append(m.pending, pendingEnvelope{Ord: o, Payload: payload})
		return nil
	}

	selfTargetedTransfer := payload.Type == wire.PrimeStateTransfer && payload.MachineID == m.selfID

	if !ordinal.Consecutive(recvdOrd, o) && !selfTargetedTransfer {
		return nil
	}

	if !wire.ValidType(wire.FromPrime, payload.Type) {
		m.skipOrdinalLocked(o)
		m.state.SetRecvdOrd(o)
		return nil
	}

	switch {
	case selfTargetedTransfer:
		m.collecting = true
		m.skipOrdinalLocked(o)
		ready, err := m.stq.Insert(&wire.StateXferMsg{Ord: o}, m.selfID, m.selfID, m.reqShares, m.deps.Digest)
		if err != nil {
			return fmt.Errorf("master: signal self state transfer at %s: %w", o, err)
		}
		if ready {
			if err := m.applyStateTransferLocked(o); err != nil {
				return err
			}
		}

	case payload.Type == wire.PrimeNoOp:
		m.skipOrdinalLocked(o)

	default:
		clientIdx, seq, err := payloadClientIndex(payload.Type, payload.Payload)
		if err != nil {
			return fmt.Errorf("master: decode scada payload at %s: %w", o, err)
		}
		if m.state.IsDuplicate(clientIdx, seq) {
			m.skipOrdinalLocked(o)
		} else {
			m.state.RecordUpdate(clientIdx, seq, o, payload.Payload)
			if err := m.deps.SM.Send(payload.Payload); err != nil {
				return fmt.Errorf("master: send to sm at %s: %w", o, err)
			}
		}
	}

	m.state.SetRecvdOrd(o)
	return nil
}

// payloadClientIndex derives the duplicate-detection key (client
// index, sequence pair) from a real SCADA payload's type-specific
// fields, used by the progress[] comparison in onPrimeOrderedLocked.
func payloadClientIndex(t wire.MessageType, raw []byte) (uint32, ordinal.SeqPair, error) {
	switch t {
	case wire.RtuData:
		msg, err := wire.DecodeRtuDataMsg(raw)
		if err != nil {
			return 0, ordinal.SeqPair{}, err
		}
		return msg.RtuID, msg.Seq, nil
	case wire.HmiCommand:
		msg, err := wire.DecodeHmiCommandMsg(raw)
		if err != nil {
			return 0, ordinal.SeqPair{}, err
		}
		return msg.HmiID, msg.Seq, nil
	case wire.Benchmark:
		msg, err := wire.DecodeBenchmarkMsg(raw)
		if err != nil {
			return 0, ordinal.SeqPair{}, err
		}
		return uint32(msg.Sender), msg.Seq, nil
	default:
		return 0, ordinal.SeqPair{}, fmt.Errorf("master: unsupported scada payload type %s", t)
	}
}

// skipOrdinalLocked inserts a SKIP_ORD marker into the TC queue (on
// control-center replicas only — disaster-recovery replicas never
// sign) and attempts to drain whatever that unblocks.
func (m *Master) skipOrdinalLocked(o ordinal.Ordinal) {
	if !m.isCC {
		return
	}
	_ = m.tcq.InsertShare(&wire.TcShareMsg{Ord: o}, m.selfID, m.selfID, tcqueue.SkipOrd, m.reqShares, m.deps.Combine)
	m.attemptDrainAndDeliverLocked()
}

func (m *Master) attemptDrainAndDeliverLocked() {
	for _, final := range m.tcq.Drain(m.selfID) {
		if m.deps.Client != nil {
			_ = m.deps.Client.Send(final)
		}
	}
}

// OnSMReply handles one reply from the local SM, consuming the head
// of the pending-ordinal queue (SM replies arrive in the same order
// Master fed it payloads). A STATE_XFER reply is stamped with the
// popped ordinal and unicast to the requesting peer; anything else is
// wrapped in a partial signature share, inserted locally on
// control-center replicas, and broadcast for the other replicas to
// combine.
func (m *Master) OnSMReply(reply *wire.SignedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.state.PopOrdQueueHead()
	if !ok {
		return fmt.Errorf("master: on_sm_reply with empty ord_queue")
	}

	if reply.Type == wire.StateXfer {
		return m.replySMStateXferLocked(o, reply)
	}
	return m.replySMShareLocked(o, reply)
}

func (m *Master) replySMStateXferLocked(o ordinal.Ordinal, reply *wire.SignedMessage) error {
	st, err := wire.DecodeStateXferMsg(reply.Payload)
	if err != nil {
		return fmt.Errorf("master: decode state xfer reply: %w", err)
	}
	st.Ord = o

	envelope := wire.NewSignedMessage(0, m.selfID, wire.StateXfer, 0, 0, m.state.Config().GlobalConfigurationNumber, st.Encode())
	signed, err := m.deps.SignEnvelope(envelope.Encode())
	if err != nil {
		return fmt.Errorf("master: sign state xfer: %w", err)
	}
	if err := m.deps.Internal.Unicast(st.Target, signed); err != nil {
		return fmt.Errorf("master: unicast state xfer to %d: %w", st.Target, err)
	}
	return nil
}

func (m *Master) replySMShareLocked(o ordinal.Ordinal, reply *wire.SignedMessage) error {
	share := &wire.TcShareMsg{Ord: o}
	if len(reply.Payload) > wire.MaxPayloadSize {
		return fmt.Errorf("master: sm reply payload %d bytes exceeds max %d", len(reply.Payload), wire.MaxPayloadSize)
	}
	copy(share.Payload[:], reply.Payload)
	share.PartialSig = m.deps.SignShare(o, reply.Payload)

	envelope := wire.NewSignedMessage(0, m.selfID, wire.TcShare, 0, 0, m.state.Config().GlobalConfigurationNumber, share.Encode())
	signed, err := m.deps.SignEnvelope(envelope.Encode())
	if err != nil {
		return fmt.Errorf("master: sign tc share: %w", err)
	}

	if m.isCC {
		if err := m.tcq.InsertShare(share, m.selfID, m.selfID, tcqueue.NormalOrd, m.reqShares, m.deps.Combine); err != nil {
			return fmt.Errorf("master: insert own tc share at %s: %w", o, err)
		}
		m.attemptDrainAndDeliverLocked()
	}

	if err := m.deps.Internal.Broadcast(signed); err != nil {
		return fmt.Errorf("master: broadcast tc share at %s: %w", o, err)
	}
	return nil
}

// OnInternalMessage handles one message arriving over the internal
// control-center overlay: TC_SHARE contributes to the TC queue, and
// STATE_XFER contributes to the ST queue, applying the transfer
// immediately if this was the share that completed it.
func (m *Master) OnInternalMessage(raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	decoded, err := wire.Decode(raw)
	if err != nil {
		return fmt.Errorf("master: decode internal message: %w", err)
	}
	if err := wire.ValidateEnvelope(wire.FromInternal, decoded); err != nil {
		return err
	}
	if m.deps.VerifyEnvelope != nil {
		if err := m.deps.VerifyEnvelope(decoded.MachineID, raw); err != nil {
			return fmt.Errorf("master: verify internal message from %d: %w", decoded.MachineID, err)
		}
	}

	switch decoded.Type {
	case wire.TcShare:
		if !m.isCC {
			return nil
		}
		share, err := wire.DecodeTcShareMsg(decoded.Payload)
		if err != nil {
			return fmt.Errorf("master: decode tc share: %w", err)
		}
		if err := m.tcq.InsertShare(share, decoded.MachineID, m.selfID, tcqueue.NormalOrd, m.reqShares, m.deps.Combine); err != nil {
			return fmt.Errorf("master: insert tc share from %d: %w", decoded.MachineID, err)
		}
		m.attemptDrainAndDeliverLocked()
		return nil

	case wire.StateXfer:
		st, err := wire.DecodeStateXferMsg(decoded.Payload)
		if err != nil {
			return fmt.Errorf("master: decode state xfer: %w", err)
		}
		ready, err := m.stq.Insert(st, decoded.MachineID, m.selfID, m.reqShares, m.deps.Digest)
		if err != nil {
			return fmt.Errorf("master: insert state xfer from %d: %w", decoded.MachineID, err)
		}
		if ready {
			return m.applyStateTransferLocked(st.Ord)
		}
		return nil

	default:
		return fmt.Errorf("master: unexpected internal message type %s", decoded.Type)
	}
}

// applyStateTransferLocked implements the state-transfer application
// algorithm: pull the validated snapshot from the ST queue, fast
// forward the TC queue past the same gap, install the snapshot's
// latest_update table, push the state down to the SM, advance
// applied_ord, and replay any ordinals that arrived (and were
// buffered) while the transfer was in flight.
func (m *Master) applyStateTransferLocked(o ordinal.Ordinal) error {
	result, err := m.stq.Apply(o)
	if err != nil {
		return fmt.Errorf("master: apply state transfer at %s: %w", o, err)
	}
	m.tcq.DropThrough(o)

	m.state.InstallLatestUpdate(result.LatestUpdate[:])
	if err := m.deps.SM.Send(result.State); err != nil {
		return fmt.Errorf("master: push transferred state to sm: %w", err)
	}

	m.state.SetAppliedOrd(o)
	m.collecting = false

	replay := m.pending
	m.pending = nil
	for _, env := range replay {
		if ordinal.Less(m.state.RecvdOrd(), env.Ord) {
			if err := m.onPrimeOrderedLocked(env.Ord, env.Payload); err != nil {
				return fmt.Errorf("master: replay buffered ordinal %s: %w", env.Ord, err)
			}
		}
	}
	return nil
}

// OnConfigAgentMessage handles a PRIME_OOB_CONFIG_MSG reconfiguration
// request: a stale or malformed configuration is rejected outright;
// an accepted one is forwarded into Prime, then both collection
// queues and ReplicaState's ordinal barrier are reset. Key-material
// reload and overlay-socket teardown happen one layer up, in
// pkg/reconfig, which composes Master with the KeySnapshot and
// overlay sockets this package does not own.
func (m *Master) OnConfigAgentMessage(cfg *wire.ConfigMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.state.Config()
	if current != nil && cfg.GlobalConfigurationNumber <= current.GlobalConfigurationNumber {
		return fmt.Errorf("master: reject stale configuration %d <= %d", cfg.GlobalConfigurationNumber, current.GlobalConfigurationNumber)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("master: reject invalid configuration: %w", err)
	}

	if m.deps.ForwardToPrime != nil {
		if err := m.deps.ForwardToPrime(cfg); err != nil {
			return fmt.Errorf("master: forward configuration to prime: %w", err)
		}
	}

	m.resetQueuesLocked()
	m.state.ResetBarrier(cfg)
	m.sawFirstOrdinal = false
	return nil
}

// TCQueueLen exposes the in-flight TC queue depth for metrics and
// tests.
func (m *Master) TCQueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tcq.Len()
}
