// Package replicastate groups the per-client progress table, update
// history, and pending-ordinal queue the original implementation kept
// as global singletons (progress[], up_hist[], ord_queue) into a
// single structure owned by the Master task, plus an immutable key
// snapshot the Inject and Client tasks can read without synchronizing
// with reconfiguration.
//
// Grounded on spec.md's Design Notes ("Global singletons for
// progress/up_hist/config -> group into a ReplicaState owned by the
// Master task") and the client bookkeeping in ITRC_Master
// (original_source/common/itrc.c).
package replicastate

import (
	"sync"
	"sync/atomic"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// ClientRecord is one client's latest-applied sequence pair and the
// raw payload bytes of its most recent update, kept for
// retransmission of the matching reply.
type ClientRecord struct {
	Progress ordinal.SeqPair
	LastOrd  ordinal.Ordinal
	UpHist   []byte
}

// ReplicaState is the Master task's exclusively-owned mutable state:
// per-client progress and update history, the queue of ordinals
// awaiting delivery to the local SM, and the current configuration.
// Only the Master goroutine ever mutates it; every accessor takes
// the struct's own mutex.
type ReplicaState struct {
	mu        sync.Mutex
	clients   map[uint32]*ClientRecord
	ordQueue  []ordinal.Ordinal
	config    *wire.ConfigMessage
	appliedOrd ordinal.Ordinal
	recvdOrd   ordinal.Ordinal
}

// New creates a ReplicaState for the given initial configuration.
func New(cfg *wire.ConfigMessage) *ReplicaState {
	return &ReplicaState{
		clients: make(map[uint32]*ClientRecord),
		config:  cfg,
	}
}

// IsDuplicate reports whether seq is at or behind the client's
// recorded progress, per the real-SCADA-payload duplicate check.
func (s *ReplicaState) IsDuplicate(clientIdx uint32, seq ordinal.SeqPair) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.clients[clientIdx]
	if !ok {
		return false
	}
	return !seq.GreaterThan(rec.Progress)
}

// RecordUpdate installs a genuinely new payload: progress[client_idx]
// advances, up_hist[client_idx] is overwritten, and o is pushed onto
// ord_queue.
func (s *ReplicaState) RecordUpdate(clientIdx uint32, seq ordinal.SeqPair, o ordinal.Ordinal, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[clientIdx] = &ClientRecord{Progress: seq, LastOrd: o, UpHist: payload}
	s.ordQueue = append(s.ordQueue, o)
}

// DrainOrdQueue removes and returns all pending ordinals in FIFO
// order.
func (s *ReplicaState) DrainOrdQueue() []ordinal.Ordinal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.ordQueue
	s.ordQueue = nil
	return out
}

// PopOrdQueueHead removes and returns the single oldest pending
// ordinal, for on_sm_reply's one-reply-at-a-time pop.
func (s *ReplicaState) PopOrdQueueHead() (ordinal.Ordinal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ordQueue) == 0 {
		return ordinal.Ordinal{}, false
	}
	o := s.ordQueue[0]
	s.ordQueue = s.ordQueue[1:]
	return o, true
}

// ClientProgress returns a client's last-applied sequence pair, used
// when installing a state transfer's latest_update table.
func (s *ReplicaState) ClientProgress(clientIdx uint32) ordinal.SeqPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.clients[clientIdx]; ok {
		return rec.Progress
	}
	return ordinal.SeqPair{}
}

// InstallLatestUpdate overwrites progress[] from a state-transfer
// snapshot's latest_update table, step 3 of the state-transfer
// application algorithm.
func (s *ReplicaState) InstallLatestUpdate(latest []ordinal.SeqPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx, seq := range latest {
		clientIdx := uint32(idx)
		rec, ok := s.clients[clientIdx]
		if !ok {
			rec = &ClientRecord{}
			s.clients[clientIdx] = rec
		}
		rec.Progress = seq
	}
}

// AppliedOrd and RecvdOrd track the Master's own ordinal watermarks,
// mirrored here since both are read by the Client and Inject tasks.
func (s *ReplicaState) AppliedOrd() ordinal.Ordinal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appliedOrd
}

func (s *ReplicaState) SetAppliedOrd(o ordinal.Ordinal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appliedOrd = o
}

func (s *ReplicaState) RecvdOrd() ordinal.Ordinal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvdOrd
}

func (s *ReplicaState) SetRecvdOrd(o ordinal.Ordinal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recvdOrd = o
}

// Config returns the currently installed configuration.
func (s *ReplicaState) Config() *wire.ConfigMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// ResetBarrier implements the reconfiguration total barrier: all
// prior ordinals are invalidated, applied_ord and recvd_ord are
// zeroed, the pending ordinal queue is dropped, and cfg becomes the
// current configuration. Per-client progress survives the barrier —
// reconfiguration changes the replica set, not client identity.
func (s *ReplicaState) ResetBarrier(cfg *wire.ConfigMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appliedOrd = ordinal.Zero
	s.recvdOrd = ordinal.Zero
	s.ordQueue = nil
	s.config = cfg
}

// KeyMaterial is the per-replica RSA and threshold key set loaded at
// startup or reloaded on reconfiguration.
type KeyMaterial struct {
	GlobalConfigurationNumber uint32
	PrimeRSAPublicKeys        map[uint32][]byte
	PrimeRSAPrivateKey        []byte
	SMThresholdPublicKey      []byte
	SMThresholdPrivateShare   []byte
}

// KeySnapshot holds an immutable *KeyMaterial behind an atomic
// pointer, so the Inject and Client tasks can read key material
// without synchronizing with the Master task's reconfiguration swap.
// Keys are read-only after load; reconfiguration is the only writer,
// and it runs with both overlay sockets already torn down.
type KeySnapshot struct {
	ptr atomic.Pointer[KeyMaterial]
}

// NewKeySnapshot creates a snapshot holding the initial key material.
func NewKeySnapshot(initial *KeyMaterial) *KeySnapshot {
	ks := &KeySnapshot{}
	ks.ptr.Store(initial)
	return ks
}

// Load returns the currently installed key material.
func (ks *KeySnapshot) Load() *KeyMaterial {
	return ks.ptr.Load()
}

// Swap atomically installs new key material, called only by the
// Master task during reconfiguration.
func (ks *KeySnapshot) Swap(next *KeyMaterial) {
	ks.ptr.Store(next)
}
