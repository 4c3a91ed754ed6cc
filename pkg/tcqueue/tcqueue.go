// Package tcqueue implements the per-ordinal threshold-crypto share
// collection queue the ITRC master uses to assemble TC_FINAL
// messages: one node per ordinal, tracking which replicas have
// contributed a partial signature and whether a combined signature
// has been produced for that ordinal yet.
//
// The original implementation (ITRC_Insert_TC_ID / ITRC_TC_Ready_Deliver
// in original_source/common/itrc.c) keeps this as a sorted intrusive
// linked list, walked and spliced by hand. This package keeps the same
// walk-to-insertion-point algorithm but stores nodes in an
// github.com/wk8/go-ordered-map/v2 map keyed by ordinal, repositioned
// with MoveAfter/MoveToFront instead of raw pointer surgery.
package tcqueue

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// InsertFlag distinguishes a normal share insertion from a SKIP_ORD
// marker for no-ops, self state-transfers, and duplicate payloads,
// which never carry a threshold signature.
type InsertFlag int

const (
	NormalOrd InsertFlag = iota
	SkipOrd
)

// Entry tracks one ordinal's in-progress (or completed) threshold
// signature collection.
type Entry struct {
	Ord    ordinal.Ordinal
	Done   bool
	Skip   bool
	Count  int
	Recvd  map[uint32]bool
	Shares map[uint32]*wire.TcShareMsg
	Final  *wire.TcFinalMsg
}

func newEntry(o ordinal.Ordinal) *Entry {
	return &Entry{
		Ord:    o,
		Recvd:  make(map[uint32]bool),
		Shares: make(map[uint32]*wire.TcShareMsg),
	}
}

// Combiner assembles a TC_FINAL message once a threshold of shares
// has been collected for an ordinal; it is the caller's hook into
// pkg/threshold and the RSA signing step, kept out of this package so
// the queue stays a pure collection structure.
type Combiner func(o ordinal.Ordinal, shares map[uint32]*wire.TcShareMsg) (*wire.TcFinalMsg, error)

// Queue is the sorted, per-ordinal TC-share collection structure.
type Queue struct {
	entries    *orderedmap.OrderedMap[string, *Entry]
	appliedOrd ordinal.Ordinal
}

// New creates an empty queue with applied_ord at the zero ordinal.
func New() *Queue {
	return &Queue{entries: orderedmap.New[string, *Entry]()}
}

// AppliedOrd returns the highest ordinal that has been drained.
func (q *Queue) AppliedOrd() ordinal.Ordinal {
	return q.appliedOrd
}

// Len reports the number of in-flight (undelivered) ordinals.
func (q *Queue) Len() int {
	return q.entries.Len()
}

// locate finds the node for o, or walks the sorted queue ascending to
// allocate and reposition a new node at the right point, per the
// TC-share insertion algorithm's queue-walk step.
func (q *Queue) locate(o ordinal.Ordinal) *Entry {
	if e, ok := q.entries.Get(o.String()); ok {
		return e
	}

	var after string
	haveAfter := false
	for pair := q.entries.Oldest(); pair != nil; pair = pair.Next() {
		if ordinal.Less(pair.Value.Ord, o) {
			after = pair.Key
			haveAfter = true
			continue
		}
		break
	}

	e := newEntry(o)
	q.entries.Set(o.String(), e)
	if haveAfter {
		q.entries.MoveAfter(o.String(), after)
	} else {
		q.entries.MoveToFront(o.String())
	}
	return e
}

// InsertShare implements the TC-share insertion algorithm: ordinals at
// or below applied_ord are ignored, a node is located or allocated,
// duplicate senders and already-done nodes are dropped, and once
// reqShares senders (including selfID) have contributed, combine is
// invoked to produce and sign the TC_FINAL for this ordinal.
func (q *Queue) InsertShare(tcm *wire.TcShareMsg, sender, selfID uint32, flag InsertFlag, reqShares int, combine Combiner) error {
	if ordinal.LessOrEqual(tcm.Ord, q.appliedOrd) {
		return nil
	}

	e := q.locate(tcm.Ord)
	if e.Done {
		return nil
	}
	if e.Recvd[sender] {
		return nil
	}

	e.Recvd[sender] = true
	e.Count++

	if flag == SkipOrd {
		e.Done = true
		e.Skip = true
		return nil
	}

	e.Shares[sender] = tcm

	if e.Count >= reqShares && e.Recvd[selfID] {
		final, err := combine(tcm.Ord, e.Shares)
		if err != nil {
			e.Skip = true
			e.Done = true
			return fmt.Errorf("tcqueue: combine at %s: %w", tcm.Ord, err)
		}
		e.Final = final
		e.Done = true
	}
	return nil
}

// Drain implements the TC-queue drain algorithm: while the oldest
// node is done, has been signed by this replica (selfID recorded) or
// is a skip, and is consecutive with applied_ord, remove it and
// advance applied_ord. Non-skip nodes contribute their TC_FINAL to the
// returned slice in ordinal order.
func (q *Queue) Drain(selfID uint32) []*wire.TcFinalMsg {
	var delivered []*wire.TcFinalMsg

	for {
		pair := q.entries.Oldest()
		if pair == nil {
			break
		}
		e := pair.Value
		if !e.Done || !e.Recvd[selfID] || !ordinal.Consecutive(q.appliedOrd, e.Ord) {
			break
		}

		if !e.Skip {
			delivered = append(delivered, e.Final)
		}
		q.appliedOrd = e.Ord
		q.entries.Delete(pair.Key)
	}
	return delivered
}

// Reset clears all pending entries and rewinds applied_ord, used by
// the reconfiguration barrier reset.
func (q *Queue) Reset() {
	q.entries = orderedmap.New[string, *Entry]()
	q.appliedOrd = ordinal.Zero
}

// DropThrough discards every node at or below o and jumps applied_ord
// directly to o, without requiring consecutiveness. State-transfer
// application uses this to fast-forward the TC queue past a gap that
// a state snapshot, not incremental delivery, just closed.
func (q *Queue) DropThrough(o ordinal.Ordinal) {
	for {
		pair := q.entries.Oldest()
		if pair == nil || ordinal.Less(o, pair.Value.Ord) {
			break
		}
		q.entries.Delete(pair.Key)
	}
	q.appliedOrd = o
}
