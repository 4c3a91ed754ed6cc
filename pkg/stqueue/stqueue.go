// Package stqueue implements the per-ordinal state-transfer collection
// queue: the set of full-state snapshots replicas exchange so a
// lagging control-center replica can catch up, validated by requiring
// f+1 matching digests before the snapshot is trusted.
//
// Grounded on ITRC_Insert_ST_ID / ITRC_Apply_State_Transfer in
// original_source/common/itrc.c, using the same ordered-map-backed
// sorted structure as pkg/tcqueue in place of the intrusive linked
// list.
package stqueue

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// Entry tracks one ordinal's in-progress state-transfer collection.
type Entry struct {
	Ord       ordinal.Ordinal
	Collected bool
	Signaled  bool
	Count     int
	Recvd     map[uint32]bool
	States    map[uint32]*wire.StateXferMsg
	Result    *wire.StateXferMsg
}

func newEntry(o ordinal.Ordinal) *Entry {
	return &Entry{
		Ord:    o,
		Recvd:  make(map[uint32]bool),
		States: make(map[uint32]*wire.StateXferMsg),
	}
}

// Digester computes a digest over a state-transfer payload; injected
// so this package stays independent of the hashing primitive used
// (OPENSSL_RSA_Make_Digest in the original).
type Digester func(*wire.StateXferMsg) []byte

// Queue is the sorted, per-ordinal state-transfer collection structure.
type Queue struct {
	entries    *orderedmap.OrderedMap[string, *Entry]
	recvdOrd   ordinal.Ordinal
	appliedOrd ordinal.Ordinal
}

// New creates an empty state-transfer queue.
func New() *Queue {
	return &Queue{entries: orderedmap.New[string, *Entry]()}
}

// AppliedOrd returns the highest ordinal whose state transfer has
// been applied.
func (q *Queue) AppliedOrd() ordinal.Ordinal {
	return q.appliedOrd
}

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

// Insert implements the ST-insertion algorithm. selfID marks the
// node as locally signaled (this replica's own Prime has reached this
// ordinal); any other sender contributes a candidate snapshot, and
// once reqShares senders have submitted, a match of reqShares equal
// digests (via digest) promotes one of them to Result. The return
// value reports whether the node is now both collected and signaled,
// i.e. ready to apply.
func (q *Queue) Insert(st *wire.StateXferMsg, sender, selfID uint32, reqShares int, digest Digester) (bool, error) {
	if ordinal.Less(st.Ord, q.recvdOrd) || ordinal.LessOrEqual(st.Ord, q.appliedOrd) {
		return false, fmt.Errorf("stqueue: stale state transfer at %s", st.Ord)
	}
	if ordinal.Less(q.recvdOrd, st.Ord) {
		q.recvdOrd = st.Ord
	}

	e := q.locate(st.Ord)

	if sender == selfID {
		e.Signaled = true
	} else {
		if e.Recvd[sender] {
			return e.Collected && e.Signaled, nil
		}
		e.Recvd[sender] = true
		e.Count++
		e.States[sender] = st

		if !e.Collected && e.Count >= reqShares {
			want := digest(st)
			matches := 0
			for id := range e.Recvd {
				if candDigest := digest(e.States[id]); bytesEqual(candDigest, want) {
					matches++
				}
			}
			if matches >= reqShares {
				e.Result = st
				e.Collected = true
			}
		}
	}

	return e.Collected && e.Signaled, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Apply drops every pending node with ordinal <= o, advances
// applied_ord to o, and returns the validated snapshot for o (nil if
// o was never inserted with a collected result, which callers should
// treat as a protocol violation).
func (q *Queue) Apply(o ordinal.Ordinal) (*wire.StateXferMsg, error) {
	var result *wire.StateXferMsg

	for {
		pair := q.entries.Oldest()
		if pair == nil || ordinal.Less(o, pair.Value.Ord) {
			break
		}
		if ordinal.Equal(pair.Value.Ord, o) {
			result = pair.Value.Result
		}
		q.entries.Delete(pair.Key)
	}
	q.appliedOrd = o

	if result == nil {
		return nil, fmt.Errorf("stqueue: no collected state transfer at %s", o)
	}
	return result, nil
}

// Reset clears all pending entries and rewinds both watermarks, used
// by the reconfiguration barrier reset.
func (q *Queue) Reset() {
	q.entries = orderedmap.New[string, *Entry]()
	q.recvdOrd = ordinal.Zero
	q.appliedOrd = ordinal.Zero
}
