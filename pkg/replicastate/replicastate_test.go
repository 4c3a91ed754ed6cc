package replicastate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

func TestRecordUpdateAdvancesProgressAndQueuesOrdinal(t *testing.T) {
	s := New(&wire.ConfigMessage{N: 6, F: 1, K: 1})
	seq := ordinal.SeqPair{Incarnation: 1, SeqNum: 1}
	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}

	assert.False(t, s.IsDuplicate(5, seq))
	s.RecordUpdate(5, seq, o, []byte("payload"))
	assert.True(t, s.IsDuplicate(5, seq))

	queued := s.DrainOrdQueue()
	require.Len(t, queued, 1)
	assert.True(t, ordinal.Equal(queued[0], o))
	assert.Empty(t, s.DrainOrdQueue())
}

func TestDuplicateDetectionUsesSeqPairOrdering(t *testing.T) {
	s := New(&wire.ConfigMessage{})
	s.RecordUpdate(1, ordinal.SeqPair{Incarnation: 10, SeqNum: 5}, ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}, nil)

	assert.True(t, s.IsDuplicate(1, ordinal.SeqPair{Incarnation: 10, SeqNum: 4}))
	assert.True(t, s.IsDuplicate(1, ordinal.SeqPair{Incarnation: 10, SeqNum: 5}))
	assert.False(t, s.IsDuplicate(1, ordinal.SeqPair{Incarnation: 10, SeqNum: 6}))
}

func TestResetBarrierPreservesClientProgress(t *testing.T) {
	s := New(&wire.ConfigMessage{N: 6})
	s.RecordUpdate(2, ordinal.SeqPair{Incarnation: 1, SeqNum: 9}, ordinal.Ordinal{OrdNum: 5, EventIdx: 1, EventTot: 1}, []byte("x"))
	s.SetAppliedOrd(ordinal.Ordinal{OrdNum: 5, EventIdx: 1, EventTot: 1})

	newCfg := &wire.ConfigMessage{N: 7, GlobalConfigurationNumber: 2}
	s.ResetBarrier(newCfg)

	assert.True(t, ordinal.Equal(s.AppliedOrd(), ordinal.Zero))
	assert.True(t, ordinal.Equal(s.RecvdOrd(), ordinal.Zero))
	assert.Empty(t, s.DrainOrdQueue())
	assert.Equal(t, uint32(7), s.Config().N)
	assert.Equal(t, uint32(9), s.ClientProgress(2).SeqNum)
}

func TestKeySnapshotSwap(t *testing.T) {
	initial := &KeyMaterial{GlobalConfigurationNumber: 1}
	ks := NewKeySnapshot(initial)
	assert.Equal(t, uint32(1), ks.Load().GlobalConfigurationNumber)

	ks.Swap(&KeyMaterial{GlobalConfigurationNumber: 2})
	assert.Equal(t, uint32(2), ks.Load().GlobalConfigurationNumber)
}
