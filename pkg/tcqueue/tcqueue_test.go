package tcqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

const reqShares = 2
const selfID = uint32(1)

func stubCombine(o ordinal.Ordinal, shares map[uint32]*wire.TcShareMsg) (*wire.TcFinalMsg, error) {
	return &wire.TcFinalMsg{Ord: o}, nil
}

func TestInsertAndDeliverSingleOrdinal(t *testing.T) {
	q := New()
	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}

	require.NoError(t, q.InsertShare(&wire.TcShareMsg{Ord: o}, selfID, selfID, NormalOrd, reqShares, stubCombine))
	assert.Empty(t, q.Drain(selfID))

	require.NoError(t, q.InsertShare(&wire.TcShareMsg{Ord: o}, 2, selfID, NormalOrd, reqShares, stubCombine))
	delivered := q.Drain(selfID)
	require.Len(t, delivered, 1)
	assert.Equal(t, o, delivered[0].Ord)
	assert.True(t, ordinal.Equal(q.AppliedOrd(), o))
}

func TestOutOfOrderShareArrivalWaitsForPredecessor(t *testing.T) {
	q := New()
	q.appliedOrd = ordinal.Ordinal{OrdNum: 3, EventIdx: 1, EventTot: 1}
	o4 := ordinal.Ordinal{OrdNum: 4, EventIdx: 1, EventTot: 1}
	o5 := ordinal.Ordinal{OrdNum: 5, EventIdx: 1, EventTot: 1}

	require.NoError(t, q.InsertShare(&wire.TcShareMsg{Ord: o5}, selfID, selfID, NormalOrd, reqShares, stubCombine))
	require.NoError(t, q.InsertShare(&wire.TcShareMsg{Ord: o5}, 2, selfID, NormalOrd, reqShares, stubCombine))

	assert.Equal(t, 1, q.Len())
	assert.Empty(t, q.Drain(selfID), "node 5 is done but node 4 has not arrived yet")

	require.NoError(t, q.InsertShare(&wire.TcShareMsg{Ord: o4}, selfID, selfID, NormalOrd, reqShares, stubCombine))
	require.NoError(t, q.InsertShare(&wire.TcShareMsg{Ord: o4}, 2, selfID, NormalOrd, reqShares, stubCombine))

	delivered := q.Drain(selfID)
	require.Len(t, delivered, 2)
	assert.True(t, ordinal.Equal(delivered[0].Ord, o4))
	assert.True(t, ordinal.Equal(delivered[1].Ord, o5))
}

func TestSkipOrdMarksDoneWithoutCombine(t *testing.T) {
	q := New()
	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}

	require.NoError(t, q.InsertShare(&wire.TcShareMsg{Ord: o}, selfID, selfID, SkipOrd, reqShares, stubCombine))
	delivered := q.Drain(selfID)
	assert.Empty(t, delivered, "skip ordinals advance applied_ord without producing a TC_FINAL")
	assert.True(t, ordinal.Equal(q.AppliedOrd(), o))
}

func TestDuplicateSenderIgnored(t *testing.T) {
	q := New()
	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}
	calls := 0
	combine := func(o ordinal.Ordinal, shares map[uint32]*wire.TcShareMsg) (*wire.TcFinalMsg, error) {
		calls++
		return &wire.TcFinalMsg{Ord: o}, nil
	}

	require.NoError(t, q.InsertShare(&wire.TcShareMsg{Ord: o}, selfID, selfID, NormalOrd, reqShares, combine))
	require.NoError(t, q.InsertShare(&wire.TcShareMsg{Ord: o}, selfID, selfID, NormalOrd, reqShares, combine))
	assert.Equal(t, 0, calls)
}

func TestAlreadyAppliedOrdinalIgnored(t *testing.T) {
	q := New()
	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}
	require.NoError(t, q.InsertShare(&wire.TcShareMsg{Ord: o}, selfID, selfID, SkipOrd, reqShares, stubCombine))
	q.Drain(selfID)

	require.NoError(t, q.InsertShare(&wire.TcShareMsg{Ord: o}, 2, selfID, NormalOrd, reqShares, stubCombine))
	assert.Equal(t, 0, q.Len())
}
