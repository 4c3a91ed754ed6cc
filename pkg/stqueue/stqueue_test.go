package stqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

const selfID = uint32(1)
const reqShares = 2

func fakeDigest(st *wire.StateXferMsg) []byte {
	return []byte{byte(st.NumClients)}
}

func TestInsertRequiresMatchingDigestsThenSignal(t *testing.T) {
	q := New()
	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}

	ready, err := q.Insert(&wire.StateXferMsg{Ord: o, NumClients: 3}, 2, selfID, reqShares, fakeDigest)
	require.NoError(t, err)
	assert.False(t, ready)

	ready, err = q.Insert(&wire.StateXferMsg{Ord: o, NumClients: 3}, 3, selfID, reqShares, fakeDigest)
	require.NoError(t, err)
	assert.False(t, ready, "collected but not yet signaled by local Prime")

	ready, err = q.Insert(&wire.StateXferMsg{Ord: o}, selfID, selfID, reqShares, fakeDigest)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestApplyReturnsCollectedSnapshotAndCleansPredecessors(t *testing.T) {
	q := New()
	oLow := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}
	oTarget := ordinal.Ordinal{OrdNum: 2, EventIdx: 1, EventTot: 1}

	_, err := q.Insert(&wire.StateXferMsg{Ord: oLow, NumClients: 1}, 2, selfID, reqShares, fakeDigest)
	require.NoError(t, err)

	_, err = q.Insert(&wire.StateXferMsg{Ord: oTarget, NumClients: 5}, 2, selfID, reqShares, fakeDigest)
	require.NoError(t, err)
	_, err = q.Insert(&wire.StateXferMsg{Ord: oTarget, NumClients: 5}, 3, selfID, reqShares, fakeDigest)
	require.NoError(t, err)
	_, err = q.Insert(&wire.StateXferMsg{Ord: oTarget}, selfID, selfID, reqShares, fakeDigest)
	require.NoError(t, err)

	result, err := q.Apply(oTarget)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, uint32(5), result.NumClients)
	assert.True(t, ordinal.Equal(q.AppliedOrd(), oTarget))
	assert.Equal(t, 0, q.entries.Len(), "the node at oLow must be dropped along with oTarget")
}

func TestApplyWithoutCollectedResultErrors(t *testing.T) {
	q := New()
	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}
	_, err := q.Insert(&wire.StateXferMsg{Ord: o}, selfID, selfID, reqShares, fakeDigest)
	require.NoError(t, err)

	_, err = q.Apply(o)
	assert.Error(t, err)
}

func TestInsertRejectsStaleOrdinal(t *testing.T) {
	q := New()
	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}
	_, err := q.Insert(&wire.StateXferMsg{Ord: o}, selfID, selfID, reqShares, fakeDigest)
	require.NoError(t, err)
	_, err = q.Apply(o)
	require.Error(t, err)

	_, err = q.Insert(&wire.StateXferMsg{Ord: o}, 2, selfID, reqShares, fakeDigest)
	assert.Error(t, err)
}
