package master

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/replicastate"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

type fakeSM struct {
	sent [][]byte
}

func (f *fakeSM) Send(payload []byte) error {
	f.sent = append(f.sent, payload)
	return nil
}

type fakePrime struct {
	requested int
}

func (f *fakePrime) RequestStateTransfer() error {
	f.requested++
	return nil
}

type fakeInternal struct {
	broadcast [][]byte
	unicast   map[uint32][]byte
}

func newFakeInternal() *fakeInternal {
	return &fakeInternal{unicast: make(map[uint32][]byte)}
}

func (f *fakeInternal) Broadcast(encoded []byte) error {
	f.broadcast = append(f.broadcast, encoded)
	return nil
}

func (f *fakeInternal) Unicast(target uint32, encoded []byte) error {
	f.unicast[target] = encoded
	return nil
}

type fakeClient struct {
	delivered []*wire.TcFinalMsg
}

func (f *fakeClient) Send(final *wire.TcFinalMsg) error {
	f.delivered = append(f.delivered, final)
	return nil
}

func testConfig(globalConfig uint32) *wire.ConfigMessage {
	return &wire.ConfigMessage{N: 4, F: 1, K: 0, GlobalConfigurationNumber: globalConfig}
}

func passthroughSignEnvelope(encoded []byte) ([]byte, error) {
	return encoded, nil
}

func newMaster(selfID uint32, reqShares int, isCC bool, sm *fakeSM, internal *fakeInternal, client *fakeClient) *Master {
	deps := Dependencies{
		SM:       sm,
		Internal: internal,
		Client:   client,
		SignShare: func(o ordinal.Ordinal, payload []byte) [wire.SignatureSize]byte {
			return [wire.SignatureSize]byte{}
		},
		SignEnvelope: passthroughSignEnvelope,
		Combine: func(o ordinal.Ordinal, shares map[uint32]*wire.TcShareMsg) (*wire.TcFinalMsg, error) {
			return &wire.TcFinalMsg{Ord: o}, nil
		},
		Digest: func(st *wire.StateXferMsg) []byte {
			return st.State
		},
	}
	return New(selfID, reqShares, isCC, replicastate.New(testConfig(1)), deps)
}

func rtuEnvelope(o ordinal.Ordinal, rtuID, seqNum uint32) *wire.SignedMessage {
	msg := &wire.RtuDataMsg{Seq: ordinal.SeqPair{Incarnation: 1, SeqNum: seqNum}, RtuID: rtuID}
	return wire.NewSignedMessage(0, 99, wire.RtuData, 0, 0, 0, msg.Encode())
}

func TestOnPrimeOrderedDeliversRealPayloadToSM(t *testing.T) {
	sm := &fakeSM{}
	m := newMaster(1, 2, false, sm, newFakeInternal(), &fakeClient{})

	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}
	require.NoError(t, m.OnPrimeOrdered(o, rtuEnvelope(o, 0, 1)))

	require.Len(t, sm.sent, 1)
	decoded, err := wire.DecodeRtuDataMsg(sm.sent[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(0), decoded.RtuID)
	assert.Equal(t, o, m.state.RecvdOrd())
}

func TestOnPrimeOrderedSkipsDuplicatePayload(t *testing.T) {
	sm := &fakeSM{}
	m := newMaster(1, 2, false, sm, newFakeInternal(), &fakeClient{})

	o1 := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 2}
	o2 := ordinal.Ordinal{OrdNum: 1, EventIdx: 2, EventTot: 2}

	require.NoError(t, m.OnPrimeOrdered(o1, rtuEnvelope(o1, 3, 7)))
	require.NoError(t, m.OnPrimeOrdered(o2, rtuEnvelope(o2, 3, 7)))

	assert.Len(t, sm.sent, 1, "second delivery carries the same seq_pair and must be treated as a duplicate")
	assert.Equal(t, o2, m.state.RecvdOrd())
}

func TestOnPrimeOrderedNoOpSkipsAndDrainsWithoutSM(t *testing.T) {
	sm := &fakeSM{}
	m := newMaster(1, 5, true, sm, newFakeInternal(), &fakeClient{})

	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}
	noop := wire.NewSignedMessage(0, 1, wire.PrimeNoOp, 0, 0, 0, nil)
	require.NoError(t, m.OnPrimeOrdered(o, noop))

	assert.Empty(t, sm.sent)
	assert.Equal(t, 0, m.TCQueueLen(), "a skip node consecutive with applied_ord should drain immediately")
}

func TestOnSMReplyBroadcastsShareAndCombinesLocallyWhenThresholdIsOne(t *testing.T) {
	sm := &fakeSM{}
	internal := newFakeInternal()
	client := &fakeClient{}
	m := newMaster(1, 1, true, sm, internal, client)

	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}
	require.NoError(t, m.OnPrimeOrdered(o, rtuEnvelope(o, 0, 1)))
	require.Len(t, sm.sent, 1)

	reply := wire.NewSignedMessage(0, 1, wire.RtuFeedback, 0, 0, 0, []byte("feedback-to-rtu"))
	require.NoError(t, m.OnSMReply(reply))

	require.Len(t, internal.broadcast, 1)
	decoded, err := wire.Decode(internal.broadcast[0])
	require.NoError(t, err)
	assert.Equal(t, wire.TcShare, decoded.Type)
	assert.Equal(t, uint32(1), decoded.MachineID)

	require.Len(t, client.delivered, 1)
	assert.Equal(t, o, client.delivered[0].Ord)
}

func TestOnInternalMessageCombinesOnceThresholdReached(t *testing.T) {
	sm := &fakeSM{}
	internal := newFakeInternal()
	client := &fakeClient{}
	m := newMaster(1, 2, true, sm, internal, client)

	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}
	require.NoError(t, m.OnPrimeOrdered(o, rtuEnvelope(o, 0, 1)))
	reply := wire.NewSignedMessage(0, 1, wire.RtuFeedback, 0, 0, 0, []byte("feedback-to-rtu"))
	require.NoError(t, m.OnSMReply(reply))

	assert.Empty(t, client.delivered, "a single share out of two required must not complete the threshold")

	peerShare := &wire.TcShareMsg{Ord: o}
	copy(peerShare.Payload[:], []byte("feedback-to-rtu"))
	peerEnvelope := wire.NewSignedMessage(0, 2, wire.TcShare, 0, 0, 0, peerShare.Encode())

	require.NoError(t, m.OnInternalMessage(peerEnvelope.Encode()))

	require.Len(t, client.delivered, 1)
	assert.Equal(t, o, client.delivered[0].Ord)
}

func TestSelfTargetedStateTransferWaitsForPeerSnapshot(t *testing.T) {
	sm := &fakeSM{}
	m := newMaster(1, 1, true, sm, newFakeInternal(), &fakeClient{})

	gapOrd := ordinal.Ordinal{OrdNum: 5, EventIdx: 1, EventTot: 1}
	selfSignal := wire.NewSignedMessage(0, 1, wire.PrimeStateTransfer, 0, 0, 0, nil)
	require.NoError(t, m.OnPrimeOrdered(gapOrd, selfSignal))

	assert.True(t, m.collecting)
	assert.Equal(t, ordinal.Zero, m.state.AppliedOrd(), "signaling alone must not apply a transfer with no snapshot yet")

	peerState := &wire.StateXferMsg{Ord: gapOrd, NumClients: 0, State: []byte("snapshot-bytes")}
	peerEnvelope := wire.NewSignedMessage(0, 2, wire.StateXfer, 0, 0, 0, peerState.Encode())
	require.NoError(t, m.OnInternalMessage(peerEnvelope.Encode()))

	assert.Equal(t, gapOrd, m.state.AppliedOrd())
	assert.False(t, m.collecting)
	require.Len(t, sm.sent, 1)
	assert.Equal(t, "snapshot-bytes", string(sm.sent[0]))
}

func TestOnConfigAgentMessageRejectsStaleConfiguration(t *testing.T) {
	sm := &fakeSM{}
	m := newMaster(1, 1, true, sm, newFakeInternal(), &fakeClient{})
	m.state = replicastate.New(testConfig(5))

	err := m.OnConfigAgentMessage(testConfig(5))
	require.Error(t, err)
}

func TestOnConfigAgentMessageAcceptsAndResetsBarrier(t *testing.T) {
	sm := &fakeSM{}
	m := newMaster(1, 1, true, sm, newFakeInternal(), &fakeClient{})
	m.state = replicastate.New(testConfig(5))

	var forwarded *wire.ConfigMessage
	m.deps.ForwardToPrime = func(cfg *wire.ConfigMessage) error {
		forwarded = cfg
		return nil
	}

	o := ordinal.Ordinal{OrdNum: 3, EventIdx: 1, EventTot: 1}
	m.state.SetAppliedOrd(o)
	m.state.SetRecvdOrd(o)

	next := testConfig(6)
	require.NoError(t, m.OnConfigAgentMessage(next))

	require.NotNil(t, forwarded)
	assert.Equal(t, uint32(6), forwarded.GlobalConfigurationNumber)
	assert.Equal(t, ordinal.Zero, m.state.AppliedOrd())
	assert.Equal(t, ordinal.Zero, m.state.RecvdOrd())
	assert.Same(t, next, m.state.Config())
}
