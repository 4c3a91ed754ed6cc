package client

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

type fakeOverlay struct {
	sent   []Destination
	failOn int
}

func (f *fakeOverlay) SendTo(dest Destination, data []byte) error {
	f.sent = append(f.sent, dest)
	if f.failOn > 0 && len(f.sent) == f.failOn {
		return fmt.Errorf("simulated overlay failure")
	}
	return nil
}

type fakeLocal struct {
	delivered [][]byte
}

func (f *fakeLocal) Send(payload []byte) error {
	f.delivered = append(f.delivered, payload)
	return nil
}

func configWithCCReplicas(f, k uint32, ids ...uint32) *wire.ConfigMessage {
	cfg := &wire.ConfigMessage{F: f, K: k, GlobalConfigurationNumber: 1}
	for i, id := range ids {
		cfg.TpmBasedID[i] = id
		cfg.ReplicaFlag[i] = int32(wire.ReplicaTypeCC)
		cfg.SmAddresses[i] = wire.PutAddress(fmt.Sprintf("10.0.0.%d", id))
	}
	return cfg
}

func newTestClient(overlay OverlaySender, local LocalLink) *Client {
	return New(42, 9000, 1000, Dependencies{
		Overlay: overlay,
		Local:   local,
		VerifyEnvelope: func(uint32, []byte) error {
			return nil
		},
		VerifyThreshold: func(ordinal.Ordinal, []byte, [wire.SignatureSize]byte) error {
			return nil
		},
		SignEnvelope: func(encoded []byte) ([]byte, error) {
			return encoded, nil
		},
	})
}

func TestSendFansOutToComputedReplicaCount(t *testing.T) {
	overlay := &fakeOverlay{}
	c := newTestClient(overlay, &fakeLocal{})
	c.SetReplicasFromConfig(configWithCCReplicas(1, 0, 1, 2, 3))

	require.NoError(t, c.Send(ordinal.SeqPair{Incarnation: 1, SeqNum: 1}, []byte("command")))

	assert.Equal(t, 2, len(overlay.sent), "f=1,k=0 should fan out to min(f+k+1, 2*(f+2)) = 2 replicas")
}

func TestSendStopsOnFirstOverlayFailure(t *testing.T) {
	overlay := &fakeOverlay{failOn: 1}
	c := newTestClient(overlay, &fakeLocal{})
	c.SetReplicasFromConfig(configWithCCReplicas(1, 0, 1, 2, 3))

	err := c.Send(ordinal.SeqPair{Incarnation: 1, SeqNum: 1}, []byte("command"))
	require.Error(t, err)
	assert.Len(t, overlay.sent, 1)
}

func tcFinalEnvelope(t *testing.T, o ordinal.Ordinal, replicaID uint32) []byte {
	t.Helper()
	feedback := &wire.RtuFeedbackMsg{Seq: ordinal.SeqPair{Incarnation: 1, SeqNum: 1}}
	inner := wire.NewSignedMessage(0, replicaID, wire.RtuFeedback, 0, 0, 0, feedback.Encode())

	tcf := &wire.TcFinalMsg{Ord: o}
	copy(tcf.Payload[:], inner.Encode())

	outer := wire.NewSignedMessage(0, replicaID, wire.TcFinal, 0, 0, 0, tcf.Encode())
	return outer.Encode()
}

func TestReceiveDeliversFreshReplyAndUpdatesApplied(t *testing.T) {
	local := &fakeLocal{}
	c := newTestClient(&fakeOverlay{}, local)

	o := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}
	require.NoError(t, c.Receive(tcFinalEnvelope(t, o, 3)))

	require.Len(t, local.delivered, 1)
	assert.Equal(t, o, c.Applied())
}

func TestReceiveDropsStaleOrdinal(t *testing.T) {
	local := &fakeLocal{}
	c := newTestClient(&fakeOverlay{}, local)

	newer := ordinal.Ordinal{OrdNum: 2, EventIdx: 1, EventTot: 1}
	older := ordinal.Ordinal{OrdNum: 1, EventIdx: 1, EventTot: 1}

	require.NoError(t, c.Receive(tcFinalEnvelope(t, newer, 3)))
	require.NoError(t, c.Receive(tcFinalEnvelope(t, older, 3)))

	assert.Len(t, local.delivered, 1, "a reply at an older ordinal than already applied must be dropped")
	assert.Equal(t, newer, c.Applied())
}

func TestReceiveRejectsNonTcFinalEnvelope(t *testing.T) {
	c := newTestClient(&fakeOverlay{}, &fakeLocal{})
	msg := wire.NewSignedMessage(0, 3, wire.HmiCommand, 0, 0, 0, nil)
	err := c.Receive(msg.Encode())
	require.Error(t, err)
}

func TestOnConfigAgentMessageResetsAppliedOrdinal(t *testing.T) {
	local := &fakeLocal{}
	c := newTestClient(&fakeOverlay{}, local)

	o := ordinal.Ordinal{OrdNum: 5, EventIdx: 1, EventTot: 1}
	require.NoError(t, c.Receive(tcFinalEnvelope(t, o, 3)))
	assert.Equal(t, o, c.Applied())

	c.OnConfigAgentMessage(configWithCCReplicas(1, 0, 1, 2))
	assert.Equal(t, ordinal.Zero, c.Applied())
}
