package reconfig

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spire-resilient-systems/itrc/pkg/master"
	"github.com/spire-resilient-systems/itrc/pkg/replicastate"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

type fakeSM struct{ sent [][]byte }

func (f *fakeSM) Send(payload []byte) error {
	f.sent = append(f.sent, payload)
	return nil
}

type fakeOverlay struct {
	closedExternal, closedInternal bool
}

func (f *fakeOverlay) CloseExternal() error {
	f.closedExternal = true
	return nil
}

func (f *fakeOverlay) CloseInternal() error {
	f.closedInternal = true
	return nil
}

func configAt(globalConfig uint32, slotIDs ...uint32) *wire.ConfigMessage {
	cfg := &wire.ConfigMessage{N: 4, F: 1, K: 0, GlobalConfigurationNumber: globalConfig}
	for i, id := range slotIDs {
		cfg.TpmBasedID[i] = id
		cfg.ReplicaFlag[i] = int32(wire.ReplicaTypeCC)
	}
	return cfg
}

func newTestMaster(selfID uint32, cfg *wire.ConfigMessage) *master.Master {
	deps := master.Dependencies{
		SM: &fakeSM{},
		SignEnvelope: func(encoded []byte) ([]byte, error) {
			return encoded, nil
		},
	}
	return master.New(selfID, 1, true, replicastate.New(cfg), deps)
}

func newTestCoordinator(selfID uint32, m *master.Master, overlay Overlay, loader KeyLoader) *Coordinator {
	return New(selfID, m, replicastate.NewKeySnapshot(&replicastate.KeyMaterial{}), overlay, loader)
}

func TestApplyRejectsStaleConfiguration(t *testing.T) {
	m := newTestMaster(1, configAt(5, 1, 2, 3, 4))
	overlay := &fakeOverlay{}
	c := newTestCoordinator(1, m, overlay, func(*wire.ConfigMessage) (*replicastate.KeyMaterial, error) {
		return &replicastate.KeyMaterial{}, nil
	})

	_, err := c.Apply(configAt(5, 1, 2, 3, 4))
	require.Error(t, err)
	assert.False(t, overlay.closedExternal, "a rejected configuration must not tear down the overlay")
}

func TestApplyReloadsKeysAndTearsDownOverlay(t *testing.T) {
	m := newTestMaster(1, configAt(5, 1, 2, 3, 4))
	overlay := &fakeOverlay{}
	loaded := 0
	c := newTestCoordinator(1, m, overlay, func(cfg *wire.ConfigMessage) (*replicastate.KeyMaterial, error) {
		loaded++
		return &replicastate.KeyMaterial{GlobalConfigurationNumber: cfg.GlobalConfigurationNumber}, nil
	})

	assigned, err := c.Apply(configAt(6, 1, 2, 3, 4))
	require.NoError(t, err)
	assert.True(t, assigned)
	assert.Equal(t, 1, loaded)
	assert.True(t, overlay.closedExternal)
	assert.True(t, overlay.closedInternal)
	assert.Equal(t, uint32(6), c.keys.Load().GlobalConfigurationNumber)
}

func TestApplyReportsUnassignedWhenSlotCleared(t *testing.T) {
	m := newTestMaster(9, configAt(5, 9, 2, 3))
	overlay := &fakeOverlay{}
	c := newTestCoordinator(9, m, overlay, func(*wire.ConfigMessage) (*replicastate.KeyMaterial, error) {
		return &replicastate.KeyMaterial{}, nil
	})

	assigned, err := c.Apply(configAt(6, 1, 2, 3))
	require.NoError(t, err)
	assert.False(t, assigned, "replica 9 no longer appears in any slot of the new configuration")
}

func TestApplyPropagatesKeyLoadFailureWithoutTouchingOverlay(t *testing.T) {
	m := newTestMaster(1, configAt(5, 1, 2, 3, 4))
	overlay := &fakeOverlay{}
	c := newTestCoordinator(1, m, overlay, func(*wire.ConfigMessage) (*replicastate.KeyMaterial, error) {
		return nil, fmt.Errorf("key directory missing")
	})

	_, err := c.Apply(configAt(6, 1, 2, 3, 4))
	require.Error(t, err)
	assert.False(t, overlay.closedExternal, "a key-load failure must abort before the overlay is torn down")
}
