// Package reconfig composes ITRC-Master with the key material and
// overlay sockets it does not itself own into the full seven-step
// reconfiguration procedure: reject-if-stale and barrier reset happen
// inside Master, while key reload, socket teardown, and the
// online/offline decision happen here, one layer up.
//
// Grounded on oob_reconfigure in original_source/common/itrc.c.
package reconfig

import (
	"fmt"

	"github.com/spire-resilient-systems/itrc/pkg/master"
	"github.com/spire-resilient-systems/itrc/pkg/replicastate"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// KeyLoader reloads RSA and threshold key material for the replica
// set a new configuration names, backed by the same key-directory
// loading code path used at startup.
type KeyLoader func(cfg *wire.ConfigMessage) (*replicastate.KeyMaterial, error)

// Overlay tears down both of this replica's overlay sockets ahead of
// a reconnect, mirroring oob_reconfigure's unconditional socket
// close before anything else about the new configuration is trusted.
type Overlay interface {
	CloseExternal() error
	CloseInternal() error
}

// Coordinator drives one replica's reconfiguration: it owns no state
// of its own beyond its collaborators, since Master, the KeySnapshot,
// and the overlay sockets are the actual state being reconfigured.
type Coordinator struct {
	selfID   uint32
	master   *master.Master
	keys     *replicastate.KeySnapshot
	overlay  Overlay
	loadKeys KeyLoader
}

// New creates a Coordinator for the given replica.
func New(selfID uint32, m *master.Master, keys *replicastate.KeySnapshot, overlay Overlay, loadKeys KeyLoader) *Coordinator {
	return &Coordinator{selfID: selfID, master: m, keys: keys, overlay: overlay, loadKeys: loadKeys}
}

// Apply runs the full reconfiguration procedure for a newly accepted
// configuration:
//  1. Reject if stale (delegated to Master, which also validates
//     N >= 3f+2k+1).
//  2. Install the new thresholds and per-slot tables (delegated to
//     Master, which installs cfg as ReplicaState's current
//     configuration).
//  3. Reload RSA and threshold key material.
//  4. Tear down both overlay sockets.
//  5. Reset Master's in-memory queues (delegated to Master, the same
//     procedure as a system reset).
//
// It returns whether this replica still holds a slot in cfg. A caller
// should only restart its overlay ReconnectLoop when assigned is
// true; otherwise the replica remains offline until a later
// configuration reassigns it a slot, per oob_reconfigure.
//
// Delivery of the envelope to the local state machine (step 7 of the
// reconfiguration procedure) happens through the ordinary
// OnPrimeOrdered path once Prime hands this same configuration back
// as an ordered PRIME_SYSTEM_RECONF event; Apply only handles the
// out-of-band acceptance half of reconfiguration.
func (c *Coordinator) Apply(cfg *wire.ConfigMessage) (assigned bool, err error) {
	if err := c.master.OnConfigAgentMessage(cfg); err != nil {
		return false, fmt.Errorf("reconfig: %w", err)
	}

	keyMat, err := c.loadKeys(cfg)
	if err != nil {
		return false, fmt.Errorf("reconfig: load keys for configuration %d: %w", cfg.GlobalConfigurationNumber, err)
	}
	c.keys.Swap(keyMat)

	if err := c.overlay.CloseExternal(); err != nil {
		return false, fmt.Errorf("reconfig: close external overlay: %w", err)
	}
	if err := c.overlay.CloseInternal(); err != nil {
		return false, fmt.Errorf("reconfig: close internal overlay: %w", err)
	}

	return c.slotAssigned(cfg), nil
}

// slotAssigned reports whether this replica still holds a non-empty
// slot in cfg, the condition oob_reconfigure checks before attempting
// to reconnect the overlay sockets it just tore down.
func (c *Coordinator) slotAssigned(cfg *wire.ConfigMessage) bool {
	for i := 0; i < wire.MaxNumServerSlots; i++ {
		if cfg.SlotEmpty(i) {
			continue
		}
		if cfg.TpmBasedID[i] == c.selfID {
			return true
		}
	}
	return false
}
