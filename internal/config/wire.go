package config

import (
	"fmt"

	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// InitialConfigMessage builds the wire.ConfigMessage this replica
// starts from before its first PRIME_OOB_CONFIG_MSG arrives, letting
// replicastate.New seed progress[]/up_hist[] and the ordinal barrier
// from the same static configuration file a fresh cluster boots with.
func (c *Config) InitialConfigMessage() (*wire.ConfigMessage, error) {
	if len(c.Replicas) > wire.MaxNumServerSlots {
		return nil, fmt.Errorf("config: %d replicas exceeds max_num_server_slots %d", len(c.Replicas), wire.MaxNumServerSlots)
	}

	cfg := &wire.ConfigMessage{
		N:                 c.Cluster.N,
		F:                 c.Cluster.F,
		K:                 c.Cluster.K,
		NumSites:          c.Cluster.NumCCSites + c.Cluster.NumDCSites,
		NumCC:             c.Cluster.NumCCSites,
		NumDC:             c.Cluster.NumDCSites,
		NumCCReplicas:     c.Cluster.NumCCReplicas,
		NumDCReplicas:     uint32(len(c.Replicas)) - c.Cluster.NumCCReplicas,
		GlobalConfigurationNumber: 1,
	}
	for i, slot := range c.Replicas {
		cfg.TpmBasedID[i] = slot.ID
		if slot.Type == "dc" {
			cfg.ReplicaFlag[i] = int32(wire.ReplicaTypeDC)
		} else {
			cfg.ReplicaFlag[i] = int32(wire.ReplicaTypeCC)
		}
		cfg.SmAddresses[i] = wire.PutAddress(slot.ExtAddr)
		cfg.SpinesIntAddresses[i] = wire.PutAddress(slot.IntAddr)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: initial configuration: %w", err)
	}
	return cfg, nil
}
