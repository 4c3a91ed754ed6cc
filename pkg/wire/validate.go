package wire

import "fmt"

// Origin names the trust boundary a message crossed, which determines
// which message types are admissible.
type Origin int

const (
	FromClient Origin = iota
	FromExternal
	FromPrime
	FromSmMain
	FromInternal
	ToClient
)

func (o Origin) String() string {
	switch o {
	case FromClient:
		return "FROM_CLIENT"
	case FromExternal:
		return "FROM_EXTERNAL"
	case FromPrime:
		return "FROM_PRIME"
	case FromSmMain:
		return "FROM_SM_MAIN"
	case FromInternal:
		return "FROM_INTERNAL"
	case ToClient:
		return "TO_CLIENT"
	default:
		return "UNKNOWN_ORIGIN"
	}
}

// whitelists enumerates, per origin, the message types the ITRC
// master and client will accept or emit. A message arriving on a path
// whose type is not in the corresponding whitelist is dropped before
// any further processing.
var whitelists = map[Origin]map[MessageType]bool{
	FromClient: {
		Update: true,
	},
	FromExternal: {
		Update: true,
	},
	FromPrime: {
		PrimeNoOp:          true,
		PrimeStateTransfer: true,
		PrimeSystemReset:   true,
		HmiCommand:         true,
		RtuData:            true,
		Benchmark:          true,
	},
	FromSmMain: {
		HmiUpdate:   true,
		RtuFeedback: true,
		Benchmark:   true,
		StateXfer:   true,
	},
	FromInternal: {
		TcShare:   true,
		StateXfer: true,
	},
	ToClient: {
		HmiUpdate:   true,
		RtuFeedback: true,
		Benchmark:   true,
	},
}

// ValidType reports whether t is admissible on a message arriving (or
// being sent) across the given origin boundary.
func ValidType(origin Origin, t MessageType) bool {
	return whitelists[origin][t]
}

// ValidateEnvelope checks a decoded envelope against the origin's
// whitelist, returning an error naming the rejected type if it fails.
func ValidateEnvelope(origin Origin, m *SignedMessage) error {
	if !ValidType(origin, m.Type) {
		return fmt.Errorf("wire: message type %s not admissible from %s", m.Type, origin)
	}
	return nil
}

// ValidateSender enforces the sender-identity rules that accompany
// certain Prime-originated message types: a PRIME_NO_OP or
// PRIME_SYSTEM_RESET must claim the local replica's own identity, and
// a PRIME_STATE_TRANSFER must come from a replica within the current
// configuration's replica set.
func ValidateSender(m *SignedMessage, localReplicaID uint32, currentReplicas map[uint32]bool) error {
	switch m.Type {
	case PrimeNoOp, PrimeSystemReset:
		if m.MachineID != localReplicaID {
			return fmt.Errorf("wire: %s claims machine_id %d, expected local replica %d", m.Type, m.MachineID, localReplicaID)
		}
	case PrimeStateTransfer:
		if !currentReplicas[m.MachineID] {
			return fmt.Errorf("wire: %s from machine_id %d outside current replica set", m.Type, m.MachineID)
		}
	}
	return nil
}

// ValidateRtuData applies the RTU_DATA type-specific rule from the
// packet-validation matrix on top of the generic origin whitelist.
func ValidateRtuData(r *RtuDataMsg) error {
	return r.Validate()
}

// ValidateEmsGenerator enforces the EMS payload rule that a generator
// identifier named in a command must be within the configured
// generator count.
func ValidateEmsGenerator(generatorID uint32) error {
	if generatorID >= EMSNumGenerators {
		return fmt.Errorf("wire: ems generator id %d out of range [0,%d)", generatorID, EMSNumGenerators)
	}
	return nil
}
