// Package wire implements the bit-exact SignedMessage envelope, the
// typed SCADA/Prime payloads carried inside it, and the per-stage
// packet-validation matrix.
package wire

// Size constants mirrored from original_source/common/scada_packets.h
// and def.h. def.h itself was not part of the retrieved pack; the
// cluster-sizing constants below (MaxNumServerSlots, MaxEmuRTU, NumHMI,
// NumRTU, DigestSize, MaxLen) are reasonable defaults for a Spire-style
// deployment and are overridable only by rebuilding the module, exactly
// as they were compile-time constants in the C original.
const (
	UpdateSize     = 300
	SignatureSize  = 128
	MaxPayloadSize = 512
	DigestSize     = 32

	MaxNumServerSlots = 20
	MaxEmuRTU         = 10
	NumHMI            = 2
	NumRTU            = 10
	EMSNumGenerators  = 6

	// MaxLen is the largest datagram the overlay transport will carry.
	MaxLen = 8192
)

// MessageType enumerates SCADA and Prime-facing message types.
type MessageType uint32

const (
	Dummy MessageType = iota
	RtuData
	RtuFeedback
	HmiUpdate
	HmiCommand
	TcShare
	TcFinal
	StateRequest
	StateXfer
	SystemReset
	Benchmark
)

// Prime-protocol and out-of-band message types, numbered as in the
// original to preserve wire compatibility with Prime's own constants.
const (
	Update             MessageType = 46
	ClientResponse     MessageType = 47
	PrimeOOBConfigMsg  MessageType = 48
	ConfigKeysMsg      MessageType = 49
	PrimeNoOp          MessageType = 101
	PrimeStateTransfer MessageType = 102
	PrimeSystemReset   MessageType = 103
	PrimeSystemReconf  MessageType = 104
)

func (t MessageType) String() string {
	switch t {
	case Dummy:
		return "DUMMY"
	case RtuData:
		return "RTU_DATA"
	case RtuFeedback:
		return "RTU_FEEDBACK"
	case HmiUpdate:
		return "HMI_UPDATE"
	case HmiCommand:
		return "HMI_COMMAND"
	case TcShare:
		return "TC_SHARE"
	case TcFinal:
		return "TC_FINAL"
	case StateRequest:
		return "STATE_REQUEST"
	case StateXfer:
		return "STATE_XFER"
	case SystemReset:
		return "SYSTEM_RESET"
	case Benchmark:
		return "BENCHMARK"
	case Update:
		return "UPDATE"
	case ClientResponse:
		return "CLIENT_RESPONSE"
	case PrimeOOBConfigMsg:
		return "PRIME_OOB_CONFIG_MSG"
	case ConfigKeysMsg:
		return "CONFIG_KEYS_MSG"
	case PrimeNoOp:
		return "PRIME_NO_OP"
	case PrimeStateTransfer:
		return "PRIME_STATE_TRANSFER"
	case PrimeSystemReset:
		return "PRIME_SYSTEM_RESET"
	case PrimeSystemReconf:
		return "PRIME_SYSTEM_RECONF"
	default:
		return "UNKNOWN"
	}
}
