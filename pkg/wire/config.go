package wire

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// ConfigMessage is the new cluster description carried by a
// PRIME_OOB_CONFIG_MSG: replica counts, the per-slot replica table,
// overlay addresses, and the fencing global configuration number.
type ConfigMessage struct {
	N                         uint32
	F                         uint32
	K                         uint32
	NumSites                  uint32
	NumCC                     uint32
	NumDC                     uint32
	NumCCReplicas             uint32
	NumDCReplicas             uint32
	TpmBasedID                [MaxNumServerSlots]uint32
	ReplicaFlag               [MaxNumServerSlots]int32
	SmAddresses               [MaxNumServerSlots][32]byte
	SpinesExtAddresses        [MaxNumServerSlots][32]byte
	SpinesExtPort             int32
	SpinesIntAddresses        [MaxNumServerSlots][32]byte
	SpinesIntPort             int32
	PrimeAddresses            [MaxNumServerSlots][32]byte
	InitialState              int32
	InitialStateDigest        [DigestSize]byte
	FragNum                   uint32
	GlobalConfigurationNumber uint32
}

// ReplicaType distinguishes control-center (signing) replicas from
// disaster-recovery (ordering-only) replicas.
type ReplicaType int32

const (
	ReplicaTypeEmpty ReplicaType = 0
	ReplicaTypeCC    ReplicaType = 1
	ReplicaTypeDC    ReplicaType = 2
)

// SlotEmpty reports whether slot i denotes an unused server slot (a
// zero tpm_based_id).
func (c *ConfigMessage) SlotEmpty(i int) bool {
	return c.TpmBasedID[i] == 0
}

// Validate enforces the reconfiguration acceptance rule that the new
// replica count can tolerate the declared Byzantine/crash thresholds.
func (c *ConfigMessage) Validate() error {
	if c.N < 3*c.F+2*c.K+1 {
		return fmt.Errorf("wire: config N=%d must be >= 3f+2k+1 (f=%d, k=%d)", c.N, c.F, c.K)
	}
	return nil
}

// Address decodes a NUL-padded 32-byte IPv4-dotted-quad address field.
func Address(raw [32]byte) string {
	n := bytes.IndexByte(raw[:], 0)
	if n < 0 {
		n = len(raw)
	}
	return string(raw[:n])
}

// PutAddress encodes addr into a NUL-padded 32-byte field.
func PutAddress(addr string) [32]byte {
	var out [32]byte
	copy(out[:], addr)
	return out
}

// KeyMsgHeader prefixes each CONFIG_KEYS_MSG fragment with its index
// within the overall key-distribution stream.
type KeyMsgHeader struct {
	FragIdx uint32
}

// KeyType enumerates the key material carried in a fragment.
type KeyType uint32

const (
	KeySMTCPub KeyType = iota
	KeySMTCPvt
	KeyPrimeTCPub
	KeyPrimeTCPvt
	KeyPrimeRSAPub
	KeyPrimeRSAPvt
)

// PvtKeyHeader precedes an RSA-OAEP-encrypted private key split across
// pvt_key_parts chunks of pvt_key_part_size bytes; the final chunk's
// plaintext size is unenc_size mod part_size.
type PvtKeyHeader struct {
	KeyType        KeyType
	ID             uint32
	UnencSize      uint32
	PvtKeyParts    uint32
	PvtKeyPartSize uint32
}

// LastChunkSize returns the plaintext size of the final encrypted
// chunk, per the header's documented remainder rule.
func (h *PvtKeyHeader) LastChunkSize() uint32 {
	rem := h.UnencSize % h.PvtKeyPartSize
	if rem == 0 {
		return h.PvtKeyPartSize
	}
	return rem
}

// PubKeyHeader precedes a plaintext public key of the given size.
type PubKeyHeader struct {
	KeyType KeyType
	ID      uint32
	Size    uint32
}

// KeyFragment is one alternating {pub|pvt key header + bytes} entry in
// a key-distribution fragment stream, marshalled with XDR since the
// stream is a self-describing, platform-independent sequence of
// tagged records rather than a bit-exact fixed layout.
type KeyFragment struct {
	Header    KeyMsgHeader
	IsPrivate bool
	Pub       PubKeyHeader
	Pvt       PvtKeyHeader
	KeyBytes  []byte
}

// MarshalConfigMessage encodes a ConfigMessage with XDR, the format
// carried over the config-agent IPC path and the multicast
// out-of-band reconfiguration channel.
func MarshalConfigMessage(c *ConfigMessage) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, c); err != nil {
		return nil, fmt.Errorf("wire: marshal config message: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalConfigMessage decodes a ConfigMessage previously produced
// by MarshalConfigMessage.
func UnmarshalConfigMessage(data []byte) (*ConfigMessage, error) {
	c := &ConfigMessage{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), c); err != nil {
		return nil, fmt.Errorf("wire: unmarshal config message: %w", err)
	}
	return c, nil
}

// MarshalKeyFragment encodes a fragment with XDR.
func MarshalKeyFragment(f *KeyFragment) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, f); err != nil {
		return nil, fmt.Errorf("wire: marshal key fragment: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalKeyFragment decodes a fragment previously produced by
// MarshalKeyFragment.
func UnmarshalKeyFragment(data []byte) (*KeyFragment, error) {
	f := &KeyFragment{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), f); err != nil {
		return nil, fmt.Errorf("wire: unmarshal key fragment: %w", err)
	}
	return f, nil
}
