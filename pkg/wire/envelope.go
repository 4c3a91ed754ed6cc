package wire

import (
	"encoding/binary"
	"fmt"
)

// Envelope header field sizes, in wire order. The signature field is
// reserved (zeroed) at construction time and filled in by Sign.
const (
	offSig          = 0
	offMtNum        = offSig + SignatureSize
	offMtIndex      = offMtNum + 2
	offSiteID       = offMtIndex + 2
	offMachineID    = offSiteID + 4
	offLen          = offMachineID + 4
	offType         = offLen + 4
	offIncarnation  = offType + 4
	offMonoCounter  = offIncarnation + 4
	offGlobalConfig = offMonoCounter + 4
	headerSize      = offGlobalConfig + 4
)

// HeaderSize is the fixed size of a SignedMessage header, matching
// the "bytes 0..36" layout named in the wire envelope specification.
const HeaderSize = headerSize

// SignedMessage is the common wire envelope carried on every IPC and
// overlay path: a fixed-size outer signature, sender identity, a
// declared length and type, client incarnation/monotonic counter, the
// global configuration number, and a typed payload.
type SignedMessage struct {
	Sig                       [SignatureSize]byte
	MtNum                     uint16
	MtIndex                   uint16
	SiteID                    uint32
	MachineID                 uint32
	Len                       uint32
	Type                      MessageType
	Incarnation               uint32
	MonotonicCounter          uint32
	GlobalConfigurationNumber uint32
	Payload                   []byte
}

// Encode serialises the envelope to its bit-exact wire form. The
// signature field is written as-is; callers sign after encoding by
// calling Sign, which rewrites bytes [0:SignatureSize) in place.
func (m *SignedMessage) Encode() []byte {
	buf := make([]byte, headerSize+len(m.Payload))
	copy(buf[offSig:offSig+SignatureSize], m.Sig[:])
	binary.BigEndian.PutUint16(buf[offMtNum:], m.MtNum)
	binary.BigEndian.PutUint16(buf[offMtIndex:], m.MtIndex)
	binary.BigEndian.PutUint32(buf[offSiteID:], m.SiteID)
	binary.BigEndian.PutUint32(buf[offMachineID:], m.MachineID)
	binary.BigEndian.PutUint32(buf[offLen:], m.Len)
	binary.BigEndian.PutUint32(buf[offType:], uint32(m.Type))
	binary.BigEndian.PutUint32(buf[offIncarnation:], m.Incarnation)
	binary.BigEndian.PutUint32(buf[offMonoCounter:], m.MonotonicCounter)
	binary.BigEndian.PutUint32(buf[offGlobalConfig:], m.GlobalConfigurationNumber)
	copy(buf[headerSize:], m.Payload)
	return buf
}

// Decode parses a wire-form envelope produced by Encode.
func Decode(buf []byte) (*SignedMessage, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("wire: envelope too short: %d bytes", len(buf))
	}
	m := &SignedMessage{}
	copy(m.Sig[:], buf[offSig:offSig+SignatureSize])
	m.MtNum = binary.BigEndian.Uint16(buf[offMtNum:])
	m.MtIndex = binary.BigEndian.Uint16(buf[offMtIndex:])
	m.SiteID = binary.BigEndian.Uint32(buf[offSiteID:])
	m.MachineID = binary.BigEndian.Uint32(buf[offMachineID:])
	m.Len = binary.BigEndian.Uint32(buf[offLen:])
	m.Type = MessageType(binary.BigEndian.Uint32(buf[offType:]))
	m.Incarnation = binary.BigEndian.Uint32(buf[offIncarnation:])
	m.MonotonicCounter = binary.BigEndian.Uint32(buf[offMonoCounter:])
	m.GlobalConfigurationNumber = binary.BigEndian.Uint32(buf[offGlobalConfig:])

	if int(m.Len) > len(buf)-headerSize {
		return nil, fmt.Errorf("wire: declared len %d exceeds buffer", m.Len)
	}
	m.Payload = buf[headerSize : headerSize+int(m.Len)]
	return m, nil
}

// SignedRegion returns the portion of an encoded envelope that the
// outer signature covers: everything from offset(SignatureSize) to
// end-of-message.
func SignedRegion(encoded []byte) []byte {
	if len(encoded) < SignatureSize {
		return nil
	}
	return encoded[SignatureSize:]
}

// NewSignedMessage builds an envelope around an already-marshalled
// payload, with Len set to the payload length and the signature left
// zeroed for the caller to fill via Sign.
func NewSignedMessage(siteID, machineID uint32, t MessageType, incarnation, monoCounter, globalConfig uint32, payload []byte) *SignedMessage {
	return &SignedMessage{
		SiteID:                    siteID,
		MachineID:                 machineID,
		Len:                       uint32(len(payload)),
		Type:                      t,
		Incarnation:               incarnation,
		MonotonicCounter:          monoCounter,
		GlobalConfigurationNumber: globalConfig,
		Payload:                   payload,
	}
}
