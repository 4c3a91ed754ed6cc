package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
)

// UpdateMessage is the Prime-level envelope a client wraps its update
// in: server_id/address/port identify the submitting proxy process,
// seq_num threads through to Prime's own sequencing.
type UpdateMessage struct {
	ServerID uint32
	Address  int32
	Port     uint16
	SeqNum   uint32
}

const updateMessageSize = 4 + 4 + 2 + 4

// Encode marshals an UpdateMessage to its fixed-size wire form.
func (u *UpdateMessage) Encode() []byte {
	buf := make([]byte, updateMessageSize)
	binary.BigEndian.PutUint32(buf[0:], u.ServerID)
	binary.BigEndian.PutUint32(buf[4:], uint32(u.Address))
	binary.BigEndian.PutUint16(buf[8:], u.Port)
	binary.BigEndian.PutUint32(buf[10:], u.SeqNum)
	return buf
}

// DecodeUpdateMessage parses the fixed-size UpdateMessage header.
func DecodeUpdateMessage(buf []byte) (*UpdateMessage, error) {
	if len(buf) < updateMessageSize {
		return nil, fmt.Errorf("wire: update message too short")
	}
	return &UpdateMessage{
		ServerID: binary.BigEndian.Uint32(buf[0:]),
		Address:  int32(binary.BigEndian.Uint32(buf[4:])),
		Port:     binary.BigEndian.Uint16(buf[8:]),
		SeqNum:   binary.BigEndian.Uint32(buf[10:]),
	}, nil
}

// ClientResponseMessage stamps a reply with the ordinal it was
// delivered at and the client's sequence pair.
type ClientResponseMessage struct {
	MachineID uint32
	Seq       ordinal.SeqPair
	Ord       ordinal.Ordinal
	POTime    float64
}

// RtuDataMsg carries a proxied RTU measurement into the control center.
type RtuDataMsg struct {
	Seq      ordinal.SeqPair
	RtuID    uint32
	ScenType uint32
	Sec      uint32
	Usec     uint32
	Data     [64]byte
}

// Validate enforces the type-specific RTU_DATA rule from the
// packet-validation matrix: rtu_id must be in range and seq_num must
// be nonzero.
func (r *RtuDataMsg) Validate() error {
	if r.RtuID >= NumRTU {
		return fmt.Errorf("wire: rtu_id %d out of range [0,%d)", r.RtuID, NumRTU)
	}
	if r.Seq.SeqNum == 0 {
		return fmt.Errorf("wire: rtu_data seq_num must be nonzero")
	}
	return nil
}

// RtuFeedbackMsg carries a command from the Master back to an RTU proxy.
type RtuFeedbackMsg struct {
	Seq      ordinal.SeqPair
	ScenType uint32
	Type     uint32
	Sub      uint32
	Rtu      uint32
	Offset   uint32
	Val      int32
}

// HmiUpdateMsg carries state updates to an HMI.
type HmiUpdateMsg struct {
	Seq      ordinal.SeqPair
	ScenType uint32
	Sec      uint32
	Usec     uint32
	Len      uint32
	Status   []byte
}

// HmiCommandMsg carries an operator command from an HMI.
type HmiCommandMsg struct {
	Seq      ordinal.SeqPair
	HmiID    uint32
	ScenType uint32
	Type     int32
	TtipPos  int32
}

// TcShareMsg carries one replica's partial signature over (ordinal,
// payload).
type TcShareMsg struct {
	Ord        ordinal.Ordinal
	Payload    [MaxPayloadSize]byte
	PartialSig [SignatureSize]byte
}

// TcFinalMsg carries the combined threshold signature over (ordinal,
// payload), ready for client delivery.
type TcFinalMsg struct {
	Ord       ordinal.Ordinal
	Payload   [MaxPayloadSize]byte
	ThreshSig [SignatureSize]byte
}

// StateRequestMsg asks peers for their latest per-client progress so a
// lagging replica's state transfer can be validated.
type StateRequestMsg struct {
	Target       uint32
	LatestUpdate [MaxEmuRTU + NumHMI + 1]ordinal.SeqPair
}

// StateXferMsg carries a bulk state snapshot at a specific ordinal.
type StateXferMsg struct {
	Ord          ordinal.Ordinal
	Target       uint32
	LatestUpdate [MaxEmuRTU + NumHMI + 1]ordinal.SeqPair
	NumClients   uint32
	State        []byte
}

// BenchmarkMsg round-trips a timestamped ping for latency measurement.
type BenchmarkMsg struct {
	Seq      ordinal.SeqPair
	Sender   int32
	PingSec  uint32
	PingUsec uint32
	PongSec  uint32
	PongUsec uint32
}

func putSeqPair(buf []byte, s ordinal.SeqPair) {
	binary.BigEndian.PutUint32(buf[0:], s.Incarnation)
	binary.BigEndian.PutUint32(buf[4:], s.SeqNum)
}

func getSeqPair(buf []byte) ordinal.SeqPair {
	return ordinal.SeqPair{
		Incarnation: binary.BigEndian.Uint32(buf[0:]),
		SeqNum:      binary.BigEndian.Uint32(buf[4:]),
	}
}

func putOrdinal(buf []byte, o ordinal.Ordinal) {
	binary.BigEndian.PutUint32(buf[0:], o.OrdNum)
	binary.BigEndian.PutUint32(buf[4:], o.EventIdx)
	binary.BigEndian.PutUint32(buf[8:], o.EventTot)
}

func getOrdinal(buf []byte) ordinal.Ordinal {
	return ordinal.Ordinal{
		OrdNum:   binary.BigEndian.Uint32(buf[0:]),
		EventIdx: binary.BigEndian.Uint32(buf[4:]),
		EventTot: binary.BigEndian.Uint32(buf[8:]),
	}
}

const (
	seqPairSize = 8
	ordinalSize = 12
)

const clientResponseMessageSize = 4 + seqPairSize + ordinalSize + 8

// Encode marshals a ClientResponseMessage to its fixed-size wire form.
func (c *ClientResponseMessage) Encode() []byte {
	buf := make([]byte, clientResponseMessageSize)
	binary.BigEndian.PutUint32(buf[0:], c.MachineID)
	putSeqPair(buf[4:], c.Seq)
	putOrdinal(buf[4+seqPairSize:], c.Ord)
	binary.BigEndian.PutUint64(buf[4+seqPairSize+ordinalSize:], math.Float64bits(c.POTime))
	return buf
}

// DecodeClientResponseMessage parses the fixed-size ClientResponseMessage.
func DecodeClientResponseMessage(buf []byte) (*ClientResponseMessage, error) {
	if len(buf) < clientResponseMessageSize {
		return nil, fmt.Errorf("wire: client response message too short")
	}
	return &ClientResponseMessage{
		MachineID: binary.BigEndian.Uint32(buf[0:]),
		Seq:       getSeqPair(buf[4:]),
		Ord:       getOrdinal(buf[4+seqPairSize:]),
		POTime:    math.Float64frombits(binary.BigEndian.Uint64(buf[4+seqPairSize+ordinalSize:])),
	}, nil
}

const rtuDataMsgSize = seqPairSize + 4 + 4 + 4 + 4 + 64

// Encode marshals an RtuDataMsg to its fixed-size wire form.
func (r *RtuDataMsg) Encode() []byte {
	buf := make([]byte, rtuDataMsgSize)
	putSeqPair(buf[0:], r.Seq)
	o := seqPairSize
	binary.BigEndian.PutUint32(buf[o:], r.RtuID)
	binary.BigEndian.PutUint32(buf[o+4:], r.ScenType)
	binary.BigEndian.PutUint32(buf[o+8:], r.Sec)
	binary.BigEndian.PutUint32(buf[o+12:], r.Usec)
	copy(buf[o+16:], r.Data[:])
	return buf
}

// DecodeRtuDataMsg parses the fixed-size RtuDataMsg.
func DecodeRtuDataMsg(buf []byte) (*RtuDataMsg, error) {
	if len(buf) < rtuDataMsgSize {
		return nil, fmt.Errorf("wire: rtu data message too short")
	}
	r := &RtuDataMsg{Seq: getSeqPair(buf[0:])}
	o := seqPairSize
	r.RtuID = binary.BigEndian.Uint32(buf[o:])
	r.ScenType = binary.BigEndian.Uint32(buf[o+4:])
	r.Sec = binary.BigEndian.Uint32(buf[o+8:])
	r.Usec = binary.BigEndian.Uint32(buf[o+12:])
	copy(r.Data[:], buf[o+16:o+16+64])
	return r, nil
}

const rtuFeedbackMsgSize = seqPairSize + 4*6

// Encode marshals an RtuFeedbackMsg to its fixed-size wire form.
func (r *RtuFeedbackMsg) Encode() []byte {
	buf := make([]byte, rtuFeedbackMsgSize)
	putSeqPair(buf[0:], r.Seq)
	o := seqPairSize
	binary.BigEndian.PutUint32(buf[o:], r.ScenType)
	binary.BigEndian.PutUint32(buf[o+4:], r.Type)
	binary.BigEndian.PutUint32(buf[o+8:], r.Sub)
	binary.BigEndian.PutUint32(buf[o+12:], r.Rtu)
	binary.BigEndian.PutUint32(buf[o+16:], r.Offset)
	binary.BigEndian.PutUint32(buf[o+20:], uint32(r.Val))
	return buf
}

// DecodeRtuFeedbackMsg parses the fixed-size RtuFeedbackMsg.
func DecodeRtuFeedbackMsg(buf []byte) (*RtuFeedbackMsg, error) {
	if len(buf) < rtuFeedbackMsgSize {
		return nil, fmt.Errorf("wire: rtu feedback message too short")
	}
	r := &RtuFeedbackMsg{Seq: getSeqPair(buf[0:])}
	o := seqPairSize
	r.ScenType = binary.BigEndian.Uint32(buf[o:])
	r.Type = binary.BigEndian.Uint32(buf[o+4:])
	r.Sub = binary.BigEndian.Uint32(buf[o+8:])
	r.Rtu = binary.BigEndian.Uint32(buf[o+12:])
	r.Offset = binary.BigEndian.Uint32(buf[o+16:])
	r.Val = int32(binary.BigEndian.Uint32(buf[o+20:]))
	return r, nil
}

const hmiUpdateMsgHeaderSize = seqPairSize + 4*4

// Encode marshals an HmiUpdateMsg; Status is appended after the fixed
// header and Len is set to its length.
func (h *HmiUpdateMsg) Encode() []byte {
	h.Len = uint32(len(h.Status))
	buf := make([]byte, hmiUpdateMsgHeaderSize+len(h.Status))
	putSeqPair(buf[0:], h.Seq)
	o := seqPairSize
	binary.BigEndian.PutUint32(buf[o:], h.ScenType)
	binary.BigEndian.PutUint32(buf[o+4:], h.Sec)
	binary.BigEndian.PutUint32(buf[o+8:], h.Usec)
	binary.BigEndian.PutUint32(buf[o+12:], h.Len)
	copy(buf[hmiUpdateMsgHeaderSize:], h.Status)
	return buf
}

// DecodeHmiUpdateMsg parses an HmiUpdateMsg, slicing Status to the
// declared Len.
func DecodeHmiUpdateMsg(buf []byte) (*HmiUpdateMsg, error) {
	if len(buf) < hmiUpdateMsgHeaderSize {
		return nil, fmt.Errorf("wire: hmi update message too short")
	}
	h := &HmiUpdateMsg{Seq: getSeqPair(buf[0:])}
	o := seqPairSize
	h.ScenType = binary.BigEndian.Uint32(buf[o:])
	h.Sec = binary.BigEndian.Uint32(buf[o+4:])
	h.Usec = binary.BigEndian.Uint32(buf[o+8:])
	h.Len = binary.BigEndian.Uint32(buf[o+12:])
	if int(h.Len) > len(buf)-hmiUpdateMsgHeaderSize {
		return nil, fmt.Errorf("wire: hmi update declared len %d exceeds buffer", h.Len)
	}
	h.Status = buf[hmiUpdateMsgHeaderSize : hmiUpdateMsgHeaderSize+int(h.Len)]
	return h, nil
}

const hmiCommandMsgSize = seqPairSize + 4*4

// Encode marshals an HmiCommandMsg to its fixed-size wire form.
func (h *HmiCommandMsg) Encode() []byte {
	buf := make([]byte, hmiCommandMsgSize)
	putSeqPair(buf[0:], h.Seq)
	o := seqPairSize
	binary.BigEndian.PutUint32(buf[o:], h.HmiID)
	binary.BigEndian.PutUint32(buf[o+4:], h.ScenType)
	binary.BigEndian.PutUint32(buf[o+8:], uint32(h.Type))
	binary.BigEndian.PutUint32(buf[o+12:], uint32(h.TtipPos))
	return buf
}

// DecodeHmiCommandMsg parses the fixed-size HmiCommandMsg.
func DecodeHmiCommandMsg(buf []byte) (*HmiCommandMsg, error) {
	if len(buf) < hmiCommandMsgSize {
		return nil, fmt.Errorf("wire: hmi command message too short")
	}
	h := &HmiCommandMsg{Seq: getSeqPair(buf[0:])}
	o := seqPairSize
	h.HmiID = binary.BigEndian.Uint32(buf[o:])
	h.ScenType = binary.BigEndian.Uint32(buf[o+4:])
	h.Type = int32(binary.BigEndian.Uint32(buf[o+8:]))
	h.TtipPos = int32(binary.BigEndian.Uint32(buf[o+12:]))
	return h, nil
}

const tcShareMsgSize = ordinalSize + MaxPayloadSize + SignatureSize

// Encode marshals a TcShareMsg to its fixed-size wire form.
func (t *TcShareMsg) Encode() []byte {
	buf := make([]byte, tcShareMsgSize)
	putOrdinal(buf[0:], t.Ord)
	copy(buf[ordinalSize:], t.Payload[:])
	copy(buf[ordinalSize+MaxPayloadSize:], t.PartialSig[:])
	return buf
}

// DecodeTcShareMsg parses the fixed-size TcShareMsg.
func DecodeTcShareMsg(buf []byte) (*TcShareMsg, error) {
	if len(buf) < tcShareMsgSize {
		return nil, fmt.Errorf("wire: tc share message too short")
	}
	t := &TcShareMsg{Ord: getOrdinal(buf[0:])}
	copy(t.Payload[:], buf[ordinalSize:ordinalSize+MaxPayloadSize])
	copy(t.PartialSig[:], buf[ordinalSize+MaxPayloadSize:tcShareMsgSize])
	return t, nil
}

const tcFinalMsgSize = ordinalSize + MaxPayloadSize + SignatureSize

// Encode marshals a TcFinalMsg to its fixed-size wire form.
func (t *TcFinalMsg) Encode() []byte {
	buf := make([]byte, tcFinalMsgSize)
	putOrdinal(buf[0:], t.Ord)
	copy(buf[ordinalSize:], t.Payload[:])
	copy(buf[ordinalSize+MaxPayloadSize:], t.ThreshSig[:])
	return buf
}

// DecodeTcFinalMsg parses the fixed-size TcFinalMsg.
func DecodeTcFinalMsg(buf []byte) (*TcFinalMsg, error) {
	if len(buf) < tcFinalMsgSize {
		return nil, fmt.Errorf("wire: tc final message too short")
	}
	t := &TcFinalMsg{Ord: getOrdinal(buf[0:])}
	copy(t.Payload[:], buf[ordinalSize:ordinalSize+MaxPayloadSize])
	copy(t.ThreshSig[:], buf[ordinalSize+MaxPayloadSize:tcFinalMsgSize])
	return t, nil
}

const latestUpdateSlots = MaxEmuRTU + NumHMI + 1
const latestUpdateSize = latestUpdateSlots * seqPairSize

func putLatestUpdate(buf []byte, lu [latestUpdateSlots]ordinal.SeqPair) {
	for i, s := range lu {
		putSeqPair(buf[i*seqPairSize:], s)
	}
}

func getLatestUpdate(buf []byte) [latestUpdateSlots]ordinal.SeqPair {
	var lu [latestUpdateSlots]ordinal.SeqPair
	for i := range lu {
		lu[i] = getSeqPair(buf[i*seqPairSize:])
	}
	return lu
}

const stateRequestMsgSize = 4 + latestUpdateSize

// Encode marshals a StateRequestMsg to its fixed-size wire form.
func (s *StateRequestMsg) Encode() []byte {
	buf := make([]byte, stateRequestMsgSize)
	binary.BigEndian.PutUint32(buf[0:], s.Target)
	putLatestUpdate(buf[4:], s.LatestUpdate)
	return buf
}

// DecodeStateRequestMsg parses the fixed-size StateRequestMsg.
func DecodeStateRequestMsg(buf []byte) (*StateRequestMsg, error) {
	if len(buf) < stateRequestMsgSize {
		return nil, fmt.Errorf("wire: state request message too short")
	}
	return &StateRequestMsg{
		Target:       binary.BigEndian.Uint32(buf[0:]),
		LatestUpdate: getLatestUpdate(buf[4:]),
	}, nil
}

const stateXferMsgHeaderSize = ordinalSize + 4 + latestUpdateSize + 4 + 4

// Encode marshals a StateXferMsg; State is appended after the fixed
// header and NumClients/len(State) are carried explicitly.
func (s *StateXferMsg) Encode() []byte {
	buf := make([]byte, stateXferMsgHeaderSize+len(s.State))
	putOrdinal(buf[0:], s.Ord)
	o := ordinalSize
	binary.BigEndian.PutUint32(buf[o:], s.Target)
	putLatestUpdate(buf[o+4:], s.LatestUpdate)
	o += 4 + latestUpdateSize
	binary.BigEndian.PutUint32(buf[o:], s.NumClients)
	binary.BigEndian.PutUint32(buf[o+4:], uint32(len(s.State)))
	copy(buf[stateXferMsgHeaderSize:], s.State)
	return buf
}

// DecodeStateXferMsg parses a StateXferMsg, slicing State to the
// declared length.
func DecodeStateXferMsg(buf []byte) (*StateXferMsg, error) {
	if len(buf) < stateXferMsgHeaderSize {
		return nil, fmt.Errorf("wire: state xfer message too short")
	}
	s := &StateXferMsg{Ord: getOrdinal(buf[0:])}
	o := ordinalSize
	s.Target = binary.BigEndian.Uint32(buf[o:])
	s.LatestUpdate = getLatestUpdate(buf[o+4:])
	o += 4 + latestUpdateSize
	s.NumClients = binary.BigEndian.Uint32(buf[o:])
	stateLen := binary.BigEndian.Uint32(buf[o+4:])
	if int(stateLen) > len(buf)-stateXferMsgHeaderSize {
		return nil, fmt.Errorf("wire: state xfer declared state len %d exceeds buffer", stateLen)
	}
	s.State = buf[stateXferMsgHeaderSize : stateXferMsgHeaderSize+int(stateLen)]
	return s, nil
}

const benchmarkMsgSize = seqPairSize + 4*5

// Encode marshals a BenchmarkMsg to its fixed-size wire form.
func (b *BenchmarkMsg) Encode() []byte {
	buf := make([]byte, benchmarkMsgSize)
	putSeqPair(buf[0:], b.Seq)
	o := seqPairSize
	binary.BigEndian.PutUint32(buf[o:], uint32(b.Sender))
	binary.BigEndian.PutUint32(buf[o+4:], b.PingSec)
	binary.BigEndian.PutUint32(buf[o+8:], b.PingUsec)
	binary.BigEndian.PutUint32(buf[o+12:], b.PongSec)
	binary.BigEndian.PutUint32(buf[o+16:], b.PongUsec)
	return buf
}

// DecodeBenchmarkMsg parses the fixed-size BenchmarkMsg.
func DecodeBenchmarkMsg(buf []byte) (*BenchmarkMsg, error) {
	if len(buf) < benchmarkMsgSize {
		return nil, fmt.Errorf("wire: benchmark message too short")
	}
	b := &BenchmarkMsg{Seq: getSeqPair(buf[0:])}
	o := seqPairSize
	b.Sender = int32(binary.BigEndian.Uint32(buf[o:]))
	b.PingSec = binary.BigEndian.Uint32(buf[o+4:])
	b.PingUsec = binary.BigEndian.Uint32(buf[o+8:])
	b.PongSec = binary.BigEndian.Uint32(buf[o+12:])
	b.PongUsec = binary.BigEndian.Uint32(buf[o+16:])
	return b, nil
}
