package commands

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/spire-resilient-systems/itrc/pkg/ipc"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// rtuChannel is one field-protocol driver's local IPC pairing: a
// socket this proxy listens on for that driver's RtuDataMsg
// submissions, and the path the driver itself listens on for routed
// RTU_FEEDBACK replies. Grounded on the per-protocol key_value entries
// (ipc_local/ipc_remote) in original_source/proxy/proxy.c; this
// implementation keys directly by rtu_id rather than by protocol,
// since spire-proxy does not fork protocol drivers.
type rtuChannel struct {
	rtuID      uint32
	local      *ipc.Socket
	driverPath string
}

// rtuBridge multiplexes RTU_FEEDBACK (and other ToClient) replies out
// to the correct field-protocol driver's local channel, and implements
// client.LocalLink.
type rtuBridge struct {
	mu       sync.RWMutex
	channels map[uint32]*rtuChannel
}

func newRTUBridge() *rtuBridge {
	return &rtuBridge{channels: make(map[uint32]*rtuChannel)}
}

func (b *rtuBridge) add(ch *rtuChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels[ch.rtuID] = ch
}

func (b *rtuBridge) closeAll() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.channels {
		_ = ch.local.Close()
	}
}

// Send implements client.LocalLink. payload is an encoded inner
// SignedMessage already validated against wire.ToClient by the caller;
// it is routed to whichever RTU channel it is addressed to.
func (b *rtuBridge) Send(payload []byte) error {
	inner, err := wire.Decode(payload)
	if err != nil {
		return fmt.Errorf("rtu bridge: decode inner envelope: %w", err)
	}

	switch inner.Type {
	case wire.RtuFeedback:
		fb, err := wire.DecodeRtuFeedbackMsg(inner.Payload)
		if err != nil {
			return fmt.Errorf("rtu bridge: decode rtu feedback: %w", err)
		}
		return b.routeTo(fb.Rtu, payload)
	case wire.HmiUpdate:
		// HMI_UPDATE has no per-client addressee: broadcast to every
		// RTU channel is meaningless here, so it is dropped. A future
		// HMI-facing binary would consume this type instead.
		slog.Debug("rtu bridge: dropping hmi update, no hmi channel wired")
		return nil
	default:
		slog.Warn("rtu bridge: dropping reply of unexpected type", "type", inner.Type)
		return nil
	}
}

func (b *rtuBridge) routeTo(rtuID uint32, payload []byte) error {
	b.mu.RLock()
	ch, ok := b.channels[rtuID]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("rtu bridge: no channel for rtu %d", rtuID)
	}
	if _, err := ch.local.Send(ch.driverPath, payload); err != nil {
		return fmt.Errorf("rtu bridge: deliver to rtu %d driver: %w", rtuID, err)
	}
	return nil
}
