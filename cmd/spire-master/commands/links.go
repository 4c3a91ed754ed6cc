package commands

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/spire-resilient-systems/itrc/pkg/metrics"
	"github.com/spire-resilient-systems/itrc/pkg/overlay"
	"github.com/spire-resilient-systems/itrc/pkg/replicastate"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// internalLink implements master.InternalLink over a single overlay
// socket shared by every control-center peer: pkg/overlay.Socket only
// models a point-to-point connection, and the internal link needs to
// receive from, and send to, the whole peer set on one bound port, so
// this wraps overlay.Listen/SendTo instead of dialing one socket per
// peer.
type internalLink struct {
	mu    sync.RWMutex
	sock  *overlay.Socket
	peers map[uint32]string
	port  int
	m     metrics.OverlayMetrics
}

func newInternalLink(sock *overlay.Socket, m metrics.OverlayMetrics) *internalLink {
	return &internalLink{sock: sock, peers: make(map[uint32]string), m: m}
}

// setPeersFromConfig rebuilds the peer address table from a newly
// accepted configuration, skipping this replica's own slot.
func (l *internalLink) setPeersFromConfig(cfg *wire.ConfigMessage, selfID uint32) {
	peers := make(map[uint32]string, wire.MaxNumServerSlots)
	for i := 0; i < wire.MaxNumServerSlots; i++ {
		if cfg.SlotEmpty(i) || cfg.TpmBasedID[i] == selfID {
			continue
		}
		peers[cfg.TpmBasedID[i]] = wire.Address(cfg.SpinesIntAddresses[i])
	}
	l.mu.Lock()
	l.peers = peers
	l.port = int(cfg.SpinesIntPort)
	l.mu.Unlock()
}

func (l *internalLink) sendTo(id uint32, host string, encoded []byte) error {
	start := time.Now()
	n, err := l.sock.SendTo(host, l.port, encoded)
	if err != nil {
		if l.m != nil {
			l.m.RecordSendFailure("internal")
		}
		return fmt.Errorf("internal link: send to %d: %w", id, err)
	}
	if l.m != nil {
		l.m.RecordSend("internal", n, time.Since(start))
	}
	return nil
}

// Broadcast sends encoded to every known peer, continuing past a
// single peer's failure and returning the first error encountered.
func (l *internalLink) Broadcast(encoded []byte) error {
	l.mu.RLock()
	peers := l.peers
	l.mu.RUnlock()

	var firstErr error
	for id, host := range peers {
		if err := l.sendTo(id, host, encoded); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Unicast sends encoded to one named peer.
func (l *internalLink) Unicast(target uint32, encoded []byte) error {
	l.mu.RLock()
	host, ok := l.peers[target]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("internal link: unknown peer %d", target)
	}
	return l.sendTo(target, host, encoded)
}

// Close tears down the underlying socket, satisfying the half of
// reconfig.Overlay this link backs.
func (l *internalLink) Close() error {
	return l.sock.Close()
}

// externalLink implements master.ClientLink and serves as the
// receive side inject.HandleExternal is fed from: one overlay socket,
// bound at this replica's external port, shared by every client (RTU,
// HMI, or benchmark endpoint) that addresses it.
type externalLink struct {
	mu      sync.RWMutex
	sock    *overlay.Socket
	clients map[uint32]*net.UDPAddr

	selfID uint32
	sign   func([]byte) ([]byte, error)
	keys   *replicastate.KeySnapshot
	m      metrics.OverlayMetrics
}

func newExternalLink(sock *overlay.Socket, selfID uint32, sign func([]byte) ([]byte, error), keys *replicastate.KeySnapshot, m metrics.OverlayMetrics) *externalLink {
	return &externalLink{sock: sock, clients: make(map[uint32]*net.UDPAddr), selfID: selfID, sign: sign, keys: keys, m: m}
}

// recordSender remembers where a client's signed envelope came from,
// so a later TC_FINAL addressed to that client's routing id can be
// sent back without the client having to share its ephemeral port out
// of band.
func (l *externalLink) recordSender(id uint32, addr *net.UDPAddr) {
	l.mu.Lock()
	l.clients[id] = addr
	l.mu.Unlock()
}

// Send wraps final in a signed TC_FINAL envelope and routes it to its
// addressed client, decoded from the inner SCADA reply payload:
// RTU_FEEDBACK names its target in Rtu, BENCHMARK names it in Sender;
// HMI_UPDATE carries no per-client id, so it is broadcast to every
// client address this replica has heard from.
func (l *externalLink) Send(final *wire.TcFinalMsg) error {
	envelope := wire.NewSignedMessage(0, l.selfID, wire.TcFinal, 0, 0, l.keys.Load().GlobalConfigurationNumber, final.Encode())
	signed, err := l.sign(envelope.Encode())
	if err != nil {
		return fmt.Errorf("external link: sign tc_final: %w", err)
	}

	inner, err := wire.Decode(final.Payload[:])
	if err != nil {
		return fmt.Errorf("external link: decode scada reply: %w", err)
	}

	switch inner.Type {
	case wire.RtuFeedback:
		fb, err := wire.DecodeRtuFeedbackMsg(inner.Payload)
		if err != nil {
			return fmt.Errorf("external link: decode rtu feedback: %w", err)
		}
		return l.sendToClient(fb.Rtu, signed)

	case wire.Benchmark:
		bm, err := wire.DecodeBenchmarkMsg(inner.Payload)
		if err != nil {
			return fmt.Errorf("external link: decode benchmark reply: %w", err)
		}
		return l.sendToClient(uint32(bm.Sender), signed)

	default:
		return l.broadcastToClients(signed)
	}
}

func (l *externalLink) sendToClient(id uint32, signed []byte) error {
	l.mu.RLock()
	addr, ok := l.clients[id]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("external link: unknown client %d", id)
	}
	return l.sendToAddr(addr, signed)
}

func (l *externalLink) broadcastToClients(signed []byte) error {
	l.mu.RLock()
	addrs := make([]*net.UDPAddr, 0, len(l.clients))
	for _, addr := range l.clients {
		addrs = append(addrs, addr)
	}
	l.mu.RUnlock()

	var firstErr error
	for _, addr := range addrs {
		if err := l.sendToAddr(addr, signed); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *externalLink) sendToAddr(addr *net.UDPAddr, signed []byte) error {
	start := time.Now()
	n, err := l.sock.SendTo(addr.IP.String(), addr.Port, signed)
	if err != nil {
		if l.m != nil {
			l.m.RecordSendFailure("external")
		}
		return fmt.Errorf("external link: send to %s: %w", addr, err)
	}
	if l.m != nil {
		l.m.RecordSend("external", n, time.Since(start))
	}
	return nil
}

// Close tears down the underlying socket, satisfying the half of
// reconfig.Overlay this link backs.
func (l *externalLink) Close() error {
	return l.sock.Close()
}

// masterOverlay adapts the pair of sockets server.go owns to
// reconfig.Overlay, the interface Coordinator.Apply tears both down
// through ahead of a reconnect.
type masterOverlay struct {
	internal *internalLink
	external *externalLink
}

func (o *masterOverlay) CloseInternal() error { return o.internal.Close() }
func (o *masterOverlay) CloseExternal() error { return o.external.Close() }
