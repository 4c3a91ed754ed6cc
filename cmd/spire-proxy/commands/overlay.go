package commands

import (
	"fmt"
	"time"

	"github.com/spire-resilient-systems/itrc/pkg/client"
	"github.com/spire-resilient-systems/itrc/pkg/metrics"
	"github.com/spire-resilient-systems/itrc/pkg/overlay"
)

// overlayLink adapts a single bound overlay.Socket to
// client.OverlaySender: one local external-overlay port, used to reach
// every control-center replica in the current fan-out set.
type overlayLink struct {
	sock *overlay.Socket
	m    metrics.OverlayMetrics
}

func newOverlayLink(sock *overlay.Socket, m metrics.OverlayMetrics) *overlayLink {
	return &overlayLink{sock: sock, m: m}
}

// SendTo delivers data to one control-center replica's external
// overlay port.
func (l *overlayLink) SendTo(dest client.Destination, data []byte) error {
	start := time.Now()
	n, err := l.sock.SendTo(dest.Addr, dest.Port, data)
	if err != nil {
		if l.m != nil {
			l.m.RecordSendFailure("client")
		}
		return fmt.Errorf("overlay link: send to replica %d: %w", dest.ReplicaID, err)
	}
	if l.m != nil {
		l.m.RecordSend("client", n, time.Since(start))
	}
	return nil
}
