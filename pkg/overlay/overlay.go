// Package overlay implements the external/internal/multicast UDP
// transport the original implementation carries over the Spines
// resilient overlay network. No Spines client library (nor any
// equivalent resilient-multicast transport) appears anywhere in the
// retrieved example pack, so this package models the same three
// connection shapes — a disjoint-paths point-to-point socket, a
// send-only socket, and a send-only multicast socket — directly over
// net.UDPConn, with reconnection managed by ReconnectLoop.
//
// Grounded on Spines_Sock / Spines_SendOnly_Sock /
// Spines_Mcast_SendOnly_Sock in original_source/common/net_wrapper.c.
package overlay

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultReconnectInterval is the fixed retry timer the spec commits
// to for overlay reconnection.
const DefaultReconnectInterval = 2 * time.Second

// Socket is a UDP endpoint standing in for a Spines connection.
type Socket struct {
	conn *net.UDPConn
	raddr *net.UDPAddr
}

// Connect dials addr:port and binds the local side to myPort, mirroring
// Spines_Sock's connect-then-bind sequence.
func Connect(addr string, port, myPort int) (*Socket, error) {
	raddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return nil, fmt.Errorf("overlay: resolve %s:%d: %w", addr, port, err)
	}
	laddr := &net.UDPAddr{Port: myPort}
	conn, err := net.DialUDP("udp4", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("overlay: connect %s:%d: %w", addr, port, err)
	}
	return &Socket{conn: conn, raddr: raddr}, nil
}

// SendOnly dials addr:port without binding a fixed local port.
func SendOnly(addr string, port int) (*Socket, error) {
	raddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return nil, fmt.Errorf("overlay: resolve %s:%d: %w", addr, port, err)
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("overlay: send-only %s:%d: %w", addr, port, err)
	}
	return &Socket{conn: conn, raddr: raddr}, nil
}

// MulticastSendOnly dials a multicast group address for out-of-band
// configuration and key-distribution traffic.
func MulticastSendOnly(groupAddr string, port int) (*Socket, error) {
	return SendOnly(groupAddr, port)
}

// Listen binds a receiving socket at port that accepts datagrams from
// any sender, for the external and internal overlay links where many
// peers (clients, or the rest of the replica set) address this
// replica without a prior Connect.
func Listen(port int) (*Socket, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("overlay: listen :%d: %w", port, err)
	}
	return &Socket{conn: conn}, nil
}

// SendTo writes data to an explicit peer address over a Listen
// socket, for a sender this replica has not Connect'd to.
func (s *Socket) SendTo(addr string, port int, data []byte) (int, error) {
	raddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return 0, fmt.Errorf("overlay: resolve %s:%d: %w", addr, port, err)
	}
	n, err := s.conn.WriteToUDP(data, raddr)
	if err != nil {
		return n, fmt.Errorf("overlay: send to %s:%d: %w", addr, port, err)
	}
	return n, nil
}

// RecvFrom reads one datagram into buf from a Listen socket, also
// returning the sender's address.
func (s *Socket) RecvFrom(buf []byte) (int, *net.UDPAddr, error) {
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return n, addr, fmt.Errorf("overlay: recv: %w", err)
	}
	return n, addr, nil
}

// Send writes data to the socket's connected peer.
func (s *Socket) Send(data []byte) (int, error) {
	n, err := s.conn.Write(data)
	if err != nil {
		return n, fmt.Errorf("overlay: send: %w", err)
	}
	return n, nil
}

// Recv reads one datagram into buf.
func (s *Socket) Recv(buf []byte) (int, error) {
	n, err := s.conn.Read(buf)
	if err != nil {
		return n, fmt.Errorf("overlay: recv: %w", err)
	}
	return n, nil
}

// Close tears down the socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// Dialer builds a Socket on demand, letting ReconnectLoop retry a
// failed connection attempt without the caller repeating its args.
type Dialer func() (*Socket, error)

// ReconnectLoop repeatedly calls dial until it succeeds or ctx is
// canceled, waiting interval between attempts. On success it invokes
// onConnect with the new socket and blocks until onConnect returns
// (signalling the connection was lost), closes the socket, and waits
// interval before attempting to reconnect. This mirrors the overlay's async-failure contract:
// sendto failure closes the socket and schedules a reconnect rather
// than surfacing an error up the call stack.
func ReconnectLoop(ctx context.Context, interval time.Duration, dial Dialer, onConnect func(*Socket)) {
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sock, err := dial()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
				continue
			}
		}

		onConnect(sock)
		_ = sock.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
