// Package ipc implements the local Unix-domain datagram transport
// used between the Master, Inject, Client, and config-agent processes
// on a single host.
//
// Grounded on IPC_DGram_Sock / IPC_DGram_SendOnly_Sock / IPC_Recv /
// IPC_Send in original_source/common/net_wrapper.c: no IPC library
// appears anywhere in the retrieved example pack, so this wraps the
// standard library's net.UnixConn directly, as the bit-exact,
// process-local nature of the transport offers nothing a third-party
// dependency would add.
package ipc

import (
	"fmt"
	"net"
	"os"
)

// Socket is a bound or connected Unix-domain datagram endpoint.
type Socket struct {
	conn *net.UnixConn
	path string
}

// Listen binds a receiving datagram socket at path, removing any
// stale socket file left over from a previous run.
func Listen(path string) (*Socket, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ipc: remove stale socket %s: %w", path, err)
	}
	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: resolve %s: %w", path, err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", path, err)
	}
	return &Socket{conn: conn, path: path}, nil
}

// SendOnly creates an unbound datagram socket used only as a sender,
// for paths where the peer's address is supplied per-call (the
// IPC_DGram_SendOnly_Sock pattern).
func SendOnly() (*Socket, error) {
	conn, err := net.ListenUnixgram("unixgram", nil)
	if err != nil {
		return nil, fmt.Errorf("ipc: send-only socket: %w", err)
	}
	return &Socket{conn: conn}, nil
}

// Dial connects to a fixed peer path, for the common case of a
// one-to-one named pair (Master <-> local SM).
func Dial(path string) (*Socket, error) {
	raddr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: resolve %s: %w", path, err)
	}
	conn, err := net.DialUnix("unixgram", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", path, err)
	}
	return &Socket{conn: conn}, nil
}

// Send writes data to the peer at the named path (for a SendOnly or
// Listen socket that must address multiple peers).
func (s *Socket) Send(to string, data []byte) (int, error) {
	addr, err := net.ResolveUnixAddr("unixgram", to)
	if err != nil {
		return 0, fmt.Errorf("ipc: resolve %s: %w", to, err)
	}
	n, err := s.conn.WriteToUnix(data, addr)
	if err != nil {
		return n, fmt.Errorf("ipc: send to %s: %w", to, err)
	}
	return n, nil
}

// Write sends data to the connected peer (Dial-established sockets).
func (s *Socket) Write(data []byte) (int, error) {
	n, err := s.conn.Write(data)
	if err != nil {
		return n, fmt.Errorf("ipc: write: %w", err)
	}
	return n, nil
}

// Recv reads one datagram into buf, returning the byte count.
func (s *Socket) Recv(buf []byte) (int, error) {
	n, _, err := s.conn.ReadFromUnix(buf)
	if err != nil {
		return n, fmt.Errorf("ipc: recv: %w", err)
	}
	return n, nil
}

// Close closes the socket and, for a Listen-created socket, removes
// its backing file.
func (s *Socket) Close() error {
	err := s.conn.Close()
	if s.path != "" {
		_ = os.Remove(s.path)
	}
	return err
}
