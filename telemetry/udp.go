// Package telemetry sends application datagrams to a UDP collector.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("telemetry sender closed")

// Sender writes one datagram per Send to a fixed collector address.
type Sender struct {
	conn    *net.UDPConn
	address string
}

// Dial resolves addr ("host:port") and opens a UDP socket to it.
func Dial(ctx context.Context, addr string) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve telemetry address %q: %w", addr, err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", udpAddr.String())
	if err != nil {
		return nil, fmt.Errorf("dial telemetry collector %s: %w", udpAddr, err)
	}

	return &Sender{conn: conn.(*net.UDPConn), address: udpAddr.String()}, nil
}

// Send writes payload as a single datagram. The ctx deadline, if any, bounds
// the write.
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	if s.conn == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send telemetry: %w", err)
	}

	// A zero deadline clears the previous one.
	deadline, _ := ctx.Deadline()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	n, err := s.conn.Write(payload)
	if err != nil {
		return fmt.Errorf("send telemetry to %s: %w", s.address, err)
	}
	if n != len(payload) {
		return fmt.Errorf("send telemetry to %s: short write %d/%d", s.address, n, len(payload))
	}
	return nil
}

// Addr returns the resolved collector address.
func (s *Sender) Addr() string {
	return s.address
}

// Close releases the socket.
func (s *Sender) Close() error {
	if s.conn == nil {
		return ErrClosed
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
