package gree

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"
)

// Datagram is a single UDP message and its peer.
type Datagram struct {
	From netip.AddrPort
	Data []byte
}

// Transport sends and receives whole datagrams. Receive is only ever called
// from one goroutine at a time.
type Transport interface {
	Send(ctx context.Context, to netip.AddrPort, data []byte) error
	Receive(ctx context.Context) (Datagram, error)
	Close() error
}

// UDPTransport is a Transport over a single unconnected UDP socket with
// broadcast enabled.
type UDPTransport struct {
	conn *net.UDPConn
}

// ListenUDP opens a socket bound to addr, e.g. "0.0.0.0:0".
func ListenUDP(addr string) (*UDPTransport, error) {
	local, err := netip.ParseAddrPort(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: local address %q: %v", ErrIO, addr, err)
	}
	conn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(local))
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", ErrIO, addr, err)
	}
	// The runtime enables SO_BROADCAST on datagram sockets, which the scan needs.
	return &UDPTransport{conn: conn}, nil
}

// LocalAddr returns the bound address.
func (t *UDPTransport) LocalAddr() netip.AddrPort {
	return t.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (t *UDPTransport) Send(ctx context.Context, to netip.AddrPort, data []byte) error {
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if _, err := t.conn.WriteToUDPAddrPort(data, to); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: send to %s", ErrTimeout, to)
		}
		return fmt.Errorf("%w: send to %s: %v", ErrIO, to, err)
	}
	return nil
}

// Receive blocks until a datagram arrives or ctx is done. Expiry yields
// ErrTimeout.
func (t *UDPTransport) Receive(ctx context.Context) (Datagram, error) {
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return Datagram{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, MaxDatagramSize)
	n, from, err := t.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) {
			return Datagram{}, fmt.Errorf("%w: receive", ErrTimeout)
		}
		return Datagram{}, fmt.Errorf("%w: receive: %w", ErrIO, err)
	}
	return Datagram{
		From: netip.AddrPortFrom(from.Addr().Unmap(), from.Port()),
		Data: buf[:n],
	}, nil
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
