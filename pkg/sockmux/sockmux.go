// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package sockmux implements the UDP/4342 v4/v6 datagram path. Reader
// goroutines do nothing but move bytes off the wire into a single channel;
// all parsing and state-machine work happens on the consumer of that
// channel, preserving the single-daemon-thread model the rest of the
// control plane assumes. This mirrors the single dispatch loop in
// original_source/lispd_tun.c (there built on select(2) over every fd at
// once) translated to Go's per-conn goroutine + fan-in channel idiom.
// Outbound pacing uses golang.org/x/time/rate.
package sockmux

import (
	"context"
	"net"
	"net/netip"

	"golang.org/x/time/rate"

	"github.com/lispmob/lispd/pkg/lisperr"
)

// DefaultPort is the well-known LISP control-plane UDP port.
const DefaultPort = 4342

// Datagram is one received UDP packet, tagged with its source.
type Datagram struct {
	From    netip.AddrPort
	Payload []byte
}

// DropFunc is called whenever an outbound datagram is rejected for
// exceeding the configured MTU, so a caller can bump a metric.
type DropFunc func(reason string, size int)

// Multiplexer owns the v4 and/or v6 listening sockets and paces outbound
// sends.
type Multiplexer struct {
	connV4   *net.UDPConn
	connV6   *net.UDPConn
	limiter  *rate.Limiter
	mtu      int
	incoming chan Datagram
	onDrop   DropFunc
}

// Config controls how a Multiplexer is constructed.
type Config struct {
	Port        int
	EnableIPv4  bool
	EnableIPv6  bool
	MTU         int
	SendRate    rate.Limit
	SendBurst   int
	QueueLength int
	OnDrop      DropFunc
}

// Listen opens the configured UDP sockets and starts their reader
// goroutines. At least one of EnableIPv4/EnableIPv6 must be set.
func Listen(cfg Config) (*Multiplexer, error) {
	if !cfg.EnableIPv4 && !cfg.EnableIPv6 {
		return nil, lisperr.ErrSocketError
	}
	if cfg.QueueLength <= 0 {
		cfg.QueueLength = 256
	}
	if cfg.OnDrop == nil {
		cfg.OnDrop = func(string, int) {}
	}

	m := &Multiplexer{
		limiter:  rate.NewLimiter(cfg.SendRate, cfg.SendBurst),
		mtu:      cfg.MTU,
		incoming: make(chan Datagram, cfg.QueueLength),
		onDrop:   cfg.OnDrop,
	}

	if cfg.EnableIPv4 {
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.Port})
		if err != nil {
			return nil, err
		}
		m.connV4 = conn
		go m.readLoop(conn)
	}
	if cfg.EnableIPv6 {
		conn, err := net.ListenUDP("udp6", &net.UDPAddr{Port: cfg.Port})
		if err != nil {
			m.Close()
			return nil, err
		}
		m.connV6 = conn
		go m.readLoop(conn)
	}

	return m, nil
}

func (m *Multiplexer) readLoop(conn *net.UDPConn) {
	buf := make([]byte, 64*1024)
	for {
		n, from, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return // conn closed
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		m.incoming <- Datagram{From: from, Payload: payload}
	}
}

// Incoming returns the channel every received datagram, from either socket,
// is delivered on.
func (m *Multiplexer) Incoming() <-chan Datagram { return m.incoming }

// Send paces and writes payload to to, using the v4 or v6 socket matching
// to's address family. Datagrams larger than the configured MTU are
// rejected without being sent.
func (m *Multiplexer) Send(ctx context.Context, to netip.AddrPort, payload []byte) error {
	if m.mtu > 0 && len(payload) > m.mtu {
		m.onDrop("mtu-exceeded", len(payload))
		return lisperr.ErrResourceExhausted
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	conn := m.connV4
	if to.Addr().Is6() && !to.Addr().Is4In6() {
		conn = m.connV6
	}
	if conn == nil {
		return lisperr.ErrSocketError
	}
	_, err := conn.WriteToUDPAddrPort(payload, to)
	return err
}

// SendFrom behaves like Send but binds a fresh socket to sourcePort for this
// datagram rather than using the shared listening socket, so a caller can
// satisfy a peer's mandated source-port convention (ECM-wrapped Map-Requests
// must originate from UDP port 0xF000|(nonce&0x0FFF), per encap.SourcePort)
// without dedicating a long-lived socket to every outstanding nonce.
func (m *Multiplexer) SendFrom(ctx context.Context, sourcePort uint16, to netip.AddrPort, payload []byte) error {
	if m.mtu > 0 && len(payload) > m.mtu {
		m.onDrop("mtu-exceeded", len(payload))
		return lisperr.ErrResourceExhausted
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	network := "udp4"
	if to.Addr().Is6() && !to.Addr().Is4In6() {
		network = "udp6"
	}
	conn, err := net.ListenUDP(network, &net.UDPAddr{Port: int(sourcePort)})
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.WriteToUDPAddrPort(payload, to)
	return err
}

// Close shuts down every open socket.
func (m *Multiplexer) Close() error {
	var firstErr error
	if m.connV4 != nil {
		if err := m.connV4.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.connV6 != nil {
		if err := m.connV6.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
