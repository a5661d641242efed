// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package sockmux

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func localAddrPort(t *testing.T, m *Multiplexer) netip.AddrPort {
	t.Helper()
	udpAddr := m.connV4.LocalAddr().(*net.UDPAddr)
	addr, ok := netip.AddrFromSlice(udpAddr.IP.To4())
	require.True(t, ok)
	return netip.AddrPortFrom(addr, uint16(udpAddr.Port))
}

func TestSendReceiveRoundTripIPv4(t *testing.T) {
	server, err := Listen(Config{Port: 0, EnableIPv4: true, MTU: 1500, SendRate: rate.Inf, SendBurst: 1})
	require.NoError(t, err)
	defer server.Close()

	client, err := Listen(Config{Port: 0, EnableIPv4: true, MTU: 1500, SendRate: rate.Inf, SendBurst: 1})
	require.NoError(t, err)
	defer client.Close()

	serverAddr := localAddrPort(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, client.Send(ctx, serverAddr, []byte("hello lisp")))

	select {
	case dgram := <-server.Incoming():
		require.Equal(t, "hello lisp", string(dgram.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestSendOverMTUIsDropped(t *testing.T) {
	var dropReason string
	var dropSize int

	m, err := Listen(Config{
		Port: 0, EnableIPv4: true, MTU: 16,
		SendRate: rate.Inf, SendBurst: 1,
		OnDrop: func(reason string, size int) { dropReason = reason; dropSize = size },
	})
	require.NoError(t, err)
	defer m.Close()

	dest := localAddrPort(t, m)
	err = m.Send(context.Background(), dest, make([]byte, 64))
	require.Error(t, err)
	require.Equal(t, "mtu-exceeded", dropReason)
	require.Equal(t, 64, dropSize)
}

func TestSendFromBindsRequestedSourcePort(t *testing.T) {
	server, err := Listen(Config{Port: 0, EnableIPv4: true, MTU: 1500, SendRate: rate.Inf, SendBurst: 1})
	require.NoError(t, err)
	defer server.Close()

	client, err := Listen(Config{Port: 0, EnableIPv4: true, MTU: 1500, SendRate: rate.Inf, SendBurst: 1})
	require.NoError(t, err)
	defer client.Close()

	serverAddr := localAddrPort(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const sourcePort = 0xF123
	require.NoError(t, client.SendFrom(ctx, sourcePort, serverAddr, []byte("ecm")))

	select {
	case dgram := <-server.Incoming():
		require.Equal(t, "ecm", string(dgram.Payload))
		require.Equal(t, uint16(sourcePort), dgram.From.Port())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestSendFromOverMTUIsDropped(t *testing.T) {
	var dropReason string
	var dropSize int

	m, err := Listen(Config{
		Port: 0, EnableIPv4: true, MTU: 16,
		SendRate: rate.Inf, SendBurst: 1,
		OnDrop: func(reason string, size int) { dropReason = reason; dropSize = size },
	})
	require.NoError(t, err)
	defer m.Close()

	dest := localAddrPort(t, m)
	err = m.SendFrom(context.Background(), 0xF123, dest, make([]byte, 64))
	require.Error(t, err)
	require.Equal(t, "mtu-exceeded", dropReason)
	require.Equal(t, 64, dropSize)
}
