// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package device dispatches an inbound control message to the handler
// appropriate for the daemon's configured personality (xTR, mobile node,
// map-server, RTR), using a closed-set switch over a tagged mode value
// rather than per-personality vtables.
package device

import (
	"fmt"
	"net/netip"

	"github.com/lispmob/lispd/pkg/message"
)

// Mode names a device personality.
type Mode uint8

const (
	ModeXTR Mode = iota // Tunnel Router: both ITR and ETR
	ModeMN              // Mobile Node: xTR behavior on a roaming host
	ModeMS              // Map Server / Map Resolver
	ModeRTR             // Re-encapsulating Tunnel Router, for NAT traversal
)

func (m Mode) String() string {
	switch m {
	case ModeXTR:
		return "xtr"
	case ModeMN:
		return "mn"
	case ModeMS:
		return "ms"
	case ModeRTR:
		return "rtr"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Handlers wires one callback per message kind. A nil handler means the
// device silently drops that kind — set only the handlers a given Mode is
// expected to receive.
type Handlers struct {
	OnMapRequest  func(*message.MapRequest, netip.AddrPort) error
	OnMapReply    func(*message.MapReply, netip.AddrPort) error
	OnMapRegister func(*message.MapRegister, netip.AddrPort) error
	OnMapNotify   func(*message.MapNotify, netip.AddrPort) error
	OnMapReferral func(*message.MapReferral, netip.AddrPort) error
	OnInfo        func(*message.InfoMessage, netip.AddrPort) error
	OnECM         func(*message.EncapControlMessage, netip.AddrPort) error
}

// Device dispatches inbound messages per the daemon's configured mode.
type Device struct {
	Mode     Mode
	Handlers Handlers
}

// New returns a Device with the given mode and handler set.
func New(mode Mode, h Handlers) *Device {
	return &Device{Mode: mode, Handlers: h}
}

// Dispatch routes msg to the handler matching its concrete type, first
// gating it against the daemon's configured personality: a message kind
// ExpectedKinds doesn't list for this Mode is silently dropped before the
// type switch, the same way original lispd's dispatch table only ever
// wired up the handlers a given personality could legitimately receive.
// A handler left nil for an expected kind is still a no-op, not an error.
func (d *Device) Dispatch(msg message.Message, from netip.AddrPort) error {
	if !d.accepts(msg.Type()) {
		return nil
	}
	switch m := msg.(type) {
	case *message.MapRequest:
		if d.Handlers.OnMapRequest != nil {
			return d.Handlers.OnMapRequest(m, from)
		}
	case *message.MapReply:
		if d.Handlers.OnMapReply != nil {
			return d.Handlers.OnMapReply(m, from)
		}
	case *message.MapRegister:
		if d.Handlers.OnMapRegister != nil {
			return d.Handlers.OnMapRegister(m, from)
		}
	case *message.MapNotify:
		if d.Handlers.OnMapNotify != nil {
			return d.Handlers.OnMapNotify(m, from)
		}
	case *message.MapReferral:
		if d.Handlers.OnMapReferral != nil {
			return d.Handlers.OnMapReferral(m, from)
		}
	case *message.InfoMessage:
		if d.Handlers.OnInfo != nil {
			return d.Handlers.OnInfo(m, from)
		}
	case *message.EncapControlMessage:
		if d.Handlers.OnECM != nil {
			return d.Handlers.OnECM(m, from)
		}
	default:
		return fmt.Errorf("device: unhandled message type %T", msg)
	}
	return nil
}

// accepts reports whether t is among d.Mode's ExpectedKinds.
func (d *Device) accepts(t message.MsgType) bool {
	for _, k := range d.Mode.ExpectedKinds() {
		if k == t {
			return true
		}
	}
	return false
}

// ExpectedKinds returns the message kinds this mode is designed to receive.
// Dispatch gates on this set, so a kind missing here is dropped on arrival
// regardless of whether a handler happens to be wired for it.
func (m Mode) ExpectedKinds() []message.MsgType {
	switch m {
	case ModeXTR, ModeMN:
		return []message.MsgType{message.MsgMapReply, message.MsgMapRequest, message.MsgMapNotify, message.MsgInfo}
	case ModeMS:
		return []message.MsgType{message.MsgMapRegister, message.MsgMapRequest, message.MsgECM}
	case ModeRTR:
		return []message.MsgType{message.MsgECM, message.MsgInfo}
	default:
		return nil
	}
}
