// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package message parses and serializes the eight LISP control-message
// kinds and their embedded
// records (mapping record, EID-prefix record, locator record, authentication
// field, RTR-auth field). Grounded on lisp_message_fields.c's
// header-then-iterate-N-records shape (mapping_record_parse,
// locator_field_parse, auth_field_parse, rtr_auth_field_parse), restated
// against pkg/afi's Address codec instead of raw pointer arithmetic.
package message

import (
	"fmt"
	"net/netip"

	"github.com/lispmob/lispd/pkg/afi"
)

// MsgType is the 4-bit type discriminator at the top of every control
// message.
type MsgType uint8

const (
	MsgMapRequest MsgType = 1
	MsgMapReply   MsgType = 2
	MsgMapRegister MsgType = 3
	MsgMapNotify  MsgType = 4
	MsgMapReferral MsgType = 6
	MsgInfo       MsgType = 7
	MsgECM        MsgType = 8
)

func (t MsgType) String() string {
	switch t {
	case MsgMapRequest:
		return "map-request"
	case MsgMapReply:
		return "map-reply"
	case MsgMapRegister:
		return "map-register"
	case MsgMapNotify:
		return "map-notify"
	case MsgMapReferral:
		return "map-referral"
	case MsgInfo:
		return "info"
	case MsgECM:
		return "ecm"
	default:
		return fmt.Sprintf("msg-type(%d)", uint8(t))
	}
}

// Message is the common interface every control-message kind satisfies.
type Message interface {
	Type() MsgType
}

// Action is the per-mapping forwarding directive carried in a mapping
// record.
type Action uint8

const (
	ActionNoAction Action = iota
	ActionNativelyForward
	ActionSendMapRequest
	ActionDrop
)

// EIDPrefix identifies an endpoint-identifier prefix: an address, mask
// length, and optional instance ID. Two prefixes are equal iff all three
// components match.
type EIDPrefix struct {
	Address afi.Address
	MaskLen uint8
	IID     uint32 // 0 when absent; mapdb callers track presence separately
	HasIID  bool
}

// Equal reports whether two EID prefixes name the same key.
func (p EIDPrefix) Equal(o EIDPrefix) bool {
	if p.MaskLen != o.MaskLen || p.HasIID != o.HasIID || (p.HasIID && p.IID != o.IID) {
		return false
	}
	pa, pok := afi.AddrOf(p.Address)
	oa, ook := afi.AddrOf(o.Address)
	if !pok || !ook {
		return false
	}
	return pa == oa
}

// MaxMaskLen returns the maximum valid mask length for the prefix's address
// family.
func (p EIDPrefix) MaxMaskLen() uint8 {
	addr, ok := afi.AddrOf(p.Address)
	if !ok {
		return 0
	}
	if addr.Is4() {
		return 32
	}
	return 128
}

// LocatorRecord is one locator entry within a mapping record.
type LocatorRecord struct {
	Priority  uint8
	Weight    uint8
	MPriority uint8
	MWeight   uint8
	Local     bool // L bit
	Probed    bool // p bit
	Reachable bool // R bit
	Addr      afi.Address
}

const locatorHeaderLen = 8

// MappingRecord is the EID-prefix-plus-locator-set body shared by map-reply,
// map-register and map-notify.
type MappingRecord struct {
	TTLMinutes    uint32
	EIDMaskLen    uint8
	Action        Action
	Authoritative bool
	EID           afi.Address
	IID           uint32
	HasIID        bool
	Locators      []LocatorRecord
}

// LocatorCount mirrors the wire's locator_count field: it is always derived
// from len(Locators), never stored independently (P1).
func (m MappingRecord) LocatorCount() int { return len(m.Locators) }

// EIDPrefixRecord is a bare (mask-length, address) pair used in map-request
// records and SMR targets.
type EIDPrefixRecord struct {
	MaskLen uint8
	EID     afi.Address
}

// AuthField is the {key_id, auth_data_len, auth_data} triple carried by
// map-register, map-notify and info messages.
type AuthField struct {
	KeyID    uint16
	AuthData []byte
}

// RTRAuthField is the NAT-traversal extension's RTR-auth field, appended to
// an ECM-wrapped map-register per the ad_type = RTR_AUTH_DATA convention in
// lisp_message_fields.c's rtr_auth_field.
const RTRAuthDataType uint8 = 1

type RTRAuthField struct {
	ADType   uint8
	KeyID    uint16
	AuthData []byte
}

// helper used by tests to build an IPv4 EID quickly.
func mustIPv4(s string) afi.Address {
	return afi.IPv4Address{Addr: netip.MustParseAddr(s)}
}
