// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package afi parses and serializes IPv4/IPv6/no-address/LCAF-wrapped
// addresses the way the LISP wire format tags them with a 16-bit AFI.
// Modeled on the AFI-dispatch shape of lisp_message_fields.c's
// address_field_parse, restated as a Go tagged union (the Address
// interface) — dispatch lives in ParseAddress and each Encode method,
// never in scattered type switches elsewhere.
package afi

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/lispmob/lispd/pkg/lisperr"
)

// AFI is the 16-bit address-family identifier that precedes every address
// on the wire.
type AFI uint16

const (
	AFINone AFI = 0
	AFIIPv4 AFI = 1
	AFIIPv6 AFI = 2
	AFILCAF AFI = 16387
)

func (a AFI) String() string {
	switch a {
	case AFINone:
		return "no-address"
	case AFIIPv4:
		return "ipv4"
	case AFIIPv6:
		return "ipv6"
	case AFILCAF:
		return "lcaf"
	default:
		return fmt.Sprintf("afi(%d)", uint16(a))
	}
}

// Address is the tagged-union of every address shape lispd's codec
// understands. AFI, Encode and String are the only methods every arm must supply;
// concrete-arm behavior (IID, NAT fields, ...) lives on the concrete types.
type Address interface {
	AFI() AFI
	Encode() []byte
	String() string
}

// NoAddress is the zero-length AFI 0 arm.
type NoAddress struct{}

func (NoAddress) AFI() AFI        { return AFINone }
func (NoAddress) Encode() []byte  { return encodeAFI(AFINone) }
func (NoAddress) String() string  { return "no-address" }

// IPv4Address is the AFI 1 arm: a 4-byte IPv4 address.
type IPv4Address struct {
	Addr netip.Addr
}

func (a IPv4Address) AFI() AFI { return AFIIPv4 }

func (a IPv4Address) Encode() []byte {
	b := encodeAFI(AFIIPv4)
	ip4 := a.Addr.As4()
	return append(b, ip4[:]...)
}

func (a IPv4Address) String() string { return a.Addr.String() }

// IPv6Address is the AFI 2 arm: a 16-byte IPv6 address.
type IPv6Address struct {
	Addr netip.Addr
}

func (a IPv6Address) AFI() AFI { return AFIIPv6 }

func (a IPv6Address) Encode() []byte {
	b := encodeAFI(AFIIPv6)
	ip6 := a.Addr.As16()
	return append(b, ip6[:]...)
}

func (a IPv6Address) String() string { return a.Addr.String() }

func encodeAFI(a AFI) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(a))
	return b
}

// NewIPAddress builds the IPv4Address/IPv6Address arm matching addr's family.
func NewIPAddress(addr netip.Addr) (Address, error) {
	switch {
	case addr.Is4():
		return IPv4Address{Addr: addr}, nil
	case addr.Is6():
		return IPv6Address{Addr: addr}, nil
	default:
		return nil, fmt.Errorf("%w: invalid netip.Addr", lisperr.ErrMalformedAddress)
	}
}

// AddrOf extracts the underlying netip.Addr from an IPv4Address/IPv6Address
// arm, unwrapping an instance-ID LCAF to its inner address; it returns false
// for NoAddress and any other LCAF.
func AddrOf(addr Address) (netip.Addr, bool) {
	switch v := addr.(type) {
	case IPv4Address:
		return v.Addr, true
	case IPv6Address:
		return v.Addr, true
	case LCAFAddress:
		if iid, ok := v.Value.(InstanceIDLCAF); ok {
			return AddrOf(iid.Inner)
		}
	}
	return netip.Addr{}, false
}

// ParseAddress consumes one AFI-tagged address from b, returning the parsed
// Address, the number of bytes consumed (including the AFI tag), and any
// error. On an unrecognized AFI or LCAF type the consumed count still
// reflects what could be determined, so an enclosing record with an
// independent length can skip the field.
func ParseAddress(b []byte) (Address, int, error) {
	if len(b) < 2 {
		return nil, 0, fmt.Errorf("%w: short AFI", lisperr.ErrMalformedAddress)
	}
	afiVal := AFI(binary.BigEndian.Uint16(b))

	switch afiVal {
	case AFINone:
		return NoAddress{}, 2, nil

	case AFIIPv4:
		if len(b) < 6 {
			return nil, 2, fmt.Errorf("%w: short ipv4 payload", lisperr.ErrMalformedAddress)
		}
		var a4 [4]byte
		copy(a4[:], b[2:6])
		return IPv4Address{Addr: netip.AddrFrom4(a4)}, 6, nil

	case AFIIPv6:
		if len(b) < 18 {
			return nil, 2, fmt.Errorf("%w: short ipv6 payload", lisperr.ErrMalformedAddress)
		}
		var a16 [16]byte
		copy(a16[:], b[2:18])
		return IPv6Address{Addr: netip.AddrFrom16(a16)}, 18, nil

	case AFILCAF:
		return parseLCAF(b)

	default:
		return nil, 2, fmt.Errorf("%w: afi %d", lisperr.ErrUnknownAFI, afiVal)
	}
}
