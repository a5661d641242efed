// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package afi

import (
	"encoding/binary"
	"fmt"

	"github.com/lispmob/lispd/pkg/lisperr"
)

// LCAF type codes lispd recognizes (RFC 8060 / the LISP NAT-traversal draft).
const (
	LCAFTypeInstanceID    = 2
	LCAFTypeNATTraversal  = 7
	lcafHeaderLen         = 6 // Rsvd1, Flags, Type, Rsvd2, Length(2)
)

// LCAFValue is the payload carried by an LCAFAddress arm.
type LCAFValue interface {
	lcafType() uint8
	encodePayload() []byte
}

// LCAFAddress is the AFI 16387 arm: a generic wrapper carrying a typed
// LCAFValue payload.
type LCAFAddress struct {
	Flags uint8
	Value LCAFValue
}

func (a LCAFAddress) AFI() AFI { return AFILCAF }

func (a LCAFAddress) Encode() []byte {
	payload := a.Value.encodePayload()

	b := encodeAFI(AFILCAF)
	b = append(b, 0)          // Rsvd1
	b = append(b, a.Flags)    // Flags
	b = append(b, a.Value.lcafType())
	b = append(b, 0) // Rsvd2
	length := make([]byte, 2)
	binary.BigEndian.PutUint16(length, uint16(len(payload)))
	b = append(b, length...)
	b = append(b, payload...)
	return b
}

func (a LCAFAddress) String() string {
	switch v := a.Value.(type) {
	case InstanceIDLCAF:
		return fmt.Sprintf("iid:%d/%s", v.IID, v.Inner)
	case NATTraversalLCAF:
		return fmt.Sprintf("nat-traversal(global=%s)", v.GlobalETR)
	default:
		return "lcaf"
	}
}

// InstanceIDLCAF is LCAF type 2: a 32-bit instance-ID tag wrapping an inner
// address.
type InstanceIDLCAF struct {
	IID   uint32
	Inner Address
}

func (InstanceIDLCAF) lcafType() uint8 { return LCAFTypeInstanceID }

func (v InstanceIDLCAF) encodePayload() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v.IID)
	return append(b, v.Inner.Encode()...)
}

// NATTraversalLCAF is LCAF type 7: the NAT-traversal info-reply body
// (ms_port, etr_port, global/ms/private ETR RLOCs, and the RTR list).
type NATTraversalLCAF struct {
	MSPort    uint16
	ETRPort   uint16
	GlobalETR Address
	MS        Address
	PrivateETR Address
	RTRs      []Address
}

func (NATTraversalLCAF) lcafType() uint8 { return LCAFTypeNATTraversal }

func (v NATTraversalLCAF) encodePayload() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:2], v.MSPort)
	binary.BigEndian.PutUint16(b[2:4], v.ETRPort)
	b = append(b, v.GlobalETR.Encode()...)
	b = append(b, v.MS.Encode()...)
	b = append(b, v.PrivateETR.Encode()...)
	for _, rtr := range v.RTRs {
		b = append(b, rtr.Encode()...)
	}
	return b
}

func parseLCAF(b []byte) (Address, int, error) {
	if len(b) < 2+lcafHeaderLen {
		return nil, len(b), fmt.Errorf("%w: short LCAF header", lisperr.ErrMalformedAddress)
	}

	flags := b[3]
	lcafType := b[4]
	length := int(binary.BigEndian.Uint16(b[6:8]))

	payloadStart := 2 + lcafHeaderLen
	payloadEnd := payloadStart + length
	if payloadEnd > len(b) {
		return nil, payloadStart, fmt.Errorf("%w: LCAF length exceeds buffer", lisperr.ErrMalformedAddress)
	}
	payload := b[payloadStart:payloadEnd]

	switch lcafType {
	case LCAFTypeInstanceID:
		if len(payload) < 4 {
			return nil, payloadEnd, fmt.Errorf("%w: short instance-id LCAF", lisperr.ErrMalformedAddress)
		}
		iid := binary.BigEndian.Uint32(payload[0:4])
		inner, consumed, err := ParseAddress(payload[4:])
		if err != nil {
			return nil, payloadEnd, err
		}
		if 4+consumed > len(payload) {
			return nil, payloadEnd, fmt.Errorf("%w: instance-id LCAF inner overflow", lisperr.ErrMalformedAddress)
		}
		return LCAFAddress{Flags: flags, Value: InstanceIDLCAF{IID: iid, Inner: inner}}, payloadEnd, nil

	case LCAFTypeNATTraversal:
		nat, err := parseNATTraversal(payload)
		if err != nil {
			return nil, payloadEnd, err
		}
		return LCAFAddress{Flags: flags, Value: nat}, payloadEnd, nil

	default:
		// Unknown LCAF type: report the bytes that would have been consumed
		// so a caller with an independent length can skip the field.
		return nil, payloadEnd, fmt.Errorf("%w: lcaf type %d", lisperr.ErrUnknownLCAFType, lcafType)
	}
}

func parseNATTraversal(payload []byte) (NATTraversalLCAF, error) {
	const portsLen = 4 // ms_port(2) + etr_port(2)
	if len(payload) < portsLen {
		return NATTraversalLCAF{}, fmt.Errorf("%w: short NAT-traversal LCAF", lisperr.ErrMalformedAddress)
	}

	nat := NATTraversalLCAF{
		MSPort:  binary.BigEndian.Uint16(payload[0:2]),
		ETRPort: binary.BigEndian.Uint16(payload[2:4]),
	}

	offset := portsLen

	global, n, err := ParseAddress(payload[offset:])
	if err != nil {
		return NATTraversalLCAF{}, err
	}
	nat.GlobalETR = global
	offset += n

	ms, n, err := ParseAddress(payload[offset:])
	if err != nil {
		return NATTraversalLCAF{}, err
	}
	nat.MS = ms
	offset += n

	private, n, err := ParseAddress(payload[offset:])
	if err != nil {
		return NATTraversalLCAF{}, err
	}
	nat.PrivateETR = private
	offset += n

	for offset < len(payload) {
		rtr, n, err := ParseAddress(payload[offset:])
		if err != nil {
			return NATTraversalLCAF{}, err
		}
		nat.RTRs = append(nat.RTRs, rtr)
		offset += n
	}

	return nat, nil
}
