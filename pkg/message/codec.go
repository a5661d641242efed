// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package message

import (
	"encoding/binary"
	"fmt"

	"github.com/lispmob/lispd/pkg/afi"
	"github.com/lispmob/lispd/pkg/lisperr"
)

// Parse decodes one control message from b, dispatching on the top nibble
// of the first byte.
func Parse(b []byte) (Message, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("%w: empty message", lisperr.ErrTruncatedRecord)
	}

	switch MsgType(b[0] >> 4) {
	case MsgMapRequest:
		return parseMapRequest(b)
	case MsgMapReply:
		return parseMapReply(b)
	case MsgMapRegister:
		return parseMapRegister(b)
	case MsgMapNotify:
		return parseMapNotify(b)
	case MsgMapReferral:
		return parseMapReferral(b)
	case MsgInfo:
		return parseInfo(b)
	case MsgECM:
		return parseECM(b)
	default:
		return nil, fmt.Errorf("%w: unrecognized type nibble %d", lisperr.ErrTruncatedRecord, b[0]>>4)
	}
}

// Encode serializes m back to wire bytes.
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case *MapRequest:
		return v.encode(), nil
	case *MapReply:
		return v.encode(), nil
	case *MapRegister:
		return v.encode(), nil
	case *MapNotify:
		return v.encode(), nil
	case *MapReferral:
		return v.encode(), nil
	case *InfoMessage:
		return v.encode(), nil
	case *EncapControlMessage:
		return v.encode(), nil
	default:
		return nil, fmt.Errorf("message: unknown concrete type %T", m)
	}
}

func putUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func getUint64(b []byte) uint64    { return binary.BigEndian.Uint64(b) }
func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func getUint32(b []byte) uint32    { return binary.BigEndian.Uint32(b) }
func putUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func getUint16(b []byte) uint16    { return binary.BigEndian.Uint16(b) }

// ---- mapping record ----

// encodeMappingRecord appends r's wire form to b and returns the result.
func encodeMappingRecord(b []byte, r MappingRecord) []byte {
	hdr := make([]byte, 10)
	putUint32(hdr[0:4], r.TTLMinutes)
	hdr[4] = byte(len(r.Locators))
	hdr[5] = r.EIDMaskLen
	flags := byte(r.Action) & 0x07
	if r.Authoritative {
		flags |= 0x08
	}
	hdr[6] = flags
	if r.HasIID {
		hdr[7] = 1
	}
	putUint16(hdr[8:10], 0) // padding to keep header at a stable 10-byte width (hdr[8:10] unused, reserved)

	b = append(b, hdr...)
	b = append(b, r.EID.Encode()...)

	for _, loc := range r.Locators {
		b = append(b, encodeLocatorRecord(loc)...)
	}
	return b
}

func encodeLocatorRecord(l LocatorRecord) []byte {
	b := make([]byte, locatorHeaderLen)
	b[0] = l.Priority
	b[1] = l.Weight
	b[2] = l.MPriority
	b[3] = l.MWeight
	// b[4:6] unused/reserved.
	var flags byte
	if l.Local {
		flags |= 0x04
	}
	if l.Probed {
		flags |= 0x02
	}
	if l.Reachable {
		flags |= 0x01
	}
	b[6] = flags
	// b[7] reserved.
	return append(b, l.Addr.Encode()...)
}

// parseMappingRecord parses one mapping record starting at b[0], returning
// the record and the number of bytes consumed.
func parseMappingRecord(b []byte) (MappingRecord, int, error) {
	const hdrLen = 10
	if len(b) < hdrLen {
		return MappingRecord{}, 0, fmt.Errorf("%w: mapping record header", lisperr.ErrTruncatedRecord)
	}

	r := MappingRecord{
		TTLMinutes: getUint32(b[0:4]),
		EIDMaskLen: b[5],
	}
	locatorCount := int(b[4])
	r.Action = Action(b[6] & 0x07)
	r.Authoritative = b[6]&0x08 != 0
	r.HasIID = b[7] != 0

	offset := hdrLen
	eid, n, err := afi.ParseAddress(b[offset:])
	if err != nil {
		return MappingRecord{}, 0, err
	}
	r.EID = eid
	offset += n

	for i := 0; i < locatorCount; i++ {
		if offset+locatorHeaderLen > len(b) {
			return MappingRecord{}, 0, fmt.Errorf("%w: locator %d header", lisperr.ErrLocatorOverflow, i)
		}
		hdr := b[offset : offset+locatorHeaderLen]
		loc := LocatorRecord{
			Priority:  hdr[0],
			Weight:    hdr[1],
			MPriority: hdr[2],
			MWeight:   hdr[3],
			Local:     hdr[6]&0x04 != 0,
			Probed:    hdr[6]&0x02 != 0,
			Reachable: hdr[6]&0x01 != 0,
		}
		offset += locatorHeaderLen

		addr, n, err := afi.ParseAddress(b[offset:])
		if err != nil {
			return MappingRecord{}, 0, err
		}
		loc.Addr = addr
		offset += n

		r.Locators = append(r.Locators, loc)
	}

	return r, offset, nil
}

func encodeEIDPrefixRecord(b []byte, r EIDPrefixRecord) []byte {
	b = append(b, r.MaskLen)
	return append(b, r.EID.Encode()...)
}

func parseEIDPrefixRecord(b []byte) (EIDPrefixRecord, int, error) {
	if len(b) < 1 {
		return EIDPrefixRecord{}, 0, fmt.Errorf("%w: eid-prefix record", lisperr.ErrTruncatedRecord)
	}
	maskLen := b[0]
	addr, n, err := afi.ParseAddress(b[1:])
	if err != nil {
		return EIDPrefixRecord{}, 0, err
	}
	return EIDPrefixRecord{MaskLen: maskLen, EID: addr}, 1 + n, nil
}
