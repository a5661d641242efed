// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package message

import (
	"fmt"

	"github.com/lispmob/lispd/pkg/afi"
	"github.com/lispmob/lispd/pkg/lisperr"
)

const fixedHeaderLen = 12 // type/flags byte0-3 + 8-byte nonce

// ---- map-request ----

// MapRequest is a Map-Request (type 1): a nonce, an optional source EID, a
// set of ITR-RLOCs the reply should be sent to, and one or more requested
// EID prefixes.
type MapRequest struct {
	Authoritative bool // A bit
	MapReplyWanted bool // M bit: requester wants the map-reply itself, not just an ack
	Probe         bool // P bit: this is an RLOC probe
	SMR           bool // S bit: this is a solicit-map-request
	PITR          bool // p bit
	SMRInvoked    bool // s bit
	Nonce         uint64
	SourceEID     afi.Address
	ITRRLOCs      []afi.Address
	Records       []EIDPrefixRecord
}

func (*MapRequest) Type() MsgType { return MsgMapRequest }

func (m *MapRequest) encode() []byte {
	b := make([]byte, fixedHeaderLen)
	var flags0 byte = byte(MsgMapRequest) << 4
	if m.Authoritative {
		flags0 |= 0x08
	}
	if m.MapReplyWanted {
		flags0 |= 0x04
	}
	if m.Probe {
		flags0 |= 0x02
	}
	if m.SMR {
		flags0 |= 0x01
	}
	b[0] = flags0

	var flags1 byte
	if m.PITR {
		flags1 |= 0x80
	}
	if m.SMRInvoked {
		flags1 |= 0x40
	}
	b[1] = flags1

	b[2] = byte(len(m.ITRRLOCs))
	b[3] = byte(len(m.Records))
	putUint64(b[4:12], m.Nonce)

	src := m.SourceEID
	if src == nil {
		src = afi.NoAddress{}
	}
	b = append(b, src.Encode()...)

	for _, rloc := range m.ITRRLOCs {
		b = append(b, rloc.Encode()...)
	}
	for _, rec := range m.Records {
		b = encodeEIDPrefixRecord(b, rec)
	}
	return b
}

func parseMapRequest(b []byte) (*MapRequest, error) {
	if len(b) < fixedHeaderLen {
		return nil, fmt.Errorf("%w: map-request header", lisperr.ErrTruncatedRecord)
	}

	m := &MapRequest{
		Authoritative:  b[0]&0x08 != 0,
		MapReplyWanted: b[0]&0x04 != 0,
		Probe:          b[0]&0x02 != 0,
		SMR:            b[0]&0x01 != 0,
		PITR:           b[1]&0x80 != 0,
		SMRInvoked:     b[1]&0x40 != 0,
		Nonce:          getUint64(b[4:12]),
	}
	itrCount := int(b[2])
	recCount := int(b[3])

	offset := fixedHeaderLen
	src, n, err := afi.ParseAddress(b[offset:])
	if err != nil {
		return nil, err
	}
	m.SourceEID = src
	offset += n

	for i := 0; i < itrCount; i++ {
		rloc, n, err := afi.ParseAddress(b[offset:])
		if err != nil {
			return nil, err
		}
		m.ITRRLOCs = append(m.ITRRLOCs, rloc)
		offset += n
	}

	for i := 0; i < recCount; i++ {
		rec, n, err := parseEIDPrefixRecord(b[offset:])
		if err != nil {
			return nil, err
		}
		m.Records = append(m.Records, rec)
		offset += n
	}

	return m, nil
}

// ---- map-reply ----

// MapReply is a Map-Reply (type 2): a nonce and one or more mapping records.
type MapReply struct {
	Probe   bool // P bit: sent in response to an RLOC probe
	Nonce   uint64
	Records []MappingRecord
}

func (*MapReply) Type() MsgType { return MsgMapReply }

func (m *MapReply) encode() []byte {
	b := make([]byte, fixedHeaderLen)
	flags0 := byte(MsgMapReply) << 4
	if m.Probe {
		flags0 |= 0x08
	}
	b[0] = flags0
	b[3] = byte(len(m.Records))
	putUint64(b[4:12], m.Nonce)

	for _, rec := range m.Records {
		b = encodeMappingRecord(b, rec)
	}
	return b
}

func parseMapReply(b []byte) (*MapReply, error) {
	if len(b) < fixedHeaderLen {
		return nil, fmt.Errorf("%w: map-reply header", lisperr.ErrTruncatedRecord)
	}
	m := &MapReply{
		Probe: b[0]&0x08 != 0,
		Nonce: getUint64(b[4:12]),
	}
	recCount := int(b[3])

	offset := fixedHeaderLen
	for i := 0; i < recCount; i++ {
		rec, n, err := parseMappingRecord(b[offset:])
		if err != nil {
			return nil, err
		}
		m.Records = append(m.Records, rec)
		offset += n
	}
	return m, nil
}

// ---- map-register / map-notify share a body shape ----

const authHeaderLen = 4 // key-id(2) + auth-data-len(2)

// registerBody is the shared layout of map-register and map-notify: two
// flag bytes, a reserved byte, record count, nonce, auth field, mapping
// records.
type registerBody struct {
	Proxy         bool // P bit (map-register only)
	WantMapNotify bool // M bit (map-register only)
	AckRequested  bool // I bit: this is an info-request-style register (unused by map-notify)
	RTRMode       bool // R bit
	MobileNode    bool // M-node bit, bit 5 of byte1
	KeyID         uint16
	AuthData      []byte
	Nonce         uint64
	Records       []MappingRecord
}

func encodeRegisterBody(msgType MsgType, body registerBody) []byte {
	b := make([]byte, fixedHeaderLen)
	flags0 := byte(msgType) << 4
	if body.Proxy {
		flags0 |= 0x08
	}
	if body.WantMapNotify {
		flags0 |= 0x04
	}
	b[0] = flags0

	var flags1 byte
	if body.AckRequested {
		flags1 |= 0x80
	}
	if body.RTRMode {
		flags1 |= 0x40
	}
	if body.MobileNode {
		flags1 |= 0x20
	}
	b[1] = flags1

	b[3] = byte(len(body.Records))
	putUint64(b[4:12], body.Nonce)

	auth := make([]byte, authHeaderLen)
	putUint16(auth[0:2], body.KeyID)
	putUint16(auth[2:4], uint16(len(body.AuthData)))
	b = append(b, auth...)
	b = append(b, body.AuthData...)

	for _, rec := range body.Records {
		b = encodeMappingRecord(b, rec)
	}
	return b
}

func parseRegisterBody(b []byte) (registerBody, error) {
	if len(b) < fixedHeaderLen+authHeaderLen {
		return registerBody{}, fmt.Errorf("%w: register/notify header", lisperr.ErrTruncatedRecord)
	}

	body := registerBody{
		Proxy:         b[0]&0x08 != 0,
		WantMapNotify: b[0]&0x04 != 0,
		AckRequested:  b[1]&0x80 != 0,
		RTRMode:       b[1]&0x40 != 0,
		MobileNode:    b[1]&0x20 != 0,
		Nonce:         getUint64(b[4:12]),
	}
	recCount := int(b[3])

	authOffset := fixedHeaderLen
	body.KeyID = getUint16(b[authOffset : authOffset+2])
	authDataLen := int(getUint16(b[authOffset+2 : authOffset+4]))

	offset := authOffset + authHeaderLen
	if offset+authDataLen > len(b) {
		return registerBody{}, fmt.Errorf("%w: auth-data overflow", lisperr.ErrAuthLenMismatch)
	}
	body.AuthData = b[offset : offset+authDataLen]
	offset += authDataLen

	for i := 0; i < recCount; i++ {
		rec, n, err := parseMappingRecord(b[offset:])
		if err != nil {
			return registerBody{}, err
		}
		body.Records = append(body.Records, rec)
		offset += n
	}

	return body, nil
}

// MapRegister is a Map-Register (type 3): an authenticated set of mapping
// records a device publishes to a map-server.
type MapRegister struct {
	registerBody
}

func (*MapRegister) Type() MsgType { return MsgMapRegister }
func (m *MapRegister) encode() []byte { return encodeRegisterBody(MsgMapRegister, m.registerBody) }

func parseMapRegister(b []byte) (*MapRegister, error) {
	body, err := parseRegisterBody(b)
	if err != nil {
		return nil, err
	}
	return &MapRegister{registerBody: body}, nil
}

// MapNotify is a Map-Notify (type 4): a map-server's authenticated
// acknowledgment of a Map-Register, echoing the registered records.
type MapNotify struct {
	registerBody
}

func (*MapNotify) Type() MsgType { return MsgMapNotify }
func (m *MapNotify) encode() []byte { return encodeRegisterBody(MsgMapNotify, m.registerBody) }

func parseMapNotify(b []byte) (*MapNotify, error) {
	body, err := parseRegisterBody(b)
	if err != nil {
		return nil, err
	}
	return &MapNotify{registerBody: body}, nil
}

// ---- map-referral ----

// ReferralRecord names a referral-set entry: the delegated prefix and the
// referral-node addresses a resolver should consult next.
type ReferralRecord struct {
	Prefix EIDPrefixRecord
	Nodes  []afi.Address
}

// MapReferral is a Map-Referral (type 6): the DDT delegation response to a
// Map-Request, naming the next hop(s) to query for an EID prefix.
type MapReferral struct {
	Nonce   uint64
	Records []ReferralRecord
}

func (*MapReferral) Type() MsgType { return MsgMapReferral }

func (m *MapReferral) encode() []byte {
	b := make([]byte, fixedHeaderLen)
	b[0] = byte(MsgMapReferral) << 4
	b[3] = byte(len(m.Records))
	putUint64(b[4:12], m.Nonce)

	for _, rec := range m.Records {
		b = encodeEIDPrefixRecord(b, rec.Prefix)
		b = append(b, byte(len(rec.Nodes)))
		for _, node := range rec.Nodes {
			b = append(b, node.Encode()...)
		}
	}
	return b
}

func parseMapReferral(b []byte) (*MapReferral, error) {
	if len(b) < fixedHeaderLen {
		return nil, fmt.Errorf("%w: map-referral header", lisperr.ErrTruncatedRecord)
	}
	m := &MapReferral{Nonce: getUint64(b[4:12])}
	recCount := int(b[3])

	offset := fixedHeaderLen
	for i := 0; i < recCount; i++ {
		prefix, n, err := parseEIDPrefixRecord(b[offset:])
		if err != nil {
			return nil, err
		}
		offset += n

		if offset+1 > len(b) {
			return nil, fmt.Errorf("%w: referral node count", lisperr.ErrTruncatedRecord)
		}
		nodeCount := int(b[offset])
		offset++

		rec := ReferralRecord{Prefix: prefix}
		for j := 0; j < nodeCount; j++ {
			node, n, err := afi.ParseAddress(b[offset:])
			if err != nil {
				return nil, err
			}
			rec.Nodes = append(rec.Nodes, node)
			offset += n
		}
		m.Records = append(m.Records, rec)
	}
	return m, nil
}

// ---- info request/reply ----

const infoFixedLen = fixedHeaderLen + authHeaderLen + 6 // + TTL(4) + Reserved1(1) + EIDMaskLen(1)

// InfoMessage is an Info-Request or Info-Reply (type 7). IsReply distinguishes
// the two: a request carries no NAT-traversal data, a reply does.
type InfoMessage struct {
	IsReply    bool
	Nonce      uint64
	KeyID      uint16
	AuthData   []byte
	TTLMinutes uint32
	EIDMaskLen uint8
	EID        afi.Address
	NAT        afi.Address // populated iff IsReply; an afi.LCAFAddress wrapping NATTraversalLCAF
}

func (*InfoMessage) Type() MsgType { return MsgInfo }

func (m *InfoMessage) encode() []byte {
	b := make([]byte, fixedHeaderLen)
	flags0 := byte(MsgInfo) << 4
	if m.IsReply {
		flags0 |= 0x08
	}
	b[0] = flags0
	putUint64(b[4:12], m.Nonce)

	auth := make([]byte, authHeaderLen)
	putUint16(auth[0:2], m.KeyID)
	putUint16(auth[2:4], uint16(len(m.AuthData)))
	b = append(b, auth...)
	b = append(b, m.AuthData...)

	ttl := make([]byte, 4)
	putUint32(ttl, m.TTLMinutes)
	b = append(b, ttl...)
	b = append(b, 0) // Reserved1
	b = append(b, m.EIDMaskLen)

	eid := m.EID
	if eid == nil {
		eid = afi.NoAddress{}
	}
	b = append(b, eid.Encode()...)

	if m.IsReply {
		nat := m.NAT
		if nat == nil {
			nat = afi.NoAddress{}
		}
		b = append(b, nat.Encode()...)
	}
	return b
}

func parseInfo(b []byte) (*InfoMessage, error) {
	if len(b) < fixedHeaderLen+authHeaderLen {
		return nil, fmt.Errorf("%w: info header", lisperr.ErrTruncatedRecord)
	}

	m := &InfoMessage{
		IsReply: b[0]&0x08 != 0,
		Nonce:   getUint64(b[4:12]),
	}

	authOffset := fixedHeaderLen
	m.KeyID = getUint16(b[authOffset : authOffset+2])
	authDataLen := int(getUint16(b[authOffset+2 : authOffset+4]))

	offset := authOffset + authHeaderLen
	if offset+authDataLen > len(b) {
		return nil, fmt.Errorf("%w: info auth-data overflow", lisperr.ErrAuthLenMismatch)
	}
	m.AuthData = b[offset : offset+authDataLen]
	offset += authDataLen

	if offset+6 > len(b) {
		return nil, fmt.Errorf("%w: info ttl/mask", lisperr.ErrTruncatedRecord)
	}
	m.TTLMinutes = getUint32(b[offset : offset+4])
	// b[offset+4] is Reserved1.
	m.EIDMaskLen = b[offset+5]
	offset += 6

	eid, n, err := afi.ParseAddress(b[offset:])
	if err != nil {
		return nil, err
	}
	m.EID = eid
	offset += n

	if m.IsReply {
		nat, n, err := afi.ParseAddress(b[offset:])
		if err != nil {
			return nil, err
		}
		m.NAT = nat
		offset += n
	}

	return m, nil
}

// ---- ECM ----

// EncapControlMessage is an Encapsulated Control Message (type 8): a thin
// wrapper carrying an inner control message, used to punch a Map-Request
// through a NAT or to forward one to a map-server by way of a map-resolver.
type EncapControlMessage struct {
	SecurityCapable bool // S bit
	RTRAuth         *RTRAuthField
	Inner           []byte // the raw encoded inner message (typically a Map-Request)
}

const ecmHeaderLen = 4

func (*EncapControlMessage) Type() MsgType { return MsgECM }

func (m *EncapControlMessage) encode() []byte {
	b := make([]byte, ecmHeaderLen)
	flags0 := byte(MsgECM) << 4
	if m.SecurityCapable {
		flags0 |= 0x08
	}
	if m.RTRAuth != nil {
		flags0 |= 0x04
	}
	b[0] = flags0

	if m.RTRAuth != nil {
		b = append(b, m.RTRAuth.ADType)
		keyAndLen := make([]byte, 4)
		putUint16(keyAndLen[0:2], m.RTRAuth.KeyID)
		putUint16(keyAndLen[2:4], uint16(len(m.RTRAuth.AuthData)))
		b = append(b, keyAndLen...)
		b = append(b, m.RTRAuth.AuthData...)
	}

	return append(b, m.Inner...)
}

func parseECM(b []byte) (*EncapControlMessage, error) {
	if len(b) < ecmHeaderLen {
		return nil, fmt.Errorf("%w: ecm header", lisperr.ErrTruncatedRecord)
	}
	m := &EncapControlMessage{
		SecurityCapable: b[0]&0x08 != 0,
	}
	hasRTRAuth := b[0]&0x04 != 0

	offset := ecmHeaderLen
	if hasRTRAuth {
		const rtrAuthHdrLen = 5 // ad_type(1) + key_id(2) + auth_data_len(2)
		if offset+rtrAuthHdrLen > len(b) {
			return nil, fmt.Errorf("%w: rtr-auth header", lisperr.ErrTruncatedRecord)
		}
		adType := b[offset]
		keyID := getUint16(b[offset+1 : offset+3])
		authLen := int(getUint16(b[offset+3 : offset+5]))
		offset += rtrAuthHdrLen

		if offset+authLen > len(b) {
			return nil, fmt.Errorf("%w: rtr-auth data overflow", lisperr.ErrAuthLenMismatch)
		}
		m.RTRAuth = &RTRAuthField{
			ADType:   adType,
			KeyID:    keyID,
			AuthData: b[offset : offset+authLen],
		}
		offset += authLen
	}

	m.Inner = b[offset:]
	return m, nil
}

// AuthDataRange locates the authentication-data byte range within an
// already-encoded message of the given type, so pkg/auth can compute a MAC
// over the message with that range zeroed without duplicating per-type
// offset knowledge. Only message kinds that carry an AuthField are valid
// arguments; other kinds return an error.
func AuthDataRange(msgType MsgType, encoded []byte) (offset, length int, err error) {
	switch msgType {
	case MsgMapRegister, MsgMapNotify:
		if len(encoded) < fixedHeaderLen+authHeaderLen {
			return 0, 0, fmt.Errorf("%w: register/notify too short for auth field", lisperr.ErrTruncatedRecord)
		}
		authLenOffset := fixedHeaderLen + 2
		authLen := int(getUint16(encoded[authLenOffset : authLenOffset+2]))
		dataOffset := fixedHeaderLen + authHeaderLen
		if dataOffset+authLen > len(encoded) {
			return 0, 0, fmt.Errorf("%w: auth-data overflow", lisperr.ErrAuthLenMismatch)
		}
		return dataOffset, authLen, nil

	case MsgInfo:
		if len(encoded) < fixedHeaderLen+authHeaderLen {
			return 0, 0, fmt.Errorf("%w: info too short for auth field", lisperr.ErrTruncatedRecord)
		}
		authLenOffset := fixedHeaderLen + 2
		authLen := int(getUint16(encoded[authLenOffset : authLenOffset+2]))
		dataOffset := fixedHeaderLen + authHeaderLen
		if dataOffset+authLen > len(encoded) {
			return 0, 0, fmt.Errorf("%w: auth-data overflow", lisperr.ErrAuthLenMismatch)
		}
		return dataOffset, authLen, nil

	default:
		return 0, 0, fmt.Errorf("message: type %s carries no auth field", msgType)
	}
}
