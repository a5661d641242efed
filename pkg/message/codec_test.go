// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package message

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lispmob/lispd/pkg/afi"
	"github.com/lispmob/lispd/pkg/lisperr"
)

func TestRoundTripMapRequest(t *testing.T) {
	req := &MapRequest{
		MapReplyWanted: true,
		SMR:            true,
		Nonce:          0x0102030405060708,
		SourceEID:      mustIPv4("10.0.0.1"),
		ITRRLOCs:       []afi.Address{mustIPv4("192.0.2.1")},
		Records: []EIDPrefixRecord{
			{MaskLen: 24, EID: mustIPv4("10.1.0.0")},
		},
	}

	encoded := req.encode()
	parsed, err := Parse(encoded)
	require.NoError(t, err)
	require.Equal(t, MsgMapRequest, parsed.Type())

	got, ok := parsed.(*MapRequest)
	require.True(t, ok)
	require.Equal(t, req.Nonce, got.Nonce)
	require.True(t, got.MapReplyWanted)
	require.True(t, got.SMR)
	require.Equal(t, req.SourceEID, got.SourceEID)
	require.Equal(t, req.ITRRLOCs, got.ITRRLOCs)
	require.Equal(t, req.Records, got.Records)
}

func TestRoundTripMapReply(t *testing.T) {
	reply := &MapReply{
		Nonce: 42,
		Records: []MappingRecord{
			{
				TTLMinutes: 1440,
				EIDMaskLen: 32,
				Action:     ActionNoAction,
				EID:        mustIPv4("10.1.2.3"),
				Locators: []LocatorRecord{
					{Priority: 1, Weight: 100, Reachable: true, Addr: mustIPv4("192.0.2.9")},
				},
			},
		},
	}

	encoded := reply.encode()
	parsed, err := Parse(encoded)
	require.NoError(t, err)

	got, ok := parsed.(*MapReply)
	require.True(t, ok)
	require.Equal(t, reply.Nonce, got.Nonce)
	require.Len(t, got.Records, 1)
	require.Equal(t, reply.Records[0].EID, got.Records[0].EID)
	require.Equal(t, reply.Records[0].LocatorCount(), got.Records[0].LocatorCount())
	require.Equal(t, reply.Records[0].Locators[0].Addr, got.Records[0].Locators[0].Addr)
	require.True(t, got.Records[0].Locators[0].Reachable)
}

func TestRoundTripMapRegister(t *testing.T) {
	reg := &MapRegister{registerBody: registerBody{
		WantMapNotify: true,
		KeyID:         7,
		AuthData:      make([]byte, 20), // HMAC-SHA1-96 placeholder width
		Nonce:         99,
		Records: []MappingRecord{
			{TTLMinutes: 60, EIDMaskLen: 16, EID: mustIPv4("172.16.0.0")},
		},
	}}

	encoded := reg.encode()
	parsed, err := Parse(encoded)
	require.NoError(t, err)

	got, ok := parsed.(*MapRegister)
	require.True(t, ok)
	require.Equal(t, reg.Nonce, got.Nonce)
	require.Equal(t, reg.KeyID, got.KeyID)
	require.Equal(t, reg.AuthData, got.AuthData)
	require.True(t, got.WantMapNotify)
	require.Len(t, got.Records, 1)
}

func TestRoundTripMapNotify(t *testing.T) {
	notify := &MapNotify{registerBody: registerBody{
		KeyID:    7,
		AuthData: make([]byte, 32), // HMAC-SHA256-128 placeholder width
		Nonce:    99,
		Records: []MappingRecord{
			{TTLMinutes: 60, EIDMaskLen: 16, EID: mustIPv4("172.16.0.0")},
		},
	}}

	encoded := notify.encode()
	parsed, err := Parse(encoded)
	require.NoError(t, err)

	got, ok := parsed.(*MapNotify)
	require.True(t, ok)
	require.Equal(t, notify.Nonce, got.Nonce)
	require.Equal(t, notify.AuthData, got.AuthData)
}

func TestRoundTripMapReferral(t *testing.T) {
	referral := &MapReferral{
		Nonce: 5,
		Records: []ReferralRecord{
			{
				Prefix: EIDPrefixRecord{MaskLen: 16, EID: mustIPv4("10.0.0.0")},
				Nodes:  []afi.Address{mustIPv4("203.0.113.1"), mustIPv4("203.0.113.2")},
			},
		},
	}

	encoded := referral.encode()
	parsed, err := Parse(encoded)
	require.NoError(t, err)

	got, ok := parsed.(*MapReferral)
	require.True(t, ok)
	require.Equal(t, referral.Nonce, got.Nonce)
	require.Len(t, got.Records, 1)
	require.Len(t, got.Records[0].Nodes, 2)
	require.Equal(t, referral.Records[0].Nodes[1], got.Records[0].Nodes[1])
}

func TestRoundTripInfoRequest(t *testing.T) {
	info := &InfoMessage{
		Nonce:      11,
		KeyID:      3,
		AuthData:   make([]byte, 20),
		TTLMinutes: 1440,
		EIDMaskLen: 24,
		EID:        mustIPv4("10.2.0.0"),
	}

	encoded := info.encode()
	parsed, err := Parse(encoded)
	require.NoError(t, err)

	got, ok := parsed.(*InfoMessage)
	require.True(t, ok)
	require.False(t, got.IsReply)
	require.Equal(t, info.Nonce, got.Nonce)
	require.Equal(t, info.EID, got.EID)
}

func TestRoundTripInfoReplyWithNATTraversal(t *testing.T) {
	nat := afi.LCAFAddress{Value: afi.NATTraversalLCAF{
		MSPort:     4342,
		ETRPort:    4342,
		GlobalETR:  mustIPv4("198.51.100.1"),
		MS:         mustIPv4("203.0.113.1"),
		PrivateETR: mustIPv4("10.0.0.5"),
		RTRs:       []afi.Address{mustIPv4("203.0.113.9")},
	}}

	info := &InfoMessage{
		IsReply:    true,
		Nonce:      11,
		KeyID:      3,
		AuthData:   make([]byte, 20),
		TTLMinutes: 1440,
		EIDMaskLen: 24,
		EID:        mustIPv4("10.2.0.0"),
		NAT:        nat,
	}

	encoded := info.encode()
	parsed, err := Parse(encoded)
	require.NoError(t, err)

	got, ok := parsed.(*InfoMessage)
	require.True(t, ok)
	require.True(t, got.IsReply)

	gotNAT, ok := got.NAT.(afi.LCAFAddress)
	require.True(t, ok)
	gotVal, ok := gotNAT.Value.(afi.NATTraversalLCAF)
	require.True(t, ok)
	require.Equal(t, nat.Value.(afi.NATTraversalLCAF).GlobalETR, gotVal.GlobalETR)
	require.Len(t, gotVal.RTRs, 1)
}

func TestRoundTripECMWithRTRAuth(t *testing.T) {
	inner := &MapRequest{Nonce: 77, SourceEID: mustIPv4("10.0.0.1")}
	ecm := &EncapControlMessage{
		SecurityCapable: true,
		RTRAuth: &RTRAuthField{
			ADType:   RTRAuthDataType,
			KeyID:    4,
			AuthData: make([]byte, 20),
		},
		Inner: inner.encode(),
	}

	encoded := ecm.encode()
	parsed, err := Parse(encoded)
	require.NoError(t, err)

	got, ok := parsed.(*EncapControlMessage)
	require.True(t, ok)
	require.True(t, got.SecurityCapable)
	require.NotNil(t, got.RTRAuth)
	require.Equal(t, uint16(4), got.RTRAuth.KeyID)

	innerParsed, err := Parse(got.Inner)
	require.NoError(t, err)
	innerReq, ok := innerParsed.(*MapRequest)
	require.True(t, ok)
	require.Equal(t, inner.Nonce, innerReq.Nonce)
}

func TestRoundTripECMWithoutRTRAuth(t *testing.T) {
	inner := &MapRequest{Nonce: 1}
	ecm := &EncapControlMessage{Inner: inner.encode()}

	encoded := ecm.encode()
	parsed, err := Parse(encoded)
	require.NoError(t, err)

	got, ok := parsed.(*EncapControlMessage)
	require.True(t, ok)
	require.Nil(t, got.RTRAuth)
}

func TestTruncatedMapRequestHeader(t *testing.T) {
	_, err := Parse([]byte{byte(MsgMapRequest) << 4, 0, 0})
	require.ErrorIs(t, err, lisperr.ErrTruncatedRecord)
}

func TestLocatorOverflowReported(t *testing.T) {
	reply := &MapReply{
		Nonce: 1,
		Records: []MappingRecord{
			{EID: mustIPv4("10.0.0.1"), Locators: []LocatorRecord{
				{Addr: mustIPv4("192.0.2.1")},
			}},
		},
	}
	encoded := reply.encode()
	truncated := encoded[:len(encoded)-4] // chop off the tail of the only locator's address

	_, err := Parse(truncated)
	require.Error(t, err)
}

func TestAuthDataRangeMapRegister(t *testing.T) {
	reg := &MapRegister{registerBody: registerBody{
		KeyID:    9,
		AuthData: []byte{1, 2, 3, 4},
		Nonce:    1,
	}}
	encoded := reg.encode()

	offset, length, err := AuthDataRange(MsgMapRegister, encoded)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, encoded[offset:offset+length])
}

func TestAuthDataRangeRejectsUnsupportedType(t *testing.T) {
	req := &MapRequest{Nonce: 1}
	_, _, err := AuthDataRange(MsgMapRequest, req.encode())
	require.Error(t, err)
}
