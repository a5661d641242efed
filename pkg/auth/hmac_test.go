// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package auth

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lispmob/lispd/pkg/afi"
	"github.com/lispmob/lispd/pkg/lisperr"
	"github.com/lispmob/lispd/pkg/message"
)

func buildRegister(t *testing.T, authWidth int) *message.MapRegister {
	t.Helper()
	reg := &message.MapRegister{}
	reg.Nonce = 42
	reg.KeyID = 1
	reg.AuthData = make([]byte, authWidth)
	return reg
}

func TestSignThenVerifySHA1(t *testing.T) {
	key := []byte("s3cr3t")
	reg := buildRegister(t, 20)
	reg.Records = []message.MappingRecord{{
		EIDMaskLen: 24,
		EID:        afi.IPv4Address{Addr: netip.MustParseAddr("10.0.0.0")},
	}}

	encodedIface, err := message.Encode(reg)
	require.NoError(t, err)
	encoded := encodedIface

	signed, err := Sign(HMACSHA1_96, key, message.MsgMapRegister, encoded)
	require.NoError(t, err)

	require.NoError(t, Verify(HMACSHA1_96, key, message.MsgMapRegister, signed))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	key := []byte("s3cr3t")
	reg := buildRegister(t, 32)
	encoded, err := message.Encode(reg)
	require.NoError(t, err)

	signed, err := Sign(HMACSHA256_128, key, message.MsgMapRegister, encoded)
	require.NoError(t, err)

	tampered := append([]byte(nil), signed...)
	tampered[3] ^= 0xFF // flip the record-count byte

	err = Verify(HMACSHA256_128, key, message.MsgMapRegister, tampered)
	require.ErrorIs(t, err, lisperr.ErrAuthFailed)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	reg := buildRegister(t, 20)
	encoded, err := message.Encode(reg)
	require.NoError(t, err)

	signed, err := Sign(HMACSHA1_96, []byte("right-key"), message.MsgMapRegister, encoded)
	require.NoError(t, err)

	err = Verify(HMACSHA1_96, []byte("wrong-key"), message.MsgMapRegister, signed)
	require.Error(t, err)
}
