// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package encap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lispmob/lispd/pkg/afi"
	"github.com/lispmob/lispd/pkg/message"
)

func TestSourcePortMasksToTwelveBits(t *testing.T) {
	require.Equal(t, uint16(0xF000), SourcePort(0))
	require.Equal(t, uint16(0xF123), SourcePort(0x456789123))
}

func TestValidateITRRLOCsRejectsOverflow(t *testing.T) {
	rlocs := make([]afi.Address, MaxITRRLOCs+1)
	require.Error(t, ValidateITRRLOCs(rlocs))
	require.NoError(t, ValidateITRRLOCs(rlocs[:MaxITRRLOCs]))
}

func TestWrapECMRoundTrip(t *testing.T) {
	inner := &message.MapRequest{Nonce: 5}
	encodedInner, err := message.Encode(inner)
	require.NoError(t, err)

	ecm := WrapECM(encodedInner, true, nil)
	require.True(t, ecm.SecurityCapable)
	require.Nil(t, ecm.RTRAuth)
	require.Equal(t, encodedInner, ecm.Inner)
}
