// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package ifwatch

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIPNetToPrefixIPv4(t *testing.T) {
	_, ipnet, err := net.ParseCIDR("10.1.2.0/24")
	require.NoError(t, err)

	prefix, ok := ipNetToPrefix(*ipnet)
	require.True(t, ok)
	require.Equal(t, "10.1.2.0/24", prefix.String())
}

func TestIPNetToPrefixIPv6(t *testing.T) {
	_, ipnet, err := net.ParseCIDR("2001:db8::/32")
	require.NoError(t, err)

	prefix, ok := ipNetToPrefix(*ipnet)
	require.True(t, ok)
	require.Equal(t, "2001:db8::/32", prefix.String())
}
