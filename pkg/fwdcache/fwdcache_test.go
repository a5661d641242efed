// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package fwdcache

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	key := Key{Addr: netip.MustParseAddr("10.0.0.1")}
	decision := Decision{Locator: netip.MustParseAddr("192.0.2.1"), ExpiresAt: now.Add(time.Minute)}

	c.Put(key, decision)
	got, ok := c.Get(key, now)
	require.True(t, ok)
	require.Equal(t, decision.Locator, got.Locator)
}

func TestGetExpiredEntryEvicts(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	key := Key{Addr: netip.MustParseAddr("10.0.0.1")}
	c.Put(key, Decision{ExpiresAt: now.Add(-time.Second)})

	_, ok := c.Get(key, now)
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)

	key := Key{Addr: netip.MustParseAddr("10.0.0.1")}
	c.Put(key, Decision{ExpiresAt: time.Unix(1_700_000_100, 0)})

	require.True(t, c.Invalidate(key))
	require.False(t, c.Invalidate(key))
}

func TestIIDDiscriminatesCacheKeys(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)

	addr := netip.MustParseAddr("10.0.0.1")
	now := time.Unix(1_700_000_000, 0)

	c.Put(Key{Addr: addr, HasIID: true, IID: 1}, Decision{Locator: netip.MustParseAddr("192.0.2.1"), ExpiresAt: now.Add(time.Minute)})
	c.Put(Key{Addr: addr, HasIID: true, IID: 2}, Decision{Locator: netip.MustParseAddr("192.0.2.2"), ExpiresAt: now.Add(time.Minute)})

	d1, ok := c.Get(Key{Addr: addr, HasIID: true, IID: 1}, now)
	require.True(t, ok)
	d2, ok := c.Get(Key{Addr: addr, HasIID: true, IID: 2}, now)
	require.True(t, ok)
	require.NotEqual(t, d1.Locator, d2.Locator)
}
