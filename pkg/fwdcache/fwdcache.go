// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package fwdcache memoizes a per-(EID, IID) encapsulation decision for the
// data-plane collaborator, so repeated packets to the same destination
// don't re-walk the map-cache on every forwarding decision. Built on
// github.com/hashicorp/golang-lru/v2's typed, bounded LRU rather than the
// untyped v1, for the same memoize-with-eviction shape without the
// interface{} boxing v1 carries.
package fwdcache

import (
	"net/netip"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies one forwarding decision: a destination address under an
// optional instance ID.
type Key struct {
	IID    uint32
	HasIID bool
	Addr   netip.Addr
}

// Decision is the cached forwarding outcome for a Key.
type Decision struct {
	Locator   netip.Addr
	Action    int // mirrors message.Action; kept untyped here to avoid an import cycle with pkg/message
	ExpiresAt time.Time
}

// Cache memoizes forwarding decisions with LRU eviction.
type Cache struct {
	lru *lru.Cache[Key, Decision]
}

// New returns a cache holding at most size entries.
func New(size int) (*Cache, error) {
	c, err := lru.New[Key, Decision](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Get returns the cached decision for key, if present and not expired as of
// now. An expired hit is evicted and reported as a miss.
func (c *Cache) Get(key Key, now time.Time) (Decision, bool) {
	d, ok := c.lru.Get(key)
	if !ok {
		return Decision{}, false
	}
	if !d.ExpiresAt.After(now) {
		c.lru.Remove(key)
		return Decision{}, false
	}
	return d, true
}

// Put stores or replaces the decision for key.
func (c *Cache) Put(key Key, decision Decision) {
	c.lru.Add(key, decision)
}

// Invalidate removes any cached decision for key, reporting whether one was
// present. The daemon calls it when a map-reply or negative-cache entry is
// inserted for this destination and when a probe changes a locator's state;
// cache expiry does not call it (Get checks the decision's own expiry).
func (c *Cache) Invalidate(key Key) bool {
	return c.lru.Remove(key)
}

// Len reports the number of cached decisions.
func (c *Cache) Len() int { return c.lru.Len() }
