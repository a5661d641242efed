// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package mapdb holds the local EID database a device is authoritative
// for, and the remote map-cache learned from map-replies. Both are
// longest-prefix-match keyed stores built on hashicorp's immutable radix
// tree.
package mapdb

import (
	"encoding/binary"
	"net/netip"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/lispmob/lispd/pkg/afi"
	"github.com/lispmob/lispd/pkg/lisperr"
	"github.com/lispmob/lispd/pkg/message"
)

// LocatorState is a locator's last-known RLOC-probe reachability. It is
// tracked independently of the wire's R bit (message.LocatorRecord.Reachable)
// because that bit reflects only what the remote side last asserted, while
// this field survives until a fresh probe says otherwise.
type LocatorState uint8

const (
	LocatorUnknown LocatorState = iota
	LocatorUp
	LocatorDown
)

func (s LocatorState) String() string {
	switch s {
	case LocatorUp:
		return "up"
	case LocatorDown:
		return "down"
	default:
		return "unknown"
	}
}

// Locator pairs one wire locator record with the reachability state RLOC
// probing has learned for it.
type Locator struct {
	Record message.LocatorRecord
	State  LocatorState
}

// Mapping is the store's domain representation of a mapping record: the
// wire fields plus a Locators slice carrying probe-derived state that a
// replacing insert must not clobber (see mergeLocatorState).
type Mapping struct {
	TTLMinutes    uint32
	EIDMaskLen    uint8
	Action        message.Action
	Authoritative bool
	EID           afi.Address
	IID           uint32
	HasIID        bool
	Locators      []Locator
}

func newMapping(rec message.MappingRecord) Mapping {
	locs := make([]Locator, len(rec.Locators))
	for i, l := range rec.Locators {
		state := LocatorUnknown
		if l.Reachable {
			state = LocatorUp
		}
		locs[i] = Locator{Record: l, State: state}
	}
	return Mapping{
		TTLMinutes:    rec.TTLMinutes,
		EIDMaskLen:    rec.EIDMaskLen,
		Action:        rec.Action,
		Authoritative: rec.Authoritative,
		EID:           rec.EID,
		IID:           rec.IID,
		HasIID:        rec.HasIID,
		Locators:      locs,
	}
}

// ToRecord projects a Mapping back to the wire record shape, folding each
// locator's probed state into the R bit a reply or notify would carry.
func (m Mapping) ToRecord() message.MappingRecord {
	locs := make([]message.LocatorRecord, len(m.Locators))
	for i, l := range m.Locators {
		rec := l.Record
		rec.Reachable = l.State != LocatorDown
		locs[i] = rec
	}
	return message.MappingRecord{
		TTLMinutes:    m.TTLMinutes,
		EIDMaskLen:    m.EIDMaskLen,
		Action:        m.Action,
		Authoritative: m.Authoritative,
		EID:           m.EID,
		IID:           m.IID,
		HasIID:        m.HasIID,
		Locators:      locs,
	}
}

// mergeLocatorState carries each unchanged locator's previously-learned
// state forward onto a replacing insert, matching locators by address (P5):
// a reply or re-registration that repeats a locator must not reset that
// locator back to LocatorUnknown just because it re-arrived on the wire.
func mergeLocatorState(existing, incoming Mapping) Mapping {
	prev := make(map[netip.Addr]LocatorState, len(existing.Locators))
	for _, l := range existing.Locators {
		if addr, ok := afi.AddrOf(l.Record.Addr); ok {
			prev[addr] = l.State
		}
	}
	for i := range incoming.Locators {
		addr, ok := afi.AddrOf(incoming.Locators[i].Record.Addr)
		if !ok {
			continue
		}
		if state, had := prev[addr]; had {
			incoming.Locators[i].State = state
		}
	}
	return incoming
}

// CacheEntry pairs a learned mapping with the wall-clock instant it expires.
type CacheEntry struct {
	Mapping   Mapping
	ExpiresAt time.Time
}

// Store holds the local database and map-cache. It is not safe for
// concurrent use: lispd's control plane runs on a single goroutine, and the
// trees are swapped by value on every mutation rather than mutex-guarded.
type Store struct {
	local *iradix.Tree
	cache *iradix.Tree
}

// New returns an empty store.
func New() *Store {
	return &Store{local: iradix.New(), cache: iradix.New()}
}

func family(addr netip.Addr) (byte, []byte) {
	if addr.Is4() {
		b := addr.As4()
		return 4, b[:]
	}
	b := addr.As16()
	return 6, b[:]
}

func maxMaskLen(addr netip.Addr) uint8 {
	if addr.Is4() {
		return 32
	}
	return 128
}

// buildKey derives the radix key for a (IID, address, mask-length) triple:
// a 4-byte IID, a 1-byte family tag, a 1-byte mask length, and the address
// masked to that length. Masking first means two prefixes that agree on
// their first maskLen bits always collide, which LookupLocal/LookupCache
// rely on when they probe one key per mask length.
func buildKey(iid uint32, addr netip.Addr, maskLen uint8) ([]byte, error) {
	pfx, err := addr.Prefix(int(maskLen))
	if err != nil {
		return nil, err
	}
	masked := pfx.Masked().Addr()
	fam, raw := family(masked)

	key := make([]byte, 0, 4+1+1+len(raw))
	key = binary.BigEndian.AppendUint32(key, iid)
	key = append(key, fam, maskLen)
	key = append(key, raw...)
	return key, nil
}

func prefixKey(p message.EIDPrefix) ([]byte, error) {
	addr, ok := afi.AddrOf(p.Address)
	if !ok {
		return nil, lisperr.ErrInvalidPrefix
	}
	var iid uint32
	if p.HasIID {
		iid = p.IID
	}
	return buildKey(iid, addr, p.MaskLen)
}

// AddLocal inserts or replaces a locally-authoritative mapping, preserving
// the locator state of any locator address the previous entry already held.
func (s *Store) AddLocal(prefix message.EIDPrefix, rec message.MappingRecord) error {
	key, err := prefixKey(prefix)
	if err != nil {
		return err
	}
	incoming := newMapping(rec)
	if v, ok := s.local.Get(key); ok {
		incoming = mergeLocatorState(v.(Mapping), incoming)
	}
	tree, _, _ := s.local.Insert(key, incoming)
	s.local = tree
	return nil
}

// RemoveLocal deletes a locally-authoritative mapping, reporting whether one
// was present.
func (s *Store) RemoveLocal(prefix message.EIDPrefix) (bool, error) {
	key, err := prefixKey(prefix)
	if err != nil {
		return false, err
	}
	tree, _, ok := s.local.Delete(key)
	s.local = tree
	return ok, nil
}

// AddCache inserts or replaces a learned map-cache entry with its expiry,
// preserving the locator state of any locator address the previous entry
// already held.
func (s *Store) AddCache(prefix message.EIDPrefix, rec message.MappingRecord, expiresAt time.Time) error {
	key, err := prefixKey(prefix)
	if err != nil {
		return err
	}
	incoming := newMapping(rec)
	if v, ok := s.cache.Get(key); ok {
		incoming = mergeLocatorState(v.(CacheEntry).Mapping, incoming)
	}
	tree, _, _ := s.cache.Insert(key, CacheEntry{Mapping: incoming, ExpiresAt: expiresAt})
	s.cache = tree
	return nil
}

// RemoveCache deletes a map-cache entry, reporting whether one was present.
func (s *Store) RemoveCache(prefix message.EIDPrefix) (bool, error) {
	key, err := prefixKey(prefix)
	if err != nil {
		return false, err
	}
	tree, _, ok := s.cache.Delete(key)
	s.cache = tree
	return ok, nil
}

// LookupLocalExact returns the local mapping registered for exactly this
// prefix, if any.
func (s *Store) LookupLocalExact(prefix message.EIDPrefix) (Mapping, bool, error) {
	key, err := prefixKey(prefix)
	if err != nil {
		return Mapping{}, false, err
	}
	v, ok := s.local.Get(key)
	if !ok {
		return Mapping{}, false, nil
	}
	return v.(Mapping), true, nil
}

// LookupCacheExact returns the map-cache entry registered for exactly this
// prefix, if any.
func (s *Store) LookupCacheExact(prefix message.EIDPrefix) (CacheEntry, bool, error) {
	key, err := prefixKey(prefix)
	if err != nil {
		return CacheEntry{}, false, err
	}
	v, ok := s.cache.Get(key)
	if !ok {
		return CacheEntry{}, false, nil
	}
	return v.(CacheEntry), true, nil
}

// LookupLocal returns the longest local prefix covering addr under iid, if
// any.
func (s *Store) LookupLocal(iid uint32, hasIID bool, addr netip.Addr) (Mapping, bool) {
	if !hasIID {
		iid = 0
	}
	for mask := int(maxMaskLen(addr)); mask >= 0; mask-- {
		key, err := buildKey(iid, addr, uint8(mask))
		if err != nil {
			continue
		}
		if v, ok := s.local.Get(key); ok {
			return v.(Mapping), true
		}
	}
	return Mapping{}, false
}

// LookupCache returns the longest map-cache prefix covering addr under iid,
// if any, without regard to expiry — callers wanting only live entries
// should check CacheEntry.ExpiresAt or call Expire first.
func (s *Store) LookupCache(iid uint32, hasIID bool, addr netip.Addr) (CacheEntry, bool) {
	if !hasIID {
		iid = 0
	}
	for mask := int(maxMaskLen(addr)); mask >= 0; mask-- {
		key, err := buildKey(iid, addr, uint8(mask))
		if err != nil {
			continue
		}
		if v, ok := s.cache.Get(key); ok {
			return v.(CacheEntry), true
		}
	}
	return CacheEntry{}, false
}

// Expire removes every cache entry whose ExpiresAt is at or before now,
// returning the count removed.
func (s *Store) Expire(now time.Time) int {
	var stale [][]byte
	s.cache.Root().Walk(func(k []byte, v interface{}) bool {
		if !v.(CacheEntry).ExpiresAt.After(now) {
			stale = append(stale, k)
		}
		return false
	})

	tree := s.cache
	for _, k := range stale {
		var ok bool
		tree, _, ok = tree.Delete(k)
		_ = ok
	}
	s.cache = tree
	return len(stale)
}

// UpdateLocatorState sets locator's reachability state on every map-cache
// mapping that lists it among its locators, leaving mappings that don't
// untouched. It returns the full EID prefix of every mapping that actually
// changed (including its IID), so a caller can reconstruct a forwarding-cache
// key and invalidate any memoized decision for that destination.
func (s *Store) UpdateLocatorState(locator netip.Addr, state LocatorState) []message.EIDPrefix {
	var changedKeys [][]byte
	var changedEntries []CacheEntry
	var affected []message.EIDPrefix

	s.cache.Root().Walk(func(k []byte, v interface{}) bool {
		entry := v.(CacheEntry)
		changed := false
		for i := range entry.Mapping.Locators {
			addr, ok := afi.AddrOf(entry.Mapping.Locators[i].Record.Addr)
			if !ok || addr != locator {
				continue
			}
			if entry.Mapping.Locators[i].State != state {
				entry.Mapping.Locators[i].State = state
				changed = true
			}
		}
		if changed {
			affected = append(affected, message.EIDPrefix{
				Address: entry.Mapping.EID,
				MaskLen: entry.Mapping.EIDMaskLen,
				IID:     entry.Mapping.IID,
				HasIID:  entry.Mapping.HasIID,
			})
			changedKeys = append(changedKeys, append([]byte(nil), k...))
			changedEntries = append(changedEntries, entry)
		}
		return false
	})

	tree := s.cache
	for i, k := range changedKeys {
		tree, _, _ = tree.Insert(k, changedEntries[i])
	}
	s.cache = tree
	return affected
}

// LocalLen and CacheLen report the number of entries in each tree, mostly
// for status reporting and tests.
func (s *Store) LocalLen() int { return s.local.Len() }
func (s *Store) CacheLen() int { return s.cache.Len() }
