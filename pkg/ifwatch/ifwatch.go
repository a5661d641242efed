// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package ifwatch implements a thin interface-status consumer: it
// subscribes to netlink link and address change notifications and forwards
// them to a Collaborator, so the control plane can react to an EID-bearing
// interface going up/down or gaining/losing an address. It deliberately
// does not program routes, rules, or addresses itself — full route-table
// ownership is the data plane's job and is out of scope here (see the
// Non-goals this component respects); this is the "Intent/Collaborator"
// split, where ifwatch only ever reports intent upward.
package ifwatch

import (
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// Collaborator receives interface and address change notifications.
type Collaborator interface {
	OnLinkChange(name string, index int, up bool)
	OnAddressChange(index int, prefix netip.Prefix, added bool)
}

// Watcher subscribes to netlink link/address updates and forwards them to
// a Collaborator until Stop is called.
type Watcher struct {
	collab Collaborator
	done   chan struct{}
}

// New returns a Watcher reporting to collab.
func New(collab Collaborator) *Watcher {
	return &Watcher{collab: collab, done: make(chan struct{})}
}

// Start subscribes to netlink notifications and begins forwarding them in
// a background goroutine.
func (w *Watcher) Start() error {
	linkCh := make(chan netlink.LinkUpdate)
	if err := netlink.LinkSubscribe(linkCh, w.done); err != nil {
		return err
	}
	addrCh := make(chan netlink.AddrUpdate)
	if err := netlink.AddrSubscribe(addrCh, w.done); err != nil {
		return err
	}

	go w.run(linkCh, addrCh)
	return nil
}

func (w *Watcher) run(linkCh <-chan netlink.LinkUpdate, addrCh <-chan netlink.AddrUpdate) {
	for {
		select {
		case u, ok := <-linkCh:
			if !ok {
				return
			}
			attrs := u.Link.Attrs()
			w.collab.OnLinkChange(attrs.Name, attrs.Index, attrs.OperState == netlink.OperUp)

		case u, ok := <-addrCh:
			if !ok {
				return
			}
			if prefix, ok := ipNetToPrefix(u.LinkAddress); ok {
				w.collab.OnAddressChange(u.LinkIndex, prefix, u.NewAddr)
			}
		}
	}
}

func ipNetToPrefix(n net.IPNet) (netip.Prefix, bool) {
	addr, ok := netip.AddrFromSlice(n.IP)
	if !ok {
		return netip.Prefix{}, false
	}
	addr = addr.Unmap()
	ones, _ := n.Mask.Size()
	return netip.PrefixFrom(addr, ones), true
}

// Stop ends the subscription and the forwarding goroutine.
func (w *Watcher) Stop() { close(w.done) }
