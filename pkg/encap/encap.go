// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package encap implements the encapsulated-control-message helpers: the
// UDP source-port convention for ECM-wrapped Map-Requests and the
// ITR-RLOC list-length limit. Building the actual tunneled data-plane
// header (the per-packet IP-in-UDP
// encapsulation of user traffic) is out of scope — lispd's control plane
// decides forwarding (pkg/fwdcache) and watches interface events
// (pkg/ifwatch), but it programs no tun device and does not itself splice
// payload bytes around a live packet path. That mirrors original_source/lispd_tun.c,
// which hands finished packets to the kernel's tun driver rather than
// rewriting headers in userspace byte-by-byte.
package encap

import (
	"github.com/lispmob/lispd/pkg/afi"
	"github.com/lispmob/lispd/pkg/lisperr"
	"github.com/lispmob/lispd/pkg/message"
)

// MaxITRRLOCs is the largest ITR-RLOC count a Map-Request may carry. The
// codec stores the count in a full byte, so this bound is enforced by
// ValidateITRRLOCs rather than by the field width.
const MaxITRRLOCs = 31

// DefaultTTL is the IP TTL for encapsulated control packets. lispd builds
// no IP header itself, so no code in this repository applies it.
const DefaultTTL = 32

// SourcePort derives the UDP source port an ECM-wrapped Map-Request should
// be sent from: LISP_PKT_MAP_REQUEST_UDP_SPORT(nonce) in
// original_source/lispd/defs.h, 0xF000 | (nonce & 0xFFF), so replies can be
// correlated back to the request even through NAT port remapping.
func SourcePort(nonceVal uint64) uint16 {
	return 0xF000 | uint16(nonceVal&0xFFF)
}

// ValidateITRRLOCs reports an error if rlocs holds more than MaxITRRLOCs
// addresses.
func ValidateITRRLOCs(rlocs []afi.Address) error {
	if len(rlocs) > MaxITRRLOCs {
		return lisperr.ErrResourceExhausted
	}
	return nil
}

// WrapECM builds an Encapsulated Control Message carrying an already-
// encoded inner message (typically a Map-Request), optionally with an
// RTR-auth field for NAT-traversal relays.
func WrapECM(inner []byte, securityCapable bool, rtrAuth *message.RTRAuthField) *message.EncapControlMessage {
	return &message.EncapControlMessage{
		SecurityCapable: securityCapable,
		RTRAuth:         rtrAuth,
		Inner:           inner,
	}
}
