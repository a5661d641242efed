// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package auth computes and verifies the HMAC carried in Map-Register,
// Map-Notify and Info messages. Modeled on
// original_source/lispd/lispd_info_reply.c's use of OpenSSL's HMAC over
// the info-reply body with the auth-data field zeroed first; translated
// to Go's crypto/hmac and crypto/subtle.
package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"hash"

	"github.com/lispmob/lispd/pkg/lisperr"
	"github.com/lispmob/lispd/pkg/message"
)

// Algorithm identifies the MAC construction, matching the key-id values
// LISP control messages carry.
type Algorithm uint16

const (
	HMACSHA1_96   Algorithm = 1
	HMACSHA256_128 Algorithm = 2
)

func (a Algorithm) newHash() (func() hash.Hash, int, error) {
	switch a {
	case HMACSHA1_96:
		return sha1.New, sha1.Size, nil // the "-96" name is a LISP misnomer; the full 20-byte digest is carried
	case HMACSHA256_128:
		return sha256.New, sha256.Size, nil // likewise "-128": the full 32-byte digest is carried
	default:
		return nil, 0, fmt.Errorf("%w: auth algorithm %d", lisperr.ErrAuthFailed, a)
	}
}

// Width returns the auth-data field width, in bytes, alg's wire messages
// carry.
func (a Algorithm) Width() (int, error) {
	_, width, err := a.newHash()
	return width, err
}

// Compute returns the MAC over encoded with its auth-data field zeroed,
// truncated to the algorithm's defined width.
func Compute(alg Algorithm, key []byte, msgType message.MsgType, encoded []byte) ([]byte, error) {
	offset, length, err := message.AuthDataRange(msgType, encoded)
	if err != nil {
		return nil, err
	}

	zeroed := make([]byte, len(encoded))
	copy(zeroed, encoded)
	for i := offset; i < offset+length; i++ {
		zeroed[i] = 0
	}

	return ComputeRaw(alg, key, zeroed)
}

// ComputeRaw returns the MAC over body, truncated to alg's defined width.
// Unlike Compute it has no notion of a wire layout: body must already have
// any carried auth-data field zeroed by the caller. This backs the
// RTR-auth field on an Encapsulated Control Message, whose layout
// message.AuthDataRange does not describe.
func ComputeRaw(alg Algorithm, key []byte, body []byte) ([]byte, error) {
	newHash, width, err := alg.newHash()
	if err != nil {
		return nil, err
	}

	mac := hmac.New(newHash, key)
	mac.Write(body)
	full := mac.Sum(nil)
	if width > len(full) {
		return nil, fmt.Errorf("%w: truncation width exceeds digest size", lisperr.ErrAuthFailed)
	}
	return full[:width], nil
}

// Verify recomputes the MAC over encoded and compares it, in constant time,
// against the auth-data bytes already present in the message.
func Verify(alg Algorithm, key []byte, msgType message.MsgType, encoded []byte) error {
	offset, length, err := message.AuthDataRange(msgType, encoded)
	if err != nil {
		return err
	}
	carried := encoded[offset : offset+length]

	expected, err := Compute(alg, key, msgType, encoded)
	if err != nil {
		return err
	}
	if len(expected) != len(carried) {
		return fmt.Errorf("%w: auth-data length does not match algorithm width", lisperr.ErrAuthLenMismatch)
	}
	if subtle.ConstantTimeCompare(expected, carried) != 1 {
		return lisperr.ErrAuthFailed
	}
	return nil
}

// VerifyRaw recomputes the MAC over body and compares it, in constant time,
// against carried. body must already have any field carried alongside it
// zeroed by the caller.
func VerifyRaw(alg Algorithm, key []byte, body []byte, carried []byte) error {
	expected, err := ComputeRaw(alg, key, body)
	if err != nil {
		return err
	}
	if len(expected) != len(carried) {
		return fmt.Errorf("%w: auth-data length does not match algorithm width", lisperr.ErrAuthLenMismatch)
	}
	if subtle.ConstantTimeCompare(expected, carried) != 1 {
		return lisperr.ErrAuthFailed
	}
	return nil
}

// Sign computes the MAC over encoded and writes it into the message's
// auth-data field in place, returning the updated slice.
func Sign(alg Algorithm, key []byte, msgType message.MsgType, encoded []byte) ([]byte, error) {
	offset, length, err := message.AuthDataRange(msgType, encoded)
	if err != nil {
		return nil, err
	}

	mac, err := Compute(alg, key, msgType, encoded)
	if err != nil {
		return nil, err
	}
	if len(mac) != length {
		return nil, fmt.Errorf("%w: auth-data field width does not match algorithm", lisperr.ErrAuthLenMismatch)
	}
	copy(encoded[offset:offset+length], mac)
	return encoded, nil
}
