// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package logfields holds the structured-log field key constants shared
// across lispd's subsystems, so every call site writes the same key for
// the same concept.
package logfields

const (
	Device       = "device"
	DeviceMode   = "deviceMode"
	EIDPrefix    = "eidPrefix"
	IID          = "iid"
	Locator      = "locator"
	LocatorState = "locatorState"
	MapServer    = "mapServer"
	MapResolver  = "mapResolver"
	MsgType      = "msgType"
	Nonce        = "nonce"
	Purpose      = "purpose"
	RemoteAddr   = "remoteAddr"
	RetriesLeft  = "retriesLeft"
	RTR          = "rtr"
	SourcePort   = "sourcePort"
	TimerID      = "timerID"
	TTLMinutes   = "ttlMinutes"
	Error        = "error"
	KeyID        = "keyID"
	NATStatus    = "natStatus"
	ConfigFile   = "configFile"
	PIDFile      = "pidFile"
	CorrelationID = "correlationID"
)
