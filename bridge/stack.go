// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package bridge connects a BLE peripheral (Nordic UART style service)
// to plain TCP clients: a central state machine on one side, a fan-out
// proxy on the other.
package bridge

import (
	"fmt"
)

// EventType enumerates host stack events delivered to the central.
type EventType int

const (
	EvtConnected EventType = iota
	EvtConnectFailed
	EvtDisconnected
	EvtMTUUpdated
	EvtPasskeyAction
	EvtEncChange
	EvtRepeatPairing
	EvtNotification
	EvtScanResult
)

func (t EventType) String() string {
	switch t {
	case EvtConnected:
		return "CONNECTED"
	case EvtConnectFailed:
		return "CONNECT_FAILED"
	case EvtDisconnected:
		return "DISCONNECTED"
	case EvtMTUUpdated:
		return "MTU_UPDATED"
	case EvtPasskeyAction:
		return "PASSKEY_ACTION"
	case EvtEncChange:
		return "ENC_CHANGE"
	case EvtRepeatPairing:
		return "REPEAT_PAIRING"
	case EvtNotification:
		return "NOTIFICATION"
	case EvtScanResult:
		return "SCAN_RESULT"
	default:
		return fmt.Sprintf("EVT(%d)", int(t))
	}
}

// PasskeyKind tells the central what kind of pairing input the peer
// asked for.
type PasskeyKind int

const (
	PasskeyInput PasskeyKind = iota
	PasskeyNumericComparison
	PasskeyDisplay
)

// Event is one host stack occurrence. Fields are filled per type:
// MTU for EvtMTUUpdated, Status for EvtEncChange/EvtConnectFailed,
// Passkey for EvtPasskeyAction, Data for EvtNotification, Addr/RSSI/
// Name for EvtScanResult.
type Event struct {
	Type    EventType
	Addr    string
	Status  int
	MTU     int
	Passkey PasskeyKind
	NumCmp  uint32
	Data    []byte
	RSSI    int
	Name    string
}

// Characteristic describes one discovered GATT characteristic.
type Characteristic struct {
	UUID        string
	Notify      bool
	Indicate    bool
	Write       bool
	WriteNoRsp  bool
	ValueHandle uint16
}

// HostStack abstracts the platform BLE host. Discovery calls are
// synchronous; asynchronous occurrences arrive on Events(). A stack
// that cannot do a phase (typically security on desktop hosts) returns
// ErrNotSupported from it and the central skips the phase.
type HostStack interface {
	// Scan starts passive discovery; results arrive as EvtScanResult.
	Scan() error
	StopScan() error

	// Connect initiates a connection to addr. Completion arrives as
	// EvtConnected or EvtConnectFailed.
	Connect(addr string) error
	Disconnect() error

	// ExchangeMTU negotiates the ATT MTU. Completion arrives as
	// EvtMTUUpdated.
	ExchangeMTU() error

	// SecurityInitiate starts pairing/encryption. Progress arrives as
	// EvtPasskeyAction and EvtEncChange.
	SecurityInitiate() error
	InjectPasskey(pin uint32) error
	ConfirmNumericComparison(accept bool) error

	// DiscoverServices returns the UUIDs of all primary services.
	DiscoverServices() ([]string, error)
	// DiscoverCharacteristics lists the characteristics of a service.
	DiscoverCharacteristics(serviceUUID string) ([]Characteristic, error)

	// Subscribe writes the CCCD of the characteristic: notify when
	// indicate is false, indication otherwise. Incoming values arrive
	// as EvtNotification.
	Subscribe(c Characteristic, indicate bool) error

	// WriteNoResponse sends one chunk to the peer's RX characteristic.
	WriteNoResponse(c Characteristic, data []byte) error

	Events() <-chan Event
}

// ErrNotSupported is returned by stacks for phases the platform host
// cannot express.
var ErrNotSupported = fmt.Errorf("not supported by this host stack")
