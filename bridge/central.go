// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package bridge

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// UUIDs of the serial services the central understands. The first TX/RX
// pair found on either service is used.
const (
	UUIDNordicUART = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	UUIDMeshtastic = "6ba1b218-15a8-461f-9fa8-5dcae273eafd"
)

const (
	DefaultPasskey = 123456

	mtuSettleDelay  = 1 * time.Second
	encSettleDelay  = 500 * time.Millisecond
	scanStopDelay   = 100 * time.Millisecond
	defaultAttMtu   = 23
)

// State is the position of the central in its connection sequence.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateMtuExchanged
	StateSecuring
	StatePasskey
	StateEncrypted
	StateDiscovering
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateMtuExchanged:
		return "MTU_EXCHANGED"
	case StateSecuring:
		return "SECURING"
	case StatePasskey:
		return "PASSKEY"
	case StateEncrypted:
		return "ENCRYPTED"
	case StateDiscovering:
		return "DISCOVERING"
	case StateReady:
		return "READY"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// BondStore removes stored pairing keys when the peer asks to re-pair.
type BondStore interface {
	DeleteBond(addr string) error
}

// Central drives one peripheral connection through connect, MTU
// exchange, security, discovery and subscription. Events from the host
// stack arrive on a single goroutine; all transitions happen there.
type Central struct {
	stack   HostStack
	bonds   BondStore
	passkey uint32

	mu       sync.Mutex
	state    State
	peerAddr string
	mtu      int
	tx       Characteristic
	rx       Characteristic
	scanning bool

	notify func(data []byte)

	devices *DeviceTable

	done chan struct{}
}

// NewCentral wires a central to a host stack. bonds may be nil when the
// stack keeps no persistent keys.
func NewCentral(stack HostStack, bonds BondStore) *Central {
	c := &Central{
		stack:   stack,
		bonds:   bonds,
		passkey: DefaultPasskey,
		state:   StateIdle,
		mtu:     defaultAttMtu,
		devices: NewDeviceTable(),
		done:    make(chan struct{}),
	}
	go c.eventLoop()
	return c
}

// SetPasskey overrides the PIN injected on a passkey request.
func (c *Central) SetPasskey(pin uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passkey = pin
}

// SetNotifyHandler registers the sink for values arriving on the TX
// characteristic. Must be set before Connect.
func (c *Central) SetNotifyHandler(fn func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
}

func (c *Central) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Central) PeerAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerAddr
}

// MTU returns the negotiated ATT MTU, 23 before any exchange.
func (c *Central) MTU() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mtu
}

func (c *Central) Devices() *DeviceTable {
	return c.devices
}

// StartScan begins passive discovery. Results land in the device table.
func (c *Central) StartScan() error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return NewBleError(BlePhaseConnect, "busy, disconnect first")
	}
	c.scanning = true
	c.mu.Unlock()

	c.devices.Clear()
	if err := c.stack.Scan(); err != nil {
		c.mu.Lock()
		c.scanning = false
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Central) StopScan() error {
	c.mu.Lock()
	c.scanning = false
	c.mu.Unlock()
	return c.stack.StopScan()
}

// Connect starts the connection sequence to addr and returns without
// waiting for it to finish. Progress is visible through State(). A
// running scan is cancelled first.
func (c *Central) Connect(addr string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return NewBleError(BlePhaseConnect,
			fmt.Sprintf("central is %s, not IDLE", state))
	}
	wasScanning := c.scanning
	c.scanning = false
	c.state = StateConnecting
	c.peerAddr = addr
	c.mu.Unlock()

	if wasScanning {
		if err := c.stack.StopScan(); err != nil {
			logger.Warnf("stop scan before connect: %v", err)
		}
		time.Sleep(scanStopDelay)
	}

	logger.Infof("BLE connecting to %s", addr)
	if err := c.stack.Connect(addr); err != nil {
		c.toIdle()
		return NewBleError(BlePhaseConnect, err.Error())
	}
	return nil
}

// Disconnect tears the link down. Safe to call in any state.
func (c *Central) Disconnect() error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == StateIdle {
		return nil
	}
	return c.stack.Disconnect()
}

// Send writes data to the peer's RX characteristic in MTU-sized chunks.
func (c *Central) Send(data []byte) error {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return NewBleError(BlePhaseSend,
			fmt.Sprintf("central is %s, not READY", state))
	}
	rx := c.rx
	chunk := c.mtu - 3
	c.mu.Unlock()

	if chunk > maxAttPayload {
		chunk = maxAttPayload
	}

	for len(data) > 0 {
		n := len(data)
		if n > chunk {
			n = chunk
		}
		if err := c.stack.WriteNoResponse(rx, data[:n]); err != nil {
			return NewBleError(BlePhaseSend, err.Error())
		}
		data = data[n:]
		if len(data) > 0 {
			time.Sleep(interChunkPause)
		}
	}
	return nil
}

// Close stops the event loop. The central cannot be reused afterwards.
func (c *Central) Close() {
	close(c.done)
}

func (c *Central) toIdle() {
	c.mu.Lock()
	c.state = StateIdle
	c.peerAddr = ""
	c.mtu = defaultAttMtu
	c.tx = Characteristic{}
	c.rx = Characteristic{}
	c.mu.Unlock()
}

func (c *Central) setState(s State) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()
	logger.Debugf("BLE state %s -> %s", old, s)
}

func (c *Central) eventLoop() {
	for {
		select {
		case <-c.done:
			return
		case evt, ok := <-c.stack.Events():
			if !ok {
				return
			}
			c.handleEvent(evt)
		}
	}
}

func (c *Central) handleEvent(evt Event) {
	switch evt.Type {
	case EvtScanResult:
		c.devices.Observe(evt.Addr, evt.Name, evt.RSSI)

	case EvtConnected:
		logger.Infof("BLE connected to %s", evt.Addr)
		c.setState(StateConnected)
		err := c.stack.ExchangeMTU()
		if err == ErrNotSupported {
			logger.Debugf("BLE host negotiates MTU itself, skipping exchange")
			c.setState(StateMtuExchanged)
			c.startSecurity()
		} else if err != nil {
			c.fail(BlePhaseConnect, err)
		}

	case EvtConnectFailed:
		logger.Errorf("BLE connect failed, status %d", evt.Status)
		c.toIdle()

	case EvtDisconnected:
		logger.Infof("BLE disconnected from %s", evt.Addr)
		c.toIdle()

	case EvtMTUUpdated:
		c.mu.Lock()
		c.mtu = evt.MTU
		c.mu.Unlock()
		logger.Infof("BLE MTU updated to %d", evt.MTU)
		c.setState(StateMtuExchanged)
		time.Sleep(mtuSettleDelay)
		c.startSecurity()

	case EvtPasskeyAction:
		c.handlePasskey(evt)

	case EvtEncChange:
		if evt.Status != 0 {
			c.fail(BlePhaseEncrypt,
				fmt.Errorf("encryption failed, status %d", evt.Status))
			return
		}
		logger.Infof("BLE link encrypted")
		c.setState(StateEncrypted)
		time.Sleep(encSettleDelay)
		c.discover()

	case EvtRepeatPairing:
		logger.Warnf("BLE peer %s requests re-pairing, deleting bond", evt.Addr)
		if c.bonds != nil {
			if err := c.bonds.DeleteBond(evt.Addr); err != nil {
				logger.Errorf("delete bond for %s: %v", evt.Addr, err)
			}
		}

	case EvtNotification:
		c.mu.Lock()
		fn := c.notify
		c.mu.Unlock()
		if fn != nil {
			fn(evt.Data)
		}
	}
}

func (c *Central) startSecurity() {
	c.setState(StateSecuring)
	err := c.stack.SecurityInitiate()
	if err == ErrNotSupported {
		logger.Debugf("BLE host has no security support, skipping pairing")
		c.discover()
		return
	}
	if err != nil {
		c.fail(BlePhasePair, err)
	}
}

func (c *Central) handlePasskey(evt Event) {
	c.setState(StatePasskey)
	switch evt.Passkey {
	case PasskeyInput:
		c.mu.Lock()
		pin := c.passkey
		c.mu.Unlock()
		logger.Infof("BLE peer asks for passkey, injecting configured PIN")
		if err := c.stack.InjectPasskey(pin); err != nil {
			c.fail(BlePhasePair, err)
		}
	case PasskeyNumericComparison:
		logger.Infof("BLE numeric comparison %06d, accepting", evt.NumCmp)
		if err := c.stack.ConfirmNumericComparison(true); err != nil {
			c.fail(BlePhasePair, err)
		}
	case PasskeyDisplay:
		logger.Infof("BLE peer displays passkey %06d on its side", evt.NumCmp)
	}
	c.setState(StateSecuring)
}

func (c *Central) discover() {
	c.setState(StateDiscovering)

	services, err := c.stack.DiscoverServices()
	if err != nil {
		c.fail(BlePhaseDiscover, err)
		return
	}

	for _, svc := range services {
		u := strings.ToLower(svc)
		if u != UUIDNordicUART && u != UUIDMeshtastic {
			continue
		}
		logger.Infof("BLE found serial service %s", u)

		chars, err := c.stack.DiscoverCharacteristics(svc)
		if err != nil {
			c.fail(BlePhaseDiscover, err)
			return
		}

		var tx, rx Characteristic
		var haveTx, haveRx bool
		for _, ch := range chars {
			if !haveTx && (ch.Notify || ch.Indicate) {
				tx = ch
				haveTx = true
			}
			if !haveRx && (ch.Write || ch.WriteNoRsp) {
				rx = ch
				haveRx = true
			}
		}
		if !haveTx || !haveRx {
			continue
		}

		// Prefer notifications, fall back to indications.
		indicate := !tx.Notify && tx.Indicate
		if err := c.stack.Subscribe(tx, indicate); err != nil {
			c.fail(BlePhaseSubscribe, err)
			return
		}

		c.mu.Lock()
		c.tx = tx
		c.rx = rx
		c.mu.Unlock()
		c.setState(StateReady)
		logger.Infof("BLE ready, TX %s RX %s", tx.UUID, rx.UUID)
		return
	}

	c.fail(BlePhaseDiscover, fmt.Errorf("no usable serial service on peer"))
}

func (c *Central) fail(phase BlePhase, err error) {
	logger.Errorf("%v", NewBleError(phase, err.Error()))
	if derr := c.stack.Disconnect(); derr != nil {
		logger.Debugf("disconnect after failure: %v", derr)
		c.toIdle()
	}
}
