// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package bridge

import (
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// charPair names the value characteristics of a serial service. The
// host library returns characteristics in request order, so the pair is
// looked up by UUID instead of by GATT properties.
type charPair struct {
	tx string
	rx string
}

var serialServices = map[string]charPair{
	UUIDNordicUART: {
		tx: "6e400003-b5a3-f393-e0a9-e50e24dcca9e",
		rx: "6e400002-b5a3-f393-e0a9-e50e24dcca9e",
	},
}

// TinygoStack adapts the BlueZ-backed bluetooth package to HostStack.
// The managed host negotiates MTU and pairing on its own, so
// ExchangeMTU and the security calls report ErrNotSupported and the
// central skips those phases.
type TinygoStack struct {
	adapter *bluetooth.Adapter

	events chan Event

	mu      sync.Mutex
	enabled bool
	seen    map[string]bluetooth.Addresser
	device  *bluetooth.Device
	svcs    map[string]bluetooth.DeviceService
	chars   map[string]bluetooth.DeviceCharacteristic
}

func NewTinygoStack() *TinygoStack {
	return &TinygoStack{
		adapter: bluetooth.DefaultAdapter,
		events:  make(chan Event, 16),
		seen:    make(map[string]bluetooth.Addresser),
		svcs:    make(map[string]bluetooth.DeviceService),
		chars:   make(map[string]bluetooth.DeviceCharacteristic),
	}
}

func (s *TinygoStack) Events() <-chan Event {
	return s.events
}

func (s *TinygoStack) enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return nil
	}
	if err := s.adapter.Enable(); err != nil {
		return err
	}
	s.enabled = true
	return nil
}

// Scan blocks inside the library, so it runs on its own goroutine until
// StopScan.
func (s *TinygoStack) Scan() error {
	if err := s.enable(); err != nil {
		return err
	}

	go func() {
		err := s.adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			addr := result.Address.String()

			s.mu.Lock()
			s.seen[addr] = result.Address
			s.mu.Unlock()

			s.emit(Event{
				Type: EvtScanResult,
				Addr: addr,
				Name: result.LocalName(),
				RSSI: int(result.RSSI),
			})
		})
		if err != nil {
			logger.Errorf("scan ended: %v", err)
		}
	}()
	return nil
}

func (s *TinygoStack) StopScan() error {
	return s.adapter.StopScan()
}

// Connect resolves addr against addresses collected while scanning.
// The library call blocks, so completion is reported as an event.
func (s *TinygoStack) Connect(addr string) error {
	if err := s.enable(); err != nil {
		return err
	}

	s.mu.Lock()
	target, ok := s.seen[addr]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("address %s not seen in any scan", addr)
	}

	go func() {
		dev, err := s.adapter.Connect(target, bluetooth.ConnectionParams{})
		if err != nil {
			logger.Errorf("connect to %s: %v", addr, err)
			s.emit(Event{Type: EvtConnectFailed, Addr: addr, Status: 1})
			return
		}

		s.mu.Lock()
		s.device = dev
		s.svcs = make(map[string]bluetooth.DeviceService)
		s.chars = make(map[string]bluetooth.DeviceCharacteristic)
		s.mu.Unlock()

		s.emit(Event{Type: EvtConnected, Addr: addr})
	}()
	return nil
}

func (s *TinygoStack) Disconnect() error {
	s.mu.Lock()
	dev := s.device
	s.device = nil
	s.mu.Unlock()

	if dev == nil {
		return nil
	}
	err := dev.Disconnect()
	s.emit(Event{Type: EvtDisconnected})
	return err
}

func (s *TinygoStack) ExchangeMTU() error            { return ErrNotSupported }
func (s *TinygoStack) SecurityInitiate() error       { return ErrNotSupported }
func (s *TinygoStack) InjectPasskey(pin uint32) error { return ErrNotSupported }

func (s *TinygoStack) ConfirmNumericComparison(accept bool) error {
	return ErrNotSupported
}

func (s *TinygoStack) DiscoverServices() ([]string, error) {
	s.mu.Lock()
	dev := s.device
	s.mu.Unlock()
	if dev == nil {
		return nil, fmt.Errorf("not connected")
	}

	var found []string
	for uuid := range serialServices {
		parsed, err := bluetooth.ParseUUID(uuid)
		if err != nil {
			return nil, err
		}
		svcs, err := dev.DiscoverServices([]bluetooth.UUID{parsed})
		if err != nil || len(svcs) == 0 {
			continue
		}

		s.mu.Lock()
		s.svcs[uuid] = svcs[0]
		s.mu.Unlock()
		found = append(found, uuid)
	}
	return found, nil
}

func (s *TinygoStack) DiscoverCharacteristics(serviceUUID string) ([]Characteristic, error) {
	key := strings.ToLower(serviceUUID)
	pair, ok := serialServices[key]
	if !ok {
		logger.Warnf("no characteristic map for service %s", key)
		return nil, nil
	}

	s.mu.Lock()
	svc, ok := s.svcs[key]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("service %s not discovered", key)
	}

	txUUID, err := bluetooth.ParseUUID(pair.tx)
	if err != nil {
		return nil, err
	}
	rxUUID, err := bluetooth.ParseUUID(pair.rx)
	if err != nil {
		return nil, err
	}

	chars, err := svc.DiscoverCharacteristics([]bluetooth.UUID{txUUID, rxUUID})
	if err != nil {
		return nil, err
	}
	if len(chars) < 2 {
		return nil, fmt.Errorf("service %s is missing its value characteristics", key)
	}

	s.mu.Lock()
	s.chars[pair.tx] = chars[0]
	s.chars[pair.rx] = chars[1]
	s.mu.Unlock()

	return []Characteristic{
		{UUID: pair.tx, Notify: true},
		{UUID: pair.rx, WriteNoRsp: true},
	}, nil
}

func (s *TinygoStack) Subscribe(c Characteristic, indicate bool) error {
	s.mu.Lock()
	char, ok := s.chars[c.UUID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("characteristic %s not discovered", c.UUID)
	}

	return char.EnableNotifications(func(buf []byte) {
		data := make([]byte, len(buf))
		copy(data, buf)
		s.emit(Event{Type: EvtNotification, Data: data})
	})
}

func (s *TinygoStack) WriteNoResponse(c Characteristic, data []byte) error {
	s.mu.Lock()
	char, ok := s.chars[c.UUID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("characteristic %s not discovered", c.UUID)
	}

	_, err := char.WriteWithoutResponse(data)
	return err
}

// emit never blocks the host callback; a full queue drops the event.
func (s *TinygoStack) emit(evt Event) {
	select {
	case s.events <- evt:
	default:
		logger.Warnf("event queue full, dropping %s", evt.Type)
	}
}
