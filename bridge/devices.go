// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package bridge

import (
	"sort"
	"sync"
	"time"
)

const maxTrackedDevices = 32

// Device is one peripheral seen during scanning.
type Device struct {
	Addr     string    `json:"addr"`
	Name     string    `json:"name"`
	RSSI     int       `json:"rssi"`
	LastSeen time.Time `json:"last_seen"`
}

// DeviceTable collects scan results, newest signal strength wins.
type DeviceTable struct {
	mu      sync.Mutex
	devices map[string]*Device
}

func NewDeviceTable() *DeviceTable {
	return &DeviceTable{devices: make(map[string]*Device)}
}

// Observe records one advertisement. An empty name never overwrites a
// known one.
func (t *DeviceTable) Observe(addr string, name string, rssi int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.devices[addr]
	if !ok {
		if len(t.devices) >= maxTrackedDevices {
			t.evictOldest()
		}
		d = &Device{Addr: addr}
		t.devices[addr] = d
	}

	if name != "" {
		d.Name = name
	}
	d.RSSI = rssi
	d.LastSeen = time.Now()
}

func (t *DeviceTable) evictOldest() {
	var oldest string
	var when time.Time
	for addr, d := range t.devices {
		if oldest == "" || d.LastSeen.Before(when) {
			oldest = addr
			when = d.LastSeen
		}
	}
	delete(t.devices, oldest)
}

// Snapshot returns the table sorted by signal strength.
func (t *DeviceTable) Snapshot() []Device {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Device, 0, len(t.devices))
	for _, d := range t.devices {
		out = append(out, *d)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].RSSI > out[j].RSSI
	})
	return out
}

func (t *DeviceTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices = make(map[string]*Device)
}
