// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package power switches the target's supply rail through one GPIO.
package power

import (
	"sync"
	"time"

	gonrflink "github.com/bbnote/gonrflink"
)

const rebootOffTime = 500 * time.Millisecond

// Rail drives the supply switch. activeHigh false inverts the level for
// high-side switches driven through a PNP or P-FET.
type Rail struct {
	pin        gonrflink.Pin
	activeHigh bool

	mu sync.Mutex
	on bool
}

// NewRail takes ownership of the pin, drives it and switches the rail
// on.
func NewRail(pin gonrflink.Pin, activeHigh bool) *Rail {
	r := &Rail{pin: pin, activeHigh: activeHigh}
	pin.Set(r.level(true))
	pin.Drive()
	r.on = true
	return r
}

func (r *Rail) level(on bool) bool {
	if r.activeHigh {
		return on
	}
	return !on
}

func (r *Rail) set(on bool) error {
	r.pin.Set(r.level(on))
	r.on = on
	return r.pin.Err()
}

func (r *Rail) On() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set(true)
}

func (r *Rail) Off() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set(false)
}

// Reboot power-cycles the target: off, half a second, on.
func (r *Rail) Reboot() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.set(false); err != nil {
		return err
	}
	time.Sleep(rebootOffTime)
	return r.set(true)
}

func (r *Rail) IsOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}
