// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// FT232H asynchronous bit-bang pin bank. Lets a desktop host drive the
// SWD lines through the ADBUS port of an FTDI bridge instead of
// memory-mapped GPIO.

package gonrflink

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/google/gousb"
)

var ftdiVids = []gousb.ID{0x0403}
var ftdiPids = []gousb.ID{0x6014} // FT232H

// FTDI vendor requests
const (
	ftdiReqReset       = 0x00
	ftdiReqSetBaudrate = 0x03
	ftdiReqSetBitmode  = 0x0B
	ftdiReqReadPins    = 0x0C

	ftdiBitmodeAsyncBB = 0x01

	ftdiReqTypeOut = gousb.ControlVendor | gousb.ControlDevice | gousb.ControlOut
	ftdiReqTypeIn  = gousb.ControlVendor | gousb.ControlDevice | gousb.ControlIn
)

// FtdiBank drives up to eight pins of an FT232H in asynchronous
// bit-bang mode. Level and direction shadows are kept host-side; every
// Set pushes one byte to the bulk endpoint, every Get issues a
// READ_PINS control transfer.
type FtdiBank struct {
	dev  *gousb.Device
	intf *gousb.Interface
	done func()
	out  *gousb.OutEndpoint

	mu     sync.Mutex
	levels uint8
	dirs   uint8
	err    error
}

// OpenFtdiBank claims the first FT232H on the bus and puts it into
// asynchronous bit-bang mode with all pins released.
func OpenFtdiBank() (*FtdiBank, error) {
	if usb_ctx == nil {
		if err := InitializeUSB(); err != nil {
			return nil, err
		}
	}

	devices, err := usb_find_devices(ftdiVids, ftdiPids)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no FT232H bridge found")
	}

	// claim the first one, close the rest
	for _, d := range devices[1:] {
		d.Close()
	}
	dev := devices[0]

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		return nil, err
	}

	out, err := intf.OutEndpoint(0x02)
	if err != nil {
		done()
		dev.Close()
		return nil, err
	}

	b := &FtdiBank{
		dev:    dev,
		intf:   intf,
		done:   done,
		out:    out,
		levels: 0xFF,
	}

	if _, err := dev.Control(ftdiReqTypeOut, ftdiReqReset, 0, 1, nil); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.applyBitmode(); err != nil {
		b.Close()
		return nil, err
	}

	log.Info("FT232H bridge opened in async bit-bang mode")
	return b, nil
}

func (b *FtdiBank) applyBitmode() error {
	value := uint16(ftdiBitmodeAsyncBB)<<8 | uint16(b.dirs)
	_, err := b.dev.Control(ftdiReqTypeOut, ftdiReqSetBitmode, value, 1, nil)
	return err
}

func (b *FtdiBank) pushLevels() error {
	_, err := usb_write(b.out, []byte{b.levels})
	return err
}

func (b *FtdiBank) readPins() (uint8, error) {
	buf := make([]byte, 1)
	if _, err := b.dev.Control(ftdiReqTypeIn, ftdiReqReadPins, 0, 1, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *FtdiBank) latch(err error) {
	if err != nil && b.err == nil {
		log.Errorf("FTDI pin bank failed: %v", err)
		b.err = err
	}
}

// Pin returns the pin for one ADBUS line (0..7).
func (b *FtdiBank) Pin(num int) (Pin, error) {
	if num < 0 || num > 7 {
		return nil, fmt.Errorf("FT232H has pins 0..7, got %d", num)
	}
	return &ftdiPin{bank: b, mask: 1 << uint(num)}, nil
}

func (b *FtdiBank) Close() error {
	if b.done != nil {
		b.done()
	}
	return b.dev.Close()
}

type ftdiPin struct {
	bank *FtdiBank
	mask uint8
}

func (p *ftdiPin) Drive() {
	b := p.bank
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dirs |= p.mask
	b.latch(b.applyBitmode())
}

func (p *ftdiPin) Release() {
	b := p.bank
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dirs &^= p.mask
	b.latch(b.applyBitmode())
}

func (p *ftdiPin) Set(level bool) {
	b := p.bank
	b.mu.Lock()
	defer b.mu.Unlock()

	if level {
		b.levels |= p.mask
	} else {
		b.levels &^= p.mask
	}
	b.latch(b.pushLevels())
}

func (p *ftdiPin) Get() bool {
	b := p.bank
	b.mu.Lock()
	defer b.mu.Unlock()

	pins, err := b.readPins()
	if err != nil {
		b.latch(err)
		return false
	}
	return pins&p.mask != 0
}

func (p *ftdiPin) Err() error {
	b := p.bank
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}
