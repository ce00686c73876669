// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// bit-banged SW-DP line driver: request/ACK/data framing, turnaround
// tracking and the line activation sequences

package gonrflink

import (
	"sync"
)

// LineDriver clocks raw SWD transactions over two GPIO lines. All
// methods that touch the wire are serialized through an internal
// mutex; one transaction is never interleaved with another.
type LineDriver struct {
	swclk  Pin
	swdio  Pin
	nreset Pin // optional, may be nil

	delayCycles int
	drivePhase  bool

	mu sync.Mutex
}

// NewLineDriver wires a driver to its pins. nreset may be nil when the
// reset line is not connected. delayCycles stretches every clock edge
// by busy-spinning, zero is full speed.
func NewLineDriver(swclk, swdio, nreset Pin, delayCycles int) *LineDriver {
	d := &LineDriver{
		swclk:       swclk,
		swdio:       swdio,
		nreset:      nreset,
		delayCycles: delayCycles,
	}

	d.swclk.Drive()
	d.swclk.Set(false)
	d.swdio.Drive()
	d.swdio.Set(true)
	d.drivePhase = true

	if d.nreset != nil {
		d.nreset.Drive()
		d.nreset.Set(true)
	}

	return d
}

// HasResetPin reports whether the nRESET line is wired.
func (d *LineDriver) HasResetPin() bool {
	return d.nreset != nil
}

func (d *LineDriver) delay() {
	for i := 0; i < d.delayCycles; i++ {
	}
}

func (d *LineDriver) clockPulse() {
	d.swclk.Set(true)
	d.delay()
	d.swclk.Set(false)
	d.delay()
}

// turnaround inserts the single-cycle ownership handover of the data
// line. The line is released and pulled high during the cycle; when
// handing over to the host the line is re-driven afterwards.
func (d *LineDriver) turnaround(toWrite bool) {
	d.swdio.Set(true)
	d.swdio.Release()
	d.clockPulse()
	if toWrite {
		d.swdio.Drive()
	}
	d.drivePhase = toWrite
}

// writeBits clocks out count bits of value, LSB first.
func (d *LineDriver) writeBits(value uint32, count uint8) {
	if !d.drivePhase {
		d.turnaround(true)
	}

	for ; count > 0; count-- {
		d.swdio.Set(value&1 != 0)
		d.clockPulse()
		value >>= 1
	}
}

// readBits samples count bits from the line, LSB first.
func (d *LineDriver) readBits(count uint8) uint32 {
	if d.drivePhase {
		d.turnaround(false)
	}

	var result uint32 = 0
	var bit uint32 = 1

	for ; count > 0; count-- {
		if d.swdio.Get() {
			result |= bit
		}
		d.clockPulse()
		bit <<= 1
	}

	return result
}

// sendRequest frames the eight bit request: start, APnDP, RnW, A[2:3],
// parity, stop, park.
func (d *LineDriver) sendRequest(addr uint8, ap bool, read bool) {
	var request uint32 = 0x81 // start and park bits

	if ap {
		request |= 1 << 1
	}
	if read {
		request |= 1 << 2
	}

	request |= uint32(addr&0x0C) << 1

	parity := ap != read // XOR chain over the four payload bits
	if (addr>>2)&1 == 1 {
		parity = !parity
	}
	if (addr>>3)&1 == 1 {
		parity = !parity
	}
	if parity {
		request |= 1 << 5
	}

	d.writeBits(request, 8)
}

func (d *LineDriver) writeParking() {
	if !d.drivePhase {
		d.turnaround(true)
	}
	d.swdio.Set(false)
	d.clockPulse()
}

// lineReset holds the data line high for more than 50 clocks, then one
// cycle low.
func (d *LineDriver) lineReset() {
	d.swdio.Drive()
	d.drivePhase = true
	d.swdio.Set(true)
	for i := 0; i < 60; i++ {
		d.clockPulse()
	}
	d.swdio.Set(false)
	d.clockPulse()
}

// LineReset leaves the target's SW-DP in the reset state.
func (d *LineDriver) LineReset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lineReset()
}

// jtagToSwd clocks the 16 bit selection sequence, LSB first, followed
// by another line reset.
func (d *LineDriver) jtagToSwd() {
	d.swdio.Drive()
	d.drivePhase = true

	const sequence = 0xE79E
	for i := 0; i < 16; i++ {
		d.swdio.Set(sequence&(1<<uint(i)) != 0)
		d.clockPulse()
	}

	d.lineReset()
}

// JtagToSwd switches a target whose DAP boots in JTAG mode over to SWD.
func (d *LineDriver) JtagToSwd() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lineReset()
	d.jtagToSwd()
}

// dormantWakeup clocks the selection alert sequence that brings a
// dormant SW-DP back to life: eight cycles high, the 128 bit alert,
// four cycles low, the SWD activation code, then a line reset. Alert
// words and the activation code go out MSB first.
func (d *LineDriver) dormantWakeup() {
	d.swdio.Drive()
	d.drivePhase = true

	d.swdio.Set(true)
	for i := 0; i < 8; i++ {
		d.clockPulse()
	}

	alert := [4]uint32{0x49CF9046, 0xA9B4A161, 0x97F5BBC7, 0x45703D98}

	for _, word := range alert {
		for b := 31; b >= 0; b-- {
			d.swdio.Set(word&(1<<uint(b)) != 0)
			d.clockPulse()
		}
	}

	d.swdio.Set(false)
	for i := 0; i < 4; i++ {
		d.clockPulse()
	}

	const activation = 0x58
	for b := 7; b >= 0; b-- {
		d.swdio.Set(activation&(1<<uint(b)) != 0)
		d.clockPulse()
	}

	d.lineReset()
}

// DormantWakeup runs the full dormant-to-SWD activation sequence.
func (d *LineDriver) DormantWakeup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dormantWakeup()
}

// TransferRaw performs one SWD transaction and returns the raw line
// acknowledge. On AckOK with read set, *data receives the payload; on
// AckOK with read clear, *data is written to the target. A read whose
// parity check fails is reported as AckFault. On WAIT and FAULT the
// driver clocks out 32 dummy bits so the target's transaction engine
// stays in sync.
func (d *LineDriver) TransferRaw(addr uint8, ap bool, read bool, data *uint32) SwdAck {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sendRequest(addr, ap, read)

	ack := SwdAck(d.readBits(3))

	if ack == AckOK {
		if read {
			value := d.readBits(32)
			parityBit := d.readBits(1)

			d.turnaround(true)
			d.writeParking()

			if (parityBit == 1) != parity32(value) {
				logger.Warn("parity error on SWD read")
				return AckFault
			}

			*data = value
		} else {
			d.turnaround(true)

			d.writeBits(*data, 32)
			if parity32(*data) {
				d.writeBits(1, 1)
			} else {
				d.writeBits(0, 1)
			}
			d.writeParking()
		}
	} else {
		d.turnaround(true)
		d.writeBits(0, 32)
		d.writeParking()
	}

	return ack
}
