// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// DP/AP register access with the retry and sticky-error policy on top
// of the raw line driver

package gonrflink

import (
	"fmt"
	"time"
)

func ackError(op string, addr uint8, ack SwdAck) error {
	switch ack {
	case AckWait:
		return NewSwdError(fmt.Sprintf("%s addr=0x%02x stuck in WAIT", op, addr), ErrorBusWait)
	case AckFault:
		return NewSwdError(fmt.Sprintf("%s addr=0x%02x faulted", op, addr), ErrorBusFault)
	default:
		return NewSwdError(fmt.Sprintf("%s addr=0x%02x bad ack 0x%x", op, addr, uint8(ack)), ErrorProtocol)
	}
}

// ClearStickyErrors writes the DP ABORT register to clear the sticky
// error and overrun flags. A FAULT during the ABORT write itself is
// not recoverable, so this path retries WAIT only.
func (d *LineDriver) ClearStickyErrors() error {
	data := uint32(dpAbortClearAll)

	var ack SwdAck
	for retry := 0; retry < dapRetryCount; retry++ {
		ack = d.TransferRaw(dpABORT, false, false, &data)
		if ack == AckOK {
			return nil
		}
		if ack == AckWait {
			time.Sleep(time.Millisecond)
			continue
		}
		break
	}

	return ackError("DP ABORT write", dpABORT, ack)
}

// DpRead reads a debug port register.
func (d *LineDriver) DpRead(addr uint8) (uint32, error) {
	var data uint32
	var ack SwdAck

	for retry := 0; retry < dapRetryCount; retry++ {
		ack = d.TransferRaw(addr, false, true, &data)

		switch ack {
		case AckOK:
			return data, nil
		case AckWait:
			time.Sleep(time.Millisecond)
		case AckFault:
			d.ClearStickyErrors()
		}
	}

	logger.Errorf("DP read failed: addr=0x%02x", addr)
	return 0, ackError("DP read", addr, ack)
}

// DpWrite writes a debug port register.
func (d *LineDriver) DpWrite(addr uint8, data uint32) error {
	var ack SwdAck

	for retry := 0; retry < dapRetryCount; retry++ {
		ack = d.TransferRaw(addr, false, false, &data)

		switch ack {
		case AckOK:
			return nil
		case AckWait:
			time.Sleep(time.Millisecond)
		case AckFault:
			d.ClearStickyErrors()
		}
	}

	logger.Errorf("DP write failed: addr=0x%02x data=0x%08x", addr, data)
	return ackError("DP write", addr, ack)
}

// ApRead reads an access port register. AP reads are posted, so the
// acknowledged transfer only primes the result; the value is collected
// through DP RDBUFF.
func (d *LineDriver) ApRead(addr uint8) (uint32, error) {
	var data uint32
	var ack SwdAck

	for retry := 0; retry < dapRetryCount; retry++ {
		ack = d.TransferRaw(addr, true, true, &data)

		switch ack {
		case AckOK:
			return d.DpRead(dpRDBUFF)
		case AckWait:
			time.Sleep(time.Millisecond)
		case AckFault:
			d.ClearStickyErrors()
		}
	}

	logger.Errorf("AP read failed: addr=0x%02x", addr)
	return 0, ackError("AP read", addr, ack)
}

// ApWrite writes an access port register.
func (d *LineDriver) ApWrite(addr uint8, data uint32) error {
	var ack SwdAck

	for retry := 0; retry < dapRetryCount; retry++ {
		ack = d.TransferRaw(addr, true, false, &data)

		switch ack {
		case AckOK:
			return nil
		case AckWait:
			time.Sleep(time.Millisecond)
		case AckFault:
			d.ClearStickyErrors()
		}
	}

	logger.Errorf("AP write failed: addr=0x%02x data=0x%08x", addr, data)
	return ackError("AP write", addr, ack)
}

// SelectAp routes subsequent AP transactions: APSEL in [31:24],
// APBANKSEL in [7:4], DPBANKSEL in [3:0].
func (d *LineDriver) SelectAp(apsel uint8, apbank uint8, dpbank uint8) error {
	value := uint32(apsel)<<24 | uint32(apbank&0xF)<<4 | uint32(dpbank&0xF)
	return d.DpWrite(dpSELECT, value)
}
