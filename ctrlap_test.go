// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import (
	"testing"
)

func TestFindCtrlApScan(t *testing.T) {
	sim, session := newSimSession(t)
	sim.addCtrlAp(2, 0x12880042)

	if apsel := session.findCtrlAp(); apsel != 2 {
		t.Errorf("findCtrlAp = %d, want 2", apsel)
	}
}

func TestFindCtrlApFallback(t *testing.T) {
	_, session := newSimSession(t)

	// No AP in the scan range carries a Nordic IDR.
	if apsel := session.findCtrlAp(); apsel != 1 {
		t.Errorf("findCtrlAp = %d, want fallback 1", apsel)
	}
}

func TestCtrlApMassErase(t *testing.T) {
	sim, session := newSimSession(t)
	sim.addCtrlAp(1, 0x02880019)

	var resetWrites []uint32
	sim.onCtrlAp = func(apsel uint8, reg uint8, value uint32) {
		switch reg {
		case ctrlApReset:
			resetWrites = append(resetWrites, value)
		case ctrlApEraseAll:
			if value != 1 {
				return
			}
			for _, addr := range []uint32{0, 0x1000, 0x26000, Nrf52FlashSize - 4} {
				sim.mem[addr] = FlashErasedWord
			}
			sim.mem[uicrAPPROTECT] = FlashErasedWord
		}
	}

	if err := session.CtrlApMassErase(); err != nil {
		t.Fatalf("CtrlApMassErase: %v", err)
	}

	// The core is held in reset over the erase and released afterwards.
	if len(resetWrites) != 2 || resetWrites[0] != 1 || resetWrites[1] != 0 {
		t.Errorf("RESET writes = %v, want [1 0]", resetWrites)
	}
	if sim.ctrlRegs[1][ctrlApReset] != 0 {
		t.Errorf("RESET left at %d", sim.ctrlRegs[1][ctrlApReset])
	}
	if !session.IsConnected() {
		t.Error("session not re-established after unlock")
	}
}

func TestCtrlApMassEraseVerifyFailure(t *testing.T) {
	sim, session := newSimSession(t)
	sim.addCtrlAp(1, 0x02880019)

	// ERASEALL "completes" but flash still reads programmed.
	sim.mem[0x1000] = 0x12345678

	err := session.CtrlApMassErase()
	fe, ok := err.(*FlashError)
	if !ok {
		t.Fatalf("err = %v, want *FlashError", err)
	}
	if fe.Phase != FlashPhaseVerify {
		t.Errorf("phase = %s, want verify", fe.Phase)
	}
}
