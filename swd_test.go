// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import (
	"testing"
)

func newSimDriver(t *testing.T) (*swdSim, *LineDriver) {
	t.Helper()
	sim := newSwdSim()
	clk, dio := sim.pins()
	return sim, NewLineDriver(clk, dio, nil, 0)
}

func TestTransferRawReadIdcode(t *testing.T) {
	sim, driver := newSimDriver(t)
	sim.idcode = 0x2ba01477

	var data uint32
	ack := driver.TransferRaw(dpIDCODE, false, true, &data)

	if ack != AckOK {
		t.Fatalf("ack = %v, want OK", ack)
	}
	if data != 0x2ba01477 {
		t.Errorf("idcode = 0x%08x, want 0x2ba01477", data)
	}
}

func TestTransferRawWrite(t *testing.T) {
	sim, driver := newSimDriver(t)

	data := uint32(0x01000000)
	ack := driver.TransferRaw(dpSELECT, false, false, &data)

	if ack != AckOK {
		t.Fatalf("ack = %v, want OK", ack)
	}
	if sim.selectReg != 0x01000000 {
		t.Errorf("SELECT = 0x%08x, want 0x01000000", sim.selectReg)
	}
}

func TestTransferRawWriteAllOnes(t *testing.T) {
	sim, driver := newSimDriver(t)

	data := uint32(0xffffffff)
	if ack := driver.TransferRaw(dpSELECT, false, false, &data); ack != AckOK {
		t.Fatalf("ack = %v, want OK", ack)
	}
	if sim.selectReg != 0xffffffff {
		t.Errorf("SELECT = 0x%08x, want 0xffffffff", sim.selectReg)
	}

	// The long run of ones must not be mistaken for a line reset.
	var idcode uint32
	if ack := driver.TransferRaw(dpIDCODE, false, true, &idcode); ack != AckOK {
		t.Fatalf("follow-up read ack = %v, want OK", ack)
	}
}

func TestTransferRawWaitAndFault(t *testing.T) {
	sim, driver := newSimDriver(t)
	sim.forcedAcks = []SwdAck{AckWait, AckFault}

	var data uint32
	if ack := driver.TransferRaw(dpIDCODE, false, true, &data); ack != AckWait {
		t.Fatalf("ack = %v, want WAIT", ack)
	}
	if ack := driver.TransferRaw(dpIDCODE, false, true, &data); ack != AckFault {
		t.Fatalf("ack = %v, want FAULT", ack)
	}

	// The dummy bits after the error must leave the target in sync.
	if ack := driver.TransferRaw(dpIDCODE, false, true, &data); ack != AckOK {
		t.Fatalf("recovery read ack = %v, want OK", ack)
	}
	if data != sim.idcode {
		t.Errorf("idcode = 0x%08x, want 0x%08x", data, sim.idcode)
	}
}

func TestTransferRawParityError(t *testing.T) {
	sim, driver := newSimDriver(t)
	sim.corruptParity = true

	var data uint32
	if ack := driver.TransferRaw(dpIDCODE, false, true, &data); ack != AckFault {
		t.Fatalf("ack = %v, want FAULT on parity mismatch", ack)
	}

	if ack := driver.TransferRaw(dpIDCODE, false, true, &data); ack != AckOK {
		t.Fatalf("follow-up read ack = %v, want OK", ack)
	}
}

func TestLineResetResynchronizes(t *testing.T) {
	sim, driver := newSimDriver(t)

	// Knock the model out of sync with a half request.
	driver.writeBits(0x81, 4)

	driver.LineReset()

	var data uint32
	if ack := driver.TransferRaw(dpIDCODE, false, true, &data); ack != AckOK {
		t.Fatalf("post-reset read ack = %v, want OK", ack)
	}
	if data != sim.idcode {
		t.Errorf("idcode = 0x%08x, want 0x%08x", data, sim.idcode)
	}
}

func TestActivationSequencesEndSynced(t *testing.T) {
	for _, tc := range []struct {
		name     string
		activate func(d *LineDriver)
	}{
		{"jtag-to-swd", func(d *LineDriver) { d.JtagToSwd() }},
		{"dormant", func(d *LineDriver) { d.DormantWakeup() }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sim, driver := newSimDriver(t)
			tc.activate(driver)

			var data uint32
			if ack := driver.TransferRaw(dpIDCODE, false, true, &data); ack != AckOK {
				t.Fatalf("ack = %v, want OK", ack)
			}
			if data != sim.idcode {
				t.Errorf("idcode = 0x%08x, want 0x%08x", data, sim.idcode)
			}
		})
	}
}

func TestDapRetriesWait(t *testing.T) {
	sim, driver := newSimDriver(t)
	sim.forcedAcks = []SwdAck{AckWait, AckWait, AckWait}

	value, err := driver.DpRead(dpIDCODE)
	if err != nil {
		t.Fatalf("DpRead: %v", err)
	}
	if value != sim.idcode {
		t.Errorf("idcode = 0x%08x, want 0x%08x", value, sim.idcode)
	}
}

func TestDapFaultClearsSticky(t *testing.T) {
	sim, driver := newSimDriver(t)
	sim.forcedAcks = []SwdAck{AckFault}

	if _, err := driver.DpRead(dpIDCODE); err != nil {
		t.Fatalf("DpRead: %v", err)
	}

	found := false
	for _, w := range sim.abortWrites {
		if w == dpAbortClearAll {
			found = true
		}
	}
	if !found {
		t.Error("FAULT did not trigger an ABORT write")
	}
}

func TestDapWaitBudgetExhausted(t *testing.T) {
	sim, driver := newSimDriver(t)
	for i := 0; i < dapRetryCount+2; i++ {
		sim.forcedAcks = append(sim.forcedAcks, AckWait)
	}

	_, err := driver.DpRead(dpIDCODE)
	if err == nil {
		t.Fatal("expected error after retry budget")
	}
	if SwdCodeOf(err) != ErrorBusWait {
		t.Errorf("code = %d, want ErrorBusWait", SwdCodeOf(err))
	}
}

func TestApReadIsPosted(t *testing.T) {
	sim, driver := newSimDriver(t)
	sim.csw = 0x23000052

	if err := driver.SelectAp(0, 0, 0); err != nil {
		t.Fatalf("SelectAp: %v", err)
	}
	value, err := driver.ApRead(memApCSW)
	if err != nil {
		t.Fatalf("ApRead: %v", err)
	}
	if value != 0x23000052 {
		t.Errorf("CSW = 0x%08x, want 0x23000052", value)
	}
}

func TestParity32(t *testing.T) {
	cases := []struct {
		value uint32
		want  bool
	}{
		{0x00000000, false},
		{0x00000001, true},
		{0xffffffff, false},
		{0x2ba01477, false},
		{0x80000001, false},
	}
	for _, c := range cases {
		if got := parity32(c.value); got != c.want {
			t.Errorf("parity32(0x%08x) = %v, want %v", c.value, got, c.want)
		}
	}
}
