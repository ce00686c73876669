// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import (
	"testing"
)

func TestHaltCore(t *testing.T) {
	sim, session := newSimSession(t)

	if err := session.HaltCore(); err != nil {
		t.Fatalf("HaltCore: %v", err)
	}

	if sim.mem[scsDHCSR]&dhcsrSHALT == 0 {
		t.Errorf("DHCSR = 0x%08x, S_HALT not set", sim.mem[scsDHCSR])
	}

	halted, err := session.CoreHalted()
	if err != nil {
		t.Fatalf("CoreHalted: %v", err)
	}
	if !halted {
		t.Error("CoreHalted = false after HaltCore")
	}
}

func TestHaltCoreTimeout(t *testing.T) {
	sim, session := newSimSession(t)

	// A core that never acknowledges the halt request.
	sim.onMemWrite = func(addr, value uint32) {
		if addr == scsDHCSR {
			sim.mem[scsDHCSR] = value & 0xFFFF &^ dhcsrSHALT
		}
	}

	err := session.HaltCore()
	if err == nil {
		t.Fatal("expected halt timeout")
	}
	if SwdCodeOf(err) != ErrorPowerUpTimeout {
		t.Errorf("code = %d, want ErrorPowerUpTimeout", SwdCodeOf(err))
	}
}

func TestResumeCore(t *testing.T) {
	_, session := newSimSession(t)

	if err := session.HaltCore(); err != nil {
		t.Fatalf("HaltCore: %v", err)
	}
	if err := session.ResumeCore(); err != nil {
		t.Fatalf("ResumeCore: %v", err)
	}

	halted, err := session.CoreHalted()
	if err != nil {
		t.Fatalf("CoreHalted: %v", err)
	}
	if halted {
		t.Error("CoreHalted = true after ResumeCore")
	}
}

func TestSysResetRequest(t *testing.T) {
	sim, session := newSimSession(t)

	if err := session.SysResetRequest(); err != nil {
		t.Fatalf("SysResetRequest: %v", err)
	}

	want := uint32(aircrVECTKEY | aircrSYSRESETREQ)
	if sim.mem[scsAIRCR] != want {
		t.Errorf("AIRCR = 0x%08x, want 0x%08x", sim.mem[scsAIRCR], want)
	}
}

func TestDebugRequiresConnection(t *testing.T) {
	_, driver := newSimDriver(t)
	session := NewSession(driver)

	if err := session.HaltCore(); SwdCodeOf(err) != ErrorInvalidState {
		t.Errorf("HaltCore code = %d, want ErrorInvalidState", SwdCodeOf(err))
	}
	if err := session.SysResetRequest(); SwdCodeOf(err) != ErrorInvalidState {
		t.Errorf("SysResetRequest code = %d, want ErrorInvalidState", SwdCodeOf(err))
	}
}
