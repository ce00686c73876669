// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import (
	"testing"
)

// newFlashSession connects a session against a model whose NVMC reports
// ready, which is the idle state of real silicon.
func newFlashSession(t *testing.T) (*swdSim, *Session) {
	t.Helper()
	sim, session := newSimSession(t)
	sim.mem[nvmcREADY] = 1
	return sim, session
}

// eraseOnPageErase mimics the NVMC page erase: every word the erase
// verification samples reads back erased afterwards.
func eraseOnPageErase(sim *swdSim, erased *[]uint32) {
	sim.onMemWrite = func(addr, value uint32) {
		if addr != nvmcERASEPAGE {
			return
		}
		*erased = append(*erased, value)
		for _, off := range []uint32{0, 4, 8, Nrf52FlashPageSize - 4} {
			sim.mem[value+off] = FlashErasedWord
		}
	}
}

func TestErasePage(t *testing.T) {
	sim, session := newFlashSession(t)

	var erased []uint32
	eraseOnPageErase(sim, &erased)

	sim.mem[0x2000] = 0xDEADBEEF

	if err := session.ErasePage(0x2ABC); err != nil {
		t.Fatalf("ErasePage: %v", err)
	}

	if len(erased) != 1 || erased[0] != 0x2000 {
		t.Errorf("erased pages = %v, want [0x2000]", erased)
	}
	if sim.mem[nvmcCONFIG] != nvmcConfigREN {
		t.Errorf("CONFIG = %d after erase, want REN", sim.mem[nvmcCONFIG])
	}
}

func TestErasePageBeyondFlash(t *testing.T) {
	_, session := newFlashSession(t)

	err := session.ErasePage(Nrf52FlashSize)
	if SwdCodeOf(err) != ErrorInvalidArgument {
		t.Errorf("code = %d, want ErrorInvalidArgument", SwdCodeOf(err))
	}
}

func TestErasePageVerifyFailure(t *testing.T) {
	sim, session := newFlashSession(t)

	// No erase effect modeled, the page keeps its old contents and
	// never reads back erased.
	sim.mem[0x3000] = 0x12345678

	err := session.ErasePage(0x3000)
	fe, ok := err.(*FlashError)
	if !ok {
		t.Fatalf("err = %v, want *FlashError", err)
	}
	if fe.Phase != FlashPhaseVerify {
		t.Errorf("phase = %s, want verify", fe.Phase)
	}
}

func TestWriteFlashWord(t *testing.T) {
	sim, session := newFlashSession(t)

	if err := session.WriteFlashWord(0x6000, 0xCAFED00D); err != nil {
		t.Fatalf("WriteFlashWord: %v", err)
	}
	if sim.mem[0x6000] != 0xCAFED00D {
		t.Errorf("mem[0x6000] = 0x%08x, want 0xcafed00d", sim.mem[0x6000])
	}
	if sim.mem[nvmcCONFIG] != nvmcConfigREN {
		t.Errorf("CONFIG = %d after write, want REN", sim.mem[nvmcCONFIG])
	}

	if err := session.WriteFlashWord(0x6002, 0); SwdCodeOf(err) != ErrorInvalidArgument {
		t.Errorf("unaligned code = %d, want ErrorInvalidArgument", SwdCodeOf(err))
	}
}

func TestProgramBufferUnalignedEnds(t *testing.T) {
	sim, session := newFlashSession(t)

	for addr := uint32(0x4000); addr <= 0x400C; addr += 4 {
		sim.mem[addr] = FlashErasedWord
	}

	data := make([]byte, 11)
	for i := range data {
		data[i] = byte(0x10 + i)
	}

	if err := session.ProgramBuffer(0x4002, data); err != nil {
		t.Fatalf("ProgramBuffer: %v", err)
	}

	want := map[uint32]uint32{
		0x4000: 0x1110FFFF, // prefix patched into the erased word
		0x4004: 0x15141312,
		0x4008: 0x19181716,
		0x400C: 0xFFFFFF1A, // tail patched into the erased word
	}
	for addr, value := range want {
		if sim.mem[addr] != value {
			t.Errorf("mem[0x%08x] = 0x%08x, want 0x%08x", addr, sim.mem[addr], value)
		}
	}
}

func TestProgramBufferAligned(t *testing.T) {
	sim, session := newFlashSession(t)

	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}

	if err := session.ProgramBuffer(0x8000, data); err != nil {
		t.Fatalf("ProgramBuffer: %v", err)
	}

	for i := 0; i < len(data); i += 4 {
		want := le_to_h_u32(data[i:])
		addr := uint32(0x8000 + i)
		if sim.mem[addr] != want {
			t.Fatalf("mem[0x%08x] = 0x%08x, want 0x%08x", addr, sim.mem[addr], want)
		}
	}
}

func TestProgramBufferPrefixNotErased(t *testing.T) {
	sim, session := newFlashSession(t)

	sim.mem[0x5000] = 0 // already programmed

	err := session.ProgramBuffer(0x5002, []byte{1, 2, 3, 4})
	fe, ok := err.(*FlashError)
	if !ok {
		t.Fatalf("err = %v, want *FlashError", err)
	}
	if fe.Phase != FlashPhaseProgram {
		t.Errorf("phase = %s, want program", fe.Phase)
	}
}

func TestProgramBufferRangeChecks(t *testing.T) {
	sim, session := newFlashSession(t)

	if err := session.ProgramBuffer(0x1000, nil); SwdCodeOf(err) != ErrorInvalidArgument {
		t.Errorf("empty buffer code = %d, want ErrorInvalidArgument", SwdCodeOf(err))
	}
	if err := session.ProgramBuffer(Nrf52FlashSize-2, []byte{1, 2, 3, 4}); SwdCodeOf(err) != ErrorInvalidArgument {
		t.Errorf("overrun code = %d, want ErrorInvalidArgument", SwdCodeOf(err))
	}

	// UICR sits outside code flash but is programmable.
	sim.mem[uicrBase] = FlashErasedWord
	if err := session.ProgramBuffer(uicrBase, []byte{0x5A, 0, 0, 0}); err != nil {
		t.Fatalf("UICR program: %v", err)
	}
	if sim.mem[uicrBase] != 0x5A {
		t.Errorf("UICR word = 0x%08x, want 0x5a", sim.mem[uicrBase])
	}
}

func TestNvmcMassErase(t *testing.T) {
	sim, session := newFlashSession(t)

	var eraseAll int
	sim.onMemWrite = func(addr, value uint32) {
		if addr == nvmcERASEALL && value == 1 {
			eraseAll++
		}
	}

	if err := session.NvmcMassErase(); err != nil {
		t.Fatalf("NvmcMassErase: %v", err)
	}
	if eraseAll != 1 {
		t.Errorf("ERASEALL written %d times, want 1", eraseAll)
	}
	if sim.mem[nvmcCONFIG] != nvmcConfigREN {
		t.Errorf("CONFIG = %d after erase, want REN", sim.mem[nvmcCONFIG])
	}
}

func TestNvmcModeRejected(t *testing.T) {
	sim, session := newFlashSession(t)

	// A protected NVMC ignores CONFIG writes.
	sim.onMemWrite = func(addr, value uint32) {
		if addr == nvmcCONFIG {
			sim.mem[nvmcCONFIG] = 0
		}
	}

	err := session.WriteFlashWord(0x1000, 0x11223344)
	fe, ok := err.(*FlashError)
	if !ok {
		t.Fatalf("err = %v, want *FlashError", err)
	}
	if fe.Phase != FlashPhaseConfig {
		t.Errorf("phase = %s, want config", fe.Phase)
	}
}

func TestReadApprotect(t *testing.T) {
	sim, session := newFlashSession(t)

	cases := []struct {
		value uint32
		want  ApprotectStatus
	}{
		{approtectHwDisabled, ApprotectHwDisabled},
		{approtectErasedEnabled, ApprotectErased},
		{0x00000000, ApprotectEnabled},
		{0x5A5A5A5A, ApprotectEnabled},
	}

	for _, c := range cases {
		sim.mem[uicrAPPROTECT] = c.value
		status, raw, err := session.ReadApprotect()
		if err != nil {
			t.Fatalf("ReadApprotect(0x%08x): %v", c.value, err)
		}
		if status != c.want || raw != c.value {
			t.Errorf("ReadApprotect(0x%08x) = %s/0x%08x, want %s", c.value, status, raw, c.want)
		}
	}
}

func TestDisableApprotect(t *testing.T) {
	sim, session := newFlashSession(t)

	sim.mem[uicrAPPROTECT] = approtectErasedEnabled

	var eraseAll int
	sim.onMemWrite = func(addr, value uint32) {
		if addr == nvmcERASEALL && value == 1 {
			eraseAll++
		}
	}

	if err := session.DisableApprotect(); err != nil {
		t.Fatalf("DisableApprotect: %v", err)
	}

	if eraseAll != 1 {
		t.Errorf("ERASEALL written %d times, want 1", eraseAll)
	}
	if sim.mem[uicrAPPROTECT] != approtectHwDisabled {
		t.Errorf("APPROTECT = 0x%08x, want HwDisabled", sim.mem[uicrAPPROTECT])
	}
	if !session.IsConnected() {
		t.Error("not connected after APPROTECT flow")
	}
}

func TestDisableApprotectAlreadyDisabled(t *testing.T) {
	sim, session := newFlashSession(t)

	sim.mem[uicrAPPROTECT] = approtectHwDisabled

	var eraseAll int
	sim.onMemWrite = func(addr, value uint32) {
		if addr == nvmcERASEALL {
			eraseAll++
		}
	}

	if err := session.DisableApprotect(); err != nil {
		t.Fatalf("DisableApprotect: %v", err)
	}
	if eraseAll != 0 {
		t.Error("ERASEALL issued although APPROTECT was already disabled")
	}
}
