// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import (
	"testing"
)

func TestGetFamilyInfo(t *testing.T) {
	fam := GetFamilyInfo(0x52840)
	if fam == nil {
		t.Fatal("GetFamilyInfo(0x52840) = nil")
	}
	if fam.FlashKB != 1024 || fam.RamKB != 256 {
		t.Errorf("0x52840 = %d/%d KiB, want 1024/256", fam.FlashKB, fam.RamKB)
	}

	if GetFamilyInfo(0x51822) != nil {
		t.Error("GetFamilyInfo(0x51822) != nil for an unknown part")
	}
}

func TestRamBytes(t *testing.T) {
	cases := []struct {
		name string
		info PartInfo
		want uint32
	}{
		{"from FICR", PartInfo{Part: 0x52832, RamKB: 256}, 256 * 1024},
		{"family fallback", PartInfo{Part: 0x52840, RamKB: 0xFFFFFFFF}, 256 * 1024},
		{"unknown part", PartInfo{Part: 0x12345, RamKB: 0xFFFFFFFF}, 64 * 1024},
	}

	for _, c := range cases {
		if got := c.info.RamBytes(); got != c.want {
			t.Errorf("%s: RamBytes = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestReadPartInfoFamilyFallback(t *testing.T) {
	sim, session := newSimSession(t)

	// Early revisions ship with the INFO block unprogrammed.
	sim.mem[ficrInfoPART] = 0x52832
	sim.mem[ficrInfoVARIANT] = 0x41414141
	sim.mem[ficrInfoRAM] = 0xFFFFFFFF
	sim.mem[ficrInfoFLASH] = 0xFFFFFFFF
	sim.mem[ficrCODEPAGESIZE] = 4096
	sim.mem[ficrCODESIZE] = 128

	info, err := session.ReadPartInfo()
	if err != nil {
		t.Fatalf("ReadPartInfo: %v", err)
	}

	if info.FlashKB != 512 || info.RamKB != 64 {
		t.Errorf("geometry = %d/%d KiB, want 512/64 from the family table",
			info.FlashKB, info.RamKB)
	}
}
