// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import (
	"testing"
)

func TestDecodeIDCode(t *testing.T) {
	// The IDCODE every nRF52 reports.
	info := DecodeIDCode(0x2ba01477)

	if info.Version != 1 {
		t.Errorf("Version = %d, want 1", info.Version)
	}
	if info.Revision != 2 {
		t.Errorf("Revision = %d, want 2", info.Revision)
	}
	if info.PartNo != 0xBA {
		t.Errorf("PartNo = 0x%02x, want 0xba", info.PartNo)
	}
	if info.Min {
		t.Error("Min = true for a full SW-DP")
	}
	if info.Designer != jep106Arm {
		t.Errorf("Designer = 0x%03x, want 0x%03x", info.Designer, jep106Arm)
	}

	if got, want := info.String(), "SW-DP v1 rev 2 part 0xba ARM"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestDecodeIDCodeMinimalDp(t *testing.T) {
	idcode := uint32(1)<<28 | uint32(0xBD)<<20 | uint32(1)<<16 |
		uint32(2)<<12 | uint32(0x123)<<1 | 1
	info := DecodeIDCode(idcode)

	if !info.Min {
		t.Error("Min = false with the MINDP bit set")
	}
	if info.Designer != 0x123 {
		t.Errorf("Designer = 0x%03x, want 0x123", info.Designer)
	}

	if got, want := info.String(), "SW-DP v2 MINDP rev 1 part 0xbd designer 0x123"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
