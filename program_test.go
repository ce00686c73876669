// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import (
	"strings"
	"testing"
)

func TestImageKindBaseAddr(t *testing.T) {
	cases := []struct {
		kind ImageKind
		want uint32
	}{
		{ImageFull, BaseAddrFull},
		{ImageSoftDevice, BaseAddrSoftDevice},
		{ImageApp, BaseAddrApp},
		{ImageBootloader, BaseAddrBootloader},
	}
	for _, c := range cases {
		base, err := c.kind.BaseAddr()
		if err != nil {
			t.Fatalf("BaseAddr(%s): %v", c.kind, err)
		}
		if base != c.want {
			t.Errorf("BaseAddr(%s) = 0x%x, want 0x%x", c.kind, base, c.want)
		}
	}

	if _, err := ImageKind("flubber").BaseAddr(); SwdCodeOf(err) != ErrorInvalidArgument {
		t.Errorf("unknown kind code = %d, want ErrorInvalidArgument", SwdCodeOf(err))
	}
}

func TestFlashHex(t *testing.T) {
	sim, session := newFlashSession(t)

	var erased []uint32
	eraseOnPageErase(sim, &erased)

	image := strings.Join([]string{
		hexRecord(0x0000, 0x00, []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}),
		hexRecord(0x0008, 0x00, []byte{0x99, 0xAA, 0xBB, 0xCC}),
		hexEOF,
	}, "\n") + "\n"

	programmer := NewProgrammer(session)
	if err := programmer.FlashHex(strings.NewReader(image), ImageApp, int64(len(image))); err != nil {
		t.Fatalf("FlashHex: %v", err)
	}

	if len(erased) != 1 || erased[0] != BaseAddrApp {
		t.Errorf("erased pages = %v, want [0x26000]", erased)
	}

	want := map[uint32]uint32{
		BaseAddrApp:     0x44332211,
		BaseAddrApp + 4: 0x88776655,
		BaseAddrApp + 8: 0xCCBBAA99,
	}
	for addr, value := range want {
		if sim.mem[addr] != value {
			t.Errorf("mem[0x%08x] = 0x%08x, want 0x%08x", addr, sim.mem[addr], value)
		}
	}

	progress := programmer.Progress()
	if progress.InProgress {
		t.Error("InProgress still set after upload")
	}
	if progress.Flashed != 12 {
		t.Errorf("Flashed = %d, want 12", progress.Flashed)
	}
	if progress.Received != uint32(len(image)) {
		t.Errorf("Received = %d, want %d", progress.Received, len(image))
	}
	if progress.Total != uint32(len(image)) {
		t.Errorf("Total = %d, want %d", progress.Total, len(image))
	}
	if progress.Message != "Success: Flashed 12 bytes" {
		t.Errorf("Message = %q", progress.Message)
	}
}

func TestFlashHexNotConnected(t *testing.T) {
	sim, driver := newSimDriver(t)
	sim.idcode = 0

	session := NewSession(driver)
	session.Connect()

	programmer := NewProgrammer(session)
	err := programmer.FlashHex(strings.NewReader(hexEOF+"\n"), ImageFull, 0)
	if SwdCodeOf(err) != ErrorInvalidState {
		t.Errorf("code = %d, want ErrorInvalidState", SwdCodeOf(err))
	}
}

func TestFlashHexUnknownKind(t *testing.T) {
	_, session := newFlashSession(t)

	programmer := NewProgrammer(session)
	err := programmer.FlashHex(strings.NewReader(hexEOF+"\n"), ImageKind("tape"), 0)
	if SwdCodeOf(err) != ErrorInvalidArgument {
		t.Errorf("code = %d, want ErrorInvalidArgument", SwdCodeOf(err))
	}
}

func TestFlashHexRejectsConcurrentUpload(t *testing.T) {
	_, session := newFlashSession(t)

	programmer := NewProgrammer(session)
	programmer.progress.InProgress = true

	err := programmer.FlashHex(strings.NewReader(hexEOF+"\n"), ImageFull, 0)
	if SwdCodeOf(err) != ErrorInvalidState {
		t.Errorf("code = %d, want ErrorInvalidState", SwdCodeOf(err))
	}
}

func TestFlashHexBadStream(t *testing.T) {
	_, session := newFlashSession(t)

	programmer := NewProgrammer(session)
	err := programmer.FlashHex(strings.NewReader(":0000\n"), ImageFull, 5)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if _, ok := err.(*HexError); !ok {
		t.Errorf("err = %T, want *HexError", err)
	}

	progress := programmer.Progress()
	if progress.InProgress {
		t.Error("InProgress still set after failed upload")
	}
	if progress.Message == "" {
		t.Error("failure left no progress message")
	}
}
