// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import (
	"testing"
)

func TestMatchSpeedMap(t *testing.T) {
	cases := []struct {
		khz       int
		wantKhz   int
		wantDelay int
	}{
		{10000, 4000, 0},
		{4000, 4000, 0},
		{2000, 1800, 1},
		{1800, 1800, 1},
		{1000, 950, 3},
		{100, 100, 40},
		{5, 5, 798},
		{3, 5, 798}, // below the table, clamps to the slowest entry
	}

	for _, c := range cases {
		entry := matchSpeedMap(c.khz)
		if entry.khz != c.wantKhz || entry.delayCycles != c.wantDelay {
			t.Errorf("matchSpeedMap(%d) = {%d, %d}, want {%d, %d}",
				c.khz, entry.khz, entry.delayCycles, c.wantKhz, c.wantDelay)
		}
	}
}

func TestSetSpeed(t *testing.T) {
	_, driver := newSimDriver(t)

	if got := driver.SetSpeed(2000); got != 1800 {
		t.Errorf("SetSpeed(2000) = %d, want 1800", got)
	}
	if driver.delayCycles != 1 {
		t.Errorf("delayCycles = %d, want 1", driver.delayCycles)
	}
}

func TestSetSpeedThenConnect(t *testing.T) {
	_, driver := newSimDriver(t)
	driver.SetSpeed(4000)

	session := NewSession(driver)
	if err := session.Connect(); err != nil {
		t.Fatalf("Connect after SetSpeed: %v", err)
	}
}

func TestMeasureClockKhz(t *testing.T) {
	_, driver := newSimDriver(t)

	khz := driver.MeasureClockKhz()
	if khz <= 0 {
		t.Errorf("MeasureClockKhz = %d, want > 0", khz)
	}

	// The measurement burst must leave the line in a state a fresh
	// connect can recover from.
	session := NewSession(driver)
	if err := session.Connect(); err != nil {
		t.Fatalf("Connect after measurement: %v", err)
	}
}
