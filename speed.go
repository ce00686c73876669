// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import (
	"time"
)

/* SWD clock speed */
type speedMap struct {
	khz         int
	delayCycles int
}

// delay cycles per clock phase against the rate they land at on a
// memory-mapped GPIO bank. USB-bridged banks are dominated by the
// per-edge round-trip and stay far below these numbers anyway.
var khzToDelayMapSwd = [...]speedMap{
	{4000, 0}, /* default */
	{1800, 1},
	{1200, 2},
	{950, 3},
	{480, 7},
	{240, 15},
	{125, 31},
	{100, 40},
	{50, 79},
	{25, 158},
	{15, 265},
	{5, 798},
}

// matchSpeedMap picks the fastest table entry at or below khz.
func matchSpeedMap(khz int) speedMap {
	for _, entry := range khzToDelayMapSwd {
		if entry.khz <= khz {
			return entry
		}
	}

	last := khzToDelayMapSwd[len(khzToDelayMapSwd)-1]
	logger.Warnf("no table entry at or below %d kHz, using %d kHz", khz, last.khz)
	return last
}

// SetSpeed reconfigures the inter-edge delay for a requested SWD clock
// and returns the table rate that was selected. The nRF52's SWD
// interface is specified well above all table entries, so any entry is
// safe for that family.
func (d *LineDriver) SetSpeed(khz int) int {
	entry := matchSpeedMap(khz)

	d.mu.Lock()
	d.delayCycles = entry.delayCycles
	d.mu.Unlock()

	logger.Debugf("SWD clock set to %d kHz (delay %d)", entry.khz, entry.delayCycles)
	return entry.khz
}

// MeasureClockKhz times a burst of idle clock pulses and reports the
// achieved rate. The burst drives SWDIO high throughout, which the
// target reads as line-reset idling, so measure before Connect.
func (d *LineDriver) MeasureClockKhz() int {
	const pulses = 1000

	d.mu.Lock()
	defer d.mu.Unlock()

	d.swdio.Drive()
	d.swdio.Set(true)
	d.drivePhase = true

	start := time.Now()
	for i := 0; i < pulses; i++ {
		d.clockPulse()
	}
	elapsed := time.Since(start)

	d.lineReset()

	if elapsed <= 0 {
		return 0
	}
	return int(float64(pulses) / elapsed.Seconds() / 1000)
}
