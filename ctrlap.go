// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Nordic CTRL-AP access: scanning the AP space for the vendor port and
// driving the ERASEALL unlock that clears APPROTECT

package gonrflink

import (
	"fmt"
	"time"

	"github.com/boljen/go-bitmap"
)

const apselMax = 255

// probedAp remembers which AP indices have been probed during scans so
// repeated unlock attempts skip the discovery chatter in the log.
var probedAp = bitmap.New(apselMax + 1)

// findCtrlAp scans AP indices for the Nordic CTRL-AP by matching the
// designer/class fields of each IDR. Falls back to index 1, where the
// CTRL-AP sits on every known nRF52.
func (s *Session) findCtrlAp() uint8 {
	for idx := 0; idx <= apselMax; idx++ {
		if err := s.driver.SelectAp(uint8(idx), 0xF, 0); err != nil {
			continue
		}

		idr, err := s.driver.ApRead(apIDR)
		if err != nil {
			s.driver.ClearStickyErrors()
			continue
		}

		if !probedAp.Get(idx) {
			probedAp.Set(idx, true)
			if idr != 0 {
				logger.Debugf("AP %d IDR=0x%08x", idx, idr)
			}
		}

		masked := idr & ctrlApIdrMask
		if masked == ctrlApIdrNrf || masked == ctrlApIdrNrf2 {
			logger.Infof("CTRL-AP found at index %d (IDR=0x%08x)", idx, idr)
			return uint8(idx)
		}
	}

	logger.Warn("CTRL-AP not identified by scan, falling back to index 1")
	return 1
}

func (s *Session) ctrlApRead(apsel uint8, reg uint8) (uint32, error) {
	if err := s.driver.SelectAp(apsel, 0, 0); err != nil {
		return 0, err
	}
	return s.driver.ApRead(reg)
}

func (s *Session) ctrlApWrite(apsel uint8, reg uint8, value uint32) error {
	if err := s.driver.SelectAp(apsel, 0, 0); err != nil {
		return err
	}
	return s.driver.ApWrite(reg, value)
}

// CtrlApMassErase unlocks a protected target: it holds the core in
// reset, triggers the CTRL-AP ERASEALL, waits for completion, then
// re-establishes the debug session and verifies that flash and UICR
// actually read erased.
func (s *Session) CtrlApMassErase() error {
	apsel := s.findCtrlAp()

	if status, err := s.ctrlApRead(apsel, ctrlApApprotectStatus); err == nil {
		logger.Infof("CTRL-AP APPROTECTSTATUS=0x%08x", status)
	}

	if err := s.ctrlApWrite(apsel, ctrlApReset, 1); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)

	if err := s.ctrlApWrite(apsel, ctrlApEraseAll, 1); err != nil {
		return err
	}

	logger.Info("CTRL-AP erase-all running, this can take a minute")

	if err := s.waitCtrlApEraseDone(apsel); err != nil {
		s.ctrlApWrite(apsel, ctrlApReset, 0)
		return err
	}

	if err := s.ctrlApWrite(apsel, ctrlApReset, 0); err != nil {
		return err
	}

	// the erase dropped the debug connection state, start over
	s.Disconnect()
	time.Sleep(100 * time.Millisecond)
	if err := s.Connect(); err != nil {
		return err
	}

	return s.verifyUnlocked()
}

// waitCtrlApEraseDone polls ERASEALLSTATUS until it reads 0. Intervals
// where the status does not move are logged for diagnostics.
func (s *Session) waitCtrlApEraseDone(apsel uint8) error {
	deadline := time.Now().Add(ctrlApEraseBudgetS * time.Second)

	var last uint32 = 0xFFFFFFFF
	unchanged := 0

	for time.Now().Before(deadline) {
		status, err := s.ctrlApRead(apsel, ctrlApEraseAllStatus)
		if err == nil && status == 0 {
			logger.Info("CTRL-AP erase-all complete")
			return nil
		}

		if err == nil {
			if status == last {
				unchanged++
				if unchanged%20 == 0 {
					logger.Debugf("erase-all status unchanged at 0x%08x for %d polls", status, unchanged)
				}
			} else {
				last = status
				unchanged = 0
			}
		}

		time.Sleep(500 * time.Millisecond)
	}

	logger.Error("CTRL-AP erase-all never completed")
	return NewSwdError("CTRL-AP ERASEALLSTATUS stuck, power cycle the target", ErrorUnlockTimeout)
}

// verifyUnlocked spot-checks flash and UICR after an unlock.
func (s *Session) verifyUnlocked() error {
	checks := []uint32{0x0, 0x1000, 0x26000, Nrf52FlashSize - 4}

	for _, addr := range checks {
		value, err := s.ReadMem32(addr)
		if err != nil {
			return err
		}
		if value != FlashErasedWord {
			return NewFlashError(FlashPhaseVerify, addr,
				fmt.Sprintf("flash not erased after unlock, read 0x%08x", value))
		}
	}

	value, err := s.ReadMem32(uicrAPPROTECT)
	if err != nil {
		return err
	}
	logger.Infof("UICR.APPROTECT after unlock: 0x%08x", value)

	return nil
}
