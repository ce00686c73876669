// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Core run control through the Cortex-M SCS block: halting the CPU so
// it cannot execute from flash while pages are reworked, and firing a
// soft reset when no nRESET line is wired.

package gonrflink

import (
	"time"
)

// HaltCore enables debug mode and halts the CPU. The halt is confirmed
// by polling the S_HALT status bit.
func (s *Session) HaltCore() error {
	if err := s.requireConnected(); err != nil {
		return err
	}

	if err := s.WriteMem32(scsDHCSR, dhcsrDBGKEY|dhcsrCDEBUGEN|dhcsrCHALT); err != nil {
		return err
	}

	for i := 0; i < 100; i++ {
		status, err := s.ReadMem32(scsDHCSR)
		if err != nil {
			return err
		}
		if status&dhcsrSHALT != 0 {
			logger.Debug("core halted")
			return nil
		}
		time.Sleep(time.Millisecond)
	}

	return NewSwdError("core did not halt", ErrorPowerUpTimeout)
}

// ResumeCore clears the halt request and leaves debug mode.
func (s *Session) ResumeCore() error {
	if err := s.requireConnected(); err != nil {
		return err
	}

	if err := s.WriteMem32(scsDHCSR, dhcsrDBGKEY|dhcsrCDEBUGEN); err != nil {
		return err
	}
	return s.WriteMem32(scsDHCSR, dhcsrDBGKEY)
}

// CoreHalted reports whether the CPU is currently held in debug state.
func (s *Session) CoreHalted() (bool, error) {
	if err := s.requireConnected(); err != nil {
		return false, err
	}

	status, err := s.ReadMem32(scsDHCSR)
	if err != nil {
		return false, err
	}
	return status&dhcsrSHALT != 0, nil
}

// SysResetRequest fires a local reset through AIRCR.SYSRESETREQ. The
// debug connection does not survive the reset; callers reconnect
// afterwards.
func (s *Session) SysResetRequest() error {
	if err := s.requireConnected(); err != nil {
		return err
	}

	logger.Info("requesting system reset through AIRCR")
	return s.WriteMem32(scsAIRCR, aircrVECTKEY|aircrSYSRESETREQ)
}
