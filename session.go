// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import (
	"fmt"
	"sync"
	"time"
)

// Session owns one debug connection to an nRF52 target. It tracks the
// connection state, runs the activation and power-up handshakes and
// selects the default MEM-AP. Multi-transaction operations (flashing,
// mass erase) serialize through Lock/Unlock; single transactions are
// already serialized by the line driver.
type Session struct {
	driver *LineDriver

	connected bool
	idcode    uint32

	opMu sync.Mutex
}

func NewSession(driver *LineDriver) *Session {
	return &Session{driver: driver}
}

// Lock serializes a multi-transaction operation against other users of
// the session.
func (s *Session) Lock() {
	s.opMu.Lock()
}

func (s *Session) Unlock() {
	s.opMu.Unlock()
}

// Driver exposes the underlying line driver.
func (s *Session) Driver() *LineDriver {
	return s.driver
}

func validIdcode(idcode uint32) bool {
	return idcode != 0 && idcode != 0xFFFFFFFF
}

// Connect establishes the SWD link: dormant wakeup first, JTAG-to-SWD
// selection as fallback, then the debug power-up handshake and MEM-AP
// selection.
func (s *Session) Connect() error {
	logger.Info("attempting SWD connection")

	s.driver.DormantWakeup()

	idcode, err := s.driver.DpRead(dpIDCODE)
	if err != nil || !validIdcode(idcode) {
		logger.Warn("dormant wakeup failed, trying JTAG-to-SWD")

		s.driver.JtagToSwd()

		idcode, err = s.driver.DpRead(dpIDCODE)
		if err != nil || !validIdcode(idcode) {
			s.connected = false
			return NewSwdError("no target detected on SWD lines", ErrorLinkLost)
		}
	}

	logger.Infof("connected: IDCODE=0x%08x (%s)", idcode, DecodeIDCode(idcode))
	s.idcode = idcode

	if err := s.powerUp(); err != nil {
		s.connected = false
		return err
	}

	if err := s.selectMemAp(); err != nil {
		s.connected = false
		return err
	}

	s.connected = true
	return nil
}

// powerUp requests system and debug domain power and polls CTRL/STAT
// until both acknowledge bits are set.
func (s *Session) powerUp() error {
	s.driver.ClearStickyErrors()

	if err := s.driver.DpWrite(dpCTRLSTAT, dpPowerUpRequest); err != nil {
		return err
	}

	for i := 0; i < powerUpAttempts; i++ {
		status, err := s.driver.DpRead(dpCTRLSTAT)
		if err != nil {
			return err
		}

		if status&dpPowerUpAckMask == dpPowerUpAckMask {
			logger.Debugf("debug powered up: status=0x%08x", status)
			return nil
		}

		time.Sleep(time.Millisecond)
	}

	logger.Error("debug power up timeout")
	return NewSwdError("debug power up not acknowledged", ErrorPowerUpTimeout)
}

// selectMemAp routes AP transactions to MEM-AP 0 and programs CSW for
// 32-bit auto-incrementing access.
func (s *Session) selectMemAp() error {
	if err := s.driver.SelectAp(0, 0, 0); err != nil {
		return err
	}
	return s.driver.ApWrite(memApCSW, memApCswWordIncr)
}

// Disconnect drops the link and leaves the target's SW-DP in the line
// reset state.
func (s *Session) Disconnect() {
	s.connected = false
	s.driver.LineReset()
	logger.Info("disconnected from target")
}

// IsConnected verifies the link is still alive by re-probing IDCODE.
func (s *Session) IsConnected() bool {
	if !s.connected {
		return false
	}

	idcode, err := s.driver.DpRead(dpIDCODE)
	if err != nil || !validIdcode(idcode) {
		s.connected = false
		return false
	}

	return true
}

// IDCode returns the IDCODE captured by the last successful Connect.
func (s *Session) IDCode() uint32 {
	return s.idcode
}

// ResetTarget pulses the nRESET line and re-establishes the session.
func (s *Session) ResetTarget() error {
	if !s.driver.HasResetPin() {
		return NewSwdError("no reset pin configured", ErrorInvalidState)
	}

	logger.Info("resetting target")

	s.driver.nreset.Set(false)
	time.Sleep(10 * time.Millisecond)
	s.driver.nreset.Set(true)
	time.Sleep(50 * time.Millisecond)

	return s.Connect()
}

// requireConnected guards operations that need an established session.
func (s *Session) requireConnected() error {
	if !s.connected {
		return NewSwdError("not connected to target", ErrorInvalidState)
	}
	return nil
}

func (s *Session) String() string {
	if s.connected {
		return fmt.Sprintf("session(IDCODE=0x%08x)", s.idcode)
	}
	return "session(disconnected)"
}
