// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// nRF52 NVMC flash engine: mode transitions, page erase, word and
// buffer programming, mass erase and the APPROTECT disable flow

package gonrflink

import (
	"fmt"
	"time"
)

// waitNvmcReady polls NVMC READY until bit 0 is set or the budget
// expires.
func (s *Session) waitNvmcReady(budget time.Duration, interval time.Duration) error {
	deadline := time.Now().Add(budget)

	for {
		ready, err := s.ReadMem32(nvmcREADY)
		if err != nil {
			return err
		}
		if ready&1 == 1 {
			return nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(interval)
	}

	logger.Error("NVMC ready timeout")
	return NewFlashError(FlashPhaseConfig, nvmcREADY, "NVMC not ready within budget")
}

// setNvmcConfig switches the NVMC mode and verifies the transition.
// The mode write must read back, and READY must be observed stable
// across two consecutive reads before any operation is issued.
func (s *Session) setNvmcConfig(mode uint32) error {
	if err := s.WriteMem32(nvmcCONFIG, mode); err != nil {
		return err
	}

	time.Sleep(time.Millisecond)

	config, err := s.ReadMem32(nvmcCONFIG)
	if err != nil {
		return err
	}
	if config&0x3 != mode {
		logger.Errorf("failed to set NVMC mode %d (read 0x%x)", mode, config)
		return NewFlashError(FlashPhaseConfig, nvmcCONFIG,
			fmt.Sprintf("mode %d not accepted", mode))
	}

	// READY must be stable before the next operation
	prev, err := s.ReadMem32(nvmcREADY)
	if err != nil {
		return err
	}
	for i := 0; i < 10; i++ {
		cur, err := s.ReadMem32(nvmcREADY)
		if err != nil {
			return err
		}
		if cur&1 == prev&1 {
			return nil
		}
		prev = cur
		time.Sleep(time.Millisecond)
	}

	return NewFlashError(FlashPhaseConfig, nvmcREADY, "READY flag not stable")
}

// ErasePage erases the 4 KiB page containing addr and verifies the
// result by sampling four offsets within the page.
func (s *Session) ErasePage(addr uint32) error {
	if err := s.requireConnected(); err != nil {
		return err
	}
	if addr >= Nrf52FlashSize {
		return NewSwdError("erase address beyond flash", ErrorInvalidArgument)
	}

	addr = alignDown(addr, Nrf52FlashPageSize)

	logger.Infof("erasing page at 0x%08x", addr)

	if err := s.waitNvmcReady(100*time.Millisecond, time.Millisecond); err != nil {
		return err
	}
	if err := s.setNvmcConfig(nvmcConfigEEN); err != nil {
		return err
	}

	err := s.WriteMem32(nvmcERASEPAGE, addr)
	if err == nil {
		// typical page erase time is ~85 ms, no point polling earlier
		time.Sleep(pageEraseSettleMs * time.Millisecond)
		err = s.waitNvmcReady(pageEraseBudgetMs*time.Millisecond, 10*time.Millisecond)
	}

	if restoreErr := s.setNvmcConfig(nvmcConfigREN); err == nil && restoreErr != nil {
		err = restoreErr
	}
	if err != nil {
		return NewFlashError(FlashPhaseErase, addr, err.Error())
	}

	return s.verifyErasedPage(addr)
}

// verifyErasedPage samples four offsets spread across the page. A
// single mismatch is re-read once after a short delay before the
// erase is declared failed.
func (s *Session) verifyErasedPage(addr uint32) error {
	offsets := [4]uint32{0, 4, 8, Nrf52FlashPageSize - 4}

	for _, off := range offsets {
		sample, err := s.ReadMem32(addr + off)
		if err != nil {
			return NewFlashError(FlashPhaseVerify, addr+off, err.Error())
		}
		if sample == FlashErasedWord {
			continue
		}

		time.Sleep(time.Millisecond)
		sample, err = s.ReadMem32(addr + off)
		if err != nil {
			return NewFlashError(FlashPhaseVerify, addr+off, err.Error())
		}
		if sample != FlashErasedWord {
			logger.Errorf("erase verification failed at 0x%08x: 0x%08x", addr+off, sample)
			return NewFlashError(FlashPhaseVerify, addr+off,
				fmt.Sprintf("page not erased, read 0x%08x", sample))
		}
	}

	return nil
}

// programWord writes one word with WEN already enabled and polls
// READY. The written word is not read back, and ProgramBuffer does not
// read back the programmed range either.
func (s *Session) programWord(addr uint32, data uint32) error {
	if err := s.WriteMem32(addr, data); err != nil {
		return NewFlashError(FlashPhaseProgram, addr, err.Error())
	}
	if err := s.waitNvmcReady(wordProgramBudgetMs*time.Millisecond, time.Millisecond); err != nil {
		return NewFlashError(FlashPhaseProgram, addr, "word program timeout")
	}
	return nil
}

// WriteFlashWord programs a single word, wrapping the WEN/REN mode
// transition around it.
func (s *Session) WriteFlashWord(addr uint32, data uint32) error {
	if err := s.requireConnected(); err != nil {
		return err
	}
	if addr&3 != 0 {
		return NewSwdError("unaligned flash write", ErrorInvalidArgument)
	}

	if err := s.setNvmcConfig(nvmcConfigWEN); err != nil {
		return err
	}

	err := s.programWord(addr, data)

	if restoreErr := s.setNvmcConfig(nvmcConfigREN); err == nil && restoreErr != nil {
		err = restoreErr
	}
	return err
}

// ProgramBuffer writes data to flash starting at addr. WEN is enabled
// once for the whole buffer. Unaligned prefix and tail words are
// read-modified-written; the bytes being patched must still be erased.
// READY polling for the aligned body is batched every 256 bytes.
func (s *Session) ProgramBuffer(addr uint32, data []byte) error {
	if err := s.requireConnected(); err != nil {
		return err
	}
	if len(data) == 0 {
		return NewSwdError("empty program buffer", ErrorInvalidArgument)
	}
	inFlash := uint64(addr)+uint64(len(data)) <= Nrf52FlashSize
	inUicr := addr >= uicrBase && uint64(addr)+uint64(len(data)) <= uicrBase+uicrSize
	if !inFlash && !inUicr {
		return NewSwdError("program range beyond flash", ErrorInvalidArgument)
	}

	logger.Infof("writing %d bytes to 0x%08x", len(data), addr)

	if err := s.setNvmcConfig(nvmcConfigWEN); err != nil {
		return err
	}

	err := s.programBufferLocked(addr, data)

	if restoreErr := s.setNvmcConfig(nvmcConfigREN); err == nil && restoreErr != nil {
		err = restoreErr
	}
	return err
}

func (s *Session) programBufferLocked(addr uint32, data []byte) error {
	// unaligned prefix: patch into the existing word
	if addr&3 != 0 {
		aligned := addr &^ 3
		offset := int(addr & 3)

		word, err := s.ReadMem32(aligned)
		if err != nil {
			return NewFlashError(FlashPhaseProgram, aligned, err.Error())
		}

		n := minInt(4-offset, len(data))

		var wb [4]byte
		h_u32_to_le(wb[:], word)
		for i := 0; i < n; i++ {
			if wb[offset+i] != FlashErasedByte {
				return NewFlashError(FlashPhaseProgram, addr,
					"prefix bytes not erased, page requires erase first")
			}
			wb[offset+i] = data[i]
		}

		if err := s.programWord(aligned, le_to_h_u32(wb[:])); err != nil {
			return err
		}

		addr += uint32(n)
		data = data[n:]
	}

	// aligned body, READY polled in coarse batches
	written := 0
	for len(data) >= 4 {
		word := le_to_h_u32(data)

		if err := s.WriteMem32(addr, word); err != nil {
			return NewFlashError(FlashPhaseProgram, addr, err.Error())
		}

		addr += 4
		data = data[4:]
		written += 4

		if written%readyPollStrideBytes == 0 || len(data) < 4 {
			if err := s.waitNvmcReady(wordProgramBudgetMs*time.Millisecond, time.Millisecond); err != nil {
				return NewFlashError(FlashPhaseProgram, addr-4, "program timeout")
			}
		}
	}

	// unaligned tail, symmetric to the prefix
	if len(data) > 0 {
		word, err := s.ReadMem32(addr)
		if err != nil {
			return NewFlashError(FlashPhaseProgram, addr, err.Error())
		}

		var wb [4]byte
		h_u32_to_le(wb[:], word)
		for i := 0; i < len(data); i++ {
			if wb[i] != FlashErasedByte {
				return NewFlashError(FlashPhaseProgram, addr,
					"tail bytes not erased, page requires erase first")
			}
			wb[i] = data[i]
		}

		if err := s.programWord(addr, le_to_h_u32(wb[:])); err != nil {
			return err
		}
	}

	return nil
}

// NvmcMassErase erases the whole code flash through the NVMC. UICR is
// not touched and APPROTECT stays as it is.
func (s *Session) NvmcMassErase() error {
	if err := s.requireConnected(); err != nil {
		return err
	}

	logger.Warn("starting NVMC mass erase")

	if err := s.waitNvmcReady(100*time.Millisecond, time.Millisecond); err != nil {
		return err
	}
	if err := s.setNvmcConfig(nvmcConfigEEN); err != nil {
		return err
	}

	err := s.WriteMem32(nvmcERASEALL, 1)
	if err == nil {
		err = s.waitNvmcReady(nvmcEraseAllBudgetMs*time.Millisecond, 10*time.Millisecond)
	}

	if restoreErr := s.setNvmcConfig(nvmcConfigREN); err == nil && restoreErr != nil {
		err = restoreErr
	}
	if err != nil {
		return NewFlashError(FlashPhaseErase, nvmcERASEALL, err.Error())
	}

	logger.Info("NVMC mass erase complete")
	return nil
}

// ApprotectStatus describes the UICR.APPROTECT word.
type ApprotectStatus int

const (
	ApprotectUnknown ApprotectStatus = iota
	ApprotectHwDisabled
	ApprotectErased
	ApprotectEnabled
)

func (a ApprotectStatus) String() string {
	switch a {
	case ApprotectHwDisabled:
		return "HwDisabled"
	case ApprotectErased:
		return "Erased (Protected)"
	case ApprotectEnabled:
		return "Enabled"
	default:
		return "Unknown"
	}
}

// ReadApprotect classifies the current UICR.APPROTECT value.
func (s *Session) ReadApprotect() (ApprotectStatus, uint32, error) {
	value, err := s.ReadMem32(uicrAPPROTECT)
	if err != nil {
		return ApprotectUnknown, 0, err
	}

	switch value {
	case approtectHwDisabled:
		return ApprotectHwDisabled, value, nil
	case approtectErasedEnabled:
		return ApprotectErased, value, nil
	default:
		return ApprotectEnabled, value, nil
	}
}

// DisableApprotect performs the full hardware-disable flow: NVMC mass
// erase (APPROTECT cannot be cleared any other way on newer silicon),
// write the HwDisabled sentinel into UICR, reset the target and verify
// after reconnecting.
func (s *Session) DisableApprotect() error {
	if err := s.requireConnected(); err != nil {
		return err
	}

	logger.Warn("disabling APPROTECT, this mass-erases the target")

	current, err := s.ReadMem32(uicrAPPROTECT)
	if err != nil {
		return err
	}
	if current == approtectHwDisabled {
		logger.Info("APPROTECT already in HwDisabled state")
		return nil
	}

	if err := s.waitNvmcReady(time.Second, 10*time.Millisecond); err != nil {
		return err
	}
	if err := s.setNvmcConfig(nvmcConfigEEN); err != nil {
		return err
	}

	err = s.WriteMem32(nvmcERASEALL, 1)
	if err == nil {
		err = s.waitNvmcReady(time.Second, 10*time.Millisecond)
	}
	if restoreErr := s.setNvmcConfig(nvmcConfigREN); err == nil && restoreErr != nil {
		err = restoreErr
	}
	if err != nil {
		return NewFlashError(FlashPhaseErase, nvmcERASEALL, err.Error())
	}

	logger.Info("writing APPROTECT HwDisabled value")

	if err := s.waitNvmcReady(500*time.Millisecond, 10*time.Millisecond); err != nil {
		return err
	}
	if err := s.setNvmcConfig(nvmcConfigWEN); err != nil {
		return err
	}

	err = s.WriteMem32(uicrAPPROTECT, approtectHwDisabled)
	if err == nil {
		err = s.waitNvmcReady(500*time.Millisecond, 10*time.Millisecond)
	}
	if restoreErr := s.setNvmcConfig(nvmcConfigREN); err == nil && restoreErr != nil {
		err = restoreErr
	}
	if err != nil {
		return NewFlashError(FlashPhaseProgram, uicrAPPROTECT, err.Error())
	}

	// UICR changes only latch on reset
	if s.driver.HasResetPin() {
		if err := s.ResetTarget(); err != nil {
			return err
		}
	} else {
		if err := s.SysResetRequest(); err != nil {
			return err
		}
		s.Disconnect()
		time.Sleep(200 * time.Millisecond)
		if err := s.Connect(); err != nil {
			logger.Error("failed to reconnect after APPROTECT write")
			return err
		}
	}

	current, err = s.ReadMem32(uicrAPPROTECT)
	if err != nil {
		return err
	}
	if current != approtectHwDisabled {
		logger.Errorf("failed to set APPROTECT (read 0x%08x)", current)
		return NewFlashError(FlashPhaseVerify, uicrAPPROTECT,
			fmt.Sprintf("APPROTECT readback 0x%08x", current))
	}

	logger.Info("APPROTECT successfully set to HwDisabled")
	return nil
}
