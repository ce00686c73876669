// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

// Memory access through the selected MEM-AP. Single words go through
// TAR/DRW directly; block transfers rely on CSW auto-increment and
// re-seed TAR whenever the increment wraps at the 1 KiB boundary.

// ReadMem32 reads one aligned word from target memory.
func (s *Session) ReadMem32(addr uint32) (uint32, error) {
	if addr&3 != 0 {
		return 0, NewSwdError("unaligned word read", ErrorInvalidArgument)
	}

	if err := s.driver.ApWrite(memApTAR, addr); err != nil {
		return 0, err
	}

	return s.driver.ApRead(memApDRW)
}

// WriteMem32 writes one aligned word to target memory.
func (s *Session) WriteMem32(addr uint32, value uint32) error {
	if addr&3 != 0 {
		return NewSwdError("unaligned word write", ErrorInvalidArgument)
	}

	if err := s.driver.ApWrite(memApTAR, addr); err != nil {
		return err
	}

	return s.driver.ApWrite(memApDRW, value)
}

// ReadMemBlock32 reads len(words) consecutive words starting at addr.
func (s *Session) ReadMemBlock32(addr uint32, words []uint32) error {
	if addr&3 != 0 {
		return NewSwdError("unaligned block read", ErrorInvalidArgument)
	}

	for i := range words {
		current := addr + uint32(i)*4

		// TAR must be re-seeded on the first word and after every
		// auto-increment wraparound.
		if i == 0 || current%memApIncrBoundary == 0 {
			if err := s.driver.ApWrite(memApTAR, current); err != nil {
				return err
			}
		}

		value, err := s.driver.ApRead(memApDRW)
		if err != nil {
			return err
		}
		words[i] = value
	}

	return nil
}

// WriteMemBlock32 writes len(words) consecutive words starting at addr.
func (s *Session) WriteMemBlock32(addr uint32, words []uint32) error {
	if addr&3 != 0 {
		return NewSwdError("unaligned block write", ErrorInvalidArgument)
	}

	for i, value := range words {
		current := addr + uint32(i)*4

		if i == 0 || current%memApIncrBoundary == 0 {
			if err := s.driver.ApWrite(memApTAR, current); err != nil {
				return err
			}
		}

		if err := s.driver.ApWrite(memApDRW, value); err != nil {
			return err
		}
	}

	return nil
}

// ReadMemBytes reads n bytes starting at an aligned address, assembling
// words little endian.
func (s *Session) ReadMemBytes(addr uint32, n int) ([]byte, error) {
	if addr&3 != 0 {
		return nil, NewSwdError("unaligned byte read", ErrorInvalidArgument)
	}

	nwords := (n + 3) / 4
	words := make([]uint32, nwords)
	if err := s.ReadMemBlock32(addr, words); err != nil {
		return nil, err
	}

	buf := make([]byte, nwords*4)
	for i, w := range words {
		h_u32_to_le(buf[i*4:], w)
	}

	return buf[:n], nil
}
