// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import "github.com/google/gousb"

func idExists(slice []gousb.ID, item gousb.ID) bool {
	for _, element := range slice {
		if element == item {
			return true
		}
	}

	return false
}

// parity32 returns the odd parity bit of x.
func parity32(x uint32) bool {
	x ^= x >> 16
	x ^= x >> 8
	x ^= x >> 4
	x &= 0xF

	return (0x6996>>x)&1 == 1
}

func le_to_h_u32(buffer []byte) uint32 {
	return (uint32(buffer[0]) | uint32(buffer[1])<<8 | uint32(buffer[2])<<16 | uint32(buffer[3])<<24)
}

func h_u32_to_le(buffer []byte, value uint32) {
	buffer[3] = byte(value >> 24)
	buffer[2] = byte(value >> 16)
	buffer[1] = byte(value >> 8)
	buffer[0] = byte(value >> 0)
}

func alignDown(addr uint32, alignment uint32) uint32 {
	return addr &^ (alignment - 1)
}

func minInt(a int, b int) int {
	if a < b {
		return a
	}
	return b
}
