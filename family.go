// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

type FamilyInfo struct {
	FlashKB uint32
	RamKB   uint32
}

// Memory geometry per nRF52 part number as reported in FICR INFO.PART.
// Used as a fallback when the INFO block reads unspecified (0xFFFFFFFF)
// on early silicon revisions.
var nrf52Family = map[uint32]FamilyInfo{
	0x52805: {192, 24},
	0x52810: {192, 24},
	0x52811: {192, 24},
	0x52820: {256, 32},
	0x52832: {512, 64},
	0x52833: {512, 128},
	0x52840: {1024, 256},
}

func GetFamilyInfo(part uint32) *FamilyInfo {
	if val, ok := nrf52Family[part]; ok {
		return &val
	}
	return nil
}
