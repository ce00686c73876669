// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import (
	"fmt"
)

// PartInfo identifies the connected silicon from its FICR block.
type PartInfo struct {
	Part     uint32 // e.g. 0x52840
	Variant  uint32 // four ASCII chars, e.g. "AAC0"
	RamKB    uint32
	FlashKB  uint32
	DeviceID uint64

	CodePageSize uint32
	CodeSize     uint32 // in pages
}

// variantString decodes the FICR VARIANT word into its ASCII form.
func variantString(v uint32) string {
	b := []byte{
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
	}
	for i, c := range b {
		if c < 0x20 || c > 0x7E {
			b[i] = '?'
		}
	}
	return string(b)
}

// RamBytes returns the SRAM size, falling back to the family table
// when FICR INFO reads unspecified and to 64 KiB as a last resort.
func (p *PartInfo) RamBytes() uint32 {
	if p.RamKB != 0 && p.RamKB != 0xFFFFFFFF {
		return p.RamKB * 1024
	}
	if fam := GetFamilyInfo(p.Part); fam != nil {
		return fam.RamKB * 1024
	}
	return 64 * 1024
}

func (p *PartInfo) String() string {
	return fmt.Sprintf("nRF%X-%s (%d KiB flash, %d KiB RAM, device 0x%016x)",
		p.Part, variantString(p.Variant), p.FlashKB, p.RamKB, p.DeviceID)
}

// ReadPartInfo reads the FICR identification registers.
func (s *Session) ReadPartInfo() (*PartInfo, error) {
	if err := s.requireConnected(); err != nil {
		return nil, err
	}

	info := &PartInfo{}

	var err error
	if info.Part, err = s.ReadMem32(ficrInfoPART); err != nil {
		return nil, err
	}
	if info.Variant, err = s.ReadMem32(ficrInfoVARIANT); err != nil {
		return nil, err
	}
	if info.RamKB, err = s.ReadMem32(ficrInfoRAM); err != nil {
		return nil, err
	}
	if info.FlashKB, err = s.ReadMem32(ficrInfoFLASH); err != nil {
		return nil, err
	}
	if info.CodePageSize, err = s.ReadMem32(ficrCODEPAGESIZE); err != nil {
		return nil, err
	}
	if info.CodeSize, err = s.ReadMem32(ficrCODESIZE); err != nil {
		return nil, err
	}

	lo, err := s.ReadMem32(ficrDEVICEID0)
	if err != nil {
		return nil, err
	}
	hi, err := s.ReadMem32(ficrDEVICEID1)
	if err != nil {
		return nil, err
	}
	info.DeviceID = uint64(hi)<<32 | uint64(lo)

	// early revisions leave the INFO block unprogrammed
	if fam := GetFamilyInfo(info.Part); fam != nil && info.FlashKB == 0xFFFFFFFF {
		info.FlashKB = fam.FlashKB
		info.RamKB = fam.RamKB
	}

	logger.Infof("target identified: %s", info)
	return info, nil
}
