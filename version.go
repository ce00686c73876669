// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

import (
	"fmt"
)

// IDCodeInfo holds the fields of a DP IDCODE / DPIDR value.
type IDCodeInfo struct {
	Revision uint8  // implementation revision
	PartNo   uint8  // designer-assigned part number
	Min      bool   // minimal DP, transaction counter and pushed ops absent
	Version  uint8  // DP architecture version
	Designer uint16 // JEP106 continuation and identity code
}

const jep106Arm = 0x23B

func DecodeIDCode(idcode uint32) IDCodeInfo {
	return IDCodeInfo{
		Revision: uint8(idcode >> 28 & 0xF),
		PartNo:   uint8(idcode >> 20 & 0xFF),
		Min:      idcode>>16&1 == 1,
		Version:  uint8(idcode >> 12 & 0xF),
		Designer: uint16(idcode >> 1 & 0x7FF),
	}
}

func (i IDCodeInfo) String() string {
	designer := fmt.Sprintf("designer 0x%03x", i.Designer)
	if i.Designer == jep106Arm {
		designer = "ARM"
	}

	min := ""
	if i.Min {
		min = " MINDP"
	}

	return fmt.Sprintf("SW-DP v%d%s rev %d part 0x%02x %s",
		i.Version, min, i.Revision, i.PartNo, designer)
}
