// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// register map and timing constants for the ARM SW-DP and the
// nRF52 NVMC / UICR / FICR / CTRL-AP peripherals

package gonrflink

type SwdAck uint8 // three bit line acknowledge

const (
	AckOK    SwdAck = 1
	AckWait         = 2
	AckFault        = 4
)

// debug port registers (address as seen in the request phase)
const (
	dpIDCODE   = 0x0 // read
	dpABORT    = 0x0 // write
	dpCTRLSTAT = 0x4
	dpSELECT   = 0x8
	dpRDBUFF   = 0xC
)

// DP ABORT: ORUNERRCLR | WDERRCLR | STKERRCLR | STKCMPCLR
const dpAbortClearAll = 0x1E

// DP CTRL/STAT power handshake
const (
	dpPowerUpRequest = 0x50000000 // CSYSPWRUPREQ | CDBGPWRUPREQ
	dpPowerUpAckMask = 0xA0000000 // CSYSPWRUPACK | CDBGPWRUPACK
)

// MEM-AP registers, bank 0 unless noted
const (
	memApCSW = 0x00
	memApTAR = 0x04
	memApDRW = 0x0C
	apIDR    = 0xFC // bank 0xF
)

// CSW: 32-bit size, auto increment single, master debug, HPROT
const memApCswWordIncr = 0x23000052

// TAR auto increment wraps at 1 KiB boundaries
const memApIncrBoundary = 0x400

// CTRL-AP registers (Nordic vendor access port)
const (
	ctrlApReset           = 0x000
	ctrlApEraseAll        = 0x004
	ctrlApEraseAllStatus  = 0x008
	ctrlApApprotectStatus = 0x00C
)

// CTRL-AP identification: IDR & ctrlApIdrMask must match one of the
// known Nordic JEP106 / class values
const (
	ctrlApIdrMask = 0x0FFF0000
	ctrlApIdrNrf  = 0x02880000
	ctrlApIdrNrf2 = 0x12880000
)

// nRF52 flash geometry
const (
	Nrf52FlashBase     = 0x00000000
	Nrf52FlashSize     = 0x100000
	Nrf52FlashPageSize = 4096
	FlashErasedByte    = 0xFF
	FlashErasedWord    = 0xFFFFFFFF
)

// NVMC register addresses
const (
	nvmcBase      = 0x4001E000
	nvmcREADY     = nvmcBase + 0x400
	nvmcCONFIG    = nvmcBase + 0x504
	nvmcERASEPAGE = nvmcBase + 0x508
	nvmcERASEALL  = nvmcBase + 0x50C
)

// NVMC CONFIG modes
const (
	nvmcConfigREN = 0
	nvmcConfigWEN = 1
	nvmcConfigEEN = 2
)

// UICR
const (
	uicrBase               = 0x10001000
	uicrSize               = 0x1000
	uicrAPPROTECT          = 0x10001208
	approtectHwDisabled    = 0xFFFFFF5A
	approtectErasedEnabled = 0xFFFFFFFF
)

// FICR
const (
	ficrCODEPAGESIZE = 0x10000010
	ficrCODESIZE     = 0x10000014
	ficrDEVICEID0    = 0x10000060
	ficrDEVICEID1    = 0x10000064
	ficrInfoPART     = 0x10000100
	ficrInfoVARIANT  = 0x10000104
	ficrInfoPACKAGE  = 0x10000108
	ficrInfoRAM      = 0x1000010C
	ficrInfoFLASH    = 0x10000110
)

// nRF52 SRAM
const Nrf52RamBase = 0x20000000

// Cortex-M System Control Space registers, reachable through the
// MEM-AP like any other bus address
const (
	scsCPUID = 0xE000ED00
	scsAIRCR = 0xE000ED0C
	scsDHCSR = 0xE000EDF0
	scsDEMCR = 0xE000EDFC
)

// DHCSR: writes need the debug key in the upper half
const (
	dhcsrDBGKEY   = 0xA05F0000
	dhcsrCDEBUGEN = 0x00000001
	dhcsrCHALT    = 0x00000002
	dhcsrSHALT    = 0x00020000
)

// AIRCR: writes need the vector key in the upper half
const (
	aircrVECTKEY     = 0x05FA0000
	aircrSYSRESETREQ = 0x00000004
)

// operation budgets
const (
	dapRetryCount        = 10
	powerUpAttempts      = 100 // 1 ms apart
	pageEraseSettleMs    = 90
	pageEraseBudgetMs    = 400
	wordProgramBudgetMs  = 50
	nvmcEraseAllBudgetMs = 500
	ctrlApEraseBudgetS   = 120
	readyPollStrideBytes = 256
)

// default image base addresses per upload kind
const (
	BaseAddrFull       = 0x00000
	BaseAddrSoftDevice = 0x01000
	BaseAddrApp        = 0x26000
	BaseAddrBootloader = 0xF4000
)
