// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

// swdSim is a bit-level SW-DP model driven through the Pin interface.
// It decodes transactions clock edge by clock edge, so the driver's
// framing, turnaround and parity handling are exercised exactly as on
// real wires. A run of 50 or more high bits followed by a low bit
// resynchronizes the model from any state.

type simState int

const (
	simIdle simState = iota
	simRequest
	simPresent
	simConsume
)

type afterAckAction int

const (
	simBackToIdle afterAckAction = iota
	simConsumeData
	simConsumeDummy
)

type simReq struct {
	addr uint8
	ap   bool
	read bool
}

type swdSim struct {
	clkLevel   bool
	dioHost    bool
	dioTgt     bool
	hostDrives bool

	onesRun int

	state      simState
	shift      uint32
	nbits      int
	req        simReq
	present    []bool
	afterAck   afterAckAction
	consumeIdx int
	writeData  uint32

	forcedAcks    []SwdAck
	corruptParity bool

	idcode       uint32
	ctrlStat     uint32
	powerUpDelay int
	selectReg    uint32
	rdbuff       uint32
	abortWrites  []uint32

	csw uint32
	tar uint32
	mem map[uint32]uint32

	idr        map[uint8]uint32
	ctrlRegs   map[uint8]map[uint8]uint32
	onMemWrite func(addr, value uint32)
	onCtrlAp   func(apsel uint8, reg uint8, value uint32)

	transactions int
}

func newSwdSim() *swdSim {
	return &swdSim{
		dioTgt:   true,
		idcode:   0x2ba01477,
		mem:      make(map[uint32]uint32),
		idr:      map[uint8]uint32{0: 0x24770011},
		ctrlRegs: map[uint8]map[uint8]uint32{},
	}
}

// addCtrlAp registers a control access port at apsel with the given
// IDR value.
func (s *swdSim) addCtrlAp(apsel uint8, idr uint32) {
	s.idr[apsel] = idr
	s.ctrlRegs[apsel] = make(map[uint8]uint32)
}

func (s *swdSim) pins() (Pin, Pin) {
	return &simClkPin{sim: s}, &simDioPin{sim: s}
}

type simClkPin struct {
	sim *swdSim
}

func (p *simClkPin) Drive()   {}
func (p *simClkPin) Release() {}
func (p *simClkPin) Get() bool {
	return p.sim.clkLevel
}
func (p *simClkPin) Err() error {
	return nil
}
func (p *simClkPin) Set(level bool) {
	rising := level && !p.sim.clkLevel
	p.sim.clkLevel = level
	if rising {
		p.sim.risingEdge()
	}
}

type simDioPin struct {
	sim *swdSim
}

func (p *simDioPin) Drive() {
	p.sim.hostDrives = true
}
func (p *simDioPin) Release() {
	p.sim.hostDrives = false
}
func (p *simDioPin) Set(level bool) {
	p.sim.dioHost = level
}
func (p *simDioPin) Get() bool {
	if p.sim.hostDrives {
		return p.sim.dioHost
	}
	return p.sim.dioTgt
}
func (p *simDioPin) Err() error {
	return nil
}

func (s *swdSim) risingEdge() {
	if !s.hostDrives {
		s.presentEdge()
		return
	}

	level := s.dioHost

	if level {
		s.onesRun++
	} else {
		if s.onesRun >= 50 {
			s.resync()
			s.onesRun = 0
			return
		}
		s.onesRun = 0
	}

	switch s.state {
	case simIdle:
		if level {
			s.state = simRequest
			s.shift = 1
			s.nbits = 1
		}
	case simRequest:
		if level {
			s.shift |= 1 << uint(s.nbits)
		}
		s.nbits++
		if s.nbits == 8 {
			s.decodeRequest()
		}
	case simConsume:
		if s.consumeIdx < 32 {
			if level {
				s.writeData |= 1 << uint(s.consumeIdx)
			}
		}
		s.consumeIdx++
		if s.afterAck == simConsumeData && s.consumeIdx == 33 {
			s.state = simIdle
			s.writeRegister(s.writeData)
		}
		if s.afterAck == simConsumeDummy && s.consumeIdx == 32 {
			s.state = simIdle
		}
	case simPresent:
		// Host drives while the model expects to talk; only a line
		// reset gets out of here.
	}
}

// presentEdge advances the model on released-line cycles. The first
// such edge is the turnaround; each edge loads the bit the host samples
// before the next pulse.
func (s *swdSim) presentEdge() {
	if s.state != simPresent {
		s.dioTgt = true
		return
	}
	if len(s.present) == 0 {
		s.afterPresent()
		s.dioTgt = true
		return
	}
	s.dioTgt = s.present[0]
	s.present = s.present[1:]
}

func (s *swdSim) afterPresent() {
	switch s.afterAck {
	case simConsumeData, simConsumeDummy:
		s.state = simConsume
		s.consumeIdx = 0
		s.writeData = 0
	default:
		s.state = simIdle
	}
}

func (s *swdSim) resync() {
	s.state = simIdle
	s.present = nil
}

func appendBitsLSB(dst []bool, value uint32, count int) []bool {
	for i := 0; i < count; i++ {
		dst = append(dst, value&1 != 0)
		value >>= 1
	}
	return dst
}

func (s *swdSim) decodeRequest() {
	bits := s.shift
	s.state = simIdle

	park := bits>>7&1 == 1
	stop := bits>>6&1 == 1
	if !park || stop {
		return
	}

	ap := bits>>1&1 == 1
	read := bits>>2&1 == 1
	addr := uint8(bits >> 3 & 0x3 << 2)

	parity := ap != read
	if addr>>2&1 == 1 {
		parity = !parity
	}
	if addr>>3&1 == 1 {
		parity = !parity
	}
	if (bits>>5&1 == 1) != parity {
		return
	}

	s.req = simReq{addr: addr, ap: ap, read: read}
	s.transactions++

	ack := AckOK
	if len(s.forcedAcks) > 0 {
		ack = s.forcedAcks[0]
		s.forcedAcks = s.forcedAcks[1:]
	}

	s.present = appendBitsLSB(nil, uint32(ack), 3)

	if ack != AckOK {
		s.afterAck = simConsumeDummy
		s.state = simPresent
		return
	}

	if read {
		value := s.readRegister()
		s.present = appendBitsLSB(s.present, value, 32)
		p := parity32(value)
		if s.corruptParity {
			p = !p
			s.corruptParity = false
		}
		s.present = append(s.present, p)
		s.afterAck = simBackToIdle
	} else {
		s.afterAck = simConsumeData
	}
	s.state = simPresent
}

func (s *swdSim) readRegister() uint32 {
	if !s.req.ap {
		switch s.req.addr {
		case 0x0:
			return s.idcode
		case 0x4:
			if s.ctrlStat&0x50000000 == 0x50000000 {
				if s.powerUpDelay > 0 {
					s.powerUpDelay--
					return s.ctrlStat
				}
				return s.ctrlStat | 0xa0000000
			}
			return s.ctrlStat
		case 0xC:
			return s.rdbuff
		}
		return 0
	}

	apsel := uint8(s.selectReg >> 24)
	reg := uint8(s.selectReg>>4&0xF)<<4 | s.req.addr

	var value uint32
	switch {
	case reg == 0xFC:
		value = s.idr[apsel]
	case apsel == 0:
		switch reg {
		case 0x00:
			value = s.csw
		case 0x04:
			value = s.tar
		case 0x0C:
			value = s.mem[s.tar]
			s.bumpTar()
		}
	default:
		if regs, ok := s.ctrlRegs[apsel]; ok {
			value = regs[reg]
		}
	}

	// AP reads are posted; the in-flight response is stale and the
	// fresh value lands in RDBUFF.
	s.rdbuff = value
	return 0
}

func (s *swdSim) writeRegister(value uint32) {
	if !s.req.ap {
		switch s.req.addr {
		case 0x0:
			s.abortWrites = append(s.abortWrites, value)
		case 0x4:
			s.ctrlStat = value
		case 0x8:
			s.selectReg = value
		}
		return
	}

	apsel := uint8(s.selectReg >> 24)
	reg := uint8(s.selectReg>>4&0xF)<<4 | s.req.addr

	switch {
	case apsel == 0 && reg == 0x00:
		s.csw = value
	case apsel == 0 && reg == 0x04:
		s.tar = value
	case apsel == 0 && reg == 0x0C:
		s.mem[s.tar] = value
		if s.tar == scsDHCSR {
			s.updateHaltState(value)
		}
		if s.onMemWrite != nil {
			s.onMemWrite(s.tar, value)
		}
		s.bumpTar()
	default:
		regs, ok := s.ctrlRegs[apsel]
		if !ok {
			return
		}
		regs[reg] = value
		if s.onCtrlAp != nil {
			s.onCtrlAp(apsel, reg, value)
		}
	}
}

// updateHaltState models the DHCSR halt latch: a keyed write with both
// C_DEBUGEN and C_HALT raises S_HALT, any other keyed write drops it.
func (s *swdSim) updateHaltState(value uint32) {
	if value&0xFFFF0000 != dhcsrDBGKEY {
		return
	}
	ctl := value & 0xFFFF
	if ctl&dhcsrCDEBUGEN != 0 && ctl&dhcsrCHALT != 0 {
		s.mem[scsDHCSR] = ctl | dhcsrSHALT
	} else {
		s.mem[scsDHCSR] = ctl
	}
}

// bumpTar models the MEM-AP auto-increment, including the hardware's
// wrap at the 1 KiB boundary.
func (s *swdSim) bumpTar() {
	if s.csw&0x30 == 0x10 {
		s.tar = s.tar&^0x3FF | (s.tar+4)&0x3FF
	}
}
