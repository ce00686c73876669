// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Segger RTT client over the MEM-AP: locates the control block in
// target SRAM, tracks the channel descriptors and drains up-channel
// ring buffers without stopping the CPU.

package gonrflink

import (
	"bytes"
)

type RttDataCb func(channel int, data []byte) error

// descriptor layout inside the control block, all offsets in bytes
const (
	rttControlBlockSize = 24
	rttChannelDescSize  = 24
	rttChannelRdOffPos  = 16

	rttScanChunk = 4096
)

var rttMagic = []byte("SEGGER RTT")

// rttChannel mirrors one channel descriptor as last read from the
// target. name and buffer hold target-side pointers.
type rttChannel struct {
	name         uint32
	buffer       uint32
	sizeOfBuffer uint32
	wrOff        uint32
	rdOff        uint32
	flags        uint32
}

// Rtt drains Segger RTT channels of a running target. The zero value
// is not usable; obtain one through FindRtt.
type Rtt struct {
	session *Session

	addr           uint32 // control block address in target RAM
	maxUpBuffers   uint32
	maxDownBuffers uint32
	channels       []rttChannel
}

// FindRtt scans ramSize bytes of SRAM for the RTT control block id and
// parses the block header. The scan reads in page-sized chunks and
// keeps an overlap so an id straddling a chunk boundary is still found.
func FindRtt(s *Session, ramStart uint32, ramSize uint32) (*Rtt, error) {
	if err := s.requireConnected(); err != nil {
		return nil, err
	}

	logger.Debugf("searching %d KiB of RAM for the RTT control block", ramSize/1024)

	overlap := len(rttMagic) - 1

	for offset := uint32(0); offset < ramSize; offset += rttScanChunk {
		chunkLen := uint32(rttScanChunk + overlap)
		if offset+chunkLen > ramSize {
			chunkLen = ramSize - offset
		}

		chunk, err := s.ReadMemBytes(ramStart+offset, int(chunkLen))
		if err != nil {
			return nil, err
		}

		occ := bytes.Index(chunk, rttMagic)
		if occ < 0 {
			continue
		}

		r := &Rtt{session: s, addr: ramStart + offset + uint32(occ)}
		logger.Infof("found RTT control block at 0x%08x", r.addr)

		// the id lives at the start of a word-aligned C struct; a
		// misaligned hit is a stray copy of the string
		if r.addr&3 != 0 {
			continue
		}

		header, err := s.ReadMemBytes(r.addr, rttControlBlockSize)
		if err != nil {
			return nil, err
		}
		r.maxUpBuffers = le_to_h_u32(header[16:])
		r.maxDownBuffers = le_to_h_u32(header[20:])

		if r.maxUpBuffers == 0 || r.maxUpBuffers > 16 || r.maxDownBuffers > 16 {
			return nil, NewSwdError("RTT control block has implausible channel counts", ErrorProtocol)
		}

		logger.Debugf("RTT: %d up / %d down channels", r.maxUpBuffers, r.maxDownBuffers)

		r.channels = make([]rttChannel, r.maxUpBuffers+r.maxDownBuffers)
		return r, nil
	}

	return nil, NewSwdError("no RTT control block in target RAM", ErrorProtocol)
}

// UpdateChannels re-reads all channel descriptors from the target.
func (r *Rtt) UpdateChannels() error {
	count := uint32(len(r.channels))

	raw, err := r.session.ReadMemBytes(r.descAddr(0), int(count*rttChannelDescSize))
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		d := raw[i*rttChannelDescSize:]
		r.channels[i] = rttChannel{
			name:         le_to_h_u32(d[0:]),
			buffer:       le_to_h_u32(d[4:]),
			sizeOfBuffer: le_to_h_u32(d[8:]),
			wrOff:        le_to_h_u32(d[12:]),
			rdOff:        le_to_h_u32(d[16:]),
			flags:        le_to_h_u32(d[20:]),
		}
	}

	return nil
}

// descAddr returns the target address of channel descriptor idx.
func (r *Rtt) descAddr(idx uint32) uint32 {
	return r.addr + rttControlBlockSize + idx*rttChannelDescSize
}

// ChannelName reads the zero-terminated name of channel idx.
func (r *Rtt) ChannelName(idx int) (string, error) {
	if idx < 0 || idx >= len(r.channels) {
		return "", NewSwdError("RTT channel index out of range", ErrorInvalidArgument)
	}

	ch := r.channels[idx]
	if ch.name == 0 {
		return "", nil
	}

	raw, err := r.session.ReadMemBytes(alignDown(ch.name, 4), 64)
	if err != nil {
		return "", err
	}
	raw = raw[ch.name-alignDown(ch.name, 4):]

	if end := bytes.IndexByte(raw, 0); end >= 0 {
		raw = raw[:end]
	}
	return string(raw), nil
}

// ReadChannels drains every up channel that holds data and hands each
// channel's bytes to the callback in one piece.
func (r *Rtt) ReadChannels(callback RttDataCb) error {
	if r.maxUpBuffers == 0 {
		return NewSwdError("target has no RTT up channels", ErrorInvalidState)
	}

	for i := uint32(0); i < r.maxUpBuffers; i++ {
		ch := &r.channels[i]
		if ch.sizeOfBuffer == 0 || ch.rdOff == ch.wrOff {
			continue
		}

		data, err := r.drainChannel(i)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}

		if err := callback(int(i), data); err != nil {
			return err
		}
	}

	return nil
}

// drainChannel copies rdOff..wrOff out of the ring buffer, handling
// the wrap as two linear reads, then publishes the new rdOff so the
// target sees the space as free.
func (r *Rtt) drainChannel(idx uint32) ([]byte, error) {
	ch := &r.channels[idx]

	rd, wr := ch.rdOff, ch.wrOff
	if rd >= ch.sizeOfBuffer || wr >= ch.sizeOfBuffer {
		return nil, NewSwdError("RTT channel offsets out of range", ErrorProtocol)
	}

	var data []byte

	readRange := func(from, to uint32) error {
		raw, err := r.session.ReadMemBytes(alignDown(ch.buffer+from, 4), int(to-from)+4)
		if err != nil {
			return err
		}
		skew := ch.buffer + from - alignDown(ch.buffer+from, 4)
		data = append(data, raw[skew:skew+to-from]...)
		return nil
	}

	if rd < wr {
		if err := readRange(rd, wr); err != nil {
			return nil, err
		}
	} else {
		if err := readRange(rd, ch.sizeOfBuffer); err != nil {
			return nil, err
		}
		if wr > 0 {
			if err := readRange(0, wr); err != nil {
				return nil, err
			}
		}
	}

	rdOffAddr := r.descAddr(idx) + rttChannelRdOffPos
	if err := r.session.WriteMem32(rdOffAddr, wr); err != nil {
		return nil, err
	}
	ch.rdOff = wr

	return data, nil
}
