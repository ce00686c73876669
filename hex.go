// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// streaming Intel HEX decoder; records are pushed into a RecordSink as
// they arrive so HTTP request bodies can be flashed without buffering
// the whole file

package gonrflink

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/juju/errors"
)

// RecordSink consumes decoded data records. Flush is called whenever
// the address space jumps (extended address records) and at end of
// file.
type RecordSink interface {
	Data(addr uint32, payload []byte) error
	Flush() error
}

// HexParser decodes an Intel HEX stream incrementally. Feed it with
// Write; it splits lines itself and is safe to hand chunks of any
// size. Records handled: 0x00 data, 0x01 EOF, 0x02 extended segment,
// 0x03 start segment, 0x04 extended linear, 0x05 start linear
// (ignored).
type HexParser struct {
	sink RecordSink

	// BaseBias offsets data records of images whose HEX carries no
	// extended address record (raw application images). The first
	// 0x02/0x04 record disables it.
	BaseBias uint32

	upperLinear uint32
	segment     uint32
	extSeen     bool
	eofSeen     bool

	startAddr uint32
	hasStart  bool

	lineNo  int
	pending []byte
}

func NewHexParser(sink RecordSink) *HexParser {
	return &HexParser{sink: sink}
}

// EOFSeen reports whether the end-of-file record has been processed.
func (p *HexParser) EOFSeen() bool {
	return p.eofSeen
}

// StartAddress returns the entry point from a start segment/linear
// record, if one was present.
func (p *HexParser) StartAddress() (uint32, bool) {
	return p.startAddr, p.hasStart
}

// Write feeds raw stream bytes into the parser. Records after the EOF
// marker are ignored.
func (p *HexParser) Write(b []byte) (int, error) {
	p.pending = append(p.pending, b...)

	for {
		nl := -1
		for i, c := range p.pending {
			if c == '\n' {
				nl = i
				break
			}
		}
		if nl < 0 {
			return len(b), nil
		}

		line := p.pending[:nl]
		p.pending = p.pending[nl+1:]

		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}

		if p.eofSeen || len(line) == 0 {
			continue
		}

		if err := p.parseLine(string(line)); err != nil {
			return len(b), err
		}
	}
}

// Close finishes the stream. A missing EOF record is an error; the
// trailing line does not need a newline terminator.
func (p *HexParser) Close() error {
	if len(p.pending) > 0 && !p.eofSeen {
		line := p.pending
		p.pending = nil
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if len(line) > 0 {
			if err := p.parseLine(string(line)); err != nil {
				return err
			}
		}
	}

	if !p.eofSeen {
		return errors.Errorf("unexpected end of hex data after line %d", p.lineNo)
	}
	return nil
}

func (p *HexParser) parseLine(l string) error {
	p.lineNo++

	if l[0] != ':' {
		return NewHexError(HexErrorSyntax, p.lineNo)
	}
	if len(l) < 11 || len(l)%2 != 1 {
		return NewHexError(HexErrorLength, p.lineNo)
	}

	ld, err := hex.DecodeString(l[1:])
	if err != nil {
		return NewHexError(HexErrorSyntax, p.lineNo)
	}

	recLen := ld[0]
	if len(ld) != 4+int(recLen)+1 {
		return NewHexError(HexErrorLength, p.lineNo)
	}

	checksum := ld[len(ld)-1]
	cs := uint8(0)
	for _, b := range ld[:len(ld)-1] {
		cs += b
	}
	cs = (cs ^ 0xFF) + 1
	if cs != checksum {
		return NewHexError(HexErrorChecksum, p.lineNo)
	}

	recOffset := binary.BigEndian.Uint16(ld[1:3])
	recType := ld[3]
	payload := ld[4 : 4+recLen]

	switch recType {
	case 0x00:
		addr := p.upperLinear<<16 + p.segment + uint32(recOffset)
		if !p.extSeen {
			addr += p.BaseBias
		}
		if err := p.sink.Data(addr, payload); err != nil {
			return errors.Annotatef(err, "line %d", p.lineNo)
		}

	case 0x01:
		p.eofSeen = true
		if err := p.sink.Flush(); err != nil {
			return errors.Annotatef(err, "line %d", p.lineNo)
		}

	case 0x02:
		if recLen != 2 {
			return NewHexError(HexErrorLength, p.lineNo)
		}
		if err := p.sink.Flush(); err != nil {
			return errors.Annotatef(err, "line %d", p.lineNo)
		}
		p.segment = uint32(binary.BigEndian.Uint16(payload)) << 4
		p.extSeen = true

	case 0x03:
		if recLen != 4 {
			return NewHexError(HexErrorLength, p.lineNo)
		}
		cs := uint32(binary.BigEndian.Uint16(payload[0:2]))
		ip := uint32(binary.BigEndian.Uint16(payload[2:4]))
		p.startAddr = cs<<4 | ip
		p.hasStart = true

	case 0x04:
		if recLen != 2 {
			return NewHexError(HexErrorLength, p.lineNo)
		}
		if err := p.sink.Flush(); err != nil {
			return errors.Annotatef(err, "line %d", p.lineNo)
		}
		p.upperLinear = uint32(binary.BigEndian.Uint16(payload))
		p.extSeen = true

	case 0x05:
		if recLen != 4 {
			return NewHexError(HexErrorLength, p.lineNo)
		}
		p.startAddr = binary.BigEndian.Uint32(payload)
		p.hasStart = true

	default:
		return NewHexError(HexErrorUnknownRecord, p.lineNo)
	}

	return nil
}
