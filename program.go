// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// image programmer: erase-then-program of coalesced chunks plus the
// upload progress bookkeeping polled by the control surface

package gonrflink

import (
	"fmt"
	"io"
	"sync"

	"github.com/juju/errors"
)

// ImageKind selects the default base address for images whose HEX
// carries no extended address records.
type ImageKind string

const (
	ImageFull       ImageKind = "full"
	ImageSoftDevice ImageKind = "softdevice"
	ImageApp        ImageKind = "app"
	ImageBootloader ImageKind = "bootloader"
)

// BaseAddr returns the flash offset this image kind is placed at.
func (k ImageKind) BaseAddr() (uint32, error) {
	switch k {
	case ImageFull:
		return BaseAddrFull, nil
	case ImageSoftDevice:
		return BaseAddrSoftDevice, nil
	case ImageApp:
		return BaseAddrApp, nil
	case ImageBootloader:
		return BaseAddrBootloader, nil
	default:
		return 0, NewSwdError(fmt.Sprintf("unknown image kind %q", string(k)), ErrorInvalidArgument)
	}
}

// Progress is the flashing state polled by clients during an upload.
type Progress struct {
	InProgress bool   `json:"in_progress"`
	Received   uint32 `json:"received"`
	Flashed    uint32 `json:"flashed"`
	Total      uint32 `json:"total"`
	Message    string `json:"message"`
}

// Programmer flashes contiguous chunks through a session and tracks
// progress. One upload runs at a time.
type Programmer struct {
	session *Session

	mu       sync.Mutex
	progress Progress
}

func NewProgrammer(session *Session) *Programmer {
	return &Programmer{session: session}
}

// Progress returns a snapshot of the current flashing state.
func (p *Programmer) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func (p *Programmer) setMessage(msg string) {
	p.mu.Lock()
	p.progress.Message = msg
	p.mu.Unlock()
}

func (p *Programmer) addReceived(n int) {
	p.mu.Lock()
	p.progress.Received += uint32(n)
	p.mu.Unlock()
}

func (p *Programmer) addFlashed(n int) {
	p.mu.Lock()
	p.progress.Flashed += uint32(n)
	p.mu.Unlock()
}

// FlashChunk erases the pages covering [addr, addr+len) and programs
// the chunk. UICR addresses are programmed without a page erase; the
// UICR can only be wiped by an erase-all.
func (p *Programmer) FlashChunk(addr uint32, data []byte) error {
	logger.Infof("flashing %d bytes at 0x%08x", len(data), addr)

	if addr < Nrf52FlashSize {
		start := alignDown(addr, Nrf52FlashPageSize)
		end := addr + uint32(len(data)) - 1

		for page := start; page <= end; page += Nrf52FlashPageSize {
			if err := p.session.ErasePage(page); err != nil {
				return err
			}
		}
	}

	if err := p.session.ProgramBuffer(addr, data); err != nil {
		return err
	}

	p.addFlashed(len(data))
	return nil
}

// FlashHex streams an Intel HEX image from r into target flash. The
// session operation lock is held for the whole upload. total is the
// expected stream length in bytes, zero when unknown.
func (p *Programmer) FlashHex(r io.Reader, kind ImageKind, total int64) error {
	base, err := kind.BaseAddr()
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.progress.InProgress {
		p.mu.Unlock()
		return NewSwdError("an upload is already running", ErrorInvalidState)
	}
	p.progress = Progress{
		InProgress: true,
		Total:      uint32(total),
		Message:    "Uploading",
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.progress.InProgress = false
		p.mu.Unlock()
	}()

	p.session.Lock()
	defer p.session.Unlock()

	if err := p.session.requireConnected(); err != nil {
		p.setMessage(err.Error())
		return err
	}

	// keep the CPU off the bus while its flash is reworked
	if err := p.session.HaltCore(); err != nil {
		p.setMessage(err.Error())
		return err
	}

	parser := NewHexParser(NewCoalesceBuffer(p))
	parser.BaseBias = base

	buf := make([]byte, 1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			p.addReceived(n)
			if _, err := parser.Write(buf[:n]); err != nil {
				p.setMessage(err.Error())
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			p.setMessage("upload stream failed")
			return errors.Annotate(readErr, "reading hex stream")
		}
	}

	if err := parser.Close(); err != nil {
		p.setMessage(err.Error())
		return err
	}

	flashed := p.Progress().Flashed
	msg := fmt.Sprintf("Success: Flashed %d bytes", flashed)
	logger.Info(msg)
	p.setMessage(msg)

	return nil
}
