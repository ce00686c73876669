// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Linux GPIO character device pin bank for SBC hosts with the SWD
// lines wired straight to header pins.

package gonrflink

import (
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// CdevBank opens pins on one gpiochip through the character device.
type CdevBank struct {
	chip string

	mu    sync.Mutex
	lines []*gpiocdev.Line
}

func OpenCdevBank(chip string) *CdevBank {
	return &CdevBank{chip: chip}
}

func (b *CdevBank) Pin(num int) (Pin, error) {
	line, err := gpiocdev.RequestLine(b.chip, num,
		gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithConsumer("gonrflink"))
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.mu.Unlock()

	return &cdevPin{line: line}, nil
}

func (b *CdevBank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var first error
	for _, l := range b.lines {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	b.lines = nil
	return first
}

type cdevPin struct {
	line *gpiocdev.Line

	mu    sync.Mutex
	level int
	err   error
}

func (p *cdevPin) latch(err error) {
	if err != nil && p.err == nil {
		logger.Errorf("GPIO line %d failed: %v", p.line.Offset(), err)
		p.err = err
	}
}

func (p *cdevPin) Drive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latch(p.line.Reconfigure(gpiocdev.AsOutput(p.level)))
}

func (p *cdevPin) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latch(p.line.Reconfigure(gpiocdev.AsInput))
}

func (p *cdevPin) Set(level bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.level = 0
	if level {
		p.level = 1
	}
	p.latch(p.line.SetValue(p.level))
}

func (p *cdevPin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, err := p.line.Value()
	if err != nil {
		p.latch(err)
		return false
	}
	return v != 0
}

func (p *cdevPin) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
