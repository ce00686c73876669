// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gonrflink

// Pin is a single GPIO line of the programmer's pin bank. The bit-bang
// hot path cannot afford per-edge error returns, so implementations
// latch their first I/O failure and report it through Err(); the
// protocol layer detects a dead line through ACK and parity checks
// anyway.
type Pin interface {
	// Drive configures the line as a push-pull output.
	Drive()

	// Release configures the line as an input (high impedance).
	Release()

	// Set drives the output level. Only meaningful while driven.
	Set(level bool)

	// Get samples the line level.
	Get() bool

	// Err returns the first latched I/O error, if any.
	Err() error
}

// PinBank opens numbered pins on some GPIO backend.
type PinBank interface {
	Pin(num int) (Pin, error)
	Close() error
}
