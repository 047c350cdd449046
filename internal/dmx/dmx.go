// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

// Package dmx decodes a DMX512 universe received over a UART configured
// for 250000 baud, 8N2, detecting frame boundaries the same way the
// firmware does: a framing error on the line is the break condition that
// starts a new universe. Grounded on the firmware's dmx.c and on the
// TPM2 decoder's trip/watchdog shape in this module (internal/tpm2).
package dmx

import (
	"github.com/knstwrk/stripeline/internal/timeout"
	"github.com/knstwrk/stripeline/internal/wbuf"
)

// WatchdogTimeout is how long the decoder waits for the next break before
// abandoning a universe in progress.
const WatchdogTimeout = 1000 // ms

// StartCode is the only DMX512 start code this decoder accepts; any other
// first byte after a break aborts the universe (it is not lighting data).
const StartCode = 0x00

// Decoder receives DMX512 slots into the second half of the shared
// working buffer and only makes them visible in the first half — the
// half the mapper reads — once a complete universe has arrived, so a
// torn universe is never observable by a reader.
type Decoder struct {
	clock *timeout.Service
	buf   *wbuf.Buffer

	receiving bool
	count     int // slots received including the start code, 0 = awaiting start code

	trip bool
	trap bool

	watchdog timeout.Deadline
}

// New constructs a decoder writing into buf.
func New(clock *timeout.Service, buf *wbuf.Buffer) *Decoder {
	d := &Decoder{clock: clock, buf: buf}
	d.watchdog = clock.Set(WatchdogTimeout)
	return d
}

// Break signals a UART framing error, the break condition that marks a
// DMX512 frame boundary. If a prior universe was still being received it
// is committed now (the break itself is the "zero start code detected"
// moment the spec describes commit happening at — the new frame's start
// code is the byte right after the break).
func (d *Decoder) Break() {
	if d.receiving && d.count > 1 {
		d.commit()
	}
	d.trap = !d.trap
	if d.trip {
		d.receiving = false
		return
	}
	d.receiving = true
	d.count = 0
	d.watchdog = d.clock.Set(WatchdogTimeout)
}

// Byte feeds one received slot. The first byte after Break is the start
// code; only StartCode is accepted, anything else aborts this universe
// and waits for the next break.
func (d *Decoder) Byte(b byte) {
	if d.trip || !d.receiving {
		return
	}
	d.watchdog = d.clock.Set(WatchdogTimeout)

	if d.count == 0 {
		if b != StartCode {
			d.receiving = false
			return
		}
		d.count++
		return
	}

	idx := d.count - 1
	if idx < wbuf.MaxDMX {
		d.buf.Set(wbuf.MaxDMX+idx, b)
	}
	d.count++
}

// commit atomically publishes the in-progress universe by overwriting the
// visible first half from the working second half, then raises Trip.
func (d *Decoder) commit() {
	copy(d.buf.Bytes()[:wbuf.MaxDMX], d.buf.Bytes()[wbuf.MaxDMX:2*wbuf.MaxDMX])
	d.trip = true
	d.receiving = false
}

// Trip reports whether a complete universe is waiting for consumption.
func (d *Decoder) Trip() bool {
	return d.trip
}

// Clear acknowledges consumption of the tripped universe.
func (d *Decoder) Clear() {
	d.trip = false
}

// Trap toggles on every valid break, a liveness indicator independent of
// Trip a caller can sample to see the decoder is still seeing traffic.
func (d *Decoder) Trap() bool {
	return d.trap
}

// Detect runs the stall watchdog: if no break/byte has arrived within
// WatchdogTimeout of the last one, the in-progress universe is abandoned.
// It returns false when the watchdog just fired.
func (d *Decoder) Detect() bool {
	if d.clock.Expired(d.watchdog) {
		d.receiving = false
		d.watchdog = d.clock.Set(WatchdogTimeout)
		return false
	}
	return true
}
