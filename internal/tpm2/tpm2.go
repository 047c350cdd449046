// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

// Package tpm2 decodes TPM2 v1.0 and its TPZ run-length variant from a
// byte stream, depositing frames into the shared working buffer. The
// decoder state machine and auto-baud lock-on counter are grounded on the
// firmware's tpm2.c. The decoder is fed byte by byte: Byte returns only
// an error, and a completed frame stays in the working buffer, located by
// FrameBase and FrameLength once Trip reports it.
package tpm2

import (
	"fmt"

	"github.com/knstwrk/stripeline/internal/timeout"
	"github.com/knstwrk/stripeline/internal/wbuf"
)

// Block type bytes.
const (
	TypeRaw  = 0xDA // "DA": verbatim block
	TypeTPZ  = 0xCA // "CA": run-length compressed block
	startTag = 0xC9
	endTag   = 0x36
)

// BaudRates is the auto-baud rotation, in this exact order (§9: keep the
// same order, it is the de-aliasing mechanism, not an arbitrary list).
var BaudRates = []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 500000}

// Timeout is how long the auto-baud detector waits on one rate before
// rotating to the next.
const Timeout = 1000 // ms

// FrameTimeout is the mid-block stall watchdog.
const FrameTimeout = 4 // ms

// lockThreshold is the number of consecutive valid block starts required
// before the decoder latches onto a baud rate.
const lockThreshold = 5

type state int

const (
	stateDetect state = iota
	stateLenHi
	stateLenLo
	stateData
	stateRepeat
	stateSkip
	stateEnd
)

// Decoder is a TPM2/TPZ byte-stream decoder writing into a shared Buffer.
type Decoder struct {
	clock *timeout.Service
	buf   *wbuf.Buffer

	st state

	// Detect watches the last three bytes for a sync header.
	history  [3]byte
	synced   bool
	lockRuns int

	blockType byte
	length    int // declared length, counts input bytes of the block
	consumed  int // input bytes of the block consumed so far
	written   int // output bytes produced in the buffer so far (>=consumed for TPZ)
	base      int // buffer offset of the current frame's first byte

	trip    bool
	shift   int
	frameDL timeout.Deadline

	baudIndex int
	baudDL    timeout.Deadline
}

// New constructs a decoder writing into buf.
func New(clock *timeout.Service, buf *wbuf.Buffer) *Decoder {
	d := &Decoder{clock: clock, buf: buf}
	d.baudDL = clock.Set(Timeout)
	return d
}

// Baud returns the auto-baud detector's current candidate rate.
func (d *Decoder) Baud() int {
	return BaudRates[d.baudIndex]
}

// Detect rotates the auto-baud candidate every Timeout ms until the
// decoder has locked on (Detect then always reports the locked rate).
func (d *Decoder) Detect() int {
	if !d.synced && d.clock.Expired(d.baudDL) {
		d.baudIndex = (d.baudIndex + 1) % len(BaudRates)
		d.baudDL = d.clock.Set(Timeout)
	}
	return d.Baud()
}

// Trip reports whether a complete frame is waiting for consumption.
func (d *Decoder) Trip() bool {
	return d.trip
}

// Clear acknowledges consumption of the tripped frame.
func (d *Decoder) Clear() {
	d.trip = false
}

// Reset fully reinitializes the decoder's parse state, the Go port of
// the firmware's tp2_reset() (§9): a zero-length chunk means "reset",
// not "empty frame", and must drop any mid-block progress and drive the
// decoder back to a cold detect state rather than merely un-tripping it.
// The auto-baud candidate and its rotation deadline are left untouched,
// since tp2_reset() itself is only ever called between bauds locking on,
// never as part of rotating one.
func (d *Decoder) Reset() {
	d.st = stateDetect
	d.history = [3]byte{}
	d.synced = false
	d.lockRuns = 0
	d.shift = 0
	d.blockType = 0
	d.length = 0
	d.consumed = 0
	d.written = 0
	d.base = 0
	d.trip = false
}

// FrameLength returns the expanded length of the last completed frame.
func (d *Decoder) FrameLength() int {
	return d.written
}

// FrameBase returns the working-buffer offset of the last completed
// frame's first byte.
func (d *Decoder) FrameBase() int {
	return d.base
}

// reset drops any in-progress block and returns to Detect, as a framing
// error or overflow does on the real UART. shift gates re-acquisition of
// the lock: a burst of noise mid-stream costs a few bytes of resync, not
// a full re-lock, unless it persists past lockThreshold resets.
func (d *Decoder) reset() {
	d.st = stateDetect
	d.shift++
	if d.shift > lockThreshold {
		d.synced = false
		d.lockRuns = 0
	}
}

// Byte feeds one decoded stream byte into the state machine. It returns
// an error only for conditions the caller should log; framing noise is
// handled internally via reset(), never surfaced.
func (d *Decoder) Byte(b byte) error {
	if d.trip {
		// Mutually exclusive with the consumer: do not overwrite.
		return nil
	}

	if d.st == stateDetect {
		d.history[0], d.history[1], d.history[2] = d.history[1], d.history[2], b
		if d.history[0] == endTag && d.history[1] == startTag &&
			(d.history[2] == TypeRaw || d.history[2] == TypeTPZ) {
			d.lockRuns++
			d.shift = 0
			if d.lockRuns >= lockThreshold {
				d.synced = true
				d.blockType = d.history[2]
				d.st = stateLenHi
				d.consumed = 0
				d.written = 0
				d.base = 0
				d.frameDL = d.clock.Set(FrameTimeout)
			}
		}
		return nil
	}

	if d.clock.Expired(d.frameDL) {
		d.reset()
		return fmt.Errorf("tpm2: frame watchdog expired mid-block")
	}
	d.frameDL = d.clock.Set(FrameTimeout)

	switch d.st {
	case stateLenHi:
		d.length = int(b) << 8
		d.st = stateLenLo
		return nil

	case stateLenLo:
		d.length |= int(b)
		d.consumed, d.written = 0, 0
		if d.length == 0 {
			d.st = stateEnd
			return nil
		}
		d.st = stateData
		return nil

	case stateData:
		return d.data(b)

	case stateRepeat:
		return d.repeat(b)

	case stateSkip:
		d.consumed++
		if d.consumed >= d.length {
			d.st = stateEnd
		}
		return nil

	case stateEnd:
		if b != endTag {
			d.reset()
			return fmt.Errorf("tpm2: expected end tag 0x%02X, got 0x%02X", endTag, b)
		}
		return d.complete()

	default:
		d.reset()
		return fmt.Errorf("tpm2: invalid state")
	}
}

func (d *Decoder) data(b byte) error {
	if d.written >= wbuf.MaxBuffer {
		d.st = stateSkip
		d.consumed++
		if d.consumed >= d.length {
			d.st = stateEnd
		}
		return nil
	}

	d.buf.Set(d.base+d.written, b)
	d.written++
	d.consumed++

	if d.blockType == TypeTPZ && d.written >= 6 && tripletsRepeat(d.buf, d.base+d.written-6) {
		d.st = stateRepeat
		return nil
	}

	if d.consumed >= d.length {
		d.st = stateEnd
	}
	return nil
}

// repeat handles the TPZ run-length count byte: the most recently written
// triplet is copied n further times (n <= 250), then decoding resumes.
func (d *Decoder) repeat(b byte) error {
	n := int(b)
	for rep := 0; rep < n; rep++ {
		for k := 0; k < 3 && d.written < wbuf.MaxBuffer; k++ {
			d.buf.Set(d.base+d.written, d.buf.At(d.base+d.written-3))
			d.written++
		}
	}
	d.consumed++
	d.st = stateData
	if d.consumed >= d.length {
		d.st = stateEnd
	}
	return nil
}

func tripletsRepeat(buf *wbuf.Buffer, at int) bool {
	for i := 0; i < 3; i++ {
		if buf.At(at+i) != buf.At(at+3+i) {
			return false
		}
	}
	return true
}

func (d *Decoder) complete() error {
	d.st = stateDetect
	d.lockRuns = lockThreshold
	d.trip = true
	return nil
}
