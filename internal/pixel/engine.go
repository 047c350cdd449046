// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

// Package pixel implements the node's real-time pixel pipeline: bit-plane
// transposition across up to six parallel WS2812B/SK6812 strings, global
// dim scaling, frame-rate gating, and the capture/release write discipline.
// It is grounded on the firmware's leds.c (transpose/scale/map2) with the
// DMA-equivalent waveform generator replaced by an abstract StringDriver
// so the core stays testable off real hardware.
package pixel

import (
	"github.com/knstwrk/stripeline/internal/timeout"
	"github.com/knstwrk/stripeline/internal/wbuf"
)

// MaxStrings is the number of parallel LED strings the engine drives.
const MaxStrings = 6

// StartupDelayMs is the first-frame delay after a rising Enable edge.
const StartupDelayMs = 100

// RGB is a dim triplet or literal color.
type RGB struct {
	R, G, B byte
}

// StringDriver is the hardware/DMA-equivalent abstraction: it accepts a
// bit-plane encoded frame and reports whether a transfer is outstanding.
// A real implementation drives GPIO/DMA timed waveforms; the default
// used by tests just records calls.
type StringDriver interface {
	// Enable powers (or un-powers) the LED rail.
	Enable(on bool)
	// Emit starts transmitting frame (length*24 bytes, bit k of each byte
	// is string k's sample for that bit-time). Must not block.
	Emit(frame []byte)
	// Busy reports whether a previously started Emit is still in flight.
	Busy() bool
}

// Engine is the node's pixel pipeline singleton, owned by the Node and
// passed by reference into whatever subsystem needs to paint pixels.
type Engine struct {
	driver StringDriver
	clock  *timeout.Service

	length int
	fps    int
	dim    RGB

	maps    [16]Map
	numMaps int

	bitplane [wbuf.MaxLEDs][24]byte

	enabled         bool
	waitingStartup  bool
	startupDeadline timeout.Deadline

	nextFrame            timeout.Deadline
	frameEmittedThisTick bool

	captured          bool
	universeSinceOpen bool
}

// New constructs a pixel engine driving the given StringDriver.
func New(driver StringDriver, clock *timeout.Service) *Engine {
	return &Engine{driver: driver, clock: clock, dim: RGB{255, 255, 255}}
}

// Configure installs string length (clipped to MaxLEDs), frame rate, the
// global dim triplet, and the persistent map set.
func (e *Engine) Configure(length, fps int, dim RGB, maps ...Map) {
	switch {
	case length <= 0:
		e.length = 0
	case length > wbuf.MaxLEDs:
		e.length = wbuf.MaxLEDs
	default:
		e.length = length
	}
	e.Framerate(fps)
	e.dim = dim
	e.numMaps = 0
	for _, m := range maps {
		if e.numMaps >= len(e.maps) {
			break
		}
		e.maps[e.numMaps] = m
		e.numMaps++
	}
}

// Framerate sets the periodic emission rate. 0 disables automatic pacing
// (manual Universe() calls only); any other value clamps to 1..50 fps.
func (e *Engine) Framerate(fps int) {
	if fps <= 0 {
		e.fps = 0
		return
	}
	if fps > 50 {
		fps = 50
	}
	e.fps = fps
	if e.enabled && !e.waitingStartup {
		e.scheduleNext()
	}
}

// Enable power-gates the LED rail. On the rising edge the frame buffer is
// cleared and a first frame is scheduled StartupDelayMs later; on the
// falling edge three blank frames are emitted before power is cut, so the
// rail never carries live data while unpowered.
func (e *Engine) Enable(on bool) {
	if on == e.enabled {
		return
	}
	if on {
		e.enabled = true
		e.Clear()
		e.driver.Enable(true)
		e.waitingStartup = true
		e.startupDeadline = e.clock.Set(StartupDelayMs)
		return
	}

	e.Clear()
	for i := 0; i < 3; i++ {
		e.emitNow()
	}
	e.driver.Enable(false)
	e.enabled = false
	e.waitingStartup = false
}

func (e *Engine) scheduleNext() {
	if e.fps == 0 {
		return
	}
	e.nextFrame = e.clock.Set(uint32(1000 / e.fps))
	e.frameEmittedThisTick = false
}

// Tick advances frame pacing; call it once per cooperative loop iteration.
func (e *Engine) Tick() {
	if !e.enabled {
		return
	}
	if e.waitingStartup {
		if e.clock.Expired(e.startupDeadline) {
			e.waitingStartup = false
			e.scheduleNext()
			e.Universe()
		}
		return
	}
	if e.fps == 0 {
		return
	}
	if e.clock.Expired(e.nextFrame) {
		e.scheduleNext()
		if e.captured {
			// Frame pacing tick dropped: a capture is held. No queue.
			return
		}
		e.Universe()
	}
}

// Capture attempts to acquire exclusive write access to the frame buffer.
// It succeeds only when no capture is already held and no transfer is in
// flight; while held, the periodic emitter is inhibited.
func (e *Engine) Capture() bool {
	if e.captured || e.driver.Busy() {
		return false
	}
	e.captured = true
	e.universeSinceOpen = false
	return true
}

// Release ends a capture. If the capture succeeded but nothing called
// Universe since, one asynchronous frame is emitted now so writes made
// during the capture become visible.
func (e *Engine) Release() {
	if !e.captured {
		return
	}
	e.captured = false
	if !e.universeSinceOpen {
		e.Universe()
	}
}

// Busy reports whether a transfer is currently outstanding.
func (e *Engine) Busy() bool {
	return e.driver.Busy()
}

// Universe schedules emission of the current frame buffer. It is
// idempotent while a transfer is already in progress.
func (e *Engine) Universe() {
	if e.driver.Busy() {
		return
	}
	e.emitNow()
	e.frameEmittedThisTick = true
	if e.captured {
		e.universeSinceOpen = true
	}
}

func (e *Engine) emitNow() {
	frame := make([]byte, e.length*24)
	for i := 0; i < e.length; i++ {
		copy(frame[i*24:i*24+24], e.bitplane[i][:])
	}
	e.driver.Emit(frame)
}

// Clear sets every output to the off pattern. The protocol inverts bit
// polarity on the wire, so "off" is internally stored as all-ones across
// the six string bits of every bit-time byte.
func (e *Engine) Clear() {
	for i := range e.bitplane {
		for j := range e.bitplane[i] {
			e.bitplane[i][j] = 0x3F // low 6 bits, one per string
		}
	}
}

// writePixel transposes one already-scaled 3-byte (byte0,byte1,byte2)
// pixel into the bit-plane for the given LED index and string, storing
// the wire-inverted polarity (set bit = LED bit clear).
func (e *Engine) writePixel(index, str int, b0, b1, b2 byte) {
	idx := wbuf.ClipLED(index)
	if str < 0 || str >= MaxStrings {
		return
	}
	bytes3 := [3]byte{b0, b1, b2}
	mask := byte(1) << str
	for bi := 0; bi < 3; bi++ {
		v := bytes3[bi]
		for bit := 0; bit < 8; bit++ {
			pos := bi*8 + bit
			on := (v>>(7-bit))&1 == 1
			if on {
				e.bitplane[idx][pos] &^= mask
			} else {
				e.bitplane[idx][pos] |= mask
			}
		}
	}
}

// RGB writes one pixel after dim scaling. Wire order is G,R,B.
func (e *Engine) RGB(index, str int, r, g, b byte) {
	sr, sg, sb := scale(r, e.dim.R), scale(g, e.dim.G), scale(b, e.dim.B)
	e.writePixel(index, str, sg, sr, sb)
}

// CMY writes one pixel given cyan/magenta/yellow, converting to RGB via
// bitwise complement before scaling and transposing.
func (e *Engine) CMY(index, str int, c, m, y byte) {
	e.RGB(index, str, ^c, ^m, ^y)
}

// Map applies one LED map to the given working buffer.
func (e *Engine) Map(buf *wbuf.Buffer, m Map) {
	m.Apply(e, buf)
}

// Maps applies every stored persistent map in order.
func (e *Engine) Maps(buf *wbuf.Buffer) {
	for i := 0; i < e.numMaps; i++ {
		e.maps[i].Apply(e, buf)
	}
}

// Length returns the configured string length.
func (e *Engine) Length() int { return e.length }

// Dim returns the current global dim triplet.
func (e *Engine) Dim() RGB { return e.dim }

// SetDim changes the global dim triplet (the scene engine's DIM command).
func (e *Engine) SetDim(dim RGB) { e.dim = dim }
