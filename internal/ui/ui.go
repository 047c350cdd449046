// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

// Package ui implements the node's front-panel input: a 4-bit hex rotary
// switch and one pushbutton, both read through the firmware's shift-and-
// confirm debounce pattern (the same shape the TPM2 decoder's sync
// counter uses, reused here for a second, independent debounce concern).
package ui

import "github.com/knstwrk/stripeline/internal/timeout"

// UIDebounceTimeout is the fixed sampling tick for the hex switch.
const UIDebounceTimeout = 10 // ms

// UIDebounceDepth is how many consecutive stable samples are required
// before a new reading is confirmed.
const UIDebounceDepth = 8

// HexSwitch is the abstract 4-bit Gray-style GPIO read of the front-panel
// rotary switch.
type HexSwitch interface {
	Read() int // 0..15
}

// Pushbutton is the abstract, already hardware-debounced pushbutton
// input.
type Pushbutton interface {
	Level() bool
}

// Panel debounces the hex switch on a fixed tick and exposes the
// pushbutton's level directly.
type Panel struct {
	clock  *timeout.Service
	sw     HexSwitch
	button Pushbutton

	deadline timeout.Deadline

	candidate int
	run       int

	confirmed int
}

// New constructs a Panel. The initial confirmed value is read once from
// sw without waiting for the debounce depth, so a panel already settled
// at boot reports correctly on the very first Hex() call.
func New(clock *timeout.Service, sw HexSwitch, button Pushbutton) *Panel {
	p := &Panel{clock: clock, sw: sw, button: button}
	p.confirmed = sw.Read()
	p.candidate = p.confirmed
	p.run = UIDebounceDepth
	p.deadline = clock.Set(UIDebounceTimeout)
	return p
}

// Debounce samples the hex switch once per UIDebounceTimeout tick,
// requiring UIDebounceDepth consecutive identical samples before Hex()
// reports a changed value. Call it once per cooperative loop iteration.
func (p *Panel) Debounce() {
	if !p.clock.Expired(p.deadline) {
		return
	}
	p.deadline = p.clock.Set(UIDebounceTimeout)

	sample := p.sw.Read()
	if sample == p.candidate {
		if p.run < UIDebounceDepth {
			p.run++
		}
	} else {
		p.candidate = sample
		p.run = 1
	}
	if p.run >= UIDebounceDepth {
		p.confirmed = p.candidate
	}
}

// Hex returns the last confirmed hex switch reading, 0..15.
func (p *Panel) Hex() int {
	return p.confirmed
}

// Input reports the pushbutton's current level.
func (p *Panel) Input() bool {
	return p.button.Level()
}
