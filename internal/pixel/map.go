// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package pixel

import "github.com/knstwrk/stripeline/internal/wbuf"

// Channel is one color channel of a Map: either a fixed literal or a
// buffer range that is walked and wrapped independently of the other two
// channels and of the destination range.
type Channel struct {
	Static bool
	Value  byte

	Begin, End int
	Step       int8
}

// Map is a declarative transform from a slice of the working buffer to a
// slice of LEDs on one string, as defined by the configuration language's
// `map { }` blocks.
type Map struct {
	String     int
	Begin, End int
	Step       int8

	Red, Green, Blue Channel
	CMY              bool
}

// Apply evaluates the map over buf, writing scaled pixels into eng.
func (m Map) Apply(eng *Engine, buf *wbuf.Buffer) {
	step := int(m.Step)
	count := 1
	if step != 0 {
		span := m.End - m.Begin
		if span < 0 {
			span = -span
		}
		absStep := step
		if absStep < 0 {
			absStep = -absStep
		}
		count = span/absStep + 1
	}

	rPos, gPos, bPos := m.Red.Begin, m.Green.Begin, m.Blue.Begin
	i := m.Begin
	for n := 0; n < count; n++ {
		r := resolveChannel(buf, m.Red, &rPos)
		g := resolveChannel(buf, m.Green, &gPos)
		b := resolveChannel(buf, m.Blue, &bPos)

		if m.CMY {
			eng.CMY(i, m.String, r, g, b)
		} else {
			eng.RGB(i, m.String, r, g, b)
		}

		i += step
	}
}

// resolveChannel returns the next value for a channel: the literal for a
// Static channel, or the buffer byte at *pos, advancing *pos by Step and
// wrapping back to Begin once it passes End.
func resolveChannel(buf *wbuf.Buffer, ch Channel, pos *int) byte {
	if ch.Static {
		return ch.Value
	}

	v := buf.At(*pos)

	*pos += int(ch.Step)
	if ch.Step >= 0 {
		if *pos > ch.End {
			*pos = ch.Begin
		}
	} else {
		if *pos < ch.End {
			*pos = ch.Begin
		}
	}
	return v
}
