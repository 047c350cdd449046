// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package config

import "github.com/knstwrk/stripeline/internal/pixel"

// pct maps a 0..100 percentage to a 0..255 byte, the mapping §4.5's
// `int%` literal uses everywhere a color component appears.
func pct(v int64) byte {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return byte(v * 255 / 100)
}

// scalarLiteral parses `int` or `int%`, returning a clamped byte value.
func (c *cursor) scalarLiteral() (byte, error) {
	tok, err := c.expect(TokInt, "integer")
	if err != nil {
		return 0, err
	}
	if c.at(TokPercent) {
		if err := c.advance(); err != nil {
			return 0, err
		}
		return pct(tok.Int), nil
	}
	v := tok.Int
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return byte(v), nil
}

// channelArg parses one rgb()/cmy() argument: either a literal (int or
// int%) or a buffer range `[...]`, returning the Channel it describes.
func (c *cursor) channelArg(bufLo, bufHi int) (pixel.Channel, error) {
	if c.at(TokLBrack) {
		begin, end, step, err := c.rangeExpr(bufLo, bufHi)
		if err != nil {
			return pixel.Channel{}, err
		}
		return pixel.Channel{Begin: begin, End: end, Step: int8(step)}, nil
	}
	v, err := c.scalarLiteral()
	if err != nil {
		return pixel.Channel{}, err
	}
	return pixel.Channel{Static: true, Value: v}, nil
}

// colorExpr parses a map entry's right-hand side: a fully static triplet
// introduced by '&', or a bare rgb()/cmy() form whose channels may each
// independently be a literal or a buffer range.
func (c *cursor) colorExpr(bufLo, bufHi int) (r, g, b pixel.Channel, cmy bool, err error) {
	if c.at(TokAmp) {
		if err = c.advance(); err != nil {
			return
		}
		return c.staticColor()
	}
	return c.channelColor(bufLo, bufHi)
}

// staticColor parses the '&'-prefixed literal color forms: rgb(c,c,c),
// cmy(c,c,c), or a bare gray int/int%.
func (c *cursor) staticColor() (r, g, b pixel.Channel, cmy bool, err error) {
	if c.at(TokIdent) && (c.cur.Text == "rgb" || c.cur.Text == "cmy") {
		cmy = c.cur.Text == "cmy"
		if err = c.advance(); err != nil {
			return
		}
		if _, err = c.expect(TokLParen, "("); err != nil {
			return
		}
		var rv, gv, bv byte
		if rv, err = c.scalarLiteral(); err != nil {
			return
		}
		if _, err = c.expect(TokComma, ","); err != nil {
			return
		}
		if gv, err = c.scalarLiteral(); err != nil {
			return
		}
		if _, err = c.expect(TokComma, ","); err != nil {
			return
		}
		if bv, err = c.scalarLiteral(); err != nil {
			return
		}
		if _, err = c.expect(TokRParen, ")"); err != nil {
			return
		}
		r = pixel.Channel{Static: true, Value: rv}
		g = pixel.Channel{Static: true, Value: gv}
		b = pixel.Channel{Static: true, Value: bv}
		return
	}
	v, e := c.scalarLiteral()
	if e != nil {
		err = e
		return
	}
	r = pixel.Channel{Static: true, Value: v}
	g = pixel.Channel{Static: true, Value: v}
	b = pixel.Channel{Static: true, Value: v}
	return
}

// channelColor parses the bare rgb()/cmy() form used when at least one
// channel needs a dynamic buffer-range source.
func (c *cursor) channelColor(bufLo, bufHi int) (r, g, b pixel.Channel, cmy bool, err error) {
	kw, e := c.expectKeyword("rgb", "cmy")
	if e != nil {
		err = e
		return
	}
	cmy = kw == "cmy"
	if _, err = c.expect(TokLParen, "("); err != nil {
		return
	}
	if r, err = c.channelArg(bufLo, bufHi); err != nil {
		return
	}
	if _, err = c.expect(TokComma, ","); err != nil {
		return
	}
	if g, err = c.channelArg(bufLo, bufHi); err != nil {
		return
	}
	if _, err = c.expect(TokComma, ","); err != nil {
		return
	}
	if b, err = c.channelArg(bufLo, bufHi); err != nil {
		return
	}
	_, err = c.expect(TokRParen, ")")
	return
}

// rangeExpr parses `[ (int|^) ( .. (int|$) [% int] )? ]`, resolving ^ and
// $ against (lo, hi) — buffer bounds for channel ranges, LED-index bounds
// for destination ranges — and returns (begin, end, step). A bare
// `[n]` with no ".." collapses to begin=end=n, step=0 (§3: "step≠0
// except when the range collapses to one element").
func (c *cursor) rangeExpr(lo, hi int) (begin, end, step int, err error) {
	if _, err = c.expect(TokLBrack, "["); err != nil {
		return
	}
	if begin, err = c.boundOrInt(lo, hi); err != nil {
		return
	}
	if !c.at(TokDotDot) {
		end = begin
		step = 0
		_, err = c.expect(TokRBrack, "]")
		return
	}
	if err = c.advance(); err != nil {
		return
	}
	if end, err = c.boundOrInt(lo, hi); err != nil {
		return
	}
	mag := 1
	if c.at(TokPercent) {
		if err = c.advance(); err != nil {
			return
		}
		tok, e := c.expect(TokInt, "step")
		if e != nil {
			err = e
			return
		}
		mag = int(tok.Int)
		if mag < 0 {
			mag = -mag
		}
		if mag == 0 {
			mag = 1
		}
	}
	if end < begin {
		step = -mag
	} else {
		step = mag
	}
	_, err = c.expect(TokRBrack, "]")
	return
}

// boundOrInt parses '^' (lo), '$' (hi), or a plain integer.
func (c *cursor) boundOrInt(lo, hi int) (int, error) {
	switch c.cur.Kind {
	case TokCaret:
		return lo, c.advance()
	case TokDollar:
		return hi, c.advance()
	case TokInt:
		tok, err := c.expect(TokInt, "integer")
		return int(tok.Int), err
	default:
		return 0, c.errf("expected ^, $, or integer, got %s", describe(c.cur))
	}
}
