// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package config

import "github.com/knstwrk/stripeline/internal/pixel"

// parseMapEntries parses the body of a `map { … }` or `default { … }`
// block — zero or more `<string>:<range> = <colorexpr>;` entries — up to
// and including the closing brace. The opening brace must already have
// been consumed by the caller.
func parseMapEntries(c *cursor, ledLo, ledHi, bufLo, bufHi int) ([]pixel.Map, error) {
	var maps []pixel.Map
	for !c.at(TokRBrace) {
		m, err := parseMapEntry(c, ledLo, ledHi, bufLo, bufHi)
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
		if _, err := c.expect(TokSemi, ";"); err != nil {
			return nil, err
		}
	}
	if _, err := c.expect(TokRBrace, "}"); err != nil {
		return nil, err
	}
	return maps, nil
}

func parseMapEntry(c *cursor, ledLo, ledHi, bufLo, bufHi int) (pixel.Map, error) {
	strTok, err := c.expect(TokInt, "string index")
	if err != nil {
		return pixel.Map{}, err
	}
	if strTok.Int < 0 || strTok.Int > 5 {
		return pixel.Map{}, c.errf("string index %d out of range [0,5]", strTok.Int)
	}
	if _, err := c.expect(TokColon, ":"); err != nil {
		return pixel.Map{}, err
	}
	begin, end, step, err := c.rangeExpr(ledLo, ledHi)
	if err != nil {
		return pixel.Map{}, err
	}
	if _, err := c.expect(TokEquals, "="); err != nil {
		return pixel.Map{}, err
	}
	r, g, b, cmy, err := c.colorExpr(bufLo, bufHi)
	if err != nil {
		return pixel.Map{}, err
	}
	return pixel.Map{
		String: int(strTok.Int),
		Begin:  begin, End: end, Step: int8(step),
		Red: r, Green: g, Blue: b,
		CMY: cmy,
	}, nil
}
