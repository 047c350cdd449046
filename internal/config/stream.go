// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package config

import (
	"io"

	"github.com/knstwrk/stripeline/internal/pixel"
	"github.com/knstwrk/stripeline/internal/wbuf"
)

// StmtKind tags one decoded scene statement.
type StmtKind int

const (
	StmtStop StmtKind = iota
	StmtFile
	StmtPause
	StmtMap
	StmtFramerate
	StmtDim
)

// Statement is one scene-body statement decoded by Stream.Next, the
// runtime analog of the structural pass's Root fields — this is the
// byte-offset re-parse the scene engine drives one tick at a time
// instead of materializing an AST (§4.5, §9).
type Statement struct {
	Kind StmtKind

	File      string    // StmtFile
	PauseMs   int       // StmtPause
	MapOffset int64     // StmtMap: byte offset of the map block's entries
	Fps       int       // StmtFramerate
	Dim       pixel.RGB // StmtDim
}

// Stream is a byte-offset cursor over a retained configuration source,
// used by the scene engine to decode one statement per Play tick and by
// MAP commands to re-evaluate a recorded map block on demand.
type Stream struct {
	src []byte
	cur *cursor
}

func newStream(src []byte, off int64) *Stream {
	lex := NewLexer(src)
	lex.Seek(off)
	c, err := newCursor(lex)
	if err != nil {
		// A Seek offset was recorded by our own structural pass over
		// the same source, so a lex error here means the source was
		// mutated out from under the scene engine; surface it as EOF,
		// which Next's callers already treat as "scene over".
		return &Stream{src: src, cur: &cursor{lex: lex, cur: Token{Kind: TokEOF}}}
	}
	return &Stream{src: src, cur: c}
}

// Seek repositions the stream to a previously recorded byte offset
// (e.g. to resume a paused scene, or to restart one from its head).
func (s *Stream) Seek(off int64) error {
	s.cur.lex.Seek(off)
	return s.cur.advance()
}

// Pos returns the byte offset the stream is currently positioned at,
// for the scene engine to save as the "paused position" (§4.6).
func (s *Stream) Pos() int64 {
	return int64(s.cur.cur.Pos)
}

// Next decodes one scene statement and advances past it. It returns
// io.EOF, without advancing, once positioned at the scene body's closing
// brace — the caller decides whether that means the scene loops back to
// its head or stops.
func (s *Stream) Next() (Statement, error) {
	c := s.cur
	if c.at(TokRBrace) || c.at(TokEOF) {
		return Statement{}, io.EOF
	}

	if c.at(TokString) {
		tok := c.cur
		if err := c.advance(); err != nil {
			return Statement{}, err
		}
		if _, err := c.expect(TokSemi, ";"); err != nil {
			return Statement{}, err
		}
		return Statement{Kind: StmtFile, File: tok.Text}, nil
	}

	kw, err := c.expectKeyword("pause", "map", "framerate", "dim", "stop")
	if err != nil {
		return Statement{}, err
	}

	switch kw {
	case "stop":
		if _, err := c.expect(TokSemi, ";"); err != nil {
			return Statement{}, err
		}
		return Statement{Kind: StmtStop}, nil

	case "pause":
		if _, err := c.expect(TokColon, ":"); err != nil {
			return Statement{}, err
		}
		tok, err := c.expect(TokInt, "integer")
		if err != nil {
			return Statement{}, err
		}
		if _, err := c.expect(TokSemi, ";"); err != nil {
			return Statement{}, err
		}
		return Statement{Kind: StmtPause, PauseMs: int(tok.Int)}, nil

	case "framerate":
		if _, err := c.expect(TokColon, ":"); err != nil {
			return Statement{}, err
		}
		tok, err := c.expect(TokInt, "integer")
		if err != nil {
			return Statement{}, err
		}
		if _, err := c.expect(TokSemi, ";"); err != nil {
			return Statement{}, err
		}
		return Statement{Kind: StmtFramerate, Fps: int(tok.Int)}, nil

	case "dim":
		if _, err := c.expect(TokColon, ":"); err != nil {
			return Statement{}, err
		}
		r, g, b, _, err := c.colorExpr(0, wbuf.MaxBuffer-1)
		if err != nil {
			return Statement{}, err
		}
		if _, err := c.expect(TokSemi, ";"); err != nil {
			return Statement{}, err
		}
		return Statement{Kind: StmtDim, Dim: pixel.RGB{R: r.Value, G: g.Value, B: b.Value}}, nil

	case "map":
		if _, err := c.expect(TokLBrace, "{"); err != nil {
			return Statement{}, err
		}
		off := int64(c.cur.Pos)
		if err := c.skipBlock(); err != nil {
			return Statement{}, err
		}
		return Statement{Kind: StmtMap, MapOffset: off}, nil
	}

	return Statement{}, c.errf("unreachable")
}

// Maps re-parses a map block recorded at off (by StmtMap or
// LEDs.DefaultOffset) into concrete pixel.Map values, without disturbing
// the stream's own current position.
func (s *Stream) Maps(off int64) ([]pixel.Map, error) {
	lex := NewLexer(s.src)
	lex.Seek(off)
	c, err := newCursor(lex)
	if err != nil {
		return nil, err
	}
	return parseMapEntries(c, 0, wbuf.MaxLEDs-1, 0, wbuf.MaxBuffer-1)
}
