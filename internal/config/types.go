// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

// Package config implements the node's declarative scene/configuration
// language: a hand-written lexer and a two-pass recursive-descent parser
// over a block-structured grammar (rf{}, leds{}, mode "name"{}), grounded
// on the firmware's config.c byte-offset re-parse model. The structural
// pass builds a Root; the runtime pass (Stream) re-tokenizes from a
// recorded byte offset one statement at a time for the scene engine,
// trading CPU for RAM exactly as the original firmware does.
package config

import "github.com/knstwrk/stripeline/internal/pixel"

// ModeTag is the node's top-level run mode, set exactly once by a
// `mode "<name>" { }` block.
type ModeTag int

const (
	ModeNone ModeTag = iota
	ModeBeacon
	ModeDMX
	ModeRX
	ModeScene
	ModeStandalone
	ModeTPM2
	ModeTX
)

func (m ModeTag) String() string {
	switch m {
	case ModeBeacon:
		return "beacon"
	case ModeDMX:
		return "dmx"
	case ModeRX:
		return "rx"
	case ModeScene:
		return "scene"
	case ModeStandalone:
		return "standalone"
	case ModeTPM2:
		return "tpm2"
	case ModeTX:
		return "tx"
	default:
		return "none"
	}
}

var modeNames = map[string]ModeTag{
	"beacon":     ModeBeacon,
	"dmx":        ModeDMX,
	"rx":         ModeRX,
	"scene":      ModeScene,
	"standalone": ModeStandalone,
	"tpm2":       ModeTPM2,
	"tx":         ModeTX,
}

// RF holds the radio link's configured parameters, validated per §6.
type RF struct {
	Frequency   int64 // Hz
	Bitrate     int64 // bit/s
	Fdev        int64 // Hz
	AFCBW       int64 // Hz
	RXBW        int64 // Hz
	Power       int64 // dBm
	Sensitivity int64 // dBm, negative
	Mesh        uint16
	Node        uint8
}

// DefaultRF mirrors §6's stated defaults, installed before the config
// file is parsed so a file that omits an `rf{}` block still yields a
// usable radio configuration.
func DefaultRF() RF {
	return RF{
		Frequency:   868_000_000,
		Bitrate:     4800,
		Fdev:        5000,
		AFCBW:       15600,
		RXBW:        10400,
		Power:       13,
		Sensitivity: -90,
	}
}

// LEDs holds the pixel engine's persistent configuration.
type LEDs struct {
	Length        int
	Framerate     int
	Dim           pixel.RGB
	Maps          []pixel.Map
	DefaultMaps   []pixel.Map
	DefaultOffset int64
}

// Mode holds the selected run mode and its scene catalogue.
type Mode struct {
	Mode ModeTag
	Name string

	Listen int // ms, 1..20000

	// SceneOffsets maps scene number -> byte offset of its body (right
	// after the opening brace). Direct-addressable numbers 0..9 get an
	// O(1) slot in the firmware; this port keeps a flat map instead,
	// since a plain Go map already gives the same observable behavior
	// as the 10-slot table plus linear fallback search.
	SceneOffsets map[int]int64
}

// SceneOffset returns the recorded byte offset for scene n, or (0,
// false) if the configuration never defined it.
func (m Mode) SceneOffset(n int) (int64, bool) {
	off, ok := m.SceneOffsets[n]
	return off, ok
}

// Root is the parsed configuration: the three top-level blocks plus the
// raw source, retained so the scene engine's Stream can re-tokenize from
// any recorded offset without re-reading the file.
type Root struct {
	RF   RF
	LEDs LEDs
	Mode Mode

	Source []byte
}

// NewStream returns a runtime statement parser positioned at byte
// offset off into the retained source, for the scene engine to drive one
// statement per Play tick.
func (r *Root) NewStream(off int64) *Stream {
	return newStream(r.Source, off)
}
