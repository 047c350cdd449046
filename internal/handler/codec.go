// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

// Package handler implements the worker-side packet command dispatch
// table (§4.8): PING, START, SKIP, STOP, PAUSE, FRAME, DIM, TPM2, FINGER.
// It is grounded on the firmware's own variadic binary pack/unpack helper,
// ported here as a small format-string codec rather than C varargs.
package handler

import (
	"encoding/binary"
	"fmt"
)

// pack encodes args according to format, one verb per argument in order:
//
//	b  int8/uint8 as a single byte (unsigned)
//	c  int8 signed byte
//	C  uint8 unsigned byte
//	w  int16 little-endian
//	W  uint16 little-endian
//	l  int32 little-endian
//	L  uint32 little-endian
//	@  4 raw bytes, verbatim ([4]byte or []byte of length 4)
//
// Unknown verbs or argument/verb count mismatches panic: this codec only
// ever sees call sites with format strings fixed at compile time.
func pack(format string, args ...interface{}) []byte {
	if len(format) != len(args) {
		panic(fmt.Sprintf("handler: pack format %q wants %d args, got %d", format, len(format), len(args)))
	}
	out := make([]byte, 0, len(format)*2)
	for i, verb := range format {
		out = appendVerb(out, verb, args[i])
	}
	return out
}

func appendVerb(out []byte, verb rune, arg interface{}) []byte {
	switch verb {
	case 'b', 'C':
		return append(out, byte(toInt64(arg)))
	case 'c':
		return append(out, byte(int8(toInt64(arg))))
	case 'w':
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(int16(toInt64(arg))))
		return append(out, b[:]...)
	case 'W':
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(toInt64(arg)))
		return append(out, b[:]...)
	case 'l':
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(toInt64(arg))))
		return append(out, b[:]...)
	case 'L':
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(toInt64(arg)))
		return append(out, b[:]...)
	case '@':
		raw, ok := arg.([]byte)
		if !ok || len(raw) != 4 {
			panic("handler: '@' verb requires a 4-byte []byte argument")
		}
		return append(out, raw...)
	default:
		panic(fmt.Sprintf("handler: unknown pack verb %q", verb))
	}
}

func toInt64(arg interface{}) int64 {
	switch v := arg.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	default:
		panic(fmt.Sprintf("handler: pack verb given non-integer argument %T", arg))
	}
}

// verbSize returns the wire size in bytes of one format verb, or -1 for an
// unknown verb.
func verbSize(verb byte) int {
	switch verb {
	case 'b', 'c', 'C':
		return 1
	case 'w', 'W':
		return 2
	case 'l', 'L', '@':
		return 4
	default:
		return -1
	}
}

// unpack decodes data per format into the returned slice, one entry per
// verb, in the same type convention pack uses for that verb ('c'/'w'/'l'
// decode as signed Go ints, 'C'/'W'/'L'/'b' as unsigned, '@' as a raw
// 4-byte slice). It errors if data is shorter than format demands.
func unpack(format string, data []byte) ([]interface{}, error) {
	out := make([]interface{}, 0, len(format))
	pos := 0
	for _, verb := range format {
		size := verbSize(byte(verb))
		if size < 0 {
			return nil, fmt.Errorf("handler: unknown unpack verb %q", verb)
		}
		if pos+size > len(data) {
			return nil, fmt.Errorf("handler: short packet decoding verb %q at byte %d", verb, pos)
		}
		chunk := data[pos : pos+size]
		pos += size
		switch verb {
		case 'b':
			out = append(out, chunk[0])
		case 'c':
			out = append(out, int8(chunk[0]))
		case 'C':
			out = append(out, chunk[0])
		case 'w':
			out = append(out, int16(binary.LittleEndian.Uint16(chunk)))
		case 'W':
			out = append(out, binary.LittleEndian.Uint16(chunk))
		case 'l':
			out = append(out, int32(binary.LittleEndian.Uint32(chunk)))
		case 'L':
			out = append(out, binary.LittleEndian.Uint32(chunk))
		case '@':
			out = append(out, append([]byte(nil), chunk...))
		}
	}
	return out, nil
}
