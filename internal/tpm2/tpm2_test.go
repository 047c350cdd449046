// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package tpm2

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/knstwrk/stripeline/internal/timeout"
	"github.com/knstwrk/stripeline/internal/wbuf"
)

type fakeClock struct{ ms uint32 }

func (c *fakeClock) Now() uint32 { return c.ms }

// prime feeds reps repetitions of the end+start+type sequence the
// decoder requires before it trusts a frame boundary. A fresh (never
// synced) decoder needs lockThreshold repetitions; a decoder already
// synced by a prior frame re-locks on a single repetition, since lockRuns
// never drops back below lockThreshold once reached.
func prime(d *Decoder, blockType byte, reps int) {
	for i := 0; i < reps; i++ {
		d.Byte(endTag)
		d.Byte(startTag)
		d.Byte(blockType)
	}
}

func feedFrame(d *Decoder, blockType byte, data []byte, reps int) {
	prime(d, blockType, reps)
	d.Byte(byte(len(data) >> 8))
	d.Byte(byte(len(data)))
	for _, b := range data {
		d.Byte(b)
	}
	d.Byte(endTag)
}

func TestDecodeRawFrame(t *testing.T) {
	clk := timeout.New(&fakeClock{})
	buf := wbuf.New()
	d := New(clk, buf)

	want := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	feedFrame(d, TypeRaw, want, lockThreshold)

	if !d.Trip() {
		t.Fatalf("expected trip after a complete raw frame")
	}
	if d.FrameLength() != len(want) {
		t.Fatalf("frame length = %d, want %d", d.FrameLength(), len(want))
	}
	got := buf.Bytes()[d.FrameBase() : d.FrameBase()+d.FrameLength()]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestDecodeTPZRunLength(t *testing.T) {
	clk := timeout.New(&fakeClock{})
	buf := wbuf.New()
	d := New(clk, buf)

	// A triplet written twice (which signals the run), a repeat count of
	// 2, and one trailing triplet: the repeated triplet must appear
	// 2 (written) + 2 (repeat) times.
	triplet := []byte{0x01, 0x02, 0x03}
	input := append(append([]byte{}, triplet...), triplet...)
	input = append(input, 0x02)             // repeat count: 2 more copies
	input = append(input, 0x09, 0x0A, 0x0B) // trailing triplet

	feedFrame(d, TypeTPZ, input, lockThreshold)

	if !d.Trip() {
		t.Fatalf("expected trip after a complete TPZ frame")
	}
	want := []byte{
		0x01, 0x02, 0x03, // written
		0x01, 0x02, 0x03, // written again
		0x01, 0x02, 0x03, // repeat 1
		0x01, 0x02, 0x03, // repeat 2
		0x09, 0x0A, 0x0B, // trailing
	}
	if d.FrameLength() != len(want) {
		t.Fatalf("expanded length = %d, want %d", d.FrameLength(), len(want))
	}
	got := buf.Bytes()[d.FrameBase() : d.FrameBase()+d.FrameLength()]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestZeroLengthFrameCompletesImmediately(t *testing.T) {
	clk := timeout.New(&fakeClock{})
	buf := wbuf.New()
	d := New(clk, buf)

	feedFrame(d, TypeRaw, nil, lockThreshold)
	if !d.Trip() {
		t.Fatalf("expected trip on a zero-length frame")
	}
	if d.FrameLength() != 0 {
		t.Fatalf("frame length = %d, want 0", d.FrameLength())
	}
}

func TestTripGatesFurtherBytes(t *testing.T) {
	clk := timeout.New(&fakeClock{})
	buf := wbuf.New()
	d := New(clk, buf)

	feedFrame(d, TypeRaw, []byte{0xAA}, lockThreshold)
	if !d.Trip() {
		t.Fatalf("expected trip")
	}
	// Feeding more bytes while tripped must not disturb the held frame.
	prime(d, TypeRaw, 1)
	if d.FrameLength() != 1 || buf.At(d.FrameBase()) != 0xAA {
		t.Fatalf("tripped frame mutated by bytes fed before Clear")
	}

	d.Clear()
	feedFrame(d, TypeRaw, []byte{0xBB}, 1)
	if !d.Trip() || buf.At(d.FrameBase()) != 0xBB {
		t.Fatalf("decoder did not resume after Clear")
	}
}

func TestResetDropsMidBlockProgressAndResyncsCleanly(t *testing.T) {
	clk := timeout.New(&fakeClock{})
	buf := wbuf.New()
	d := New(clk, buf)

	prime(d, TypeRaw, lockThreshold)
	d.Byte(0x00) // lenHi
	d.Byte(0x05) // lenLo: expect 5 data bytes
	d.Byte(0xAA) // one data byte consumed mid-block

	d.Reset()
	if d.Trip() {
		t.Fatalf("Reset must not leave a tripped frame")
	}

	// A fresh frame fed byte-for-byte after Reset must decode from a
	// clean slate: if Reset had left stateData/length/consumed behind,
	// these sync bytes would be swallowed as stale block data instead of
	// being recognized as a new header.
	want := []byte{0x11, 0x22, 0x33}
	feedFrame(d, TypeRaw, want, lockThreshold)
	if !d.Trip() {
		t.Fatalf("expected trip after a clean frame following Reset")
	}
	if d.FrameLength() != len(want) {
		t.Fatalf("frame length = %d, want %d", d.FrameLength(), len(want))
	}
	got := buf.Bytes()[d.FrameBase() : d.FrameBase()+d.FrameLength()]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestFrameWatchdogResetsMidBlock(t *testing.T) {
	c := &fakeClock{}
	clk := timeout.New(c)
	buf := wbuf.New()
	d := New(clk, buf)

	prime(d, TypeRaw, lockThreshold)
	d.Byte(0x00) // lenHi
	d.Byte(0x02) // lenLo: expect 2 data bytes
	d.Byte(0x01) // one data byte consumed

	c.ms += FrameTimeout + 1
	if err := d.Byte(0x02); err == nil {
		t.Fatalf("expected a watchdog error mid-block")
	}
	if d.Trip() {
		t.Fatalf("a watchdog reset must not produce a frame")
	}
}

func TestAutoBaudRotatesUntilLocked(t *testing.T) {
	c := &fakeClock{}
	clk := timeout.New(c)
	buf := wbuf.New()
	d := New(clk, buf)

	start := d.Baud()
	c.ms += Timeout + 1
	next := d.Detect()
	if next == start {
		t.Fatalf("expected auto-baud to rotate past %d", start)
	}
}

// ============================================================
// Fuzz-style tests, matching this corpus's own rand-driven
// TestFuzzXxx convention rather than testing.F corpora.
// ============================================================

func fuzzRounds() int {
	if v := os.Getenv("FUZZ_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 500
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if v := os.Getenv("FUZZ_SEED"); v != "" {
		if s, err := strconv.ParseInt(v, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder and
// verifies it never panics, regardless of how the sync window aligns.
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := fuzzRounds()
	rng := newFuzzRng(t)
	clk := timeout.New(&fakeClock{})

	for i := 0; i < rounds; i++ {
		buf := wbuf.New()
		d := New(clk, buf)
		data := make([]byte, rng.Intn(256))
		rng.Read(data)
		for _, b := range data {
			d.Byte(b)
		}
	}
}

// TestFuzzDecoder_ValidFramesWithNoise interleaves well-formed frames
// with random noise and checks every well-formed frame still trips.
func TestFuzzDecoder_ValidFramesWithNoise(t *testing.T) {
	rounds := fuzzRounds()
	rng := newFuzzRng(t)
	clk := timeout.New(&fakeClock{})

	for i := 0; i < rounds; i++ {
		buf := wbuf.New()
		d := New(clk, buf)

		noise := make([]byte, rng.Intn(32))
		rng.Read(noise)
		for _, b := range noise {
			d.Byte(b)
		}

		data := make([]byte, rng.Intn(64))
		rng.Read(data)
		var blockType byte = TypeRaw
		if rng.Intn(2) == 1 {
			blockType = TypeTPZ
		}
		feedFrame(d, blockType, data, lockThreshold)
		if !d.Trip() {
			t.Fatalf("round %d: expected trip after a well-formed frame following noise", i)
		}
		d.Clear()
	}
}
