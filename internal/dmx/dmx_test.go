// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package dmx

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

func feedUniverse(d *Decoder, slots ...byte) {
	d.Break()
	d.Byte(StartCode)
	for _, s := range slots {
		d.Byte(s)
	}
}

func TestUniverseCommitsOnNextBreak(t *testing.T) {
	clk := timeout.New(&fakeClock{})
	buf := wbuf.New()
	d := New(clk, buf)

	feedUniverse(d, 0x00, 0xFF, 0x00, 0x00, 0xFF, 0x00)
	if d.Trip() {
		t.Fatalf("trip raised before the terminating break")
	}

	d.Break() // starts the next universe, committing the previous one
	if !d.Trip() {
		t.Fatalf("expected trip after the universe-closing break")
	}
	want := []byte{0x00, 0xFF, 0x00, 0x00, 0xFF, 0x00}
	got := buf.Bytes()[:len(want)]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestAtomicityHoldsUntilClear(t *testing.T) {
	clk := timeout.New(&fakeClock{})
	buf := wbuf.New()
	d := New(clk, buf)

	feedUniverse(d, 0x01, 0x02, 0x03)
	d.Break()
	if !d.Trip() {
		t.Fatalf("expected trip")
	}
	before := append([]byte{}, buf.Bytes()[:3]...)

	// A fresh universe arrives while trip is still set; it must not
	// mutate the visible buffer.
	feedUniverse(d, 0xAA, 0xBB, 0xCC)
	d.Break()
	after := buf.Bytes()[:3]
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("buffer mutated while trip was set at index %d", i)
		}
	}

	d.Clear()
	feedUniverse(d, 0xAA, 0xBB, 0xCC)
	d.Break()
	if buf.At(0) != 0xAA {
		t.Fatalf("decoder did not resume writing after Clear")
	}
}

func TestNonZeroStartCodeAborts(t *testing.T) {
	clk := timeout.New(&fakeClock{})
	buf := wbuf.New()
	d := New(clk, buf)

	d.Break()
	d.Byte(0x11) // not StartCode
	d.Byte(0x22)
	d.Break()
	if d.Trip() {
		t.Fatalf("non-DMX start code must not produce a universe")
	}
}

func TestDetectWatchdog(t *testing.T) {
	c := &fakeClock{}
	clk := timeout.New(c)
	buf := wbuf.New()
	d := New(clk, buf)

	d.Break()
	d.Byte(StartCode)
	d.Byte(0x10)

	c.ms += WatchdogTimeout + 1
	if d.Detect() {
		t.Fatalf("expected watchdog to report stall")
	}
	// Universe in progress was abandoned; a subsequent break should not
	// commit the stale partial data.
	d.Break()
	if d.Trip() {
		t.Fatalf("stalled partial universe must not trip")
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

// TestFuzzDecoder_RandomTraffic interleaves random breaks and slot bytes
// and verifies the decoder never panics on any interleaving.
func TestFuzzDecoder_RandomTraffic(t *testing.T) {
	rounds := fuzzRounds()
	rng := newFuzzRng(t)
	clk := timeout.New(&fakeClock{})

	for i := 0; i < rounds; i++ {
		buf := wbuf.New()
		d := New(clk, buf)

		events := rng.Intn(512)
		for j := 0; j < events; j++ {
			if rng.Intn(8) == 0 {
				d.Break()
				continue
			}
			d.Byte(byte(rng.Intn(256)))
		}
		d.Detect()
	}
}

// TestFuzzDecoder_RandomUniverseCommits feeds well-formed universes of
// random length and checks every slot value round-trips exactly.
func TestFuzzDecoder_RandomUniverseCommits(t *testing.T) {
	rounds := fuzzRounds()
	rng := newFuzzRng(t)
	clk := timeout.New(&fakeClock{})

	for i := 0; i < rounds; i++ {
		buf := wbuf.New()
		d := New(clk, buf)

		n := rng.Intn(wbuf.MaxDMX) + 1
		slots := make([]byte, n)
		rng.Read(slots)

		feedUniverse(d, slots...)
		d.Break()
		if !d.Trip() {
			t.Fatalf("round %d: expected trip after a well-formed universe", i)
		}
		got := buf.Bytes()[:n]
		for k := range slots {
			if got[k] != slots[k] {
				t.Fatalf("round %d: slot %d = %#x, want %#x", i, k, got[k], slots[k])
			}
		}
	}
}
