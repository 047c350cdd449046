// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package pixel

import (
	"testing"

	"github.com/knstwrk/stripeline/internal/timeout"
	"github.com/knstwrk/stripeline/internal/wbuf"
)

type fakeClock struct{ ms uint32 }

func (f *fakeClock) Now() uint32 { return f.ms }

type recordingDriver struct {
	on     bool
	busy   bool
	frames [][]byte
}

func (d *recordingDriver) Enable(on bool) { d.on = on }
func (d *recordingDriver) Busy() bool     { return d.busy }
func (d *recordingDriver) Emit(frame []byte) {
	d.frames = append(d.frames, append([]byte(nil), frame...))
}

func newTestEngine() (*Engine, *recordingDriver, *fakeClock) {
	clk := &fakeClock{}
	driver := &recordingDriver{}
	eng := New(driver, timeout.New(clk))
	return eng, driver, clk
}

func TestEnableSchedulesStartupDelay(t *testing.T) {
	eng, driver, clk := newTestEngine()
	eng.Configure(3, 10, RGB{255, 255, 255})
	eng.Enable(true)

	if !driver.on {
		t.Fatalf("expected driver enabled")
	}
	eng.Tick()
	if len(driver.frames) != 0 {
		t.Fatalf("frame emitted before startup delay elapsed")
	}

	clk.ms += StartupDelayMs + 1
	eng.Tick()
	if len(driver.frames) != 1 {
		t.Fatalf("expected exactly one frame after startup delay, got %d", len(driver.frames))
	}
}

func TestCaptureInhibitsFramePacingTick(t *testing.T) {
	eng, driver, clk := newTestEngine()
	eng.Configure(3, 10, RGB{255, 255, 255})
	eng.Enable(true)
	clk.ms += StartupDelayMs + 1
	eng.Tick()
	driver.frames = nil

	if !eng.Capture() {
		t.Fatalf("expected capture to succeed")
	}

	clk.ms += 100 + 1 // one 10 fps period, passed
	eng.Tick()
	if len(driver.frames) != 0 {
		t.Fatalf("frame pacing tick should be dropped while captured")
	}

	eng.Release()
	if len(driver.frames) != 1 {
		t.Fatalf("release should flush one frame when nothing was emitted during capture")
	}
}

func TestCaptureFailsWhileAlreadyHeld(t *testing.T) {
	eng, _, _ := newTestEngine()
	eng.Configure(3, 0, RGB{255, 255, 255})
	eng.Enable(true)

	if !eng.Capture() {
		t.Fatalf("first capture should succeed")
	}
	if eng.Capture() {
		t.Fatalf("second concurrent capture should fail")
	}
	eng.Release()
}

func TestClearSetsOffPattern(t *testing.T) {
	eng, _, _ := newTestEngine()
	eng.Configure(1, 0, RGB{255, 255, 255})
	eng.RGB(0, 0, 255, 255, 255)
	eng.Clear()
	for _, b := range eng.bitplane[0] {
		if b&0x3F != 0x3F {
			t.Fatalf("expected all-ones off pattern, got %02x", b)
		}
	}
}

func TestMapEvaluationMonotonicRamp(t *testing.T) {
	eng, driver, _ := newTestEngine()
	const length = 4
	eng.Configure(length, 0, RGB{255, 255, 255})
	driver.busy = false

	buf := wbuf.New()
	ramp := []byte{0, 1, 2, 10, 11, 12, 20, 21, 22, 30, 31, 32}
	copy(buf.Bytes(), ramp)

	m := Map{
		String: 0,
		Begin:  0, End: length - 1, Step: 1,
		Red:   Channel{Begin: 0, End: 3*length - 3, Step: 3},
		Green: Channel{Begin: 1, End: 3*length - 2, Step: 3},
		Blue:  Channel{Begin: 2, End: 3*length - 1, Step: 3},
	}
	eng.Map(buf, m)

	var prevSum int
	for i := 0; i < length; i++ {
		sum := 0
		for _, b := range eng.bitplane[i] {
			if b&0x01 == 0 { // string 0's sample bit was on
				sum++
			}
		}
		if i > 0 && sum <= prevSum {
			t.Fatalf("expected strictly monotonic ramp, led %d sum=%d prev=%d", i, sum, prevSum)
		}
		prevSum = sum
	}
}
