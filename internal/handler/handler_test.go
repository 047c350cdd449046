// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package handler

import (
	"testing"

	"github.com/knstwrk/stripeline/internal/pixel"
	"github.com/knstwrk/stripeline/internal/timeout"
	"github.com/knstwrk/stripeline/internal/tpm2"
	"github.com/knstwrk/stripeline/internal/wbuf"
)

type fakeClock struct{ ms uint32 }

func (f *fakeClock) Now() uint32 { return f.ms }

type fakeScene struct {
	started, skipped, stopped, paused int
	lastStart                         int
}

func (s *fakeScene) Start(n int) error { s.started++; s.lastStart = n; return nil }
func (s *fakeScene) Pause()            { s.paused++ }
func (s *fakeScene) Skip()             { s.skipped++ }
func (s *fakeScene) Stop()             { s.stopped++ }

type fakeIdentity struct{}

func (fakeIdentity) UID() uint32       { return 0xDEADBEEF }
func (fakeIdentity) HWVersion() uint16 { return 2 }
func (fakeIdentity) SWVersion() uint16 { return 7 }

type fakeTelemetry struct {
	vbat uint16
	temp int16
}

func (f fakeTelemetry) VBat() uint16 { return f.vbat }
func (f fakeTelemetry) Temp() int16  { return f.temp }

func newTestHandler(t *testing.T) (*Handler, *fakeScene) {
	t.Helper()
	clk := &fakeClock{}
	svc := timeout.New(clk)
	buf := wbuf.New()
	dec := tpm2.New(svc, buf)
	px := pixel.New(nullDriver{}, svc)
	px.Configure(3, 10, pixel.RGB{255, 255, 255})
	px.Enable(true)
	s := &fakeScene{}
	return New(s, px, dec, buf, fakeIdentity{}, fakeTelemetry{vbat: 3700, temp: 215}), s
}

type nullDriver struct{}

func (nullDriver) Enable(bool)       {}
func (nullDriver) Emit(frame []byte) {}
func (nullDriver) Busy() bool        { return false }

func TestPingUnicastRepliesWithVbatRssiTemp(t *testing.T) {
	h, _ := newTestHandler(t)
	reply, ok := h.Handle(0x05, -63, []byte{CmdPing})
	if !ok {
		t.Fatalf("expected unicast PING to ack")
	}
	fields, err := unpack("Www", reply)
	if err != nil {
		t.Fatalf("unpack reply: %v", err)
	}
	if fields[0].(uint16) != 3700 {
		t.Fatalf("vbat = %v, want 3700", fields[0])
	}
	if fields[1].(int16) != -63 {
		t.Fatalf("rssi = %v, want -63", fields[1])
	}
	if fields[2].(int16) != 215 {
		t.Fatalf("temp = %v, want 215", fields[2])
	}
}

func TestPingBroadcastNeverAcks(t *testing.T) {
	h, _ := newTestHandler(t)
	_, ok := h.Handle(0xFF, -63, []byte{CmdPing})
	if ok {
		t.Fatalf("broadcast PING must not ack")
	}
}

func TestStartDispatchesSceneNumber(t *testing.T) {
	h, s := newTestHandler(t)
	payload := append([]byte{CmdStart}, pack("W", uint16(5))...)
	_, ok := h.Handle(0x02, 0, payload)
	if !ok {
		t.Fatalf("unicast START must ack")
	}
	if s.started != 1 || s.lastStart != 5 {
		t.Fatalf("scene = %+v", s)
	}
}

func TestFingerRepliesWithIdentity(t *testing.T) {
	h, _ := newTestHandler(t)
	reply, ok := h.Handle(0x02, 0, []byte{CmdFinger})
	if !ok {
		t.Fatalf("expected unicast FINGER to ack")
	}
	fields, err := unpack("LWW", reply)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if fields[0].(uint32) != 0xDEADBEEF || fields[1].(uint16) != 2 || fields[2].(uint16) != 7 {
		t.Fatalf("fields = %v", fields)
	}
}

func TestZeroLengthTPM2ResetsDecoderWithoutTripping(t *testing.T) {
	h, _ := newTestHandler(t)

	// Lock the decoder onto the sync pattern (5 repetitions, per the
	// auto-sync threshold), then feed a partial block header: mid-block,
	// with bytes already in flight when the reset chunk arrives.
	for i := 0; i < 5; i++ {
		h.dec.Byte(0x36)
		h.dec.Byte(0xC9)
		h.dec.Byte(0xDA)
	}
	h.dec.Byte(0x00)
	h.dec.Byte(0x03) // mid-block: expects 3 data bytes, none consumed yet

	_, ok := h.Handle(0x02, 0, []byte{CmdTPM2})
	if !ok {
		t.Fatalf("unicast TPM2 chunk must ack")
	}
	if h.dec.Trip() {
		t.Fatalf("expected decoder to stay untripped after a reset chunk")
	}

	// The reset must have actually dropped the mid-block state, not just
	// cleared trip: feeding a fresh frame byte-for-byte must decode
	// cleanly rather than being swallowed as leftover block data. Reset
	// also drops the sync lock itself, so the decoder needs the full
	// 5-repetition sync sequence again before it will trust a new frame.
	var payload []byte
	payload = append(payload, CmdTPM2)
	for i := 0; i < 5; i++ {
		payload = append(payload, 0x36, 0xC9, 0xDA)
	}
	payload = append(payload, 0x00, 0x01, 0xAA, 0x36)
	h.Handle(0x02, 0, payload)
	// Handle itself consumes the trip (capture, maps, clear), so check the
	// decoded frame: one byte, 0xAA, not leftover block data.
	if h.dec.FrameLength() != 1 || h.buf.At(h.dec.FrameBase()) != 0xAA {
		t.Fatalf("expected a clean frame to decode after the reset chunk")
	}
}

func TestUnknownCommandIsSilentlyDropped(t *testing.T) {
	h, _ := newTestHandler(t)
	reply, ok := h.Handle(0x02, 0, []byte{0xFE})
	if ok || reply != nil {
		t.Fatalf("expected silent drop, got reply=%v ok=%v", reply, ok)
	}
}
