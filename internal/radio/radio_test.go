// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package radio

import (
	"testing"

	"github.com/knstwrk/stripeline/internal/timeout"
)

type fakeClock struct{ ms uint32 }

func (f *fakeClock) Now() uint32 { return f.ms }

type fakeTransceiver struct {
	mode Mode

	txFIFO  []byte
	rxFIFO  []byte
	ready   bool
	rssi    int
	afcCall int

	idleMs, rxMs int
	sleepListens int
}

func (f *fakeTransceiver) SetMode(m Mode) error { f.mode = m; return nil }
func (f *fakeTransceiver) FlushFIFO() error     { f.txFIFO = nil; return nil }
func (f *fakeTransceiver) WriteFIFO(data []byte) error {
	f.txFIFO = append(f.txFIFO, data...)
	return nil
}
func (f *fakeTransceiver) ReadFIFO(n int) ([]byte, error) {
	if n > len(f.rxFIFO) {
		n = len(f.rxFIFO)
	}
	out := f.rxFIFO[:n]
	f.rxFIFO = f.rxFIFO[n:]
	if len(f.rxFIFO) == 0 {
		f.ready = false
	}
	return out, nil
}
func (f *fakeTransceiver) PayloadReady() bool { return f.ready }
func (f *fakeTransceiver) RSSI() int          { return f.rssi }
func (f *fakeTransceiver) SetAFCClear() error { f.afcCall++; return nil }
func (f *fakeTransceiver) Listen(idle, rx int) error {
	f.idleMs, f.rxMs = idle, rx
	return nil
}
func (f *fakeTransceiver) SleepListen() error { f.sleepListens++; return nil }

func newTestLink() (*Link, *fakeTransceiver, *fakeClock) {
	clk := &fakeClock{}
	x := &fakeTransceiver{}
	return New(timeout.New(clk), x), x, clk
}

func TestSendToFramesLengthDstPayload(t *testing.T) {
	l, x, _ := newTestLink()
	if err := l.SendTo(0x07, []byte{0x01, 0xAA, 0xBB}); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	want := []byte{4, 0x07, 0x01, 0xAA, 0xBB}
	if len(x.txFIFO) != len(want) {
		t.Fatalf("frame = %v, want %v", x.txFIFO, want)
	}
	for i := range want {
		if x.txFIFO[i] != want[i] {
			t.Fatalf("frame = %v, want %v", x.txFIFO, want)
		}
	}
	if l.Mode() != RX {
		t.Fatalf("mode after send = %v, want RX", l.Mode())
	}
}

func TestReceiveDecodesFrameAndLatchesRSSI(t *testing.T) {
	l, x, _ := newTestLink()
	x.rxFIFO = []byte{3, 0x09, 0x11, 0x22}
	x.ready = true
	x.rssi = -57

	pkt, ok, err := l.Receive()
	if err != nil || !ok {
		t.Fatalf("Receive: ok=%v err=%v", ok, err)
	}
	if pkt.Dst != 0x09 || pkt.RSSI != -57 {
		t.Fatalf("pkt = %+v", pkt)
	}
	if len(pkt.Payload) != 2 || pkt.Payload[0] != 0x11 || pkt.Payload[1] != 0x22 {
		t.Fatalf("payload = %v", pkt.Payload)
	}
	if l.Mode() != RX {
		t.Fatalf("mode after receive = %v, want RX", l.Mode())
	}
}

func TestReceiveReturnsFalseWhenNothingReady(t *testing.T) {
	l, _, _ := newTestLink()
	pkt, ok, err := l.Receive()
	if err != nil || ok || pkt != nil {
		t.Fatalf("expected (nil,false,nil), got (%v,%v,%v)", pkt, ok, err)
	}
}

func TestAFCWatchdogResetsAfterTimeout(t *testing.T) {
	l, x, clk := newTestLink()
	clk.ms += AFCTimeout + 1
	if _, _, err := l.Receive(); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if x.afcCall != 1 {
		t.Fatalf("afcCall = %d, want 1", x.afcCall)
	}
}

func TestListenArmsResolutionAndEntersListenMode(t *testing.T) {
	l, x, _ := newTestLink()
	if err := l.Listen(4, 262); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if x.idleMs != 4 || x.rxMs != 262 {
		t.Fatalf("idle/rx = %d/%d", x.idleMs, x.rxMs)
	}
	if l.Mode() != Listen {
		t.Fatalf("mode = %v, want Listen", l.Mode())
	}
}

func TestWakeSleepMagicRoundTrip(t *testing.T) {
	if !IsSleep(EncodeSleep()) {
		t.Fatalf("EncodeSleep did not round-trip through IsSleep")
	}
	remaining, ok := DecodeWake(EncodeWake(900))
	if !ok || remaining != 900 {
		t.Fatalf("DecodeWake = (%d,%v), want (900,true)", remaining, ok)
	}
	if IsSleep(EncodeWake(900)) {
		t.Fatalf("wake payload misidentified as sleep")
	}
}
