// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/knstwrk/stripeline/internal/pixel"
	"github.com/knstwrk/stripeline/internal/radio"
)

// connTransceiver adapts a byte-transparent Connection (serial or
// WebSocket, opened the same way for every subcommand) into
// radio.Transceiver. A real embedded target drives an SX1231-family
// part's registers directly; the CLI instead treats whatever Connection
// was opened as a byte-transparent bridge to that hardware (a USB radio
// dongle, or a remote gateway node reached over WebSocket), framing each
// FIFO write/read as a length-prefixed chunk so internal/radio's state
// machine is exercised unmodified rather than reimplemented here.
type connTransceiver struct {
	conn Connection

	mu      sync.Mutex
	inbox   [][]byte
	readBuf []byte
	rssi    int
	readErr error
}

// newConnTransceiver starts a background reader draining length-prefixed
// frames off conn into an in-memory inbox, mirroring the reconnect
// goroutine shape cmd/control.go already uses for its own TUI feed.
func newConnTransceiver(conn Connection) *connTransceiver {
	t := &connTransceiver{conn: conn}
	go t.readLoop()
	return t
}

func (t *connTransceiver) readLoop() {
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(t.conn, lenBuf[:]); err != nil {
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		frame := make([]byte, n)
		if _, err := io.ReadFull(t.conn, frame); err != nil {
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()
			return
		}
		t.mu.Lock()
		t.inbox = append(t.inbox, frame)
		t.mu.Unlock()
	}
}

func (t *connTransceiver) SetMode(m radio.Mode) error { return nil }
func (t *connTransceiver) FlushFIFO() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readBuf = nil
	return nil
}

func (t *connTransceiver) WriteFIFO(data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := t.conn.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("bridge: writing frame length: %w", err)
	}
	if _, err := t.conn.Write(data); err != nil {
		return fmt.Errorf("bridge: writing frame: %w", err)
	}
	return nil
}

func (t *connTransceiver) ReadFIFO(n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.readBuf) < n {
		if len(t.inbox) == 0 {
			return nil, fmt.Errorf("bridge: short read, want %d bytes", n)
		}
		t.readBuf = append(t.readBuf, t.inbox[0]...)
		t.inbox = t.inbox[1:]
	}
	out := t.readBuf[:n]
	t.readBuf = t.readBuf[n:]
	return out, nil
}

func (t *connTransceiver) PayloadReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.readBuf) > 0 || len(t.inbox) > 0
}

func (t *connTransceiver) RSSI() int                 { return t.rssi }
func (t *connTransceiver) SetAFCClear() error        { return nil }
func (t *connTransceiver) Listen(idle, rx int) error { return nil }
func (t *connTransceiver) SleepListen() error        { return nil }

// logStringDriver stands in for the node's DMA-equivalent LED output when
// run as a host CLI process rather than on the embedded target: it just
// records the most recent frame for inspection. A real deployment
// supplies its own platform-specific pixel.StringDriver.
type logStringDriver struct {
	mu      sync.Mutex
	frame   []byte
	enabled bool
	onFrame func(frame []byte)
}

func (d *logStringDriver) Enable(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = on
}

func (d *logStringDriver) Emit(frame []byte) {
	d.mu.Lock()
	d.frame = append([]byte(nil), frame...)
	cb := d.onFrame
	d.mu.Unlock()
	if cb != nil {
		cb(frame)
	}
}

func (d *logStringDriver) Busy() bool { return false }

var _ pixel.StringDriver = (*logStringDriver)(nil)

// flagHexSwitch and flagPushbutton expose the front-panel inputs via CLI
// flags/stdin instead of GPIO, since no embedded GPIO library is part of
// this example pack; the node's own debounce logic in internal/ui still
// runs unchanged over whatever value these report.
type flagHexSwitch struct {
	mu sync.Mutex
	v  int
}

func (s *flagHexSwitch) Read() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

func (s *flagHexSwitch) Set(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
}

type flagPushbutton struct {
	mu   sync.Mutex
	down bool
}

func (b *flagPushbutton) Level() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.down
}
