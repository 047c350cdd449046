// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

// Package radio implements the node's mode automaton and packet-level send
// and receive over an abstract sub-GHz FSK transceiver, grounded on the
// firmware's radio.c alongside ystepanoff-nrfcomm's RadioDriver interface
// shape and gherlein-gocat's yardstick mode-polling loop.
package radio

import (
	"errors"

	"github.com/knstwrk/stripeline/internal/timeout"
)

// Broadcast is the reserved destination address matching every node.
const Broadcast = 0xFF

// MaxPacket is the largest payload (command byte + args) one packet
// carries, exclusive of the wire length and destination bytes.
const MaxPacket = 60

// TXTimeout guards against a stuck auto-mode transmit.
const TXTimeout = 1000 // ms

// AFCTimeout resets AFC if no packet has arrived in this long.
const AFCTimeout = 30000 // ms

// WakeMagic and SleepMagic are the four-byte burst payloads of the
// broadcast-safe sleep/wake protocol (§4.7).
const (
	WakeMagic  uint32 = 0xCAFEBABE
	SleepMagic uint32 = 0xDEADBEEF
)

// ErrTimeout is a receive-timeout sentinel. Nothing in this package
// returns it: Receive reports an empty poll as (nil, false, nil).
var ErrTimeout = errors.New("radio: receive timeout")

// Mode is one state of the chip mode automaton.
type Mode int

const (
	Sleep Mode = iota
	Standby
	FS
	RX
	TX
	Listen
)

func (m Mode) String() string {
	switch m {
	case Sleep:
		return "sleep"
	case Standby:
		return "standby"
	case FS:
		return "fs"
	case RX:
		return "rx"
	case TX:
		return "tx"
	case Listen:
		return "listen"
	default:
		return "unknown"
	}
}

// Transceiver is the register-level abstraction a real SX1231-family part
// (or a simulated one, for tests) must implement. It is deliberately thin:
// Link owns every protocol decision, the Transceiver only owns register
// pokes, mirroring the split between nrfcomm's transport.RadioDriver and
// its protocol package.
type Transceiver interface {
	// SetMode drives the chip's op-mode register directly.
	SetMode(m Mode) error
	// FlushFIFO discards any buffered TX/RX bytes.
	FlushFIFO() error
	// WriteFIFO queues len(data) bytes (<=MaxPacket+2) for TX.
	WriteFIFO(data []byte) error
	// ReadFIFO reads exactly n bytes out of the FIFO.
	ReadFIFO(n int) ([]byte, error)
	// PayloadReady reports the payload-ready interrupt flag.
	PayloadReady() bool
	// RSSI latches and returns the current RSSI register, in dBm.
	RSSI() int
	// SetAFCClear resets the automatic frequency correction accumulator.
	SetAFCClear() error
	// Listen arms idle/RX duty-cycling at the given resolution buckets.
	Listen(idleMs, rxMs int) error
	// SleepListen drops the chip to its lowest power state while still
	// honoring Listen's wake schedule. A no-op hook on real hardware
	// without a distinct ultra-low-power listen state.
	SleepListen() error
}

// Packet is one decoded radio frame, with the metadata the handler layer
// needs beyond the bytes the hardware address filter already consumed.
type Packet struct {
	Dst     byte
	Payload []byte
	RSSI    int
}

// Link drives the mode automaton and the send/receive state machines over
// a Transceiver, owned one per Node.
type Link struct {
	clock *timeout.Service
	xcvr  Transceiver

	mode Mode

	afcDeadline timeout.Deadline
}

// New constructs a Link in Sleep mode.
func New(clock *timeout.Service, xcvr Transceiver) *Link {
	l := &Link{clock: clock, xcvr: xcvr, mode: Sleep}
	l.afcDeadline = clock.Set(AFCTimeout)
	return l
}

// Mode reports the automaton's current state.
func (l *Link) Mode() Mode { return l.mode }

func (l *Link) setMode(m Mode) error {
	if err := l.xcvr.SetMode(m); err != nil {
		return err
	}
	l.mode = m
	return nil
}

// SendTo transmits payload to dst: standby, flush, write the framed
// packet, auto-mode TX, then back to RX. It does not wait for the
// transmit to finish: the TXTimeout deadline is armed and checked once,
// straight after entering TX, and the FIFO is force-flushed only if that
// check already finds it expired.
func (l *Link) SendTo(dst byte, payload []byte) error {
	if len(payload) > MaxPacket {
		payload = payload[:MaxPacket]
	}
	if err := l.setMode(Standby); err != nil {
		return err
	}
	if err := l.xcvr.FlushFIFO(); err != nil {
		return err
	}

	frame := make([]byte, 0, len(payload)+2)
	frame = append(frame, byte(len(payload)+1), dst)
	frame = append(frame, payload...)
	if err := l.xcvr.WriteFIFO(frame); err != nil {
		return err
	}

	if err := l.setMode(TX); err != nil {
		return err
	}
	deadline := l.clock.Set(TXTimeout)
	for !l.clock.Expired(deadline) {
		// Real hardware's auto-mode clears TX on its own once the FIFO
		// drains; the simulated Transceiver used in tests reports that
		// indirectly via PayloadReady staying false. Nothing to poll
		// here beyond the deadline itself — auto-mode is fire-and-forget
		// by design (§4.7).
		break
	}
	if l.clock.Expired(deadline) {
		_ = l.xcvr.FlushFIFO()
	}
	return l.setMode(RX)
}

// Receive polls for a ready payload and, if one is waiting, moves to
// standby, latches RSSI before it resets, and reads the framed packet out
// of the FIFO. It returns (nil, false, nil) when nothing is ready yet.
func (l *Link) Receive() (*Packet, bool, error) {
	if !l.xcvr.PayloadReady() {
		if l.clock.Expired(l.afcDeadline) {
			if err := l.xcvr.SetAFCClear(); err != nil {
				return nil, false, err
			}
			l.afcDeadline = l.clock.Set(AFCTimeout)
		}
		return nil, false, nil
	}

	if err := l.setMode(Standby); err != nil {
		return nil, false, err
	}
	rssi := l.xcvr.RSSI()

	hdr, err := l.xcvr.ReadFIFO(1)
	if err != nil {
		return nil, false, err
	}
	length := int(hdr[0])
	if length < 1 {
		_ = l.setMode(RX)
		return nil, false, nil
	}
	rest, err := l.xcvr.ReadFIFO(length)
	if err != nil {
		return nil, false, err
	}
	if err := l.setMode(RX); err != nil {
		return nil, false, err
	}
	l.afcDeadline = l.clock.Set(AFCTimeout)

	dst := rest[0]
	payload := append([]byte(nil), rest[1:]...)
	return &Packet{Dst: dst, Payload: payload, RSSI: rssi}, true, nil
}

// Listen arms idle/RX duty-cycling at the given resolution buckets, then
// moves the automaton into the Listen state.
func (l *Link) Listen(idleMs, rxMs int) error {
	if err := l.xcvr.Listen(idleMs, rxMs); err != nil {
		return err
	}
	return l.setMode(Listen)
}

// SleepListen drops to minimum clock while still honoring the armed
// listen schedule, for use once the pixel engine has also been stopped.
func (l *Link) SleepListen() error {
	return l.xcvr.SleepListen()
}
