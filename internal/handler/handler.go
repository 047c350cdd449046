// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package handler

import (
	"github.com/knstwrk/stripeline/internal/pixel"
	"github.com/knstwrk/stripeline/internal/tpm2"
	"github.com/knstwrk/stripeline/internal/wbuf"
)

// Command codes, the first payload byte of every packet (§4.8).
const (
	CmdPing   = 0x01
	CmdStart  = 0x33
	CmdSkip   = 0x34
	CmdStop   = 0x35
	CmdPause  = 0x37
	CmdFrame  = 0x99
	CmdDim    = 0xD1
	CmdTPM2   = 0xDA
	CmdFinger = 0xF1
)

// Scene is the subset of *scene.Engine the handler drives.
type Scene interface {
	Start(s int) error
	Pause()
	Skip()
	Stop()
}

// Pixel is the subset of *pixel.Engine the handler drives directly
// (outside of scene playback): DIM and the forced one-shot frame.
type Pixel interface {
	SetDim(dim pixel.RGB)
	Universe()
	Capture() bool
	Release()
	Maps(buf *wbuf.Buffer)
}

// Identity answers the node's FINGER query.
type Identity interface {
	UID() uint32
	HWVersion() uint16
	SWVersion() uint16
}

// Telemetry answers the node's PING query.
type Telemetry interface {
	VBat() uint16
	Temp() int16
}

// Handler dispatches decoded radio payloads to the node's subsystems.
// One Handler is owned per Node; it never talks to the radio link
// itself — SendTo is the caller's job, gated on the unicast rule below.
type Handler struct {
	scene     Scene
	px        Pixel
	dec       *tpm2.Decoder
	buf       *wbuf.Buffer
	identity  Identity
	telemetry Telemetry
}

// New constructs a Handler over the node's subsystems.
func New(scene Scene, px Pixel, dec *tpm2.Decoder, buf *wbuf.Buffer, identity Identity, telemetry Telemetry) *Handler {
	return &Handler{scene: scene, px: px, dec: dec, buf: buf, identity: identity, telemetry: telemetry}
}

// Handle dispatches one decoded payload. dst is the destination address
// the radio layer observed (§4.7); rssi is the RSSI the link latched for
// this packet, needed for the PING reply. It returns the reply payload
// and whether one should be sent at all — unicast (dst != Broadcast)
// requests get an ack for every known command (carrying the reply payload
// for PING and FINGER, empty for the rest), broadcasts never do, and an
// unknown command code or undecodable arguments are silently dropped
// either way.
func (h *Handler) Handle(dst byte, rssi int, payload []byte) (reply []byte, ok bool) {
	if len(payload) == 0 {
		return nil, false
	}
	cmd := payload[0]
	args := payload[1:]

	switch cmd {
	case CmdPing:
		vbat, temp := h.ping()
		return pack("Www", vbat, int16(rssi), temp), unicast(dst)

	case CmdStart:
		fields, err := unpack("W", args)
		if err != nil {
			return nil, false
		}
		_ = h.scene.Start(int(fields[0].(uint16)))
		return nil, unicast(dst)

	case CmdSkip:
		h.scene.Skip()
		return nil, unicast(dst)

	case CmdStop:
		h.scene.Stop()
		return nil, unicast(dst)

	case CmdPause:
		h.scene.Pause()
		return nil, unicast(dst)

	case CmdFrame:
		h.px.Universe()
		return nil, unicast(dst)

	case CmdDim:
		fields, err := unpack("CCC", args)
		if err != nil {
			return nil, false
		}
		r, g, b := fields[0].(byte), fields[1].(byte), fields[2].(byte)
		h.px.SetDim(pixel.RGB{R: r, G: g, B: b})
		return nil, unicast(dst)

	case CmdTPM2:
		h.handleTPM2(args)
		return nil, unicast(dst)

	case CmdFinger:
		return pack("LWW", h.identity.UID(), h.identity.HWVersion(), h.identity.SWVersion()), unicast(dst)
	}

	return nil, false
}

func unicast(dst byte) bool { return dst != 0xFF }

// ping answers the PING command's vbat/temp half; rssi is supplied by the
// caller from the already-decoded radio packet.
func (h *Handler) ping() (vbat uint16, temp int16) {
	if h.telemetry == nil {
		return 0, 0
	}
	return h.telemetry.VBat(), h.telemetry.Temp()
}

// handleTPM2 appends an opaque chunk into the shared TPM2 decoder. A
// zero-length chunk means "reset decoder" rather than "empty frame" (§9):
// it drops any in-progress block and re-syncs from a cold detect state,
// the same as the firmware's tp2_reset().
func (h *Handler) handleTPM2(chunk []byte) {
	if len(chunk) == 0 {
		h.dec.Reset()
		return
	}
	for _, b := range chunk {
		h.dec.Byte(b)
	}
	if h.dec.Trip() {
		if h.px.Capture() {
			h.px.Maps(h.buf)
			h.dec.Clear()
			h.px.Release()
		}
	}
}
