// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

// Package node wires every subsystem package into the single cooperative
// `Node` type §2 describes: timeout service, radio link, pixel engine,
// working buffer, serial decoders, configuration VM, scene engine, packet
// handler, and front-panel UI, ticked in dependency order every loop
// iteration exactly as the firmware's own superloop does.
package node

import (
	"context"
	"fmt"
	"io"
	"io/fs"

	"github.com/knstwrk/stripeline/internal/config"
	"github.com/knstwrk/stripeline/internal/dmx"
	"github.com/knstwrk/stripeline/internal/handler"
	"github.com/knstwrk/stripeline/internal/pixel"
	"github.com/knstwrk/stripeline/internal/radio"
	"github.com/knstwrk/stripeline/internal/scene"
	"github.com/knstwrk/stripeline/internal/timeout"
	"github.com/knstwrk/stripeline/internal/tpm2"
	"github.com/knstwrk/stripeline/internal/ui"
	"github.com/knstwrk/stripeline/internal/wbuf"
)

// ErrNoConfig marks a standalone run with no configuration file at all
// (§8 scenario 1), distinct from ErrConfigRejected (a file that failed to
// parse).
var ErrNoConfig = fmt.Errorf("node: no configuration file present")

// ErrConfigRejected marks a configuration file that failed to parse; the
// node falls back to standalone mode rather than treating this as fatal.
var ErrConfigRejected = fmt.Errorf("node: configuration rejected")

// Node is the worker-side real-time pipeline: one process-wide owner of
// every singleton subsystem, matching §9's "fields on a struct, never
// package-level globals" resolution.
type Node struct {
	clock *timeout.Service
	buf   *wbuf.Buffer
	px    *pixel.Engine

	cfg   *config.Root
	scene *scene.Engine

	tpmDec *tpm2.Decoder
	dmxDec *dmx.Decoder

	link *radio.Link
	hnd  *handler.Handler

	identity  Identity
	telemetry Telemetry

	panel *ui.Panel
	fsys  fs.FS

	mode   config.ModeTag
	tpmSrc io.Reader
}

// Identity and Telemetry are satisfied by the hardware's own sensor
// readers; New takes them directly so handler.New can wire them without
// Node re-exporting handler's own interfaces.
type Identity = handler.Identity
type Telemetry = handler.Telemetry

// New constructs a Node over its hardware abstractions. xcvr may be nil
// for test configurations that never need radio; driver may not, since New
// enables the pixel engine (and so the driver) straight away.
func New(clock *timeout.Service, fsys fs.FS, xcvr radio.Transceiver, driver pixel.StringDriver,
	hexSwitch ui.HexSwitch, button ui.Pushbutton, identity Identity, telemetry Telemetry) *Node {

	n := &Node{
		clock:     clock,
		buf:       wbuf.New(),
		fsys:      fsys,
		identity:  identity,
		telemetry: telemetry,
	}
	n.px = pixel.New(driver, clock)
	n.tpmDec = tpm2.New(clock, n.buf)
	n.dmxDec = dmx.New(clock, n.buf)
	n.panel = ui.New(clock, hexSwitch, button)
	if xcvr != nil {
		n.link = radio.New(clock, xcvr)
	}
	n.hnd = handler.New(nil, n.px, n.tpmDec, n.buf, identity, telemetry)
	n.mode = config.ModeStandalone
	n.px.Enable(true)
	return n
}

// LoadConfig parses src as the node's configuration. On success it
// (re)configures the pixel engine, scene engine, and run mode from it; on
// failure it writes diagnostics to diag and falls back to standalone
// mode, returning a wrapped ErrConfigRejected rather than treating the
// failure as fatal (§ERROR HANDLING DESIGN, §7).
func (n *Node) LoadConfig(src []byte, diag io.Writer) error {
	root, err := config.Parse(src, diag)
	if err != nil {
		n.mode = config.ModeStandalone
		return fmt.Errorf("%w: %v", ErrConfigRejected, err)
	}

	n.cfg = root
	n.px.Configure(root.LEDs.Length, root.LEDs.Framerate, root.LEDs.Dim, root.LEDs.Maps...)
	n.scene = scene.New(n.clock, n.px, n.buf, n.tpmDec, root, n.fsys)
	n.hnd = handler.New(n.scene, n.px, n.tpmDec, n.buf, n.identity, n.telemetry)
	n.mode = root.Mode.Mode
	return nil
}

// Mode reports the node's current run mode.
func (n *Node) Mode() config.ModeTag { return n.mode }

// SetTPM2Source attaches the byte stream mode TPM2 reads from (a serial
// port wired directly to a TPM2/TPZ source, distinct from the radio
// bridge). Tick drains it once per iteration when Mode() is ModeTPM2.
func (n *Node) SetTPM2Source(src io.Reader) { n.tpmSrc = src }

// hexWhitePreset and hexOffPreset are the two documented hex-switch
// presets (§8 scenario 1); every other hex value is reserved and treated
// as off, since no further preset is specified anywhere in this system's
// source material.
const (
	hexWhitePreset = 0x5
	hexOffPreset   = 0x0
)

// tickStandalone applies the front-panel hex preset once per loop
// iteration, matching the firmware's own polling of ui_hex() every tick
// rather than only on interrupt-driven change.
func (n *Node) tickStandalone() {
	if !n.px.Capture() {
		return
	}
	defer n.px.Release()

	switch n.panel.Hex() {
	case hexWhitePreset:
		for i := 0; i < n.px.Length(); i++ {
			for s := 0; s < pixel.MaxStrings; s++ {
				n.px.RGB(i, s, 255, 255, 255)
			}
		}
	case hexOffPreset:
		n.px.Clear()
	default:
		n.px.Clear()
	}
}

// tickTPM2Serial drains up to one chunk's worth of already-buffered bytes
// from src, feeding the shared decoder exactly as the scene engine's own
// TPM2 command does, for nodes configured to ingest TPM2 directly from a
// serial port rather than a flash-card clip (mode TPM2, §1).
func (n *Node) tickTPM2Serial(src io.Reader) error {
	var chunk [128]byte
	nRead, err := src.Read(chunk[:])
	for i := 0; i < nRead; i++ {
		n.tpmDec.Byte(chunk[i])
	}
	if n.tpmDec.Trip() {
		if n.px.Capture() {
			n.px.Maps(n.buf)
			n.tpmDec.Clear()
			n.px.Release()
		}
	}
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

// ApplyDMXBreak forwards one detected DMX break edge to the universe
// decoder, for callers feeding framing-error events from their own UART
// driver (break detection itself is hardware/driver-specific and out of
// this core's scope per §1).
func (n *Node) ApplyDMXBreak() {
	n.dmxDec.Break()
	if n.dmxDec.Trip() {
		if n.px.Capture() {
			n.px.Maps(n.buf)
			n.dmxDec.Clear()
			n.px.Release()
		}
	}
}

// ApplyDMXByte forwards one DMX slot byte received between breaks.
func (n *Node) ApplyDMXByte(b byte) {
	n.dmxDec.Byte(b)
}

// pollRadio drains one pending radio packet (if any) to the handler, and
// ships the handler's reply back over the link when it produces one.
func (n *Node) pollRadio() error {
	if n.link == nil {
		return nil
	}
	pkt, ok, err := n.link.Receive()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	reply, shouldReply := n.hnd.Handle(pkt.Dst, pkt.RSSI, pkt.Payload)
	if shouldReply {
		return n.link.SendTo(pkt.Dst, reply)
	}
	return nil
}

// Tick advances every owned subsystem by one cooperative loop iteration,
// in the dependency order §2 lists: radio, pixel pacing, mode-specific
// work, then the front panel.
func (n *Node) Tick() error {
	if err := n.pollRadio(); err != nil {
		return err
	}
	n.px.Tick()

	switch n.mode {
	case config.ModeScene:
		if n.scene != nil {
			n.scene.Play()
		}
	case config.ModeStandalone, config.ModeNone:
		n.tickStandalone()
	case config.ModeTPM2:
		if n.tpmSrc != nil {
			if err := n.tickTPM2Serial(n.tpmSrc); err != nil {
				return err
			}
		}
	case config.ModeDMX, config.ModeRX, config.ModeTX, config.ModeBeacon:
		// DMX break/slot detection and the RF automaton's RX/TX/beacon
		// bookkeeping are UART- and radio-driver-specific; callers with
		// real hardware access drive ApplyDMXBreak/ApplyDMXByte (or the
		// radio link directly) from their own interrupt or poll path
		// instead of from this cooperative tick.
	}

	n.panel.Debounce()
	return nil
}

// Run ticks the node until ctx is cancelled, returning ctx.Err().
func (n *Node) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := n.Tick(); err != nil {
			return err
		}
	}
}

// StartScene begins scene s once a configuration is loaded, whatever the
// node's run mode; it is also how scene mode's own autoplay (§8
// scenario 2: a scene-mode node with no radio present plays scene 0 at
// boot) is driven by cmd/node.go after LoadConfig succeeds.
func (n *Node) StartScene(s int) error {
	if n.scene == nil {
		return fmt.Errorf("node: no configuration loaded")
	}
	return n.scene.Start(s)
}
