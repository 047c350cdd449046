// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

// Package scene implements the tagged-command scene state machine that
// drives the pixel engine one command at a time: STOP, TPM2-from-file,
// PAUSE, MAP, FRAMERATE, DIM. It is grounded on the firmware's scene.c,
// with the byte-offset re-parse model of internal/config standing in for
// the original's direct file seeks.
package scene

import (
	"io"
	"io/fs"

	"github.com/knstwrk/stripeline/internal/config"
	"github.com/knstwrk/stripeline/internal/pixel"
	"github.com/knstwrk/stripeline/internal/timeout"
	"github.com/knstwrk/stripeline/internal/tpm2"
	"github.com/knstwrk/stripeline/internal/wbuf"
)

// chunkSize is how many bytes the TPM2 command feeds the decoder per
// tick, matching §4.6's "~128-byte chunks" without blocking the loop.
const chunkSize = 128

// maxInstantStatements bounds how many zero-tick statements (MAP,
// FRAMERATE, DIM, the implicit loop-to-head) a single loadNext call
// will execute before giving up on a scene that never reaches a
// tick-consuming command — a defensive backstop against a pathological
// or empty scene spinning forever inside one Play call.
const maxInstantStatements = 4096

// Engine is the node's scene state machine, one per Node.
type Engine struct {
	clock *timeout.Service
	px    *pixel.Engine
	buf   *wbuf.Buffer
	dec   *tpm2.Decoder
	fsys  fs.FS

	root   *config.Root
	stream *config.Stream

	sceneNum  int
	sceneHead int64
	running   bool
	paused    bool

	kind     config.StmtKind
	file     fs.File
	deadline timeout.Deadline
}

// New constructs a scene engine over the given subsystems. fsys is the
// filesystem TPM2 commands open clip files from (the flash-card
// abstraction named in §1).
func New(clock *timeout.Service, px *pixel.Engine, buf *wbuf.Buffer, dec *tpm2.Decoder, root *config.Root, fsys fs.FS) *Engine {
	return &Engine{clock: clock, px: px, buf: buf, dec: dec, root: root, fsys: fsys, kind: config.StmtStop}
}

// Running reports whether a scene is active (including while paused).
func (e *Engine) Running() bool { return e.running }

// Paused reports whether the engine is in the paused state.
func (e *Engine) Paused() bool { return e.paused }

// SceneNumber returns the currently loaded scene number, valid only
// while Running.
func (e *Engine) SceneNumber() int { return e.sceneNum }

// Start begins scene s from its head, unless s is already the running
// (possibly paused) scene, in which case it resumes from the position
// reached before the last Pause — scene continuity per §8.
func (e *Engine) Start(s int) error {
	if e.running && e.sceneNum == s {
		e.paused = false
		return nil
	}
	off, ok := e.root.Mode.SceneOffset(s)
	if !ok {
		return errUnknownScene(s)
	}
	e.closeCurrent()
	e.sceneNum = s
	e.sceneHead = off
	e.stream = e.root.NewStream(off)
	e.running = true
	e.paused = false
	e.loadNext()
	return nil
}

// Pause suspends Play without losing position; a later Start of the same
// scene resumes it.
func (e *Engine) Pause() {
	e.paused = true
}

// Skip ends the current command immediately and advances to the next
// scene statement (or loops to the scene head at end of body).
func (e *Engine) Skip() {
	if !e.running {
		return
	}
	e.closeCurrent()
	e.loadNext()
}

// Stop ends the current command and clears scene position entirely.
func (e *Engine) Stop() {
	e.closeCurrent()
	e.running = false
	e.paused = false
	e.kind = config.StmtStop
}

func (e *Engine) closeCurrent() {
	if e.file != nil {
		e.file.Close()
		e.file = nil
	}
}

// Play advances the active command by one tick. It returns false once
// the engine has nothing left to do (stopped, or paused).
func (e *Engine) Play() bool {
	if !e.running || e.paused {
		return false
	}
	switch e.kind {
	case config.StmtStop:
		e.running = false
		return false
	case config.StmtPause:
		if e.clock.Expired(e.deadline) {
			e.loadNext()
		}
		return true
	case config.StmtFile:
		if !e.playTPM2() {
			e.loadNext()
		}
		return true
	default:
		// MAP/FRAMERATE/DIM never remain the active command across a
		// tick boundary; loadNext always runs them to completion and
		// advances past them immediately.
		e.loadNext()
		return true
	}
}

// playTPM2 feeds one chunk of the open clip file to the TPM2 decoder and
// applies the persistent maps whenever a frame trips. It returns false
// once the file is exhausted and no frame remains tripped.
func (e *Engine) playTPM2() bool {
	if e.dec.Trip() {
		if e.px.Capture() {
			e.px.Maps(e.buf)
			e.dec.Clear()
			e.px.Release()
		}
		return true
	}

	var chunk [chunkSize]byte
	n, err := e.file.Read(chunk[:])
	for i := 0; i < n; i++ {
		e.dec.Byte(chunk[i])
	}
	if err == io.EOF {
		e.file.Close()
		e.file = nil
		return false
	}
	return true
}

// loadNext pulls scene statements from the stream, executing the
// instantaneous ones (MAP, FRAMERATE, DIM) inline and stopping once it
// has loaded a tick-consuming command (PAUSE, TPM2) or hit STOP. Reaching
// the scene's closing brace loops back to its head.
func (e *Engine) loadNext() {
	for i := 0; i < maxInstantStatements; i++ {
		st, err := e.stream.Next()
		if err == io.EOF {
			if err := e.stream.Seek(e.sceneHead); err != nil {
				e.kind = config.StmtStop
				e.running = false
				return
			}
			continue
		}
		if err != nil {
			e.kind = config.StmtStop
			e.running = false
			return
		}

		switch st.Kind {
		case config.StmtStop:
			e.kind = config.StmtStop
			e.running = false
			return

		case config.StmtPause:
			e.kind = config.StmtPause
			e.deadline = e.clock.Set(uint32(st.PauseMs))
			return

		case config.StmtFile:
			f, err := e.fsys.Open(st.File)
			if err != nil {
				// Unreadable clip: skip this statement, not the scene.
				continue
			}
			e.kind = config.StmtFile
			e.file = f
			return

		case config.StmtMap:
			maps, err := e.stream.Maps(st.MapOffset)
			if err == nil {
				for _, m := range maps {
					if e.px.Capture() {
						e.px.Map(e.buf, m)
						e.px.Release()
					}
				}
			}
			// instantaneous: continue the loop to the next statement

		case config.StmtFramerate:
			e.px.Framerate(st.Fps)

		case config.StmtDim:
			e.px.SetDim(st.Dim)
		}
	}
	// A pathological scene of nothing but instantaneous statements: give
	// up rather than spin forever inside one Play call.
	e.kind = config.StmtStop
	e.running = false
}

type errUnknownScene int

func (e errUnknownScene) Error() string {
	return "scene: no such scene number"
}
