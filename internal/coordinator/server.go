// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package coordinator

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/knstwrk/stripeline/internal/handler"
	"github.com/knstwrk/stripeline/internal/radio"
	"github.com/knstwrk/stripeline/internal/timeout"
)

// ErrNoAck is returned once a radio round trip's TTL is exhausted without
// a reply, the host-side analog of the node's own transient-radio class.
var ErrNoAck = errors.New("coordinator: no ack from node")

// ErrBadRequest marks a line that does not parse as "VERB arg arg...".
var ErrBadRequest = errors.New("coordinator: malformed request")

// Response is one formatted reply: a 3-digit status and optional fields.
type Response struct {
	Code       int
	Status     string
	Fields     map[string]string
	fieldOrder []string
}

func newResponse(code int, status string) Response {
	return Response{Code: code, Status: status, Fields: make(map[string]string)}
}

func (r *Response) set(key, value string) {
	if _, ok := r.Fields[key]; !ok {
		r.fieldOrder = append(r.fieldOrder, key)
	}
	r.Fields[key] = value
}

// Format renders the response per §4.9: a status line, then zero or more
// "Key: value" lines, terminated by a blank line.
func (r Response) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s\n", r.Code, r.Status)
	for _, k := range r.fieldOrder {
		fmt.Fprintf(&b, "%s: %s\n", k, r.Fields[k])
	}
	b.WriteString("\n")
	return b.String()
}

const (
	codeOK     = 100
	codeIllArg = 401
	codeNoNode = 404
	codeBadReq = 400
)

// Radio is the subset of *radio.Link the server drives: send a framed
// packet and poll for the next received one. The server treats any
// packet arriving within the handler timeout as the awaited ack, valid
// because the coordinator never has more than one outstanding request at
// a time (the same single-threaded-cooperative discipline the node
// itself uses).
type Radio interface {
	SendTo(dst byte, payload []byte) error
	Receive() (*radio.Packet, bool, error)
}

// Server dispatches parsed line-protocol requests against the radio link
// and the persisted node table.
type Server struct {
	radio Radio
	clock *timeout.Service
	table *NodeTable
}

// NewServer constructs a Server.
func NewServer(r Radio, clock *timeout.Service, table *NodeTable) *Server {
	return &Server{radio: r, clock: clock, table: table}
}

// ParseRequest parses one request block: a verb, a node id, and any
// further space-separated arguments. HELO takes no node id.
func ParseRequest(line string) (verb Verb, node uint8, args []string, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", 0, nil, ErrBadRequest
	}
	verb = Verb(strings.ToUpper(fields[0]))
	rest := fields[1:]

	if verb == VerbHELO {
		return verb, 0, rest, nil
	}
	if len(rest) == 0 {
		return "", 0, nil, ErrBadRequest
	}
	n, err := strconv.ParseUint(rest[0], 10, 8)
	if err != nil {
		return "", 0, nil, fmt.Errorf("%w: bad node id %q", ErrBadRequest, rest[0])
	}
	return verb, uint8(n), rest[1:], nil
}

// sendAndAwait sends payload to dst and blocks (polling Receive) until a
// packet arrives or timeoutMs elapses.
func (s *Server) sendAndAwait(dst byte, payload []byte, timeoutMs uint32) (*radio.Packet, error) {
	if err := s.radio.SendTo(dst, payload); err != nil {
		return nil, err
	}
	deadline := s.clock.Set(timeoutMs)
	for !s.clock.Expired(deadline) {
		pkt, ok, err := s.radio.Receive()
		if err != nil {
			return nil, err
		}
		if ok {
			return pkt, nil
		}
	}
	return nil, ErrNoAck
}

// defaultListenMs is the assumed node listen period when a WAKE request
// does not name one explicitly, sized so the total burst duration
// matches this server's former single-shot WakeTimeoutMs budget.
const defaultListenMs = WakeTimeoutMs - radio.WakeBurstMargin

// sendWakeBurst implements the wake half of the sleep/wake protocol
// (§4.7): a single unrepeated wake packet can easily be missed by a
// listen-sleeping node, so the coordinator instead resends
// radio.EncodeWake at radio.WakeBurstInterval cadence for
// listenMs+radio.WakeBurstMargin, guaranteeing at least one packet lands
// inside the node's listen window, until either that deadline elapses or
// an ack arrives.
func (s *Server) sendWakeBurst(dst byte, listenMs uint32) (*radio.Packet, error) {
	deadline := s.clock.Set(listenMs + radio.WakeBurstMargin)
	nextSend := s.clock.Set(0)
	for {
		if s.clock.Expired(nextSend) {
			if err := s.radio.SendTo(dst, radio.EncodeWake(s.clock.Remaining(deadline))); err != nil {
				return nil, err
			}
			nextSend = s.clock.Set(radio.WakeBurstInterval)
		}
		pkt, ok, err := s.radio.Receive()
		if err != nil {
			return nil, err
		}
		if ok {
			return pkt, nil
		}
		if s.clock.Expired(deadline) {
			return nil, ErrNoAck
		}
	}
}

// Handle executes one request against the radio link, applying the
// task's TTL/retry policy, and returns a formatted Response.
func (s *Server) Handle(verb Verb, node uint8, args []string) Response {
	if verb == VerbHELO {
		r := newResponse(codeOK, "OK")
		r.set("Server", "stripeline-coordinator")
		return r
	}

	task := NewTask(verb, node, args)
	for {
		resp, err := s.dispatch(task)
		if err == nil {
			return resp
		}
		if !errors.Is(err, ErrNoAck) {
			r := newResponse(codeBadReq, "Bad request")
			r.set("Error", err.Error())
			return r
		}
		if task.Timeout() {
			r := newResponse(codeNoNode, "No node")
			return r
		}
	}
}

func (s *Server) dispatch(t *Task) (Response, error) {
	timeoutMs := uint32(HandlerTimeout)

	switch t.Verb {
	case VerbRSSI:
		st, ok := s.table.Get(t.Node)
		if !ok {
			return newResponse(codeNoNode, "No node"), nil
		}
		r := newResponse(codeOK, "OK")
		r.set("RSSI", strconv.Itoa(st.LastRSSI))
		return r, nil

	case VerbSLEEP:
		pkt, err := s.sendAndAwait(t.Node, radio.EncodeSleep(), timeoutMs)
		if err != nil {
			return Response{}, err
		}
		s.table.MarkSleeping(t.Node, int64(s.clock.Now()))
		return ackResponse(pkt), nil

	case VerbWAKE:
		listenMs := uint32(defaultListenMs)
		if len(t.Args) == 1 {
			v, err := strconv.ParseUint(t.Args[0], 10, 32)
			if err != nil {
				return newResponse(codeIllArg, "Illegal argument"), nil
			}
			listenMs = uint32(v)
		} else if len(t.Args) > 1 {
			return newResponse(codeIllArg, "Illegal argument"), nil
		}
		pkt, err := s.sendWakeBurst(t.Node, listenMs)
		if err != nil {
			return Response{}, err
		}
		s.table.Update(t.Node, int64(s.clock.Now()), pkt.RSSI, -1)
		return ackResponse(pkt), nil

	case VerbPING:
		pkt, err := s.sendAndAwait(t.Node, []byte{handler.CmdPing}, timeoutMs)
		if err != nil {
			return Response{}, err
		}
		fields, uerr := unpackReply("Www", pkt.Payload)
		if uerr != nil {
			return Response{}, uerr
		}
		s.table.Update(t.Node, int64(s.clock.Now()), pkt.RSSI, -1)
		r := newResponse(codeOK, "OK")
		r.set("VBat", fmt.Sprint(fields[0]))
		r.set("RSSI", fmt.Sprint(fields[1]))
		r.set("Temp", fmt.Sprint(fields[2]))
		return r, nil

	case VerbFINGER:
		pkt, err := s.sendAndAwait(t.Node, []byte{handler.CmdFinger}, timeoutMs)
		if err != nil {
			return Response{}, err
		}
		fields, uerr := unpackReply("LWW", pkt.Payload)
		if uerr != nil {
			return Response{}, uerr
		}
		r := newResponse(codeOK, "OK")
		r.set("UID", fmt.Sprintf("%08X", fields[0]))
		r.set("HWV", fmt.Sprint(fields[1]))
		r.set("SWV", fmt.Sprint(fields[2]))
		return r, nil

	case VerbSTART:
		if len(t.Args) != 1 {
			return newResponse(codeIllArg, "Illegal argument"), nil
		}
		scene, err := strconv.ParseUint(t.Args[0], 10, 16)
		if err != nil {
			return newResponse(codeIllArg, "Illegal argument"), nil
		}
		payload := append([]byte{handler.CmdStart}, packUint16(uint16(scene))...)
		pkt, err := s.sendAndAwait(t.Node, payload, timeoutMs)
		if err != nil {
			return Response{}, err
		}
		s.table.Update(t.Node, int64(s.clock.Now()), pkt.RSSI, int(scene))
		return ackResponse(pkt), nil

	case VerbPAUSE:
		return s.simpleVerb(t, handler.CmdPause, timeoutMs)
	case VerbSKIP:
		return s.simpleVerb(t, handler.CmdSkip, timeoutMs)
	case VerbSTOP:
		return s.simpleVerb(t, handler.CmdStop, timeoutMs)
	case VerbFRAME:
		return s.simpleVerb(t, handler.CmdFrame, timeoutMs)

	case VerbDIM:
		if len(t.Args) != 3 {
			return newResponse(codeIllArg, "Illegal argument"), nil
		}
		var rgb [3]byte
		for i, a := range t.Args {
			v, err := strconv.ParseUint(a, 10, 8)
			if err != nil {
				return newResponse(codeIllArg, "Illegal argument"), nil
			}
			rgb[i] = byte(v)
		}
		payload := []byte{handler.CmdDim, rgb[0], rgb[1], rgb[2]}
		pkt, err := s.sendAndAwait(t.Node, payload, timeoutMs)
		if err != nil {
			return Response{}, err
		}
		return ackResponse(pkt), nil

	case VerbTPM2:
		if len(t.Args) != 1 {
			return newResponse(codeIllArg, "Illegal argument"), nil
		}
		frame, err := base64.StdEncoding.DecodeString(t.Args[0])
		if err != nil {
			return newResponse(codeIllArg, "Illegal argument"), nil
		}
		return s.sendTPM2(t.Node, frame, timeoutMs)
	}

	return newResponse(codeBadReq, "Unknown verb"), nil
}

func (s *Server) simpleVerb(t *Task, cmd byte, timeoutMs uint32) (Response, error) {
	pkt, err := s.sendAndAwait(t.Node, []byte{cmd}, timeoutMs)
	if err != nil {
		return Response{}, err
	}
	return ackResponse(pkt), nil
}

// chunkSize is the largest TPM2 payload chunk a single packet carries:
// MaxPacket minus the command byte.
const chunkSize = radio.MaxPacket - 1

func (s *Server) sendTPM2(node uint8, frame []byte, timeoutMs uint32) (Response, error) {
	var lastPkt *radio.Packet
	for off := 0; off < len(frame); off += chunkSize {
		end := off + chunkSize
		if end > len(frame) {
			end = len(frame)
		}
		payload := append([]byte{handler.CmdTPM2}, frame[off:end]...)
		pkt, err := s.sendAndAwait(node, payload, timeoutMs)
		if err != nil {
			return Response{}, err
		}
		lastPkt = pkt
	}
	if lastPkt == nil {
		// Empty frame: send one zero-length chunk to reset the decoder.
		pkt, err := s.sendAndAwait(node, []byte{handler.CmdTPM2}, timeoutMs)
		if err != nil {
			return Response{}, err
		}
		lastPkt = pkt
	}
	return ackResponse(lastPkt), nil
}

func ackResponse(pkt *radio.Packet) Response {
	r := newResponse(codeOK, "OK")
	if pkt != nil {
		r.set("RSSI", strconv.Itoa(pkt.RSSI))
	}
	return r
}

func packUint16(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}

// unpackReply decodes a little-endian reply per the same verb vocabulary
// as internal/handler's codec, duplicated narrowly here since that
// codec's pack/unpack are unexported (the coordinator is a different
// wire-format consumer, not the node's command table itself).
func unpackReply(format string, data []byte) ([]int64, error) {
	out := make([]int64, 0, len(format))
	pos := 0
	for _, verb := range format {
		switch verb {
		case 'C', 'b':
			if pos+1 > len(data) {
				return nil, fmt.Errorf("coordinator: short reply")
			}
			out = append(out, int64(data[pos]))
			pos++
		case 'c':
			if pos+1 > len(data) {
				return nil, fmt.Errorf("coordinator: short reply")
			}
			out = append(out, int64(int8(data[pos])))
			pos++
		case 'W':
			if pos+2 > len(data) {
				return nil, fmt.Errorf("coordinator: short reply")
			}
			out = append(out, int64(uint16(data[pos])|uint16(data[pos+1])<<8))
			pos += 2
		case 'w':
			if pos+2 > len(data) {
				return nil, fmt.Errorf("coordinator: short reply")
			}
			out = append(out, int64(int16(uint16(data[pos])|uint16(data[pos+1])<<8)))
			pos += 2
		case 'L':
			if pos+4 > len(data) {
				return nil, fmt.Errorf("coordinator: short reply")
			}
			v := uint32(data[pos]) | uint32(data[pos+1])<<8 | uint32(data[pos+2])<<16 | uint32(data[pos+3])<<24
			out = append(out, int64(v))
			pos += 4
		default:
			return nil, fmt.Errorf("coordinator: unknown reply verb %q", verb)
		}
	}
	return out, nil
}
