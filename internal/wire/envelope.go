// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

// Package wire implements a host-side-only CBOR telemetry envelope. No
// other package imports it: the monitor TUI reads the coordinator's node
// table file instead, and no WebSocket endpoint carries it. It has no
// analog on the radio link, which stays byte-exact per §6; this
// is purely a convenience layer, grounded on pkg/fusain/cbor.go's
// [msg_type, payload] idiom and repurposed for this domain's own
// telemetry shape rather than Fusain's furnace payload keys.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind tags one envelope's payload shape.
type Kind uint8

const (
	KindNodeState Kind = iota + 1
	KindPacketLog
	KindSceneCatalogue
)

// NodeSnapshot mirrors coordinator.NodeState for the wire, kept as an
// independent type so internal/wire never depends on internal/coordinator
// (the envelope is a presentation concern, not a coordinator internal).
type NodeSnapshot struct {
	ID        uint8 `cbor:"id"`
	LastSeen  int64 `cbor:"last_seen"`
	LastRSSI  int   `cbor:"rssi"`
	LastScene int   `cbor:"scene"`
	Sleeping  bool  `cbor:"sleeping"`
}

// PacketLogEntry is one observed radio packet, for the monitor's
// scrolling packet log pane.
type PacketLogEntry struct {
	TimestampMs int64 `cbor:"ts"`
	Dst         uint8 `cbor:"dst"`
	RSSI        int   `cbor:"rssi"`
	Command     uint8 `cbor:"cmd"`
	Length      int   `cbor:"len"`
}

// SceneCatalogueEntry names one scene number available on a node.
type SceneCatalogueEntry struct {
	Node  uint8 `cbor:"node"`
	Scene int   `cbor:"scene"`
}

// Envelope is the two-element [kind, payload] array Fusain's own CBOR
// messages use, generalized here to carry this domain's three telemetry
// shapes instead of one furnace command set.
type Envelope struct {
	Kind    Kind
	Payload interface{}
}

// Marshal encodes e as a CBOR 2-element array: [kind, payload].
func Marshal(e Envelope) ([]byte, error) {
	data, err := cbor.Marshal([]interface{}{uint8(e.Kind), e.Payload})
	if err != nil {
		return nil, fmt.Errorf("wire: encoding envelope: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a [kind, payload] array and re-decodes payload into
// the concrete type Kind names, returning it as the Envelope's Payload.
func Unmarshal(data []byte) (Envelope, error) {
	var raw []cbor.RawMessage
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("wire: decoding envelope: %w", err)
	}
	if len(raw) != 2 {
		return Envelope{}, fmt.Errorf("wire: expected 2-element envelope, got %d", len(raw))
	}

	var kind uint8
	if err := cbor.Unmarshal(raw[0], &kind); err != nil {
		return Envelope{}, fmt.Errorf("wire: decoding envelope kind: %w", err)
	}

	switch Kind(kind) {
	case KindNodeState:
		var snaps []NodeSnapshot
		if err := cbor.Unmarshal(raw[1], &snaps); err != nil {
			return Envelope{}, fmt.Errorf("wire: decoding node state payload: %w", err)
		}
		return Envelope{Kind: KindNodeState, Payload: snaps}, nil
	case KindPacketLog:
		var entries []PacketLogEntry
		if err := cbor.Unmarshal(raw[1], &entries); err != nil {
			return Envelope{}, fmt.Errorf("wire: decoding packet log payload: %w", err)
		}
		return Envelope{Kind: KindPacketLog, Payload: entries}, nil
	case KindSceneCatalogue:
		var entries []SceneCatalogueEntry
		if err := cbor.Unmarshal(raw[1], &entries); err != nil {
			return Envelope{}, fmt.Errorf("wire: decoding scene catalogue payload: %w", err)
		}
		return Envelope{Kind: KindSceneCatalogue, Payload: entries}, nil
	default:
		return Envelope{}, fmt.Errorf("wire: unknown envelope kind %d", kind)
	}
}
