// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package wire

import "testing"

func TestNodeStateEnvelopeRoundTrip(t *testing.T) {
	in := Envelope{Kind: KindNodeState, Payload: []NodeSnapshot{
		{ID: 7, LastSeen: 1000, LastRSSI: -42, LastScene: 3},
	}}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Kind != KindNodeState {
		t.Fatalf("kind = %v, want KindNodeState", out.Kind)
	}
	snaps, ok := out.Payload.([]NodeSnapshot)
	if !ok || len(snaps) != 1 || snaps[0].ID != 7 || snaps[0].LastRSSI != -42 {
		t.Fatalf("payload = %+v", out.Payload)
	}
}

func TestPacketLogEnvelopeRoundTrip(t *testing.T) {
	in := Envelope{Kind: KindPacketLog, Payload: []PacketLogEntry{
		{TimestampMs: 5, Dst: 9, RSSI: -60, Command: 0x33, Length: 3},
	}}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	entries, ok := out.Payload.([]PacketLogEntry)
	if !ok || len(entries) != 1 || entries[0].Command != 0x33 {
		t.Fatalf("payload = %+v", out.Payload)
	}
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	data, err := Marshal(Envelope{Kind: 99, Payload: []int{1}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Fatalf("expected an error for an unknown envelope kind")
	}
}
