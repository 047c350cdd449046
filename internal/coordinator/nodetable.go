// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

// Package coordinator implements the host-side line protocol server: the
// ASCII verb grammar of §4.9, its retry-with-TTL task queue, and a small
// CBOR-persisted node table. It is grounded on cmd/connection.go's
// Connection abstraction and pkg/fusain/cbor.go's encode/decode idiom,
// repurposed here for plain Go structs instead of Fusain's own
// [msg_type, payload_map] envelope.
package coordinator

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// NodeState is the coordinator's last-known view of one node, refreshed
// by every successful radio round trip and persisted across restarts.
type NodeState struct {
	ID        uint8 `cbor:"id"`
	LastSeen  int64 `cbor:"last_seen"` // unix ms
	LastRSSI  int   `cbor:"rssi"`
	LastScene int   `cbor:"scene"`
	Sleeping  bool  `cbor:"sleeping"`
}

// NodeTable is the coordinator's persisted node directory, the direct
// complement to the in-memory task queue that §4.9 left implicit.
type NodeTable struct {
	nodes map[uint8]NodeState
}

// NewNodeTable returns an empty table.
func NewNodeTable() *NodeTable {
	return &NodeTable{nodes: make(map[uint8]NodeState)}
}

// LoadNodeTable reads a persisted table from path. A missing file yields
// an empty table rather than an error, since a first run has none yet.
func LoadNodeTable(path string) (*NodeTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewNodeTable(), nil
		}
		return nil, fmt.Errorf("coordinator: reading node table: %w", err)
	}
	var nodes []NodeState
	if err := cbor.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("coordinator: decoding node table: %w", err)
	}
	t := NewNodeTable()
	for _, n := range nodes {
		t.nodes[n.ID] = n
	}
	return t, nil
}

// Save persists the table to path as a CBOR array of NodeState, mirroring
// the CBOR array-of-records shape pkg/fusain uses for its own envelopes.
func (t *NodeTable) Save(path string) error {
	nodes := make([]NodeState, 0, len(t.nodes))
	for _, n := range t.nodes {
		nodes = append(nodes, n)
	}
	data, err := cbor.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("coordinator: encoding node table: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("coordinator: writing node table: %w", err)
	}
	return nil
}

// Update records a successful radio round trip with node id.
func (t *NodeTable) Update(id uint8, nowMs int64, rssi, scene int) {
	n := t.nodes[id]
	n.ID = id
	n.LastSeen = nowMs
	n.LastRSSI = rssi
	n.LastScene = scene
	n.Sleeping = false
	t.nodes[id] = n
}

// MarkSleeping records that id acknowledged a SLEEP verb.
func (t *NodeTable) MarkSleeping(id uint8, nowMs int64) {
	n := t.nodes[id]
	n.ID = id
	n.LastSeen = nowMs
	n.Sleeping = true
	t.nodes[id] = n
}

// Get returns the recorded state for id.
func (t *NodeTable) Get(id uint8) (NodeState, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// IDs returns every known node id, for the monitor TUI's live table.
func (t *NodeTable) IDs() []uint8 {
	ids := make([]uint8, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	return ids
}
