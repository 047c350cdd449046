// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 knstwrk

package radio

import "encoding/binary"

// EncodeSleep returns the 4-byte broadcast-safe sleep command payload.
func EncodeSleep() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, SleepMagic)
	return b
}

// IsSleep reports whether payload is the sleep magic.
func IsSleep(payload []byte) bool {
	return len(payload) == 4 && binary.LittleEndian.Uint32(payload) == SleepMagic
}

// EncodeWake returns one wake-burst packet payload, carrying the
// remaining burst time in ms so the sleeping node can align its ack to
// land after the burst finishes (§4.7).
func EncodeWake(remainingMs uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], WakeMagic)
	binary.LittleEndian.PutUint32(b[4:8], remainingMs)
	return b
}

// DecodeWake reports whether payload is a wake-burst packet and, if so,
// its carried remaining-time value.
func DecodeWake(payload []byte) (remainingMs uint32, ok bool) {
	if len(payload) != 8 || binary.LittleEndian.Uint32(payload[0:4]) != WakeMagic {
		return 0, false
	}
	return binary.LittleEndian.Uint32(payload[4:8]), true
}

// WakeBurstInterval is the cadence at which the coordinator repeats the
// wake packet while a node may be listen-sleeping.
const WakeBurstInterval = 42 // ms

// WakeBurstMargin is added to the node's configured listen period to size
// the total wake burst duration, so at least one burst packet is certain
// to land inside every listen window.
const WakeBurstMargin = 150 // ms
