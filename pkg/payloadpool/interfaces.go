// Package payloadpool defines the contract for the zero-copy, reference
// counted buffer allocator shared by every bridge in a ddspipe process.
//
// Grounded on original_source/ddspipe/ddspipe_core/.../RtpsPayloadData.cpp:
// a Payload's owner releases it back to the pool exactly once, on the last
// reference drop.
package payloadpool

import "errors"

// ErrExhausted is returned by Get when the pool has a hard capacity cap
// and that cap has been reached.
var ErrExhausted = errors.New("payloadpool: exhausted")

// ErrDoubleRelease is returned by Release when a Payload's reference count
// has already reached zero, or an unknown id is released. It is always a
// caller bug and is surfaced rather than swallowed, per spec.
var ErrDoubleRelease = errors.New("payloadpool: double release")

// Payload is an immutable byte buffer loaned out by a Pool. The zero
// value (Length == 0, ID == 0) represents "no payload" and may be
// released any number of times without effect: Invariant, Length == 0
// iff the payload carries no bytes, and ID == 0 iff the bytes are not
// pool-backed (e.g. constructed directly by a test or a participant that
// does not use a Pool).
type Payload struct {
	Bytes  []byte
	Length uint32
	ID     uint64
}

// IsEmpty reports whether the payload carries no bytes.
func (p Payload) IsEmpty() bool {
	return p.Length == 0
}

// Pool allocates, shares and reclaims Payload buffers.
type Pool interface {
	// Get returns a Payload backed by a buffer of at least size bytes,
	// with a reference count of one.
	Get(size uint32) (Payload, error)

	// Share increments the reference count of source and returns a new
	// Payload aliasing the same bytes. The returned Payload must be
	// paired with exactly one call to Release, independent of the
	// source's own release. Sharing a Payload with ID == 0 (not
	// pool-backed) just copies it verbatim.
	Share(source Payload) (Payload, error)

	// Release decrements the reference count of p. When it reaches zero
	// the backing buffer is returned to the pool's free list. Releasing
	// an empty or not-pool-backed Payload is a no-op. Releasing a
	// Payload whose count is already zero returns ErrDoubleRelease.
	Release(p Payload) error

	// Stats returns point-in-time counters useful for leak detection in
	// tests (outstanding buffers, total gets, total releases).
	Stats() Stats
}

// Stats are cumulative counters maintained by a Pool.
type Stats struct {
	Gets        uint64
	Shares      uint64
	Releases    uint64
	Outstanding int64
}
