// Package payloadpool implements the PayloadPool contract (spec.md 4.1):
// a reference counted buffer allocator that recycles released buffers
// through a size-bucketed free list, and fails Get with ErrExhausted only
// when a hard cap has been configured and reached.
//
// Grounded on original_source/ddspipe/ddspipe_core's PayloadPool family
// (RtpsPayloadData.cpp shows the release-on-last-reference contract);
// written the way the teacher writes its InMemoryEventLog: a single
// sync.Mutex around a handful of maps/slices, no lock-free tricks.
package payloadpool

import (
	"sync"
	"sync/atomic"

	"github.com/ddspipe/ddspipe/pkg/payloadpool"
)

// entry is the pool's bookkeeping for one outstanding (or freed) buffer.
type entry struct {
	buf      []byte
	refcount int32
	size     uint32 // bytes requested by Get; what counts against maxBytes
}

// Pool is a concurrency-safe, reference counted buffer allocator.
//
// Concurrent Get/Share/Release calls are safe; the free list is bucketed
// by the next power-of-two size so recycling a released buffer for a
// similarly sized request avoids a fresh allocation.
type Pool struct {
	mu        sync.Mutex
	entries   map[uint64]*entry
	freeList  map[uint32][][]byte // bucket size -> free buffers
	nextID    uint64
	maxBytes  uint64 // hard cap; 0 means unlimited
	liveBytes uint64

	gets     atomic.Uint64
	shares   atomic.Uint64
	releases atomic.Uint64
	live     atomic.Int64
}

var _ payloadpool.Pool = (*Pool)(nil)

// New creates a Pool. maxBytes, if non-zero, is a hard cap on the total
// number of bytes concurrently on loan; Get fails with ErrExhausted once
// the cap would be exceeded.
func New(maxBytes uint64) *Pool {
	return &Pool{
		entries:  make(map[uint64]*entry),
		freeList: make(map[uint32][][]byte),
		maxBytes: maxBytes,
	}
}

func bucketSize(size uint32) uint32 {
	b := uint32(64)
	for b < size {
		b <<= 1
	}
	return b
}

// Get implements payloadpool.Pool.
func (p *Pool) Get(size uint32) (payloadpool.Payload, error) {
	bucket := bucketSize(size)

	p.mu.Lock()
	if p.maxBytes != 0 && p.liveBytes+uint64(size) > p.maxBytes {
		p.mu.Unlock()
		return payloadpool.Payload{}, payloadpool.ErrExhausted
	}

	var buf []byte
	if free := p.freeList[bucket]; len(free) > 0 {
		buf = free[len(free)-1]
		p.freeList[bucket] = free[:len(free)-1]
	} else {
		buf = make([]byte, bucket)
	}

	p.nextID++
	id := p.nextID
	p.entries[id] = &entry{buf: buf, refcount: 1, size: size}
	p.liveBytes += uint64(size)
	p.mu.Unlock()

	p.gets.Add(1)
	p.live.Add(1)

	return payloadpool.Payload{Bytes: buf[:size], Length: size, ID: id}, nil
}

// Share implements payloadpool.Pool.
func (p *Pool) Share(source payloadpool.Payload) (payloadpool.Payload, error) {
	if source.ID == 0 {
		return source, nil
	}

	p.mu.Lock()
	e, ok := p.entries[source.ID]
	if !ok {
		p.mu.Unlock()
		return payloadpool.Payload{}, payloadpool.ErrDoubleRelease
	}
	e.refcount++
	p.mu.Unlock()

	p.shares.Add(1)
	p.live.Add(1)

	return payloadpool.Payload{Bytes: source.Bytes, Length: source.Length, ID: source.ID}, nil
}

// Release implements payloadpool.Pool.
func (p *Pool) Release(pl payloadpool.Payload) error {
	if pl.ID == 0 || pl.IsEmpty() {
		return nil
	}

	p.mu.Lock()
	e, ok := p.entries[pl.ID]
	if !ok {
		p.mu.Unlock()
		return payloadpool.ErrDoubleRelease
	}
	e.refcount--
	remaining := e.refcount
	if remaining <= 0 {
		delete(p.entries, pl.ID)
		bucket := uint32(len(e.buf))
		p.freeList[bucket] = append(p.freeList[bucket], e.buf)
		p.liveBytes -= uint64(e.size)
	}
	p.mu.Unlock()

	if remaining < 0 {
		return payloadpool.ErrDoubleRelease
	}

	p.releases.Add(1)
	p.live.Add(-1)
	return nil
}

// Stats implements payloadpool.Pool.
func (p *Pool) Stats() payloadpool.Stats {
	return payloadpool.Stats{
		Gets:        p.gets.Load(),
		Shares:      p.shares.Load(),
		Releases:    p.releases.Load(),
		Outstanding: p.live.Load(),
	}
}
