// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package valuepool implements the two-tier, thread-local, stack-
// discipline allocator that backs owned compound PackStream values
// (lists, maps, struct fields). A Pool is generic over its element
// type so that packstream.Value can instantiate Pool[Value] without
// introducing an import cycle between the two packages.
package valuepool

import "golang.org/x/exp/slices"

// ScratchSize is the number of elements held in the fixed,
// first-fit bump-allocated scratch tier.
const ScratchSize = 128 * 1024

// arenaMinCapacity is the initial capacity the arena tier grows to
// the first time it is needed.
const arenaMinCapacity = 1024

type source uint8

const (
	sourceScratch source = iota
	sourceArena
)

type logEntry struct {
	src   source
	count int
}

// Pool is a per-worker (thread-local, by convention of the caller)
// allocator handing out contiguous runs of T with stack-discipline
// release. It is not safe for concurrent use by multiple
// goroutines; each conn.Connection owns one Pool, used by the
// goroutine that encodes its outbound messages.
type Pool[T any] struct {
	scratch    [ScratchSize]T
	scratchTop int

	arena    []T
	arenaTop int

	log []logEntry
}

// New returns an empty Pool.
func New[T any]() *Pool[T] {
	return &Pool[T]{}
}

// Alloc reserves count contiguous elements and returns an offset
// that Get can later resolve back to that run. Allocations always
// come from a single tier (never split across scratch and arena)
// so that the returned region is guaranteed contiguous for the
// duration of the caller's use, per the pool's stability contract.
func (p *Pool[T]) Alloc(count int) int {
	if count <= 0 {
		return p.scratchTop
	}
	if p.scratchTop+count <= ScratchSize {
		off := p.scratchTop
		p.scratchTop += count
		p.log = append(p.log, logEntry{sourceScratch, count})
		return off
	}
	need := p.arenaTop + count
	if need > len(p.arena) {
		// slices.Grow extends capacity without disturbing len, the
		// same way sneller's ion.Datum buffers grow their backing
		// arrays; we then reslice up to the doubled target so the
		// zero values past arenaTop are addressable by Get.
		newCap := len(p.arena)
		if newCap == 0 {
			newCap = arenaMinCapacity
		}
		for newCap < need {
			newCap *= 2
		}
		p.arena = slices.Grow(p.arena[:p.arenaTop], newCap-p.arenaTop)[:newCap]
	}
	off := ScratchSize + p.arenaTop
	p.arenaTop += count
	p.log = append(p.log, logEntry{sourceArena, count})
	return off
}

// Get resolves an offset previously returned by Alloc into a slice
// beginning at that offset. The caller re-slices to the size it
// originally requested; Get itself does not know that size.
func (p *Pool[T]) Get(offset int) []T {
	if offset < ScratchSize {
		return p.scratch[offset:]
	}
	idx := offset - ScratchSize
	return p.arena[idx:]
}

// Release returns the most recent allocation to the pool. count
// must match the size passed to the corresponding Alloc call;
// release order must mirror allocation order (stack discipline).
// A mismatch indicates
// the caller violated the stack discipline invariant and is a
// programming error, so Release panics rather than silently
// corrupting pool bookkeeping.
func (p *Pool[T]) Release(count int) {
	if count <= 0 {
		return
	}
	if len(p.log) == 0 {
		panic("valuepool: Release called on empty allocation log")
	}
	top := p.log[len(p.log)-1]
	if top.count != count {
		panic("valuepool: Release count does not match top of allocation log (stack discipline violated)")
	}
	p.log = p.log[:len(p.log)-1]
	switch top.src {
	case sourceScratch:
		p.scratchTop -= count
	case sourceArena:
		p.arenaTop -= count
	}
}

// InUse reports the total number of elements currently allocated
// across both tiers. Used by tests to verify the LIFO law: any
// sequence of allocations followed by reverse-order releases
// leaves the pool at zero use.
func (p *Pool[T]) InUse() int {
	return p.scratchTop + p.arenaTop
}

// Reset returns both tiers to empty without releasing the arena's
// backing storage, ready for the next message batch.
func (p *Pool[T]) Reset() {
	p.scratchTop = 0
	p.arenaTop = 0
	p.log = p.log[:0]
}
