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

// Package pool holds a fixed set of cell.Cells and hands them out to
// callers round-robin. It has no load-aware routing: acquiring a
// cell is an atomic counter increment, exactly as the component
// design specifies ("N Cells round-robin; lifecycle start/stop").
package pool

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"github.com/lightningbolt/boltcore/cell"
	"github.com/lightningbolt/boltcore/packstream"
)

// Dialer returns a fresh transport for one cell. New calls it once
// per cell so that every cell in the pool owns its own TCP
// connection; the pool itself never multiplexes cells over a shared
// socket.
type Dialer func() (io.ReadWriteCloser, error)

// Pool is a fixed-size, round-robin collection of Cells. It is safe
// for concurrent use: Acquire only touches an atomic counter, and
// Start/Stop serialize themselves with a mutex so concurrent
// lifecycle calls from multiple goroutines can't race each other.
type Pool struct {
	cells []*cell.Cell
	next  atomic.Uint64

	mu      sync.Mutex
	started bool
}

// New dials n transports via dial and wraps each in a Cell, ready
// for Start. n must be at least 1.
func New(n int, dial Dialer) (*Pool, error) {
	if n < 1 {
		return nil, fmt.Errorf("pool: size must be >= 1, got %d", n)
	}
	cells := make([]*cell.Cell, 0, n)
	for i := 0; i < n; i++ {
		transport, err := dial()
		if err != nil {
			return nil, fmt.Errorf("pool: dial cell %d: %w", i, err)
		}
		cells = append(cells, cell.New(transport))
	}
	return &Pool{cells: cells}, nil
}

// Size reports how many cells the pool holds.
func (p *Pool) Size() int { return len(p.cells) }

// Acquire returns the next cell in round-robin order. The counter
// wraps naturally on overflow (it's reduced modulo len(cells) below,
// so wraparound of the uint64 itself is harmless).
func (p *Pool) Acquire() *cell.Cell {
	i := p.next.Add(1) - 1
	return p.cells[i%uint64(len(p.cells))]
}

// Cells returns the pool's cells in index order, e.g. for callers
// that want to fan a diagnostic query out to every connection.
func (p *Pool) Cells() []*cell.Cell {
	return slices.Clone(p.cells)
}

// Start brings up every cell in the pool concurrently and waits for
// all of them; if any fail it returns the error of the lowest-indexed
// failing cell. Cells that started successfully are left running;
// the caller decides whether to Stop the whole pool or retry the
// failed cell individually.
func (p *Pool) Start(userAgent string, auth packstream.Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("pool: already started")
	}
	var wg sync.WaitGroup
	errs := make([]error, len(p.cells))
	for i, c := range p.cells {
		wg.Add(1)
		go func(i int, c *cell.Cell) {
			defer wg.Done()
			errs[i] = c.Start(userAgent, auth)
		}(i, c)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("pool: starting cell %d: %w", i, err)
		}
	}
	p.started = true
	return nil
}

// StartOne brings up a single cell by index without touching the
// rest of the pool, for callers that prefer lazy per-cell startup
// over Start's eager all-at-once bring-up.
func (p *Pool) StartOne(i int, userAgent string, auth packstream.Value) error {
	if i < 0 || i >= len(p.cells) {
		return fmt.Errorf("pool: index %d out of range [0,%d)", i, len(p.cells))
	}
	return p.cells[i].Start(userAgent, auth)
}

// Stop shuts down every cell in the pool concurrently and waits for
// all of them to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	var wg sync.WaitGroup
	for _, c := range p.cells {
		wg.Add(1)
		go func(c *cell.Cell) {
			defer wg.Done()
			c.Stop()
		}(c)
	}
	wg.Wait()
	p.started = false
}

// ConnectedCount reports how many cells currently believe they have
// a live session, for health-check style callers.
func (p *Pool) ConnectedCount() int {
	n := 0
	for _, c := range p.cells {
		if c.IsConnected() {
			n++
		}
	}
	return n
}
