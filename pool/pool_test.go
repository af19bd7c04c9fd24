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

package pool

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/lightningbolt/boltcore/bytebuf"
	"github.com/lightningbolt/boltcore/framing"
	"github.com/lightningbolt/boltcore/packstream"
)

// fakeServer performs just enough of the handshake + HELLO exchange
// to bring a Connection to Ready, mirroring conn_test.go's
// fakeServerV4 but trimmed to what Pool.Start needs.
func fakeServer(t *testing.T, server net.Conn) {
	t.Helper()
	hdr := make([]byte, 20)
	if _, err := io.ReadFull(server, hdr); err != nil {
		t.Errorf("fakeServer: read handshake: %v", err)
		return
	}
	if _, err := server.Write([]byte{0x00, 0x00, 0x04, 0x04}); err != nil {
		t.Errorf("fakeServer: write version: %v", err)
		return
	}

	// read the framed HELLO and reply SUCCESS
	readFrame(t, server)
	writeFrame(t, server, successBytes(t))
}

func readFrame(t *testing.T, r net.Conn) []byte {
	t.Helper()
	var all []byte
	hdr := make([]byte, 2)
	for {
		if _, err := io.ReadFull(r, hdr); err != nil {
			t.Errorf("readFrame: %v", err)
			return all
		}
		n := int(hdr[0])<<8 | int(hdr[1])
		if n == 0 {
			return all
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			t.Errorf("readFrame: %v", err)
			return all
		}
		all = append(all, chunk...)
	}
}

func writeFrame(t *testing.T, w net.Conn, body []byte) {
	t.Helper()
	buf := bytebuf.New(len(body) + 64)
	framing.Frame(buf, body)
	if _, err := w.Write(buf.ReadPtr()); err != nil {
		t.Errorf("writeFrame: %v", err)
	}
}

func successBytes(t *testing.T) []byte {
	t.Helper()
	p := packstream.NewPool()
	v := packstream.Struct(p, 0x70, packstream.Map(p))
	buf := bytebuf.New(256)
	if err := packstream.Encode(buf, v); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return append([]byte(nil), buf.ReadPtr()...)
}

// TestPoolStartAndStop brings up a 3-cell pool against in-process
// fake servers and verifies every cell reaches Ready, round-robin
// Acquire cycles through all of them in order, and Stop shuts
// everything down cleanly.
func TestPoolStartAndStop(t *testing.T) {
	const n = 3
	clients := make([]net.Conn, n)
	servers := make([]net.Conn, n)
	for i := 0; i < n; i++ {
		c, s := net.Pipe()
		clients[i] = c
		servers[i] = s
		go fakeServer(t, s)
	}

	idx := 0
	p, err := New(n, func() (io.ReadWriteCloser, error) {
		c := clients[idx]
		idx++
		return c, nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Size() != n {
		t.Fatalf("Size() = %d, want %d", p.Size(), n)
	}

	authPool := packstream.NewPool()
	auth := packstream.Map(authPool,
		packstream.Entry{Key: packstream.Str("scheme"), Value: packstream.Str("basic")},
	)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Start("boltcore/1.0", auth) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for Pool.Start")
	}

	if p.ConnectedCount() != n {
		t.Fatalf("ConnectedCount() = %d, want %d", p.ConnectedCount(), n)
	}

	cells := p.Cells()
	acquired := make([]int, 2*n)
	for i := range acquired {
		got := p.Acquire()
		for j, c := range cells {
			if c == got {
				acquired[i] = j
			}
		}
	}
	for i := 0; i < n; i++ {
		if acquired[i] != i || acquired[i+n] != i {
			t.Fatalf("Acquire() sequence = %v, want two full round-robin passes over [0,%d)", acquired, n)
		}
	}

	p.Stop()
	for _, s := range servers {
		s.Close()
	}
}

// TestPoolRejectsNonPositiveSize checks New's argument validation.
func TestPoolRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0, func() (io.ReadWriteCloser, error) { return nil, nil }); err == nil {
		t.Fatal("New(0, ...) should fail")
	}
}
