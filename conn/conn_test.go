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

package conn

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/lightningbolt/boltcore/bytebuf"
	"github.com/lightningbolt/boltcore/framing"
	"github.com/lightningbolt/boltcore/packstream"
)

// readExactly reads n bytes from r, failing the test on error.
func readExactly(t *testing.T, r io.Reader, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("readExactly(%d): %v", n, err)
	}
	return buf
}

func writeFrame(t *testing.T, w io.Writer, body []byte) {
	t.Helper()
	buf := bytebuf.New(len(body) + 64)
	framing.Frame(buf, body)
	if _, err := w.Write(buf.ReadPtr()); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
}

func readFrame(t *testing.T, r io.Reader) []byte {
	t.Helper()
	var all []byte
	for {
		hdr := readExactly(t, r, 2)
		n := int(binary.BigEndian.Uint16(hdr))
		if n == 0 {
			return all
		}
		all = append(all, readExactly(t, r, n)...)
	}
}

// TestHandshakeNonManifest drives negotiateVersion against a server
// that replies with a single chosen version directly, the
// handshake's non-manifest path.
func TestHandshakeNonManifest(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		c := New(client)
		done <- c.negotiateVersion()
	}()

	hs := readExactly(t, server, 20)
	if !bytes.Equal(hs[:4], magic[:]) {
		t.Fatalf("magic = % X, want % X", hs[:4], magic)
	}
	if _, err := server.Write([]byte{0x00, 0x00, 0x04, 0x04}); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("negotiateVersion: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for negotiateVersion")
	}
}

// TestHandshakeManifest reproduces S4's literal byte scenario: the
// client proposes a manifest, the server answers with two candidate
// versions, and the client echoes the highest one back.
func TestHandshakeManifest(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	c := New(client)
	go func() {
		done <- c.negotiateVersion()
	}()

	wantHandshake := []byte{
		0x60, 0x60, 0xB0, 0x17,
		0x00, 0x00, 0x01, 0xFF,
		0x00, 0x00, 0x04, 0x04,
		0x00, 0x00, 0x00, 0x03,
		0x00, 0x00, 0x00, 0x02,
	}
	got := readExactly(t, server, 20)
	if !bytes.Equal(got, wantHandshake) {
		t.Fatalf("handshake = % X, want % X", got, wantHandshake)
	}

	// manifest marker, then count=2, then two candidate versions
	server.Write([]byte{0x00, 0x00, 0x01, 0xFF})
	server.Write([]byte{0x02})
	server.Write([]byte{0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x04, 0x04})

	echo := readExactly(t, server, 5)
	wantEcho := []byte{0x00, 0x00, 0x00, 0x05, 0x00}
	if !bytes.Equal(echo, wantEcho) {
		t.Fatalf("echo = % X, want % X", echo, wantEcho)
	}

	if err := <-done; err != nil {
		t.Fatalf("negotiateVersion: %v", err)
	}
	if c.version != 5 {
		t.Fatalf("negotiated version = %d, want 5", c.version)
	}
}

// fakeServerV4 drives the other end of a pipe through handshake, a
// single-step v4 HELLO, and one RUN/PULL/RECORD/SUCCESS cycle.
func fakeServerV4(t *testing.T, server net.Conn) {
	t.Helper()
	readExactly(t, server, 20)
	server.Write([]byte{0x00, 0x00, 0x04, 0x04})

	// HELLO
	readFrame(t, server)
	writeFrame(t, server, successMessage(t))

	// RUN then PULL, pipelined
	readFrame(t, server) // RUN
	readFrame(t, server) // PULL
	pool := packstream.NewPool()
	fields := packstream.Map(pool, packstream.Entry{Key: packstream.Str("fields"), Value: packstream.List(pool, packstream.Str("n"))})
	writeFrame(t, server, structBytes(t, tagSuccess, fields))

	record := packstream.Struct(pool, tagRecord, packstream.List(pool, packstream.Int(1)))
	writeFrame(t, server, valueBytes(t, record))

	summary := packstream.Map(pool)
	writeFrame(t, server, structBytes(t, tagSuccess, summary))
}

func successMessage(t *testing.T) []byte {
	t.Helper()
	pool := packstream.NewPool()
	return structBytes(t, tagSuccess, packstream.Map(pool))
}

func structBytes(t *testing.T, tag byte, fields ...packstream.Value) []byte {
	t.Helper()
	pool := packstream.NewPool()
	v := packstream.Struct(pool, tag, fields...)
	return valueBytes(t, v)
}

func valueBytes(t *testing.T, v packstream.Value) []byte {
	t.Helper()
	buf := bytebuf.New(256)
	if err := packstream.Encode(buf, v); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return append([]byte(nil), buf.ReadPtr()...)
}

func TestStartAndRunQueryV4(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go fakeServerV4(t, server)

	c := New(client)
	pool := packstream.NewPool()
	auth := packstream.Map(pool,
		packstream.Entry{Key: packstream.Str("scheme"), Value: packstream.Str("basic")},
		packstream.Entry{Key: packstream.Str("principal"), Value: packstream.Str("neo4j")},
		packstream.Entry{Key: packstream.Str("credentials"), Value: packstream.Str("secret")},
	)
	if err := c.Start("boltcore/1.0", auth); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.State() != Ready {
		t.Fatalf("State() = %v, want Ready", c.State())
	}

	if err := c.RunQuery("RETURN 1", packstream.Map(pool), packstream.Map(pool), -1); err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if c.State() != Run {
		t.Fatalf("State() after RunQuery = %v, want Run", c.State())
	}

	status1, res1, err := c.Fetch()
	if err != nil {
		t.Fatalf("Fetch (fields): %v", err)
	}
	if status1 != FetchMore || res1.Kind != ResultFields {
		t.Fatalf("Fetch (fields) = %v %+v", status1, res1)
	}
	if c.State() != Pull {
		t.Fatalf("State() after field SUCCESS = %v, want Pull", c.State())
	}

	status2, res2, err := c.Fetch()
	if err != nil {
		t.Fatalf("Fetch (record): %v", err)
	}
	if status2 != FetchMore || res2.Kind != ResultRecord {
		t.Fatalf("Fetch (record) = %v %+v", status2, res2)
	}
	if c.State() != Streaming {
		t.Fatalf("State() after RECORD = %v, want Streaming", c.State())
	}

	status3, res3, err := c.Fetch()
	if err != nil {
		t.Fatalf("Fetch (summary): %v", err)
	}
	if status3 != FetchDone || res3.Kind != ResultSummary || res3.HasMore {
		t.Fatalf("Fetch (summary) = %v %+v", status3, res3)
	}
	if c.State() != Ready {
		t.Fatalf("State() after summary SUCCESS = %v, want Ready", c.State())
	}
}
