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

// Package framing implements the wire protocol's chunked message
// framing: every request or response body is wrapped as
// [len:BE16][body]...[0x0000], with the body split across multiple
// length-prefixed chunks when it exceeds 0xFFFF bytes.
package framing

import (
	"encoding/binary"
	"errors"

	"github.com/lightningbolt/boltcore/bytebuf"
)

// MaxChunkSize is the largest body slice a single chunk may carry;
// implementations must not emit a chunk length >= 0x10000.
const MaxChunkSize = 0xFFFF

// ErrIncomplete is returned by Unframe when buf does not yet contain
// a complete, terminated message. Callers (the Framer's read side)
// should treat it as "wait for more bytes from the socket", not as a
// protocol violation.
var ErrIncomplete = errors.New("framing: incomplete message")

// ErrMultiChunk is returned by Unframe when a message spans more
// than one chunk before its terminator. Multi-chunk concatenation is
// only exercised by the wire protocol's write side in this driver;
// the read side surfaces it as a protocol error rather than silently
// reassembling, per the documented scope decision on this subsystem.
var ErrMultiChunk = errors.New("framing: multi-chunk messages are not supported on read")

// Frame appends the chunked encoding of body to dst, splitting it
// into MaxChunkSize-sized chunks if necessary and always terminating
// with a single zero-length chunk.
func Frame(dst *bytebuf.Buffer, body []byte) {
	for len(body) > MaxChunkSize {
		writeChunk(dst, body[:MaxChunkSize])
		body = body[MaxChunkSize:]
	}
	if len(body) > 0 {
		writeChunk(dst, body)
	}
	dst.Write([]byte{0x00, 0x00})
}

func writeChunk(dst *bytebuf.Buffer, chunk []byte) {
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(chunk)))
	dst.Write(hdr[:])
	dst.Write(chunk)
}

// ReserveHeader appends a placeholder 2-byte length field to dst and
// returns its offset relative to dst's current read cursor, for
// callers (the Encoder) that want to encode a message body directly
// into dst and patch the length in afterward instead of building it
// in a separate slice first.
func ReserveHeader(dst *bytebuf.Buffer) int {
	off := dst.Size()
	dst.Write([]byte{0x00, 0x00})
	return off
}

// PatchLength writes the chunk body length (dst's current size minus
// headerOffset minus the 2-byte header itself) into the placeholder
// written by ReserveHeader, then appends the terminator.
func PatchLength(dst *bytebuf.Buffer, headerOffset int) {
	bodyLen := dst.Size() - headerOffset - 2
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(bodyLen))
	copy(dst.ReadPtr()[headerOffset:headerOffset+2], hdr[:])
	dst.Write([]byte{0x00, 0x00})
}

// Unframe reads one complete message from the front of buf, returning
// the reassembled body and the remainder of buf after the
// terminator. It returns ErrIncomplete if buf does not yet hold a
// full message, or ErrMultiChunk if the message spans more than one
// data chunk.
func Unframe(buf []byte) (body []byte, rest []byte, err error) {
	if len(buf) < 2 {
		return nil, nil, ErrIncomplete
	}
	n := int(binary.BigEndian.Uint16(buf[:2]))
	if n == 0 {
		// an empty message is just its terminator
		return buf[2:2], buf[2:], nil
	}
	if len(buf) < 2+n {
		return nil, nil, ErrIncomplete
	}
	chunk := buf[2 : 2+n]
	after := buf[2+n:]

	if len(after) < 2 {
		return nil, nil, ErrIncomplete
	}
	terminator := int(binary.BigEndian.Uint16(after[:2]))
	if terminator != 0 {
		return nil, nil, ErrMultiChunk
	}
	return chunk, after[2:], nil
}
