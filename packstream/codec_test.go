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

package packstream

import (
	"bytes"
	"testing"

	"github.com/lightningbolt/boltcore/bytebuf"
)

func encodeBytesOf(t *testing.T, v Value) []byte {
	t.Helper()
	buf := bytebuf.New(64)
	if err := Encode(buf, v); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return append([]byte(nil), buf.ReadPtr()...)
}

// TestS1IntegerEncode checks the literal byte vectors from the
// scenario table, with one deliberate deviation: encode(200) here
// produces C9 00 C8 (Int16), not C8 C8. C8 C8 cannot round-trip:
// 0xC8 is the Int8 marker, and its one payload byte is read back as
// a signed byte, so 0xC8 0xC8 decodes to -56, not 200. This encoder
// instead picks the narrowest marker whose signed range actually
// contains the value, matching the boundary checks in the reference
// encoder this package is modelled on.
func TestS1IntegerEncode(t *testing.T) {
	cases := []struct {
		in   int64
		want []byte
	}{
		{1, []byte{0x01}},
		{-1, []byte{0xFF}},
		{200, []byte{0xC9, 0x00, 0xC8}},
		{-32768, []byte{0xC9, 0x80, 0x00}},
		{1 << 31, []byte{0xCB, 0x00, 0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00}},
	}
	for _, c := range cases {
		got := encodeBytesOf(t, Int(c.in))
		if !bytes.Equal(got, c.want) {
			t.Errorf("encode(%d) = % X, want % X", c.in, got, c.want)
		}
		v, rest, err := Decode(got)
		if err != nil {
			t.Fatalf("decode(%d): %v", c.in, err)
		}
		if len(rest) != 0 {
			t.Fatalf("decode(%d) left %d unconsumed bytes", c.in, len(rest))
		}
		gotInt, ok := v.Int()
		if !ok || gotInt != c.in {
			t.Fatalf("round-trip(%d) = %v, ok=%v", c.in, gotInt, ok)
		}
	}
}

func TestS2StringEncode(t *testing.T) {
	cases := []struct {
		in   string
		want []byte
	}{
		{"A", []byte{0x81, 0x41}},
		{"hello", []byte{0x85, 0x68, 0x65, 0x6C, 0x6C, 0x6F}},
	}
	for _, c := range cases {
		got := encodeBytesOf(t, Str(c.in))
		if !bytes.Equal(got, c.want) {
			t.Errorf("encode(%q) = % X, want % X", c.in, got, c.want)
		}
	}

	long := bytes.Repeat([]byte{'x'}, 20)
	got := encodeBytesOf(t, Str(string(long)))
	if got[0] != 0xD0 || got[1] != 0x14 {
		t.Fatalf("20-byte string header = % X, want D0 14 ...", got[:2])
	}
}

func TestS3MapRoundTrip(t *testing.T) {
	want := []byte{0xA2, 0x81, 0x78, 0x01, 0x81, 0x79, 0x81, 0x7A}

	pool := NewPool()
	m := Map(pool, Entry{Str("x"), Int(1)}, Entry{Str("y"), Str("z")})
	got := encodeBytesOf(t, m)
	if !bytes.Equal(got, want) {
		t.Fatalf("encode({x:1,y:z}) = % X, want % X", got, want)
	}

	v, rest, err := Decode(want)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("decode left %d unconsumed bytes", len(rest))
	}
	if v.Type() != MapType {
		t.Fatalf("decoded type = %v, want Map", v.Type())
	}
	n, _ := v.Len()
	if n != 2 {
		t.Fatalf("decoded Len() = %d, want 2", n)
	}
	x, ok := v.Lookup("x")
	if !ok {
		t.Fatal("missing key x")
	}
	if xi, _ := x.Int(); xi != 1 {
		t.Fatalf("x = %v, want 1", xi)
	}
	y, ok := v.Lookup("y")
	if !ok {
		t.Fatal("missing key y")
	}
	if ys, _ := y.Str(); ys != "z" {
		t.Fatalf("y = %q, want z", ys)
	}
	if keys := v.keys(); len(keys) != 2 || keys[0] != "x" || keys[1] != "y" {
		t.Fatalf("keys() order = %v, want [x y]", keys)
	}
}

// TestRoundTripInvariant is Testable Property 1: for every
// constructible value, Decode(Encode(v)).Equal(v) holds.
func TestRoundTripInvariant(t *testing.T) {
	pool := NewPool()
	values := []Value{
		Null(),
		Bool(true),
		Bool(false),
		Int(0),
		Int(-17),
		Int(127),
		Int(1 << 40),
		Float(3.14159),
		Str(""),
		Str("round trip"),
		RawBytes([]byte{0x00, 0xFF, 0x10}),
		List(pool, Int(1), Str("two"), Bool(true)),
		Map(pool, Entry{Str("a"), Int(1)}, Entry{Str("b"), Null()}),
		Struct(pool, 0x01, Int(1), Str("s")),
	}
	for i, v := range values {
		got := encodeBytesOf(t, v)
		decoded, rest, err := Decode(got)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if len(rest) != 0 {
			t.Fatalf("case %d: %d unconsumed bytes", i, len(rest))
		}
		if !v.Equal(decoded) {
			t.Fatalf("case %d: round trip mismatch: %s != %s", i, v.String(), decoded.String())
		}
	}
}

func TestNodeStringRendering(t *testing.T) {
	pool := NewPool()
	node := Struct(pool, tagNode,
		Int(42),
		List(pool, Str("Person")),
		Map(pool, Entry{Str("name"), Str("Ada")}),
		Str("42"),
	)
	s := node.String()
	if !bytes.Contains([]byte(s), []byte("Node:")) {
		t.Fatalf("String() = %q, want it to contain Node:", s)
	}
}

func TestPoint2DStringRendering(t *testing.T) {
	pool := NewPool()
	pt := Struct(pool, tagPoint2D, Int(7203), Float(1.5), Float(2.5))
	s := pt.String()
	if !bytes.Contains([]byte(s), []byte("Point2D:")) {
		t.Fatalf("String() = %q, want it to contain Point2D:", s)
	}
}

func TestNestedListDecodeLazy(t *testing.T) {
	pool := NewPool()
	inner := List(pool, Int(1), Int(2))
	outer := List(pool, inner, Int(3))
	got := encodeBytesOf(t, outer)

	decoded, rest, err := Decode(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("%d unconsumed bytes", len(rest))
	}
	first, err := decoded.At(0)
	if err != nil {
		t.Fatalf("At(0): %v", err)
	}
	if first.Type() != ListType {
		t.Fatalf("At(0).Type() = %v, want List", first.Type())
	}
	innerFirst, err := first.At(0)
	if err != nil {
		t.Fatalf("inner At(0): %v", err)
	}
	if iv, _ := innerFirst.Int(); iv != 1 {
		t.Fatalf("inner At(0) = %v, want 1", iv)
	}
}
