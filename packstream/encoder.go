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
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lightningbolt/boltcore/bytebuf"
)

// Int width boundaries used to select the narrowest marker that can
// hold a given value. Values in [-16,127] are encoded as a single
// tiny-int byte; everything else widens through Int8 -> Int16 ->
// Int32 -> Int64 using the signed range each marker can represent.
//
// Note: the driver this module is modelled on literally round-trips
// through this staircase (see original_source's Encode_Int), and the
// invariant that Decode(Encode(v)).Int() == v depends on picking the
// marker whose *signed* range actually contains v - an encoder that
// instead picked markers by byte-count-of-magnitude would produce
// byte sequences the decoder reinterprets with the wrong sign for
// boundary values such as 200 (which needs Int16, not Int8: Int8's
// payload is interpreted as a signed byte, so 200 cannot be spelled
// with marker 0xC8 without corrupting its value on decode).
const (
	tinyIntMin = -16
	tinyIntMax = 127
)

// Encode appends the wire encoding of v to dst.
func Encode(dst *bytebuf.Buffer, v Value) error {
	switch v.typ {
	case NullType:
		return encodeNull(dst)
	case BoolType:
		return encodeBool(dst, v.b)
	case IntType:
		return encodeInt(dst, v.i)
	case FloatType:
		return encodeFloat(dst, v.f)
	case StringType:
		return encodeString(dst, v.raw)
	case BytesType:
		return encodeBytes(dst, v.raw)
	case ListType:
		return encodeList(dst, v)
	case MapType:
		return encodeMap(dst, v)
	case StructType:
		return encodeStruct(dst, v)
	default:
		return fmt.Errorf("packstream: encode: unknown value type %v", v.typ)
	}
}

func encodeNull(dst *bytebuf.Buffer) error {
	dst.Write([]byte{markerNull})
	return nil
}

func encodeBool(dst *bytebuf.Buffer, b bool) error {
	if b {
		dst.Write([]byte{markerBoolTrue})
	} else {
		dst.Write([]byte{markerBoolFalse})
	}
	return nil
}

func encodeInt(dst *bytebuf.Buffer, i int64) error {
	switch {
	case i >= tinyIntMin && i <= tinyIntMax:
		dst.Write([]byte{byte(int8(i))})
	case i >= math.MinInt8 && i <= math.MaxInt8:
		dst.Write([]byte{markerInt8, byte(int8(i))})
	case i >= math.MinInt16 && i <= math.MaxInt16:
		var buf [3]byte
		buf[0] = markerInt16
		binary.BigEndian.PutUint16(buf[1:], uint16(int16(i)))
		dst.Write(buf[:])
	case i >= math.MinInt32 && i <= math.MaxInt32:
		var buf [5]byte
		buf[0] = markerInt32
		binary.BigEndian.PutUint32(buf[1:], uint32(int32(i)))
		dst.Write(buf[:])
	default:
		var buf [9]byte
		buf[0] = markerInt64
		binary.BigEndian.PutUint64(buf[1:], uint64(i))
		dst.Write(buf[:])
	}
	return nil
}

func encodeFloat(dst *bytebuf.Buffer, f float64) error {
	var buf [9]byte
	buf[0] = markerFloat64
	binary.BigEndian.PutUint64(buf[1:], math.Float64bits(f))
	dst.Write(buf[:])
	return nil
}

func encodeString(dst *bytebuf.Buffer, s []byte) error {
	n := len(s)
	switch {
	case n <= 15:
		dst.Write([]byte{byte(markerTinyStrMin + n)})
	case n <= 0xFF:
		dst.Write([]byte{markerString8, byte(n)})
	case n <= 0xFFFF:
		var hdr [3]byte
		hdr[0] = markerString16
		binary.BigEndian.PutUint16(hdr[1:], uint16(n))
		dst.Write(hdr[:])
	default:
		var hdr [5]byte
		hdr[0] = markerString32
		binary.BigEndian.PutUint32(hdr[1:], uint32(n))
		dst.Write(hdr[:])
	}
	dst.Write(s)
	return nil
}

func encodeBytes(dst *bytebuf.Buffer, b []byte) error {
	n := len(b)
	switch {
	case n <= 0xFF:
		dst.Write([]byte{markerBytes8, byte(n)})
	case n <= 0xFFFF:
		var hdr [3]byte
		hdr[0] = markerBytes16
		binary.BigEndian.PutUint16(hdr[1:], uint16(n))
		dst.Write(hdr[:])
	default:
		var hdr [5]byte
		hdr[0] = markerBytes32
		binary.BigEndian.PutUint32(hdr[1:], uint32(n))
		dst.Write(hdr[:])
	}
	dst.Write(b)
	return nil
}

func encodeListHeader(dst *bytebuf.Buffer, n int) {
	switch {
	case n <= 15:
		dst.Write([]byte{byte(markerTinyListMin + n)})
	case n <= 0xFF:
		dst.Write([]byte{markerList8, byte(n)})
	case n <= 0xFFFF:
		var hdr [3]byte
		hdr[0] = markerList16
		binary.BigEndian.PutUint16(hdr[1:], uint16(n))
		dst.Write(hdr[:])
	default:
		var hdr [5]byte
		hdr[0] = markerList32
		binary.BigEndian.PutUint32(hdr[1:], uint32(n))
		dst.Write(hdr[:])
	}
}

func encodeList(dst *bytebuf.Buffer, v Value) error {
	n, _ := v.Len()
	encodeListHeader(dst, n)
	for i := 0; i < n; i++ {
		e, err := v.At(i)
		if err != nil {
			return err
		}
		if err := Encode(dst, e); err != nil {
			return err
		}
	}
	return nil
}

func encodeMapHeader(dst *bytebuf.Buffer, n int) {
	switch {
	case n <= 15:
		dst.Write([]byte{byte(markerTinyMapMin + n)})
	case n <= 0xFF:
		dst.Write([]byte{markerMap8, byte(n)})
	case n <= 0xFFFF:
		var hdr [3]byte
		hdr[0] = markerMap16
		binary.BigEndian.PutUint16(hdr[1:], uint16(n))
		dst.Write(hdr[:])
	default:
		var hdr [5]byte
		hdr[0] = markerMap32
		binary.BigEndian.PutUint32(hdr[1:], uint32(n))
		dst.Write(hdr[:])
	}
}

func encodeMap(dst *bytebuf.Buffer, v Value) error {
	n, _ := v.Len()
	encodeMapHeader(dst, n)
	for _, k := range v.keys() {
		val, _ := v.Lookup(k)
		if err := encodeString(dst, []byte(k)); err != nil {
			return err
		}
		if err := Encode(dst, val); err != nil {
			return err
		}
	}
	return nil
}

func encodeStructHeader(dst *bytebuf.Buffer, n int, tag byte) {
	switch {
	case n <= 15:
		dst.Write([]byte{byte(markerTinyStrcMin + n), tag})
	case n <= 0xFF:
		dst.Write([]byte{markerStruct8, byte(n), tag})
	default:
		var hdr [4]byte
		hdr[0] = markerStruct16
		binary.BigEndian.PutUint16(hdr[1:3], uint16(n))
		hdr[3] = tag
		dst.Write(hdr[:])
	}
}

func encodeStruct(dst *bytebuf.Buffer, v Value) error {
	n, _ := v.Len()
	tag, _ := v.Tag()
	encodeStructHeader(dst, n, tag)
	for i := 0; i < n; i++ {
		f, err := v.Field(i)
		if err != nil {
			return err
		}
		if err := Encode(dst, f); err != nil {
			return err
		}
	}
	return nil
}
