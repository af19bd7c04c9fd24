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
)

// decodeFunc decodes one value starting at buf[0] (the marker byte)
// and returns the decoded Value plus the remainder of buf after the
// bytes it consumed. Compound decoders never materialise children
// eagerly: they only walk far enough to compute the consumed length,
// leaving per-element decoding to be redone lazily on each access
// through At/Field/Lookup.
type decodeFunc func(buf []byte) (Value, []byte, error)

// jumpTable is indexed by marker byte and dispatches directly to the
// decode routine for that marker, mirroring the original driver's
// 256-entry jump table so the hot path never branches between
// "read marker" and "decide what it means".
var jumpTable [256]decodeFunc

func init() {
	for m := 0; m <= markerTinyIntMax; m++ {
		jumpTable[m] = decodeTinyInt
	}
	for m := markerTinyStrMin; m <= markerTinyStrMax; m++ {
		jumpTable[m] = decodeTinyString
	}
	for m := markerTinyListMin; m <= markerTinyListMax; m++ {
		jumpTable[m] = decodeTinyList
	}
	for m := markerTinyMapMin; m <= markerTinyMapMax; m++ {
		jumpTable[m] = decodeTinyMap
	}
	for m := markerTinyStrcMin; m <= markerTinyStrcMax; m++ {
		jumpTable[m] = decodeTinyStruct
	}
	for m := markerTinyNegMin; m <= 0xFF; m++ {
		jumpTable[m] = decodeTinyInt
	}

	jumpTable[markerNull] = decodeNull
	jumpTable[markerFloat64] = decodeFloat64
	jumpTable[markerBoolFalse] = decodeBoolFalse
	jumpTable[markerBoolTrue] = decodeBoolTrue

	jumpTable[markerInt8] = decodeInt8
	jumpTable[markerInt16] = decodeInt16
	jumpTable[markerInt32] = decodeInt32
	jumpTable[markerInt64] = decodeInt64

	jumpTable[markerBytes8] = decodeBytes8
	jumpTable[markerBytes16] = decodeBytes16
	jumpTable[markerBytes32] = decodeBytes32

	jumpTable[markerString8] = decodeString8
	jumpTable[markerString16] = decodeString16
	jumpTable[markerString32] = decodeString32

	jumpTable[markerList8] = decodeList8
	jumpTable[markerList16] = decodeList16
	jumpTable[markerList32] = decodeList32

	jumpTable[markerMap8] = decodeMap8
	jumpTable[markerMap16] = decodeMap16
	jumpTable[markerMap32] = decodeMap32

	jumpTable[markerStruct8] = decodeStruct8
	jumpTable[markerStruct16] = decodeStruct16
}

// Decode decodes exactly one top-level value from buf, returning the
// value and any bytes left unconsumed.
func Decode(buf []byte) (Value, []byte, error) {
	return decodeOne(buf)
}

func decodeOne(buf []byte) (Value, []byte, error) {
	if len(buf) == 0 {
		return Value{}, nil, fmt.Errorf("packstream: decode: empty buffer")
	}
	fn := jumpTable[buf[0]]
	if fn == nil {
		return Value{}, nil, fmt.Errorf("packstream: decode: unrecognised marker 0x%02X", buf[0])
	}
	return fn(buf)
}

func need(buf []byte, n int) error {
	if len(buf) < n {
		return fmt.Errorf("packstream: decode: need %d bytes, have %d", n, len(buf))
	}
	return nil
}

func decodeNull(buf []byte) (Value, []byte, error) {
	return Null(), buf[1:], nil
}

func decodeBoolFalse(buf []byte) (Value, []byte, error) {
	return Bool(false), buf[1:], nil
}

func decodeBoolTrue(buf []byte) (Value, []byte, error) {
	return Bool(true), buf[1:], nil
}

func decodeTinyInt(buf []byte) (Value, []byte, error) {
	// 0x00-0x7F encode themselves; 0xF0-0xFF encode -16..-1 as two's
	// complement of the marker byte itself.
	return Int(int64(int8(buf[0]))), buf[1:], nil
}

func decodeInt8(buf []byte) (Value, []byte, error) {
	if err := need(buf, 2); err != nil {
		return Value{}, nil, err
	}
	return Int(int64(int8(buf[1]))), buf[2:], nil
}

func decodeInt16(buf []byte) (Value, []byte, error) {
	if err := need(buf, 3); err != nil {
		return Value{}, nil, err
	}
	return Int(int64(int16(binary.BigEndian.Uint16(buf[1:3])))), buf[3:], nil
}

func decodeInt32(buf []byte) (Value, []byte, error) {
	if err := need(buf, 5); err != nil {
		return Value{}, nil, err
	}
	return Int(int64(int32(binary.BigEndian.Uint32(buf[1:5])))), buf[5:], nil
}

func decodeInt64(buf []byte) (Value, []byte, error) {
	if err := need(buf, 9); err != nil {
		return Value{}, nil, err
	}
	return Int(int64(binary.BigEndian.Uint64(buf[1:9]))), buf[9:], nil
}

func decodeFloat64(buf []byte) (Value, []byte, error) {
	if err := need(buf, 9); err != nil {
		return Value{}, nil, err
	}
	bits := binary.BigEndian.Uint64(buf[1:9])
	return Float(math.Float64frombits(bits)), buf[9:], nil
}

func decodeTinyString(buf []byte) (Value, []byte, error) {
	n := int(buf[0] - markerTinyStrMin)
	if err := need(buf, 1+n); err != nil {
		return Value{}, nil, err
	}
	return decodedString(buf[1 : 1+n]), buf[1+n:], nil
}

func decodeString8(buf []byte) (Value, []byte, error) {
	if err := need(buf, 2); err != nil {
		return Value{}, nil, err
	}
	n := int(buf[1])
	if err := need(buf, 2+n); err != nil {
		return Value{}, nil, err
	}
	return decodedString(buf[2 : 2+n]), buf[2+n:], nil
}

func decodeString16(buf []byte) (Value, []byte, error) {
	if err := need(buf, 3); err != nil {
		return Value{}, nil, err
	}
	n := int(binary.BigEndian.Uint16(buf[1:3]))
	if err := need(buf, 3+n); err != nil {
		return Value{}, nil, err
	}
	return decodedString(buf[3 : 3+n]), buf[3+n:], nil
}

func decodeString32(buf []byte) (Value, []byte, error) {
	if err := need(buf, 5); err != nil {
		return Value{}, nil, err
	}
	n := int(binary.BigEndian.Uint32(buf[1:5]))
	if err := need(buf, 5+n); err != nil {
		return Value{}, nil, err
	}
	return decodedString(buf[5 : 5+n]), buf[5+n:], nil
}

func decodeBytes8(buf []byte) (Value, []byte, error) {
	if err := need(buf, 2); err != nil {
		return Value{}, nil, err
	}
	n := int(buf[1])
	if err := need(buf, 2+n); err != nil {
		return Value{}, nil, err
	}
	return decodedBytes(buf[2 : 2+n]), buf[2+n:], nil
}

func decodeBytes16(buf []byte) (Value, []byte, error) {
	if err := need(buf, 3); err != nil {
		return Value{}, nil, err
	}
	n := int(binary.BigEndian.Uint16(buf[1:3]))
	if err := need(buf, 3+n); err != nil {
		return Value{}, nil, err
	}
	return decodedBytes(buf[3 : 3+n]), buf[3+n:], nil
}

func decodeBytes32(buf []byte) (Value, []byte, error) {
	if err := need(buf, 5); err != nil {
		return Value{}, nil, err
	}
	n := int(binary.BigEndian.Uint32(buf[1:5]))
	if err := need(buf, 5+n); err != nil {
		return Value{}, nil, err
	}
	return decodedBytes(buf[5 : 5+n]), buf[5+n:], nil
}

// skipN walks n values from buf without materialising them,
// returning the remainder after the last one. Used by compound
// decoders to find where the children region ends.
func skipN(buf []byte, n int) ([]byte, error) {
	rest := buf
	for i := 0; i < n; i++ {
		_, next, err := decodeOne(rest)
		if err != nil {
			return nil, err
		}
		rest = next
	}
	return rest, nil
}

func decodeCompound(buf []byte, headerLen, size int) (Value, []byte, []byte, error) {
	if err := need(buf, headerLen); err != nil {
		return Value{}, nil, nil, err
	}
	children := buf[headerLen:]
	rest, err := skipN(children, size)
	if err != nil {
		return Value{}, nil, nil, err
	}
	consumed := children[:len(children)-len(rest)]
	return Value{}, consumed, rest, nil
}

func decodeTinyList(buf []byte) (Value, []byte, error) {
	size := int(buf[0] - markerTinyListMin)
	_, children, rest, err := decodeCompound(buf, 1, size)
	if err != nil {
		return Value{}, nil, err
	}
	return decodedList(children, size), rest, nil
}

func decodeList8(buf []byte) (Value, []byte, error) {
	if err := need(buf, 2); err != nil {
		return Value{}, nil, err
	}
	size := int(buf[1])
	_, children, rest, err := decodeCompound(buf, 2, size)
	if err != nil {
		return Value{}, nil, err
	}
	return decodedList(children, size), rest, nil
}

func decodeList16(buf []byte) (Value, []byte, error) {
	if err := need(buf, 3); err != nil {
		return Value{}, nil, err
	}
	size := int(binary.BigEndian.Uint16(buf[1:3]))
	_, children, rest, err := decodeCompound(buf, 3, size)
	if err != nil {
		return Value{}, nil, err
	}
	return decodedList(children, size), rest, nil
}

func decodeList32(buf []byte) (Value, []byte, error) {
	if err := need(buf, 5); err != nil {
		return Value{}, nil, err
	}
	size := int(binary.BigEndian.Uint32(buf[1:5]))
	_, children, rest, err := decodeCompound(buf, 5, size)
	if err != nil {
		return Value{}, nil, err
	}
	return decodedList(children, size), rest, nil
}

func decodeTinyMap(buf []byte) (Value, []byte, error) {
	size := int(buf[0] - markerTinyMapMin)
	_, children, rest, err := decodeCompound(buf, 1, size*2)
	if err != nil {
		return Value{}, nil, err
	}
	return decodedMap(children, size), rest, nil
}

func decodeMap8(buf []byte) (Value, []byte, error) {
	if err := need(buf, 2); err != nil {
		return Value{}, nil, err
	}
	size := int(buf[1])
	_, children, rest, err := decodeCompound(buf, 2, size*2)
	if err != nil {
		return Value{}, nil, err
	}
	return decodedMap(children, size), rest, nil
}

func decodeMap16(buf []byte) (Value, []byte, error) {
	if err := need(buf, 3); err != nil {
		return Value{}, nil, err
	}
	size := int(binary.BigEndian.Uint16(buf[1:3]))
	_, children, rest, err := decodeCompound(buf, 3, size*2)
	if err != nil {
		return Value{}, nil, err
	}
	return decodedMap(children, size), rest, nil
}

func decodeMap32(buf []byte) (Value, []byte, error) {
	if err := need(buf, 5); err != nil {
		return Value{}, nil, err
	}
	size := int(binary.BigEndian.Uint32(buf[1:5]))
	_, children, rest, err := decodeCompound(buf, 5, size*2)
	if err != nil {
		return Value{}, nil, err
	}
	return decodedMap(children, size), rest, nil
}

func decodeTinyStruct(buf []byte) (Value, []byte, error) {
	size := int(buf[0] - markerTinyStrcMin)
	if err := need(buf, 2); err != nil {
		return Value{}, nil, err
	}
	tag := buf[1]
	_, children, rest, err := decodeCompound(buf, 2, size)
	if err != nil {
		return Value{}, nil, err
	}
	return decodedStruct(tag, children, size), rest, nil
}

func decodeStruct8(buf []byte) (Value, []byte, error) {
	if err := need(buf, 3); err != nil {
		return Value{}, nil, err
	}
	size := int(buf[1])
	tag := buf[2]
	_, children, rest, err := decodeCompound(buf, 3, size)
	if err != nil {
		return Value{}, nil, err
	}
	return decodedStruct(tag, children, size), rest, nil
}

func decodeStruct16(buf []byte) (Value, []byte, error) {
	if err := need(buf, 4); err != nil {
		return Value{}, nil, err
	}
	size := int(binary.BigEndian.Uint16(buf[1:3]))
	tag := buf[3]
	_, children, rest, err := decodeCompound(buf, 4, size)
	if err != nil {
		return Value{}, nil, err
	}
	return decodedStruct(tag, children, size), rest, nil
}
