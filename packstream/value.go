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
	"fmt"
	"strconv"
	"strings"

	"github.com/lightningbolt/boltcore/valuepool"
)

// Type is the tag half of a Value's tagged union.
type Type uint8

const (
	NullType Type = iota
	BoolType
	IntType
	FloatType
	StringType
	BytesType
	ListType
	MapType
	StructType
	UnknownType
)

func (t Type) String() string {
	switch t {
	case NullType:
		return "Null"
	case BoolType:
		return "Bool"
	case IntType:
		return "Int"
	case FloatType:
		return "Float"
	case StringType:
		return "String"
	case BytesType:
		return "Bytes"
	case ListType:
		return "List"
	case MapType:
		return "Map"
	case StructType:
		return "Struct"
	default:
		return "Unknown"
	}
}

// Pool is the concrete ValuePool instantiation backing owned
// compound Values (lists, maps, struct fields).
type Pool = valuepool.Pool[Value]

// NewPool returns a fresh, empty Pool.
func NewPool() *Pool { return valuepool.New[Value]() }

// Value is a tagged union over the PackStream value types. A
// compound Value (List, Map, Struct) is either:
//
//   - "owned": built by the caller for encoding, with children
//     materialised in a Pool at (pool, offset);
//   - "decoded": produced by the Decoder, referencing raw encoded
//     bytes inside the ByteBuffer that produced it. Decoded values
//     are only valid until the next consume on that buffer.
type Value struct {
	typ Type

	b bool
	i int64
	f float64

	// String/Bytes payload, or the raw encoded children of a
	// decoded compound (everything after the marker/length/tag
	// header, up to and including the last child's last byte).
	raw []byte

	tag byte // Struct tag

	decoded bool // compound kind: true = view into raw, false = owned in pool
	size    int  // element count (Map counts key/value pairs)

	pool   *Pool
	offset int
}

// Null returns the Null value.
func Null() Value { return Value{typ: NullType} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{typ: BoolType, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{typ: IntType, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{typ: FloatType, f: f} }

// Str returns a string value that owns a copy of s's bytes.
func Str(s string) Value {
	return Value{typ: StringType, raw: []byte(s)}
}

// RawBytes returns a Bytes value that owns a copy of b.
func RawBytes(b []byte) Value {
	cp := append([]byte(nil), b...)
	return Value{typ: BytesType, raw: cp}
}

// List builds an owned List value out of items, allocated from pool.
func List(pool *Pool, items ...Value) Value {
	off := pool.Alloc(len(items))
	copy(pool.Get(off), items)
	return Value{typ: ListType, pool: pool, offset: off, size: len(items)}
}

// Entry is one key/value pair supplied to Map.
type Entry struct {
	Key   Value
	Value Value
}

// Map builds an owned Map value out of entries, allocated from
// pool as two contiguous halves: entries.len keys followed by
// entries.len values, mirroring the original driver's layout.
func Map(pool *Pool, entries ...Entry) Value {
	off := pool.Alloc(len(entries) * 2)
	mem := pool.Get(off)
	for i, e := range entries {
		mem[i] = e.Key
		mem[len(entries)+i] = e.Value
	}
	return Value{typ: MapType, pool: pool, offset: off, size: len(entries)}
}

// StrMap is a convenience constructor for the common case of a map
// whose keys are all strings.
func StrMap(pool *Pool, pairs map[string]Value) Value {
	entries := make([]Entry, 0, len(pairs))
	for k, v := range pairs {
		entries = append(entries, Entry{Str(k), v})
	}
	return Map(pool, entries...)
}

// Struct builds an owned Struct value out of fields, allocated
// from pool.
func Struct(pool *Pool, tag byte, fields ...Value) Value {
	off := pool.Alloc(len(fields))
	copy(pool.Get(off), fields)
	return Value{typ: StructType, pool: pool, offset: off, size: len(fields), tag: tag}
}

func decodedString(b []byte) Value { return Value{typ: StringType, raw: b} }
func decodedBytes(b []byte) Value  { return Value{typ: BytesType, raw: b} }

func decodedList(children []byte, size int) Value {
	return Value{typ: ListType, decoded: true, raw: children, size: size}
}

func decodedMap(children []byte, size int) Value {
	return Value{typ: MapType, decoded: true, raw: children, size: size}
}

func decodedStruct(tag byte, children []byte, size int) Value {
	return Value{typ: StructType, decoded: true, raw: children, size: size, tag: tag}
}

// Type returns the value's type tag.
func (v Value) Type() Type { return v.typ }

// Bool returns the boolean payload, if v is a Bool.
func (v Value) Bool() (bool, bool) {
	if v.typ != BoolType {
		return false, false
	}
	return v.b, true
}

// Int returns the integer payload, if v is an Int.
func (v Value) Int() (int64, bool) {
	if v.typ != IntType {
		return 0, false
	}
	return v.i, true
}

// Float returns the float payload, if v is a Float.
func (v Value) Float() (float64, bool) {
	if v.typ != FloatType {
		return 0, false
	}
	return v.f, true
}

// Str returns the string payload, if v is a String.
func (v Value) Str() (string, bool) {
	if v.typ != StringType {
		return "", false
	}
	return string(v.raw), true
}

// RawBytes returns the bytes payload, if v is Bytes.
func (v Value) RawBytes() ([]byte, bool) {
	if v.typ != BytesType {
		return nil, false
	}
	return v.raw, true
}

// Len returns the element count of a List, Map, or Struct (for
// Map, the number of key/value pairs, not 2x that).
func (v Value) Len() (int, bool) {
	switch v.typ {
	case ListType, MapType, StructType:
		return v.size, true
	default:
		return 0, false
	}
}

// Tag returns the struct tag, if v is a Struct.
func (v Value) Tag() (byte, bool) {
	if v.typ != StructType {
		return 0, false
	}
	return v.tag, true
}

// At returns the i'th element of a List.
func (v Value) At(i int) (Value, error) {
	if v.typ != ListType {
		return Value{}, fmt.Errorf("packstream: At called on %s, not List", v.typ)
	}
	return v.nth(i)
}

// Field returns the i'th field of a Struct.
func (v Value) Field(i int) (Value, error) {
	if v.typ != StructType {
		return Value{}, fmt.Errorf("packstream: Field called on %s, not Struct", v.typ)
	}
	return v.nth(i)
}

func (v Value) nth(i int) (Value, error) {
	if i < 0 || i >= v.size {
		return Value{}, fmt.Errorf("packstream: index %d out of range [0,%d)", i, v.size)
	}
	if !v.decoded {
		return v.pool.Get(v.offset)[i], nil
	}
	rest := v.raw
	for j := 0; j <= i; j++ {
		child, next, err := decodeOne(rest)
		if err != nil {
			return Value{}, err
		}
		if j == i {
			return child, nil
		}
		rest = next
	}
	panic("unreachable")
}

// Lookup finds the value associated with key in a Map. Per the
// wire-format invariant, only String-typed keys are matched.
func (v Value) Lookup(key string) (Value, bool) {
	if v.typ != MapType {
		return Value{}, false
	}
	if !v.decoded {
		mem := v.pool.Get(v.offset)
		keys, values := mem[:v.size], mem[v.size:2*v.size]
		for i, k := range keys {
			if s, ok := k.Str(); ok && s == key {
				return values[i], true
			}
		}
		return Value{}, false
	}
	rest := v.raw
	for i := 0; i < v.size; i++ {
		k, next, err := decodeOne(rest)
		if err != nil {
			return Value{}, false
		}
		val, next2, err := decodeOne(next)
		if err != nil {
			return Value{}, false
		}
		if s, ok := k.Str(); ok && s == key {
			return val, true
		}
		rest = next2
	}
	return Value{}, false
}

// Equal reports whether v and x are structurally equivalent,
// recursively comparing compound children in encounter order.
func (v Value) Equal(x Value) bool {
	if v.typ != x.typ {
		return false
	}
	switch v.typ {
	case NullType:
		return true
	case BoolType:
		return v.b == x.b
	case IntType:
		return v.i == x.i
	case FloatType:
		return v.f == x.f || (v.f != v.f && x.f != x.f) // NaN == NaN for round-trip purposes
	case StringType:
		return string(v.raw) == string(x.raw)
	case BytesType:
		return string(v.raw) == string(x.raw)
	case ListType:
		n, _ := v.Len()
		m, _ := x.Len()
		if n != m {
			return false
		}
		for i := 0; i < n; i++ {
			a, err1 := v.At(i)
			b, err2 := x.At(i)
			if err1 != nil || err2 != nil || !a.Equal(b) {
				return false
			}
		}
		return true
	case MapType:
		n, _ := v.Len()
		m, _ := x.Len()
		if n != m {
			return false
		}
		for _, k := range v.keys() {
			a, _ := v.Lookup(k)
			b, ok := x.Lookup(k)
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	case StructType:
		n, _ := v.Len()
		m, _ := x.Len()
		if n != m || v.tag != x.tag {
			return false
		}
		for i := 0; i < n; i++ {
			a, err1 := v.Field(i)
			b, err2 := x.Field(i)
			if err1 != nil || err2 != nil || !a.Equal(b) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) keys() []string {
	if v.typ != MapType {
		return nil
	}
	out := make([]string, 0, v.size)
	if !v.decoded {
		for _, k := range v.pool.Get(v.offset)[:v.size] {
			if s, ok := k.Str(); ok {
				out = append(out, s)
			}
		}
		return out
	}
	rest := v.raw
	for i := 0; i < v.size; i++ {
		k, next, err := decodeOne(rest)
		if err != nil {
			return out
		}
		_, next2, err := decodeOne(next)
		if err != nil {
			return out
		}
		if s, ok := k.Str(); ok {
			out = append(out, s)
		}
		rest = next2
	}
	return out
}

// tagNode and tagPoint2D are well-known Struct tags given special
// rendering by String(), mirroring the original driver's debug
// pretty-printer for graph Node and spatial Point2D values.
const (
	tagNode    = 0x4E
	tagPoint2D = 0x58
)

// String renders a human-readable form of v, dispatched by type
// the way the original driver's jump-table-based ToString() did.
// It exists for debugging and error messages only; it is not part
// of the wire codec.
func (v Value) String() string {
	switch v.typ {
	case NullType:
		return "null"
	case BoolType:
		if v.b {
			return "true"
		}
		return "false"
	case IntType:
		return strconv.FormatInt(v.i, 10)
	case FloatType:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case StringType:
		return strconv.Quote(string(v.raw))
	case BytesType:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, b := range v.raw {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "0x%02X", b)
		}
		sb.WriteByte(']')
		return sb.String()
	case ListType:
		return v.stringList()
	case MapType:
		return v.stringMap()
	case StructType:
		return v.stringStruct()
	default:
		return "<?>"
	}
}

func (v Value) stringList() string {
	n, _ := v.Len()
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		e, err := v.At(i)
		if err == nil {
			sb.WriteString(e.String())
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

func (v Value) stringMap() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range v.keys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		val, _ := v.Lookup(k)
		sb.WriteString(strconv.Quote(k))
		sb.WriteByte(':')
		sb.WriteString(val.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

func (v Value) stringStruct() string {
	switch v.tag {
	case tagNode:
		return v.stringNode()
	case tagPoint2D:
		return v.stringPoint2D()
	default:
		n, _ := v.Len()
		var sb strings.Builder
		sb.WriteByte('{')
		for i := 0; i < n; i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			f, err := v.Field(i)
			if err == nil {
				sb.WriteString(f.String())
			}
		}
		sb.WriteByte('}')
		return sb.String()
	}
}

// stringNode renders a Node-tagged struct as
// Node:{id:...,labels:...,properties:...,element_id:...}, matching
// the field order Neo4j's Node struct uses on the wire.
func (v Value) stringNode() string {
	n, _ := v.Len()
	if n < 4 {
		return v.genericFields()
	}
	id, _ := v.Field(0)
	labels, _ := v.Field(1)
	props, _ := v.Field(2)
	elemID, _ := v.Field(3)
	return fmt.Sprintf("Node:{id:%s,labels:%s,properties:%s,element_id:%s}",
		id.String(), labels.String(), props.String(), elemID.String())
}

// stringPoint2D renders a Point2D-tagged struct as
// Point2D:{srid:...,x:...,y:...}.
func (v Value) stringPoint2D() string {
	n, _ := v.Len()
	if n < 3 {
		return v.genericFields()
	}
	srid, _ := v.Field(0)
	x, _ := v.Field(1)
	y, _ := v.Field(2)
	return fmt.Sprintf("Point2D:{srid:%s,x:%s,y:%s}", srid.String(), x.String(), y.String())
}

func (v Value) genericFields() string {
	n, _ := v.Len()
	var sb strings.Builder
	sb.WriteByte('{')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		f, err := v.Field(i)
		if err == nil {
			sb.WriteString(f.String())
		}
	}
	sb.WriteByte('}')
	return sb.String()
}
