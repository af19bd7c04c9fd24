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

// Package packstream implements the PackStream binary value codec:
// a tagged-union Value type plus the Encoder/Decoder pair that
// write and read it from a bytebuf.Buffer.
package packstream

// Marker byte ranges and explicit-size markers, per the wire format.
const (
	markerTinyIntMax  = 0x7F // 0x00-0x7F: tiny positive int, value == marker
	markerTinyStrMin  = 0x80
	markerTinyStrMax  = 0x8F
	markerTinyListMin = 0x90
	markerTinyListMax = 0x9F
	markerTinyMapMin  = 0xA0
	markerTinyMapMax  = 0xAF
	markerTinyStrcMin = 0xB0
	markerTinyStrcMax = 0xBF

	markerNull      = 0xC0
	markerFloat64   = 0xC1
	markerBoolFalse = 0xC2
	markerBoolTrue  = 0xC3

	markerInt8  = 0xC8
	markerInt16 = 0xC9
	markerInt32 = 0xCA
	markerInt64 = 0xCB

	markerBytes8  = 0xCC
	markerBytes16 = 0xCD
	markerBytes32 = 0xCE

	markerString8  = 0xD0
	markerString16 = 0xD1
	markerString32 = 0xD2

	markerList8  = 0xD4
	markerList16 = 0xD5
	markerList32 = 0xD6

	markerMap8  = 0xD8
	markerMap16 = 0xD9
	markerMap32 = 0xDA

	markerStruct8  = 0xDC
	markerStruct16 = 0xDD

	markerTinyNegMin = 0xF0 // 0xF0-0xFF: tiny negative int, -16..-1
)
