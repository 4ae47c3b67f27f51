// Copyright (c) 2025 Niema Moshiri and The Zaparoo Project.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of go7z, a derivative of go-gameid.
//
// go7z is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go7z is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go7z.  If not, see <https://www.gnu.org/licenses/>.

package sevenzip

import (
	"encoding/binary"
	"fmt"
	"io"
)

// headerReader is a small sequential-read helper over the 7z header
// grammar: every structure in it (varints, bit vectors, UTF-16 names,
// FILETIMEs) is read once, in order, off of a single io.Reader, so it
// wraps any io.Reader with the byte-at-a-time and fixed-width
// helpers the grammar needs.
type headerReader struct {
	r io.Reader
}

func newHeaderReader(r io.Reader) *headerReader { return &headerReader{r: r} }

func (h *headerReader) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(h.r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (h *headerReader) readBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(h.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (h *headerReader) readUint32LE() (uint32, error) {
	buf, err := h.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (h *headerReader) readUint64LE() (uint64, error) {
	buf, err := h.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// readNumber reads the 7z variable-length integer encoding (u64v): the
// first byte's leading 1 bits (from the MSB down) count how many further
// little-endian bytes follow, and the first byte's remaining low bits
// contribute the top bits of the value.
func (h *headerReader) readNumber() (uint64, error) {
	first, err := h.readByte()
	if err != nil {
		return 0, err
	}
	mask := byte(0x80)
	var value uint64
	for i := 0; i < 8; i++ {
		if first&mask == 0 {
			value |= uint64(first&(mask-1)) << uint(8*i)
			return value, nil
		}
		b, err := h.readByte()
		if err != nil {
			return 0, err
		}
		value |= uint64(b) << uint(8*i)
		mask >>= 1
	}
	return value, nil
}

// readNumberAsInt reads a u64v value that the grammar uses as a count or
// index, rejecting values too large to fit usefully in memory.
func (h *headerReader) readNumberAsInt() (int, error) {
	n, err := h.readNumber()
	if err != nil {
		return 0, err
	}
	if n > 1<<32 {
		return 0, CorruptInputError{Context: fmt.Sprintf("count %d implausibly large", n)}
	}
	return int(n), nil
}

// readID reads the single-byte property ID that begins almost every header
// element.
func (h *headerReader) readID() (byte, error) { return h.readByte() }

// expectID reads one property ID and confirms it matches want.
func (h *headerReader) expectID(want byte) error {
	got, err := h.readID()
	if err != nil {
		return err
	}
	if got != want {
		return CorruptInputError{Context: fmt.Sprintf("expected property id 0x%02x, got 0x%02x", want, got)}
	}
	return nil
}

// readAllOrBits reads a "BoolVector" as the grammar defines it: a leading
// "all defined" byte, and if it is zero, a packed bit vector of n bits.
func (h *headerReader) readAllOrBits(n int) ([]bool, error) {
	allDefined, err := h.readByte()
	if err != nil {
		return nil, err
	}
	if allDefined != 0 {
		bits := make([]bool, n)
		for i := range bits {
			bits[i] = true
		}
		return bits, nil
	}
	return h.readBits(n)
}

// readBits reads a packed, most-significant-bit-first bit vector of n bits.
func (h *headerReader) readBits(n int) ([]bool, error) {
	bits := make([]bool, n)
	var mask byte
	var b byte
	var err error
	for i := 0; i < n; i++ {
		if mask == 0 {
			b, err = h.readByte()
			if err != nil {
				return nil, err
			}
			mask = 0x80
		}
		bits[i] = b&mask != 0
		mask >>= 1
	}
	return bits, nil
}

// readUTF16Name reads a single null-terminated UTF-16LE name, as used for
// file names and for archive comments.
func readUTF16Name(r io.Reader) (string, error) {
	var units []uint16
	var pair [2]byte
	for {
		if _, err := io.ReadFull(r, pair[:]); err != nil {
			return "", err
		}
		u := binary.LittleEndian.Uint16(pair[:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return utf16ToString(units), nil
}

func utf16ToString(units []uint16) string {
	out := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF:
			r := (rune(u-0xD800) << 10) | rune(units[i+1]-0xDC00)
			out = append(out, r+0x10000)
			i++
		default:
			out = append(out, rune(u))
		}
	}
	return string(out)
}
