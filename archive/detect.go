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

package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Format identifies a supported archive container format.
type Format string

// Supported archive formats.
const (
	FormatZIP      Format = "zip"
	FormatSevenZip Format = "7z"
	FormatRAR      Format = "rar"
	FormatUnknown  Format = ""
)

// formatMagics are the leading byte sequences that identify each supported
// container, checked in order.
var formatMagics = []struct {
	magic  []byte
	format Format
}{
	{[]byte{'P', 'K', 0x03, 0x04}, FormatZIP},
	{[]byte{'P', 'K', 0x05, 0x06}, FormatZIP}, // empty ZIP
	{[]byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}, FormatSevenZip},
	{[]byte{'R', 'a', 'r', '!', 0x1A, 0x07, 0x01, 0x00}, FormatRAR},
	{[]byte{'R', 'a', 'r', '!', 0x1A, 0x07, 0x00}, FormatRAR},
}

// maxMagicLen is the longest magic formatMagics checks for.
const maxMagicLen = 8

// SniffFormat identifies an archive format from its leading bytes.
func SniffFormat(header []byte) Format {
	for _, m := range formatMagics {
		if len(header) >= len(m.magic) && bytes.Equal(header[:len(m.magic)], m.magic) {
			return m.format
		}
	}
	return FormatUnknown
}

// DetectFormat identifies the archive format of the file at path by reading
// its leading bytes, independent of the file's extension.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided path is expected
	if err != nil {
		return FormatUnknown, fmt.Errorf("open archive for detection: %w", err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, maxMagicLen)
	n, err := f.Read(header)
	if err != nil && err != io.EOF { //nolint:errorlint // io.Read returns io.EOF unwrapped
		return FormatUnknown, fmt.Errorf("read archive header: %w", err)
	}

	return SniffFormat(header[:n]), nil
}
