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
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	iofs "io/fs"
	"testing"
	"unicode/utf16"
)

// --- archive-building helpers ---

// buildArchive assembles a complete 7z byte stream: signature header, packed
// region, then the next header, with both CRCs computed for real.
func buildArchive(packed, header []byte) []byte {
	var out []byte
	out = append(out, signature[:]...)
	out = append(out, 0, 4)

	start := make([]byte, startHeaderSize)
	binary.LittleEndian.PutUint64(start[0:], uint64(len(packed)))
	binary.LittleEndian.PutUint64(start[8:], uint64(len(header)))
	binary.LittleEndian.PutUint32(start[16:], crc32.ChecksumIEEE(header))

	var crcField [4]byte
	binary.LittleEndian.PutUint32(crcField[:], crc32.ChecksumIEEE(start))
	out = append(out, crcField[:]...)
	out = append(out, start...)
	out = append(out, packed...)
	out = append(out, header...)
	return out
}

func appendUint32LE(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

// appendName encodes one UTF-16LE, null-terminated file name.
func appendName(b []byte, name string) []byte {
	for _, u := range utf16.Encode([]rune(name)) {
		b = append(b, byte(u), byte(u>>8))
	}
	return append(b, 0, 0)
}

// appendNamesProperty emits a complete kName property block for names.
func appendNamesProperty(b []byte, names ...string) []byte {
	var body []byte
	body = append(body, 0) // external = 0
	for _, n := range names {
		body = appendName(body, n)
	}
	b = append(b, idName)
	b = appendNumber(b, uint64(len(body)))
	return append(b, body...)
}

// singleCoderStreamsInfo emits a StreamsInfo section for one folder holding
// one coder fed by one packed stream.
func singleCoderStreamsInfo(packPos, packSize uint64, coderID []byte, coderProps []byte, unpackSize uint64, folderCRC uint32, hasFolderCRC bool) []byte {
	var b []byte
	b = append(b, idPackInfo)
	b = appendNumber(b, packPos)
	b = appendNumber(b, 1)
	b = append(b, idSize)
	b = appendNumber(b, packSize)
	b = append(b, idEnd)

	b = append(b, idUnpackInfo)
	b = append(b, idFolder)
	b = appendNumber(b, 1) // folders
	b = append(b, 0)       // external = 0
	b = appendNumber(b, 1) // coders in folder
	flags := byte(len(coderID))
	if len(coderProps) > 0 {
		flags |= 0x20
	}
	b = append(b, flags)
	b = append(b, coderID...)
	if len(coderProps) > 0 {
		b = appendNumber(b, uint64(len(coderProps)))
		b = append(b, coderProps...)
	}
	b = append(b, idCodersUnpackSize)
	b = appendNumber(b, unpackSize)
	if hasFolderCRC {
		b = append(b, idCRC, 1) // all defined
		b = appendUint32LE(b, folderCRC)
	}
	b = append(b, idEnd)
	return b
}

// copyArchive builds a one-file archive whose folder is a bare Copy coder,
// with folder and substream CRCs.
func copyArchive(name string, content []byte) []byte {
	crc := crc32.ChecksumIEEE(content)

	var h []byte
	h = append(h, idHeader)
	h = append(h, idMainStreamsInfo)
	h = append(h, singleCoderStreamsInfo(0, uint64(len(content)), []byte{0x00}, nil, uint64(len(content)), crc, true)...)
	h = append(h, idSubStreamsInfo)
	h = append(h, idCRC, 1) // zero digests to read; folder CRC is reused
	h = append(h, idEnd)
	h = append(h, idEnd) // end MainStreamsInfo
	h = append(h, idFilesInfo)
	h = appendNumber(h, 1)
	h = appendNamesProperty(h, name)
	h = append(h, idEnd)
	h = append(h, idEnd)

	return buildArchive(content, h)
}

func openArchive(t *testing.T, data []byte) *Reader {
	t.Helper()
	z, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return z
}

func readFile(t *testing.T, f *File) []byte {
	t.Helper()
	rc, err := f.Open()
	if err != nil {
		t.Fatalf("Open %s: %v", f.Name, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", f.Name, err)
	}
	return data
}

// --- end-to-end tests ---

func TestCopyCoderArchive(t *testing.T) {
	content := []byte("simple copy encoding")
	z := openArchive(t, copyArchive("copy.txt", content))

	if len(z.File) != 1 {
		t.Fatalf("File count = %d, want 1", len(z.File))
	}
	f := z.File[0]
	if f.Name != "copy.txt" {
		t.Errorf("Name = %q, want copy.txt", f.Name)
	}
	if f.UncompressedSize != uint64(len(content)) {
		t.Errorf("UncompressedSize = %d, want %d", f.UncompressedSize, len(content))
	}
	if !f.HasCRC || f.CRC32 != crc32.ChecksumIEEE(content) {
		t.Errorf("CRC = (%v, %#x), want declared %#x", f.HasCRC, f.CRC32, crc32.ChecksumIEEE(content))
	}
	if got := readFile(t, f); !bytes.Equal(got, content) {
		t.Errorf("content = %q, want %q", got, content)
	}

	// Reading twice yields identical bytes.
	if got := readFile(t, f); !bytes.Equal(got, content) {
		t.Errorf("second read = %q, want %q", got, content)
	}
}

func TestTwoFilesSharedFolder(t *testing.T) {
	c1 := []byte("file one content\n")
	c2 := []byte("file two content\n")
	packed := append(append([]byte{}, c1...), c2...)

	var h []byte
	h = append(h, idHeader)
	h = append(h, idMainStreamsInfo)
	h = append(h, singleCoderStreamsInfo(0, uint64(len(packed)), []byte{0x00}, nil, uint64(len(packed)), 0, false)...)
	h = append(h, idSubStreamsInfo)
	h = append(h, idNumUnpackStream)
	h = appendNumber(h, 2)
	h = append(h, idSize)
	h = appendNumber(h, uint64(len(c1))) // last substream size is inferred
	h = append(h, idCRC, 1)
	h = appendUint32LE(h, crc32.ChecksumIEEE(c1))
	h = appendUint32LE(h, crc32.ChecksumIEEE(c2))
	h = append(h, idEnd)
	h = append(h, idEnd)
	h = append(h, idFilesInfo)
	h = appendNumber(h, 2)
	h = appendNamesProperty(h, "file1.txt", "file2.txt")
	h = append(h, idEnd)
	h = append(h, idEnd)

	z := openArchive(t, buildArchive(packed, h))
	if len(z.File) != 2 {
		t.Fatalf("File count = %d, want 2", len(z.File))
	}

	want := [][]byte{c1, c2}
	names := []string{"file1.txt", "file2.txt"}
	for i, f := range z.File {
		if f.Name != names[i] {
			t.Errorf("File[%d].Name = %q, want %q", i, f.Name, names[i])
		}
		if f.UncompressedSize != uint64(len(want[i])) {
			t.Errorf("File[%d] size = %d, want %d", i, f.UncompressedSize, len(want[i]))
		}
		if got := readFile(t, f); !bytes.Equal(got, want[i]) {
			t.Errorf("File[%d] content = %q, want %q", i, got, want[i])
		}
	}
}

func TestEmptyFileArchive(t *testing.T) {
	var h []byte
	h = append(h, idHeader)
	h = append(h, idFilesInfo)
	h = appendNumber(h, 1)
	h = append(h, idEmptyStream)
	h = appendNumber(h, 1)
	h = append(h, 0b1000_0000)
	h = append(h, idEmptyFile)
	h = appendNumber(h, 1)
	h = append(h, 0b1000_0000)
	h = appendNamesProperty(h, "empty.txt")
	h = append(h, idEnd)
	h = append(h, idEnd)

	z := openArchive(t, buildArchive(nil, h))
	if len(z.File) != 1 {
		t.Fatalf("File count = %d, want 1", len(z.File))
	}
	f := z.File[0]
	if f.Name != "empty.txt" || f.IsDir || f.UncompressedSize != 0 {
		t.Errorf("entry = %q dir=%v size=%d, want empty.txt file of size 0", f.Name, f.IsDir, f.UncompressedSize)
	}
	if got := readFile(t, f); len(got) != 0 {
		t.Errorf("content = %q, want empty", got)
	}
}

func TestTwoEmptyFilesArchive(t *testing.T) {
	var h []byte
	h = append(h, idHeader)
	h = append(h, idFilesInfo)
	h = appendNumber(h, 2)
	h = append(h, idEmptyStream)
	h = appendNumber(h, 1)
	h = append(h, 0b1100_0000)
	h = append(h, idEmptyFile)
	h = appendNumber(h, 1)
	h = append(h, 0b1100_0000)
	h = appendNamesProperty(h, "file1.txt", "file2.txt")
	h = append(h, idEnd)
	h = append(h, idEnd)

	z := openArchive(t, buildArchive(nil, h))
	if len(z.File) != 2 {
		t.Fatalf("File count = %d, want 2", len(z.File))
	}
	for i, name := range []string{"file1.txt", "file2.txt"} {
		f := z.File[i]
		if f.Name != name || f.IsDir {
			t.Errorf("File[%d] = %q dir=%v, want %q file", i, f.Name, f.IsDir, name)
		}
		if got := readFile(t, f); len(got) != 0 {
			t.Errorf("File[%d] content = %q, want empty", i, got)
		}
	}
}

func TestDirectoryEntry(t *testing.T) {
	var h []byte
	h = append(h, idHeader)
	h = append(h, idFilesInfo)
	h = appendNumber(h, 1)
	h = append(h, idEmptyStream)
	h = appendNumber(h, 1)
	h = append(h, 0b1000_0000)
	// No kEmptyFile: an empty-stream entry without it is a directory.
	h = appendNamesProperty(h, "subdir")
	h = append(h, idEnd)
	h = append(h, idEnd)

	z := openArchive(t, buildArchive(nil, h))
	if len(z.File) != 1 || !z.File[0].IsDir {
		t.Fatalf("want a single directory entry, got %+v", z.File)
	}
}

func TestEncodedHeaderArchive(t *testing.T) {
	content := []byte("behind an encoded header")

	// Build the plain header the archive would normally carry inline.
	var plain []byte
	plain = append(plain, idHeader)
	plain = append(plain, idMainStreamsInfo)
	plain = append(plain, singleCoderStreamsInfo(0, uint64(len(content)), []byte{0x00}, nil, uint64(len(content)), 0, false)...)
	plain = append(plain, idEnd)
	plain = append(plain, idFilesInfo)
	plain = appendNumber(plain, 1)
	plain = appendNamesProperty(plain, "inner.txt")
	plain = append(plain, idEnd)
	plain = append(plain, idEnd)

	// Store the plain header as a second packed stream behind a Copy-coder
	// folder described by the kEncodedHeader streams info.
	packed := append(append([]byte{}, content...), plain...)

	var h []byte
	h = append(h, idEncodedHeader)
	h = append(h, singleCoderStreamsInfo(uint64(len(content)), uint64(len(plain)), []byte{0x00}, nil, uint64(len(plain)), crc32.ChecksumIEEE(plain), true)...)
	h = append(h, idEnd) // end StreamsInfo

	z := openArchive(t, buildArchive(packed, h))
	if len(z.File) != 1 {
		t.Fatalf("File count = %d, want 1", len(z.File))
	}
	f := z.File[0]
	if f.Name != "inner.txt" {
		t.Errorf("Name = %q, want inner.txt", f.Name)
	}
	if got := readFile(t, f); !bytes.Equal(got, content) {
		t.Errorf("content = %q, want %q", got, content)
	}
}

func TestLZMA2UncompressedChunksArchive(t *testing.T) {
	content := []byte("payload carried by lzma2 chunk framing")

	var packed []byte
	packed = append(packed, 0x01) // dict reset + uncompressed chunk
	packed = append(packed, byte((len(content)-1)>>8), byte(len(content)-1))
	packed = append(packed, content...)
	packed = append(packed, 0x00)

	var h []byte
	h = append(h, idHeader)
	h = append(h, idMainStreamsInfo)
	h = append(h, singleCoderStreamsInfo(0, uint64(len(packed)), []byte{0x21}, []byte{0x00}, uint64(len(content)), crc32.ChecksumIEEE(content), true)...)
	h = append(h, idEnd)
	h = append(h, idFilesInfo)
	h = appendNumber(h, 1)
	h = appendNamesProperty(h, "data.bin")
	h = append(h, idEnd)
	h = append(h, idEnd)

	z := openArchive(t, buildArchive(packed, h))
	if got := readFile(t, z.File[0]); !bytes.Equal(got, content) {
		t.Errorf("content = %q, want %q", got, content)
	}
}

func TestDeltaCopyChainArchive(t *testing.T) {
	content := []byte("aaaabbbbcccc")

	// Forward delta filter with distance 1.
	packed := make([]byte, len(content))
	for i := range content {
		prev := byte(0)
		if i > 0 {
			prev = content[i-1]
		}
		packed[i] = content[i] - prev
	}

	var h []byte
	h = append(h, idHeader)
	h = append(h, idMainStreamsInfo)
	h = append(h, idPackInfo)
	h = appendNumber(h, 0)
	h = appendNumber(h, 1)
	h = append(h, idSize)
	h = appendNumber(h, uint64(len(packed)))
	h = append(h, idEnd)
	h = append(h, idUnpackInfo)
	h = append(h, idFolder)
	h = appendNumber(h, 1)
	h = append(h, 0)
	h = appendNumber(h, 2)       // two coders
	h = append(h, 0x01, 0x00)    // Copy
	h = append(h, 0x21, 0x03, 1) // Delta, 1 props byte
	h = append(h, 0x00)          // delta distance - 1
	h = appendNumber(h, 1)       // bind pair: delta's input (in index 1)...
	h = appendNumber(h, 0)       // ...from copy's output (out index 0)
	h = append(h, idCodersUnpackSize)
	h = appendNumber(h, uint64(len(content)))
	h = appendNumber(h, uint64(len(content)))
	h = append(h, idEnd)
	h = append(h, idEnd)
	h = append(h, idFilesInfo)
	h = appendNumber(h, 1)
	h = appendNamesProperty(h, "delta.txt")
	h = append(h, idEnd)
	h = append(h, idEnd)

	z := openArchive(t, buildArchive(packed, h))
	if got := readFile(t, z.File[0]); !bytes.Equal(got, content) {
		t.Errorf("content = %q, want %q", got, content)
	}
}

// --- failure-path tests ---

func TestBadSignature(t *testing.T) {
	_, err := NewReader(bytes.NewReader(bytes.Repeat([]byte{0x55}, 64)), 64)
	var sig BadSignatureError
	if !errors.As(err, &sig) {
		t.Fatalf("err = %v, want BadSignatureError", err)
	}
}

func TestUnsupportedVersion(t *testing.T) {
	data := copyArchive("f.txt", []byte("x"))
	data[6] = 9 // major version

	_, err := NewReader(bytes.NewReader(data), int64(len(data)))
	var ver UnsupportedVersionError
	if !errors.As(err, &ver) {
		t.Fatalf("err = %v, want UnsupportedVersionError", err)
	}
	if ver.Major != 9 {
		t.Errorf("Major = %d, want 9", ver.Major)
	}
}

func TestStartHeaderCRCMismatch(t *testing.T) {
	data := copyArchive("f.txt", []byte("x"))
	data[12] ^= 0xFF // corrupt the start header, CRC field intact

	_, err := NewReader(bytes.NewReader(data), int64(len(data)))
	var ck ChecksumError
	if !errors.As(err, &ck) {
		t.Fatalf("err = %v, want ChecksumError", err)
	}
	if ck.Kind != "start header" {
		t.Errorf("Kind = %q, want start header", ck.Kind)
	}
}

func TestNextHeaderCRCMismatch(t *testing.T) {
	content := []byte("payload")
	data := copyArchive("f.txt", content)
	// Flip a bit inside the stored file name: the header still parses, so
	// the failure can only come from the next-header CRC comparison. The
	// name "f.txt" starts 14 bytes before the end of the header (5 UTF-16
	// units, a 2-byte terminator, and two section-end markers).
	i := len(data) - 14
	if data[i] != 'f' {
		t.Fatalf("fixture changed: data[%d] = %#x, want 'f'", i, data[i])
	}
	data[i] ^= 0x01

	_, err := NewReader(bytes.NewReader(data), int64(len(data)))
	var ck ChecksumError
	if !errors.As(err, &ck) {
		t.Fatalf("err = %v, want ChecksumError", err)
	}
	if ck.Kind != "next header" {
		t.Errorf("Kind = %q, want next header", ck.Kind)
	}
}

func TestTailScanRecovery(t *testing.T) {
	data := copyArchive("f.txt", []byte("recoverable"))
	// Zero the start-header CRC field; the 20 start-header bytes stay
	// non-zero, which is the documented trigger for the tail scan.
	for i := 8; i < 12; i++ {
		data[i] = 0
	}

	z := openArchive(t, data)
	if len(z.File) != 1 || z.File[0].Name != "f.txt" {
		t.Fatalf("tail scan recovered %+v, want f.txt", z.File)
	}
	if got := readFile(t, z.File[0]); string(got) != "recoverable" {
		t.Errorf("content = %q, want recoverable", got)
	}
}

func TestFileCRCMismatch(t *testing.T) {
	content := []byte("checked content")
	// Declare a CRC one bit off from the real one, so only the CRC
	// comparison can fail.
	var h []byte
	h = append(h, idHeader)
	h = append(h, idMainStreamsInfo)
	h = append(h, singleCoderStreamsInfo(0, uint64(len(content)), []byte{0x00}, nil, uint64(len(content)), crc32.ChecksumIEEE(content)^1, true)...)
	h = append(h, idEnd)
	h = append(h, idFilesInfo)
	h = appendNumber(h, 1)
	h = appendNamesProperty(h, "f.txt")
	h = append(h, idEnd)
	h = append(h, idEnd)

	z := openArchive(t, buildArchive(content, h))
	rc, err := z.File[0].Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = rc.Close() }()

	_, err = io.ReadAll(rc)
	var ck ChecksumError
	if !errors.As(err, &ck) {
		t.Fatalf("read err = %v, want ChecksumError", err)
	}
}

func TestTruncatedPackRegion(t *testing.T) {
	content := []byte("will be cut short")

	// Place the header before the pack region (PackInfo's position field
	// allows that) so truncating the file starves the folder's packed
	// stream instead of the header.
	buildHeader := func(packPos uint64) []byte {
		var h []byte
		h = append(h, idHeader)
		h = append(h, idMainStreamsInfo)
		h = append(h, singleCoderStreamsInfo(packPos, uint64(len(content)), []byte{0x00}, nil, uint64(len(content)), 0, false)...)
		h = append(h, idEnd)
		h = append(h, idFilesInfo)
		h = appendNumber(h, 1)
		h = appendNamesProperty(h, "f.txt")
		h = append(h, idEnd)
		h = append(h, idEnd)
		return h
	}
	h := buildHeader(uint64(len(buildHeader(0))))

	var out []byte
	out = append(out, signature[:]...)
	out = append(out, 0, 4)
	start := make([]byte, startHeaderSize)
	binary.LittleEndian.PutUint64(start[0:], 0) // next header sits right after the signature header
	binary.LittleEndian.PutUint64(start[8:], uint64(len(h)))
	binary.LittleEndian.PutUint32(start[16:], crc32.ChecksumIEEE(h))
	var crcField [4]byte
	binary.LittleEndian.PutUint32(crcField[:], crc32.ChecksumIEEE(start))
	out = append(out, crcField[:]...)
	out = append(out, start...)
	out = append(out, h...)
	out = append(out, content[:len(content)-1]...) // one byte short

	z := openArchive(t, out)
	rc, err := z.File[0].Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = rc.Close() }()

	_, err = io.ReadAll(rc)
	var corrupt CorruptInputError
	if !errors.As(err, &corrupt) {
		t.Fatalf("read err = %v, want CorruptInputError", err)
	}
}

func TestUnsupportedCoder(t *testing.T) {
	content := []byte("opaque")
	var h []byte
	h = append(h, idHeader)
	h = append(h, idMainStreamsInfo)
	h = append(h, singleCoderStreamsInfo(0, uint64(len(content)), []byte{0x7E}, nil, uint64(len(content)), 0, false)...)
	h = append(h, idEnd)
	h = append(h, idFilesInfo)
	h = appendNumber(h, 1)
	h = appendNamesProperty(h, "f.bin")
	h = append(h, idEnd)
	h = append(h, idEnd)

	z := openArchive(t, buildArchive(content, h))
	_, err := z.File[0].Open()
	var unsup UnsupportedCoderError
	if !errors.As(err, &unsup) {
		t.Fatalf("err = %v, want UnsupportedCoderError", err)
	}
}

func TestPasswordRequired(t *testing.T) {
	// The packed bytes are irrelevant; the pipeline must fail before
	// emitting anything.
	packed := make([]byte, 16)
	var h []byte
	h = append(h, idHeader)
	h = append(h, idMainStreamsInfo)
	h = append(h, singleCoderStreamsInfo(0, uint64(len(packed)), []byte{0x06, 0xF1, 0x07, 0x01}, []byte{0x3F, 0x00}, 16, 0, false)...)
	h = append(h, idEnd)
	h = append(h, idFilesInfo)
	h = appendNumber(h, 1)
	h = appendNamesProperty(h, "secret.bin")
	h = append(h, idEnd)
	h = append(h, idEnd)

	z := openArchive(t, buildArchive(packed, h))
	_, err := z.File[0].Open()
	var pw PasswordRequiredError
	if !errors.As(err, &pw) {
		t.Fatalf("err = %v, want PasswordRequiredError", err)
	}
}

func TestMemoryLimit(t *testing.T) {
	// LZMA coder declaring a 64 MiB dictionary against a 1 MiB cap.
	props := []byte{0x5D, 0x00, 0x00, 0x00, 0x04}
	packed := make([]byte, 8)
	var h []byte
	h = append(h, idHeader)
	h = append(h, idMainStreamsInfo)
	h = append(h, singleCoderStreamsInfo(0, uint64(len(packed)), []byte{0x03, 0x01, 0x01}, props, 8, 0, false)...)
	h = append(h, idEnd)
	h = append(h, idFilesInfo)
	h = appendNumber(h, 1)
	h = appendNamesProperty(h, "big.bin")
	h = append(h, idEnd)
	h = append(h, idEnd)

	z := openArchive(t, buildArchive(packed, h))
	z.SetMemoryLimit(1024)

	_, err := z.File[0].Open()
	var mem MemoryLimitError
	if !errors.As(err, &mem) {
		t.Fatalf("err = %v, want MemoryLimitError", err)
	}
	if mem.LimitKB != 1024 {
		t.Errorf("LimitKB = %d, want 1024", mem.LimitKB)
	}
}

func TestAlternativeMethodsRejected(t *testing.T) {
	content := []byte("x")
	var h []byte
	h = append(h, idHeader)
	h = append(h, idMainStreamsInfo)
	h = append(h, idPackInfo)
	h = appendNumber(h, 0)
	h = appendNumber(h, 1)
	h = append(h, idSize)
	h = appendNumber(h, uint64(len(content)))
	h = append(h, idEnd)
	h = append(h, idUnpackInfo)
	h = append(h, idFolder)
	h = appendNumber(h, 1)
	h = append(h, 0)
	h = appendNumber(h, 1)
	h = append(h, 0x81, 0x00) // alternative-methods flag set on a Copy coder
	h = append(h, idCodersUnpackSize)
	h = appendNumber(h, uint64(len(content)))
	h = append(h, idEnd)
	h = append(h, idEnd)
	h = append(h, idEnd)

	_, err := NewReader(bytes.NewReader(buildArchive(content, h)), int64(len(buildArchive(content, h))))
	var unsup UnsupportedFeatureError
	if !errors.As(err, &unsup) {
		t.Fatalf("err = %v, want UnsupportedFeatureError", err)
	}
}

func TestFSOpen(t *testing.T) {
	content := []byte("fs contents")
	z := openArchive(t, copyArchive("dir/nested.txt", content))

	f, err := z.Open("dir/nested.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content = %q, want %q", got, content)
	}

	// The implied parent directory is listable.
	d, err := z.Open("dir")
	if err != nil {
		t.Fatalf("Open dir: %v", err)
	}
	defer func() { _ = d.Close() }()
	rd, ok := d.(iofs.ReadDirFile)
	if !ok {
		t.Fatal("directory handle does not implement ReadDirFile")
	}
	entries, err := rd.ReadDir(-1)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "nested.txt" {
		t.Errorf("entries = %v, want [nested.txt]", entries)
	}

	if _, err := z.Open("missing.txt"); err == nil {
		t.Error("Open(missing.txt) succeeded, want error")
	}
}

func TestForEach(t *testing.T) {
	c1 := []byte("file one content\n")
	c2 := []byte("file two content\n")
	packed := append(append([]byte{}, c1...), c2...)

	var h []byte
	h = append(h, idHeader)
	h = append(h, idMainStreamsInfo)
	h = append(h, singleCoderStreamsInfo(0, uint64(len(packed)), []byte{0x00}, nil, uint64(len(packed)), 0, false)...)
	h = append(h, idSubStreamsInfo)
	h = append(h, idNumUnpackStream)
	h = appendNumber(h, 2)
	h = append(h, idSize)
	h = appendNumber(h, uint64(len(c1)))
	h = append(h, idEnd)
	h = append(h, idEnd)
	h = append(h, idFilesInfo)
	h = appendNumber(h, 2)
	h = appendNamesProperty(h, "file1.txt", "file2.txt")
	h = append(h, idEnd)
	h = append(h, idEnd)

	z := openArchive(t, buildArchive(packed, h))

	var got [][]byte
	err := z.ForEach(func(f *File, r io.Reader) (bool, error) {
		data, err := io.ReadAll(r)
		if err != nil {
			return false, err
		}
		got = append(got, data)
		return true, nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(got) != 2 || !bytes.Equal(got[0], c1) || !bytes.Equal(got[1], c2) {
		t.Errorf("ForEach yielded %q, want [%q %q]", got, c1, c2)
	}

	// Returning false stops the iteration.
	visits := 0
	err = z.ForEach(func(*File, io.Reader) (bool, error) {
		visits++
		return false, nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if visits != 1 {
		t.Errorf("visits = %d, want 1 after early stop", visits)
	}
}

func TestFileTimestampsAndAttributes(t *testing.T) {
	content := []byte("stamped")
	crc := crc32.ChecksumIEEE(content)

	var h []byte
	h = append(h, idHeader)
	h = append(h, idMainStreamsInfo)
	h = append(h, singleCoderStreamsInfo(0, uint64(len(content)), []byte{0x00}, nil, uint64(len(content)), crc, true)...)
	h = append(h, idEnd)
	h = append(h, idFilesInfo)
	h = appendNumber(h, 1)
	h = appendNamesProperty(h, "stamped.txt")

	// kMTime: 2009-06-09 00:00:00 UTC in FILETIME units.
	const mtime = uint64(128889792000000000)
	var tbody []byte
	tbody = append(tbody, 1, 0) // all defined, external = 0
	var ft [8]byte
	binary.LittleEndian.PutUint64(ft[:], mtime)
	tbody = append(tbody, ft[:]...)
	h = append(h, idMTime)
	h = appendNumber(h, uint64(len(tbody)))
	h = append(h, tbody...)

	// kWinAttributes: FILE_ATTRIBUTE_READONLY.
	var abody []byte
	abody = append(abody, 1, 0)
	abody = appendUint32LE(abody, 0x01)
	h = append(h, idWinAttributes)
	h = appendNumber(h, uint64(len(abody)))
	h = append(h, abody...)

	h = append(h, idEnd)
	h = append(h, idEnd)

	z := openArchive(t, buildArchive(content, h))
	f := z.File[0]
	if got := f.Modified.UTC().Format("2006-01-02 15:04:05"); got != "2009-06-09 00:00:00" {
		t.Errorf("Modified = %s, want 2009-06-09 00:00:00", got)
	}
	if f.Attributes != 0x01 {
		t.Errorf("Attributes = %#x, want 0x01", f.Attributes)
	}
}
