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
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/go7z-dev/go7z/internal/crypto7z"
	"github.com/go7z-dev/go7z/internal/filter"
	"github.com/go7z-dev/go7z/internal/ioutil"
	"github.com/go7z-dev/go7z/internal/lzma"
)

// Well-known 7z coder method IDs. This is a small, closed set,
// dispatched with a tagged switch rather than an open decoder registry.
var (
	methodCopy      = []byte{0x00}
	methodDelta     = []byte{0x03}
	methodLZMA      = []byte{0x03, 0x01, 0x01}
	methodBCJX86    = []byte{0x04}
	methodBCJX86Alt = []byte{0x03, 0x03, 0x01, 0x03}
	methodBCJPPC    = []byte{0x03, 0x03, 0x02, 0x05}
	methodBCJIA64   = []byte{0x03, 0x03, 0x04, 0x01}
	methodBCJARM    = []byte{0x03, 0x03, 0x05, 0x01}
	methodBCJARMT   = []byte{0x03, 0x03, 0x07, 0x01}
	methodBCJSPARC  = []byte{0x03, 0x03, 0x08, 0x05}
	methodLZMA2     = []byte{0x21}
	methodAES256    = []byte{0x06, 0xF1, 0x07, 0x01}
)

func methodEqual(a, b []byte) bool { return bytes.Equal(a, b) }

// memoryLimit optionally caps the working-set size an LZMA/LZMA2 decoder
// may allocate; a zero value disables the check.
type memoryLimit struct {
	limitKB uint64
}

// buildCoderReader instantiates the decoder for a single coder, wrapping
// in as the coder's already-resolved input reader(s). Only single-input,
// single-output coders are supported; a coder declaring otherwise is
// rejected before construction is attempted.
func buildCoderReader(c coder, in []io.Reader, unpackSize uint64, password string, mem memoryLimit) (io.Reader, error) {
	if c.numIn != 1 || c.numOut != 1 {
		return nil, UnsupportedCoderError{ID: c.id}
	}
	r := in[0]

	switch {
	case methodEqual(c.id, methodCopy):
		return r, nil

	case methodEqual(c.id, methodLZMA):
		if mem.limitKB > 0 {
			if len(c.properties) < 5 {
				return nil, CorruptInputError{Context: "lzma coder properties must be 5 bytes"}
			}
			props, err := lzma.PropsFromByte(c.properties[0])
			if err != nil {
				return nil, err
			}
			dictSize := uint32(c.properties[1]) | uint32(c.properties[2])<<8 | uint32(c.properties[3])<<16 | uint32(c.properties[4])<<24
			need := lzma.MemoryUsageKB(dictSize, props)
			if need > mem.limitKB {
				return nil, MemoryLimitError{RequiredKB: need, LimitKB: mem.limitKB}
			}
		}
		return lzma.NewReader(r, c.properties, unpackSize)

	case methodEqual(c.id, methodLZMA2):
		if mem.limitKB > 0 && len(c.properties) == 1 {
			need, err := lzma.MemoryUsage2KB(c.properties[0])
			if err != nil {
				return nil, err
			}
			if need > mem.limitKB {
				return nil, MemoryLimitError{RequiredKB: need, LimitKB: mem.limitKB}
			}
		}
		return lzma.NewReader2(r, c.properties)

	case methodEqual(c.id, methodDelta):
		if len(c.properties) != 1 {
			return nil, CorruptInputError{Context: "delta coder properties must be 1 byte"}
		}
		return filter.NewDeltaReader(r, int(c.properties[0])+1), nil

	case methodEqual(c.id, methodBCJX86), methodEqual(c.id, methodBCJX86Alt):
		return filter.NewBCJX86Reader(r), nil

	case methodEqual(c.id, methodBCJPPC):
		return filter.NewBCJPPCReader(r), nil

	case methodEqual(c.id, methodBCJIA64):
		return filter.NewBCJIA64Reader(r), nil

	case methodEqual(c.id, methodBCJARM):
		return filter.NewBCJARMReader(r), nil

	case methodEqual(c.id, methodBCJARMT):
		return filter.NewBCJARMThumbReader(r), nil

	case methodEqual(c.id, methodBCJSPARC):
		return filter.NewBCJSPARCReader(r), nil

	case methodEqual(c.id, methodAES256):
		if password == "" {
			return nil, PasswordRequiredError{}
		}
		return crypto7z.NewReader(r, c.properties, password)

	default:
		return nil, UnsupportedCoderError{ID: c.id}
	}
}

// folderReader assembles a folder's full coder chain over a bounded,
// random-access view of the packed area, traversing coders in execution
// order by following each bind pair from input to output.
// It mirrors bodgit/sevenzip's FolderReader wiring, adapted to native
// decoders instead of delegated ones.
func folderReader(ra io.ReaderAt, folderStart int64, si *streamsInfo, foldIdx int, password string, mem memoryLimit) (io.ReadCloser, error) {
	f := &si.folders[foldIdx]

	in := make([]io.Reader, f.totalIn())
	out := make([]io.Reader, f.totalOut())

	packBase := 0
	for i := 0; i < foldIdx; i++ {
		packBase += len(si.folders[i].packedStreams)
	}

	var offset int64
	for i, inIdx := range f.packedStreams {
		size := int64(si.packInfo.sizes[packBase+i]) //nolint:gosec
		in[inIdx] = bufio.NewReader(io.NewSectionReader(ra, folderStart+offset, size))
		offset += size
	}

	inStart, outStart := 0, 0
	for ci := range f.coders {
		c := f.coders[ci]
		coderIn := make([]io.Reader, c.numIn)
		for j := 0; j < c.numIn; j++ {
			idx := inStart + j
			if in[idx] != nil {
				coderIn[j] = in[idx]
				continue
			}
			bp := f.findBindPairForIn(idx)
			if bp == nil || out[bp.out] == nil {
				return nil, CorruptInputError{Context: "folder coder input has no source"}
			}
			coderIn[j] = out[bp.out]
		}

		r, err := buildCoderReader(c, coderIn, f.unpackSizes[outStart], password, mem)
		if err != nil {
			return nil, err
		}
		out[outStart] = r

		inStart += c.numIn
		outStart += c.numOut
	}

	sinkIdx := -1
	for i := 0; i < f.totalOut(); i++ {
		if f.findBindPairForOut(i) == nil {
			sinkIdx = i
			break
		}
	}
	if sinkIdx == -1 || out[sinkIdx] == nil {
		return nil, CorruptInputError{Context: "folder has no unbound output stream"}
	}

	bounded := ioutil.BoundedReadCloser(out[sinkIdx], int64(f.unpackSize())) //nolint:gosec

	if !f.hasCRC {
		return bounded, nil
	}
	return newCRCVerifyingReadCloser(bounded, int64(f.unpackSize()), f.crc, "folder"), nil //nolint:gosec
}

// crcVerifyingReadCloser compares the accumulated CRC-32 against an expected
// value once exactly size bytes have passed through, surfacing ChecksumError
// instead of silently accepting corrupt output. It finalizes on the read
// that crosses the size boundary, so a consumer that reads exactly size
// bytes (the normal case for bounded file reads) still gets the check.
type crcVerifyingReadCloser struct {
	rc        io.ReadCloser
	h         *ioutil.CRC32Reader
	remaining int64
	expected  uint32
	kind      string
}

func newCRCVerifyingReadCloser(rc io.ReadCloser, size int64, expected uint32, kind string) *crcVerifyingReadCloser {
	return &crcVerifyingReadCloser{
		rc:        rc,
		h:         ioutil.NewCRC32Reader(rc),
		remaining: size,
		expected:  expected,
		kind:      kind,
	}
}

func (c *crcVerifyingReadCloser) Read(p []byte) (int, error) {
	n, err := c.h.Read(p)
	if n > 0 && c.remaining > 0 {
		c.remaining -= int64(n)
		if c.remaining <= 0 && c.h.Sum32() != c.expected {
			return n, ChecksumError{Kind: c.kind}
		}
	}
	return n, err
}

func (c *crcVerifyingReadCloser) Close() error { return c.rc.Close() }

// decodeEncodedHeader decodes the single folder of a streamsInfo that
// describes an encoded (compressed) next header and returns its decoded
// bytes, verified against the folder's declared CRC if it carries one.
func decodeEncodedHeader(ra io.ReaderAt, folderStart int64, si *streamsInfo, password string) ([]byte, error) {
	if len(si.folders) != 1 {
		return nil, CorruptInputError{Context: "encoded header must describe exactly one folder"}
	}
	rc, err := folderReader(ra, folderStart, si, 0, password, memoryLimit{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error decoding encoded header: %w", err)
	}
	return data, nil
}

// folderReaderForFile wraps a folder's decoded stream in a second bounded
// reader scoped to one file's exact size plus, if declared, a per-file
// CRC verifier, as the per-entry consumption rules require.
func folderReaderForFile(folderStream io.Reader, size uint64, crc uint32, hasCRC bool) io.Reader {
	bounded := io.LimitReader(folderStream, int64(size)) //nolint:gosec
	if !hasCRC {
		return bounded
	}
	return newCRCVerifyingReadCloser(asCloser(bounded), int64(size), crc, "file") //nolint:gosec
}

// asCloser gives readers that have no native Close the io.Closer the pool
// wants, mirroring bodgit/sevenzip's internal/util.NopCloser.
func asCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}
