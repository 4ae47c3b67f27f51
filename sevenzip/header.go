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
	"fmt"
	"io"
	"time"
)

// readPackInfo parses the PackInfo section: the packed-streams region
// offset, one size per packed stream, and optional per-stream CRCs.
func readPackInfo(h *headerReader) (*packInfo, error) {
	position, err := h.readNumber()
	if err != nil {
		return nil, err
	}
	numStreams, err := h.readNumberAsInt()
	if err != nil {
		return nil, err
	}

	pi := &packInfo{position: position, sizes: make([]uint64, numStreams)}

	for {
		id, err := h.readID()
		if err != nil {
			return nil, err
		}
		switch id {
		case idEnd:
			return pi, nil
		case idSize:
			for i := range pi.sizes {
				if pi.sizes[i], err = h.readNumber(); err != nil {
					return nil, err
				}
			}
		case idCRC:
			defined, err := h.readAllOrBits(numStreams)
			if err != nil {
				return nil, err
			}
			pi.digests = make([]uint32, numStreams)
			for i, d := range defined {
				if !d {
					continue
				}
				if pi.digests[i], err = h.readUint32LE(); err != nil {
					return nil, err
				}
			}
		default:
			return nil, CorruptInputError{Context: fmt.Sprintf("unexpected id 0x%02x in PackInfo", id)}
		}
	}
}

// readCoder parses a single coder descriptor: the flags byte, method id,
// optional explicit in/out stream counts, and optional properties blob.
func readCoder(h *headerReader) (coder, error) {
	flags, err := h.readByte()
	if err != nil {
		return coder{}, err
	}
	if flags&0x80 != 0 {
		return coder{}, UnsupportedFeatureError{Feature: "alternative methods"}
	}
	idSize := int(flags & 0x0F)
	isComplex := flags&0x10 != 0
	hasAttrs := flags&0x20 != 0

	id, err := h.readBytes(idSize)
	if err != nil {
		return coder{}, err
	}

	c := coder{id: id, numIn: 1, numOut: 1}
	if isComplex {
		in, err := h.readNumberAsInt()
		if err != nil {
			return coder{}, err
		}
		out, err := h.readNumberAsInt()
		if err != nil {
			return coder{}, err
		}
		c.numIn, c.numOut = in, out
	}
	if hasAttrs {
		size, err := h.readNumberAsInt()
		if err != nil {
			return coder{}, err
		}
		if c.properties, err = h.readBytes(size); err != nil {
			return coder{}, err
		}
	}
	return c, nil
}

// readFolder parses one Folder descriptor: its coder chain, the bind pairs
// wiring them together, and which input streams draw from the packed area
// directly, per the format's folder invariants.
func readFolder(h *headerReader) (folder, error) {
	numCoders, err := h.readNumberAsInt()
	if err != nil {
		return folder{}, err
	}

	f := folder{coders: make([]coder, numCoders)}
	for i := range f.coders {
		if f.coders[i], err = readCoder(h); err != nil {
			return folder{}, err
		}
	}

	totalOut := f.totalOut()
	totalIn := f.totalIn()
	numBindPairs := totalOut - 1
	if numBindPairs < 0 {
		return folder{}, CorruptInputError{Context: "folder has no output streams"}
	}
	f.bindPairs = make([]bindPair, numBindPairs)
	for i := range f.bindPairs {
		in, err := h.readNumberAsInt()
		if err != nil {
			return folder{}, err
		}
		out, err := h.readNumberAsInt()
		if err != nil {
			return folder{}, err
		}
		f.bindPairs[i] = bindPair{in: in, out: out}
	}

	numPackedStreams := totalIn - numBindPairs
	if numPackedStreams < 0 {
		return folder{}, CorruptInputError{Context: "folder bind pairs exceed input streams"}
	}
	if numPackedStreams == 1 {
		found := -1
		for i := 0; i < totalIn; i++ {
			if f.findBindPairForIn(i) == nil {
				found = i
				break
			}
		}
		if found == -1 {
			return folder{}, CorruptInputError{Context: "folder has no unbound packed input"}
		}
		f.packedStreams = []int{found}
	} else {
		f.packedStreams = make([]int, numPackedStreams)
		for i := range f.packedStreams {
			idx, err := h.readNumberAsInt()
			if err != nil {
				return folder{}, err
			}
			f.packedStreams[i] = idx
		}
	}

	return f, nil
}

// readUnpackInfo parses the UnpackInfo section: the folder list, every
// coder-output unpack size, and optional per-folder CRCs.
func readUnpackInfo(h *headerReader) ([]folder, error) {
	if err := h.expectID(idFolder); err != nil {
		return nil, err
	}
	numFolders, err := h.readNumberAsInt()
	if err != nil {
		return nil, err
	}
	external, err := h.readByte()
	if err != nil {
		return nil, err
	}
	if external != 0 {
		return nil, UnsupportedFeatureError{Feature: "external folder streams"}
	}

	folders := make([]folder, numFolders)
	for i := range folders {
		if folders[i], err = readFolder(h); err != nil {
			return nil, err
		}
	}

	if err := h.expectID(idCodersUnpackSize); err != nil {
		return nil, err
	}
	for i := range folders {
		folders[i].unpackSizes = make([]uint64, folders[i].totalOut())
		for j := range folders[i].unpackSizes {
			if folders[i].unpackSizes[j], err = h.readNumber(); err != nil {
				return nil, err
			}
		}
	}

	for {
		id, err := h.readID()
		if err != nil {
			return nil, err
		}
		switch id {
		case idEnd:
			return folders, nil
		case idCRC:
			defined, err := h.readAllOrBits(numFolders)
			if err != nil {
				return nil, err
			}
			for i, d := range defined {
				if !d {
					continue
				}
				if folders[i].crc, err = h.readUint32LE(); err != nil {
					return nil, err
				}
				folders[i].hasCRC = true
			}
		default:
			return nil, CorruptInputError{Context: fmt.Sprintf("unexpected id 0x%02x in UnpackInfo", id)}
		}
	}
}

// readSubStreamsInfo parses the SubStreamsInfo section, refining each
// folder's single logical output into the substreams (files) it holds, per
// the format's SubStreamsInfo rules.
func readSubStreamsInfo(h *headerReader, folders []folder) (*subStreamsInfo, error) {
	ssi := &subStreamsInfo{numUnpackStreams: make([]int, len(folders))}
	for i := range ssi.numUnpackStreams {
		ssi.numUnpackStreams[i] = 1
	}

	id, err := h.readID()
	if err != nil {
		return nil, err
	}
	if id == idNumUnpackStream {
		for i := range ssi.numUnpackStreams {
			if ssi.numUnpackStreams[i], err = h.readNumberAsInt(); err != nil {
				return nil, err
			}
		}
		if id, err = h.readID(); err != nil {
			return nil, err
		}
	}

	if id == idSize {
		for i, f := range folders {
			n := ssi.numUnpackStreams[i]
			if n == 0 {
				continue
			}
			var sum uint64
			for j := 0; j < n-1; j++ {
				sz, err := h.readNumber()
				if err != nil {
					return nil, err
				}
				ssi.sizes = append(ssi.sizes, sz)
				sum += sz
			}
			ssi.sizes = append(ssi.sizes, f.unpackSize()-sum)
		}
		if id, err = h.readID(); err != nil {
			return nil, err
		}
	} else {
		for i, f := range folders {
			if ssi.numUnpackStreams[i] == 1 {
				ssi.sizes = append(ssi.sizes, f.unpackSize())
			}
		}
	}

	// Total substreams needing a digest: those in folders with more than
	// one substream, or whose folder-level CRC is absent.
	numDigestsNeeded := 0
	for i, f := range folders {
		n := ssi.numUnpackStreams[i]
		if n != 1 || !f.hasCRC {
			numDigestsNeeded += n
		}
	}

	if id == idCRC {
		defined, err := h.readAllOrBits(numDigestsNeeded)
		if err != nil {
			return nil, err
		}
		digestsRead := make([]uint32, numDigestsNeeded)
		for i, d := range defined {
			if !d {
				continue
			}
			if digestsRead[i], err = h.readUint32LE(); err != nil {
				return nil, err
			}
		}

		ssi.digests = make([]uint32, 0, totalSubStreams(ssi.numUnpackStreams))
		k := 0
		for i, f := range folders {
			n := ssi.numUnpackStreams[i]
			if n == 1 && f.hasCRC {
				ssi.digests = append(ssi.digests, f.crc)
				continue
			}
			for j := 0; j < n; j++ {
				ssi.digests = append(ssi.digests, digestsRead[k])
				k++
			}
		}
		if id, err = h.readID(); err != nil {
			return nil, err
		}
	}

	if id != idEnd {
		return nil, CorruptInputError{Context: fmt.Sprintf("unexpected id 0x%02x in SubStreamsInfo", id)}
	}
	return ssi, nil
}

func totalSubStreams(counts []int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

// readStreamsInfo parses a full StreamsInfo section (PackInfo, UnpackInfo,
// SubStreamsInfo), as used for both MainStreamsInfo and the single-folder
// stream describing an encoded header.
func readStreamsInfo(h *headerReader) (*streamsInfo, error) {
	si := &streamsInfo{}

	id, err := h.readID()
	if err != nil {
		return nil, err
	}
	if id == idPackInfo {
		if si.packInfo, err = readPackInfo(h); err != nil {
			return nil, err
		}
		if id, err = h.readID(); err != nil {
			return nil, err
		}
	}
	if id == idUnpackInfo {
		if si.folders, err = readUnpackInfo(h); err != nil {
			return nil, err
		}
		if id, err = h.readID(); err != nil {
			return nil, err
		}
	}
	if id == idSubStreamsInfo {
		if si.subStreams, err = readSubStreamsInfo(h, si.folders); err != nil {
			return nil, err
		}
		if id, err = h.readID(); err != nil {
			return nil, err
		}
	}
	if id != idEnd {
		return nil, CorruptInputError{Context: fmt.Sprintf("unexpected id 0x%02x in StreamsInfo", id)}
	}
	return si, nil
}

// filetimeEpoch is 1601-01-01 00:00:00 UTC, the origin Windows FILETIME
// values (100 ns intervals) are measured from.
var filetimeEpoch = time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)

func filetimeToTime(ft uint64) time.Time {
	const ticksPerSecond = 10_000_000
	secs := int64(ft/ticksPerSecond) + filetimeEpoch.Unix() //nolint:gosec
	return time.Unix(secs, int64(ft%ticksPerSecond)*100).UTC()
}

// readFilesInfo parses the FilesInfo section into a flat fileEntry list.
// Every property sub-block is length-prefixed, so an unrecognized or
// partially consumed property never desynchronizes the rest of the
// section.
func readFilesInfo(h *headerReader) ([]fileEntry, error) {
	numFiles, err := h.readNumberAsInt()
	if err != nil {
		return nil, err
	}
	files := make([]fileEntry, numFiles)
	for i := range files {
		files[i].hasStream = true
	}

	var emptyStream []bool
	var emptyFile []bool
	var antiItem []bool

	for {
		propType, err := h.readID()
		if err != nil {
			return nil, err
		}
		if propType == idEnd {
			break
		}
		size, err := h.readNumberAsInt()
		if err != nil {
			return nil, err
		}
		raw, err := h.readBytes(size)
		if err != nil {
			return nil, err
		}
		ph := newHeaderReader(bytes.NewReader(raw))

		switch propType {
		case idEmptyStream:
			if emptyStream, err = ph.readBits(numFiles); err != nil {
				return nil, err
			}
			for i, v := range emptyStream {
				files[i].hasStream = !v
			}
		case idEmptyFile:
			numEmpty := countTrue(emptyStream)
			if emptyFile, err = ph.readBits(numEmpty); err != nil {
				return nil, err
			}
		case idAnti:
			numEmpty := countTrue(emptyStream)
			if antiItem, err = ph.readBits(numEmpty); err != nil {
				return nil, err
			}
		case idName:
			external, err := ph.readByte()
			if err != nil {
				return nil, err
			}
			if external != 0 {
				return nil, UnsupportedFeatureError{Feature: "external names"}
			}
			for i := range files {
				if files[i].name, err = readUTF16Name(ph.r); err != nil {
					return nil, err
				}
			}
		case idCTime, idATime, idMTime:
			t, defined, err := readFiletimeVector(ph, numFiles)
			if err != nil {
				return nil, err
			}
			for i, d := range defined {
				if !d {
					continue
				}
				switch propType {
				case idCTime:
					files[i].cTime, files[i].hasCTime = t[i], true
				case idATime:
					files[i].aTime, files[i].hasATime = t[i], true
				case idMTime:
					files[i].mTime, files[i].hasMTime = t[i], true
				}
			}
		case idWinAttributes:
			defined, err := ph.readAllOrBits(numFiles)
			if err != nil {
				return nil, err
			}
			external, err := ph.readByte()
			if err != nil {
				return nil, err
			}
			if external != 0 {
				return nil, UnsupportedFeatureError{Feature: "external attributes"}
			}
			for i, d := range defined {
				if !d {
					continue
				}
				if files[i].attributes, err = ph.readUint32LE(); err != nil {
					return nil, err
				}
				files[i].hasAttrs = true
			}
		case idStartPos:
			return nil, UnsupportedFeatureError{Feature: "kStartPos"}
		case idDummy:
			// padding, already consumed via the length-prefixed raw buffer
		default:
			// Unknown property: the length prefix already let us skip it.
		}
	}

	j := 0
	for i := range files {
		if files[i].hasStream {
			continue
		}
		isEmptyFile := j < len(emptyFile) && emptyFile[j]
		isAnti := j < len(antiItem) && antiItem[j]
		files[i].isEmptyFile = isEmptyFile
		files[i].isAntiItem = isAnti
		files[i].isDirectory = !isEmptyFile && !isAnti
		j++
	}

	return files, nil
}

func countTrue(bits []bool) int {
	n := 0
	for _, b := range bits {
		if b {
			n++
		}
	}
	return n
}

func readFiletimeVector(h *headerReader, n int) ([]time.Time, []bool, error) {
	defined, err := h.readAllOrBits(n)
	if err != nil {
		return nil, nil, err
	}
	external, err := h.readByte()
	if err != nil {
		return nil, nil, err
	}
	if external != 0 {
		return nil, nil, UnsupportedFeatureError{Feature: "external timestamps"}
	}
	times := make([]time.Time, n)
	for i, d := range defined {
		if !d {
			continue
		}
		raw, err := h.readUint64LE()
		if err != nil {
			return nil, nil, err
		}
		times[i] = filetimeToTime(raw)
	}
	return times, defined, nil
}

// parsedHeader is the plain-header grammar's top-level result: the main
// streams-info tree plus the file list, once kArchiveProperties and
// kAdditionalStreamsInfo (unsupported) have been skipped or rejected.
type parsedHeader struct {
	streamsInfo *streamsInfo
	files       []fileEntry
}

// readHeader parses the kHeader grammar: optional archive properties
// (skipped), a rejected kAdditionalStreamsInfo, then MainStreamsInfo and
// FilesInfo.
func readHeader(h *headerReader) (*parsedHeader, error) {
	ph := &parsedHeader{}

	id, err := h.readID()
	if err != nil {
		return nil, err
	}

	if id == idArchiveProperties {
		if err := skipArchiveProperties(h); err != nil {
			return nil, err
		}
		if id, err = h.readID(); err != nil {
			return nil, err
		}
	}

	if id == idAdditionalStreams {
		return nil, UnsupportedFeatureError{Feature: "external streams"}
	}

	if id == idMainStreamsInfo {
		if ph.streamsInfo, err = readStreamsInfo(h); err != nil {
			return nil, err
		}
		if id, err = h.readID(); err != nil {
			return nil, err
		}
	}

	if id == idFilesInfo {
		if ph.files, err = readFilesInfo(h); err != nil {
			return nil, err
		}
		if id, err = h.readID(); err != nil {
			return nil, err
		}
	}

	if id != idEnd {
		return nil, CorruptInputError{Context: fmt.Sprintf("unexpected id 0x%02x in Header", id)}
	}
	return ph, nil
}

func skipArchiveProperties(h *headerReader) error {
	for {
		id, err := h.readID()
		if err != nil {
			return err
		}
		if id == idEnd {
			return nil
		}
		size, err := h.readNumberAsInt()
		if err != nil {
			return err
		}
		if _, err := h.readBytes(size); err != nil {
			return err
		}
	}
}

// readTopLevel reads the byte immediately following the start header and
// dispatches to either a plain kHeader or a kEncodedHeader (whose bytes
// must be decoded through the folder pipeline before being re-parsed as a
// plain header by the caller).
func readTopLevel(r io.Reader) (id byte, h *headerReader, err error) {
	h = newHeaderReader(r)
	id, err = h.readID()
	return id, h, err
}
