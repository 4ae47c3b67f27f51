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
	"strings"
	"time"
)

// coder is one transform in a folder's chain: its method id, how many
// input/output streams it exposes, and its opaque properties blob.
type coder struct {
	id         []byte
	numIn      int
	numOut     int
	properties []byte
}

// bindPair wires one coder's output stream to another coder's input stream
// within the same folder.
type bindPair struct {
	in, out int
}

// folder is a linear chain of coders producing one decoded byte stream,
// which the substream info may split across several logical files.
type folder struct {
	coders        []coder
	bindPairs     []bindPair
	packedStreams []int // coder in-stream indices fed directly from the packed area
	unpackSizes   []uint64
	crc           uint32
	hasCRC        bool
}

func (f *folder) totalIn() int {
	n := 0
	for _, c := range f.coders {
		n += c.numIn
	}
	return n
}

func (f *folder) totalOut() int {
	n := 0
	for _, c := range f.coders {
		n += c.numOut
	}
	return n
}

func (f *folder) findBindPairForIn(i int) *bindPair {
	for idx := range f.bindPairs {
		if f.bindPairs[idx].in == i {
			return &f.bindPairs[idx]
		}
	}
	return nil
}

func (f *folder) findBindPairForOut(i int) *bindPair {
	for idx := range f.bindPairs {
		if f.bindPairs[idx].out == i {
			return &f.bindPairs[idx]
		}
	}
	return nil
}

// unpackSize is the folder's logical output size: the size of whichever
// output stream is not itself consumed by a bind pair, i.e. the chain's
// sink.
func (f *folder) unpackSize() uint64 {
	for i := len(f.unpackSizes) - 1; i >= 0; i-- {
		if f.findBindPairForOut(i) == nil {
			return f.unpackSizes[i]
		}
	}
	if len(f.unpackSizes) == 0 {
		return 0
	}
	return f.unpackSizes[len(f.unpackSizes)-1]
}

// packInfo is the PackInfo header section: where the packed-streams region
// starts and how large each packed stream within it is.
type packInfo struct {
	position uint64
	sizes    []uint64
	digests  []uint32
}

// subStreamsInfo refines a folder's single logical output into the
// per-file substreams it's split into.
type subStreamsInfo struct {
	numUnpackStreams []int
	sizes            []uint64
	digests          []uint32 // parallel to the flattened (folder, substream) sequence
}

// streamsInfo is the MainStreamsInfo/AdditionalStreamsInfo header section:
// the packed area layout, the folder/coder graph, and substream info.
type streamsInfo struct {
	packInfo   *packInfo
	folders    []folder
	subStreams *subStreamsInfo
}

// fileEntry is one logical file's metadata, decoded from FilesInfo.
type fileEntry struct {
	name        string
	hasStream   bool
	isEmptyFile bool
	isDirectory bool
	isAntiItem  bool
	size        uint64
	hasCRC      bool
	crc         uint32
	attributes  uint32
	hasAttrs    bool
	cTime       time.Time
	aTime       time.Time
	mTime       time.Time
	hasCTime    bool
	hasATime    bool
	hasMTime    bool
}

// streamMap is the derived folder/file assignment table, built once after
// FilesInfo is fully parsed.
type streamMap struct {
	folderFirstPackStreamIndex []int
	packStreamOffsets          []uint64
	folderFirstFileIndex       []int
	fileFolderIndex            []int // -1 for entries with no stream
}

// buildStreamMap derives the streamMap from a fully parsed streamsInfo and
// file list: files with a stream are packed, in file
// order, into folders in folder order, each folder consuming exactly its
// declared substream count.
func buildStreamMap(si *streamsInfo, files []fileEntry) (streamMap, error) {
	sm := streamMap{
		fileFolderIndex: make([]int, len(files)),
	}
	for i := range sm.fileFolderIndex {
		sm.fileFolderIndex[i] = -1
	}
	if si == nil {
		return sm, nil
	}

	sm.folderFirstPackStreamIndex = make([]int, len(si.folders))
	packIdx := 0
	for i, f := range si.folders {
		sm.folderFirstPackStreamIndex[i] = packIdx
		packIdx += len(f.packedStreams)
	}

	if si.packInfo != nil {
		sm.packStreamOffsets = make([]uint64, len(si.packInfo.sizes))
		var off uint64
		for i, sz := range si.packInfo.sizes {
			sm.packStreamOffsets[i] = off
			off += sz
		}
	}

	sm.folderFirstFileIndex = make([]int, len(si.folders))
	for i := range sm.folderFirstFileIndex {
		sm.folderFirstFileIndex[i] = -1
	}

	folderIdx := 0
	remaining := substreamCount(si, 0)
	for fi := range files {
		if !files[fi].hasStream {
			continue
		}
		for folderIdx < len(si.folders) && remaining == 0 {
			folderIdx++
			if folderIdx < len(si.folders) {
				remaining = substreamCount(si, folderIdx)
			}
		}
		if folderIdx >= len(si.folders) {
			return streamMap{}, CorruptInputError{Context: "more file streams than folder substreams can account for"}
		}
		if sm.folderFirstFileIndex[folderIdx] == -1 {
			sm.folderFirstFileIndex[folderIdx] = fi
		}
		sm.fileFolderIndex[fi] = folderIdx
		remaining--
	}
	for folderIdx < len(si.folders)-1 || (folderIdx < len(si.folders) && remaining != 0) {
		if remaining != 0 {
			return streamMap{}, CorruptInputError{Context: "folder substreams exceed file streams available"}
		}
		folderIdx++
		if folderIdx < len(si.folders) {
			remaining = substreamCount(si, folderIdx)
		}
	}

	return sm, nil
}

// substreamCount returns how many logical files folder i contains.
func substreamCount(si *streamsInfo, i int) int {
	if si.subStreams != nil && len(si.subStreams.numUnpackStreams) > i {
		return si.subStreams.numUnpackStreams[i]
	}
	return 1
}

// toSlashName normalizes a stored 7z name (which may use backslashes on
// archives produced by Windows tools) into the slash-separated form the
// public File/fs.FS surface exposes.
func toSlashName(name string) string {
	return strings.ReplaceAll(name, `\`, "/")
}
