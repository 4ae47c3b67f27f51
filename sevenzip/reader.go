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

// Package sevenzip provides read access to 7z archives: signature and
// header parsing, folder/coder graph reconstruction, and a streaming,
// CRC-verified decoder pipeline built on this module's own LZMA/LZMA2
// decoder.
package sevenzip

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	iofs "io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go7z-dev/go7z/internal/pool"
	"github.com/spf13/afero"
	"go4.org/readerutil"
)

// A Reader serves the contents of a 7z archive opened from an
// io.ReaderAt. Use NewReader or one of the OpenReader family to construct
// one.
type Reader struct {
	ra    io.ReaderAt
	start int64 // absolute offset of the packed-streams region
	end   int64 // absolute offset of the (possibly encoded) next header
	si    *streamsInfo
	files []fileEntry
	sm    streamMap

	password   string
	memLimitKB uint64

	File []*File

	pool []*pool.Pool

	fileListOnce sync.Once
	fileList     []fileListEntry
}

// A ReadCloser is a Reader that owns the underlying volume file(s) and must
// be closed when no longer needed.
type ReadCloser struct {
	Reader
	files []afero.File
}

// File is a single logical entry in a 7z archive: its metadata (embedded
// FileHeader) plus enough state to Open a fresh decompressed reader over
// its contents.
type File struct {
	FileHeader
	r      *Reader
	folder int // -1 if the entry has no stream
	offset int64
}

// FileHeader describes one archive entry's metadata, independent of how
// its bytes (if any) are stored.
type FileHeader struct {
	Name             string
	Created          time.Time
	Accessed         time.Time
	Modified         time.Time
	Attributes       uint32
	HasCRC           bool
	CRC32            uint32
	UncompressedSize uint64
	IsDir            bool
	IsAnti           bool

	isEmptyStream bool
}

// FileInfo returns an fs.FileInfo view of the FileHeader.
func (h *FileHeader) FileInfo() iofs.FileInfo { return headerFileInfo{h} }

type headerFileInfo struct{ fh *FileHeader }

func (fi headerFileInfo) Name() string       { return path.Base(fi.fh.Name) }
func (fi headerFileInfo) Size() int64        { return int64(fi.fh.UncompressedSize) } //nolint:gosec
func (fi headerFileInfo) IsDir() bool        { return fi.fh.IsDir }
func (fi headerFileInfo) ModTime() time.Time { return fi.fh.Modified.UTC() }
func (fi headerFileInfo) Sys() interface{}   { return fi.fh }

func (fi headerFileInfo) Mode() iofs.FileMode {
	if fi.fh.IsDir {
		return iofs.ModeDir | 0o555
	}
	return 0o444
}
func (fi headerFileInfo) Type() iofs.FileMode          { return fi.Mode().Type() }
func (fi headerFileInfo) Info() (iofs.FileInfo, error) { return fi, nil }

// SetMemoryLimit caps the working-set size (in KB) that LZMA/LZMA2 folder
// decoders built by this Reader may allocate; opening a folder that would
// exceed it fails with MemoryLimitError instead of allocating. Zero (the
// default) disables the check.
func (z *Reader) SetMemoryLimit(kb uint64) { z.memLimitKB = kb }

// findSignature scans r for candidate signature offsets: the common case
// is offset 0, returned immediately, but a prepended stub (e.g. a
// self-extracting .exe) is tolerated by scanning forward.
func findSignature(r io.ReaderAt, size int64) ([]int64, error) {
	const chunkSize = 4096
	limit := int64(searchLimit)
	if size < limit {
		limit = size
	}

	chunk := make([]byte, chunkSize+len(signature))
	var offsets []int64
	for offset := int64(0); offset < limit; offset += chunkSize {
		n, err := r.ReadAt(chunk, offset)
		for i := 0; ; {
			idx := bytes.Index(chunk[i:n], signature[:])
			if idx < 0 {
				break
			}
			offsets = append(offsets, offset+int64(i+idx))
			if offsets[0] == 0 {
				return offsets, nil
			}
			i += idx + 1
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	return offsets, nil
}

// NewReader returns a Reader for r, which must have exactly size bytes.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	return NewReaderWithPassword(r, size, "")
}

// NewReaderWithPassword is NewReader, using password to decrypt any
// AES-256-SHA256-encrypted folders the archive contains.
func NewReaderWithPassword(r io.ReaderAt, size int64, password string) (*Reader, error) {
	if size < 0 {
		return nil, CorruptInputError{Context: "negative archive size"}
	}
	z := &Reader{password: password}
	if err := z.init(r, size); err != nil {
		return nil, err
	}
	return z, nil
}

// init performs the full parse: signature discovery, start-header CRC
// verification (with tail-scan fallback), next-header parsing (including
// decoding an encoded header), file-list construction and stream-map
// derivation.
//
//nolint:cyclop,funlen,gocognit
func (z *Reader) init(r io.ReaderAt, size int64) error {
	offsets, err := findSignature(r, size)
	if err != nil {
		return err
	}
	if len(offsets) == 0 {
		return BadSignatureError{}
	}

	// findSignature only returns more than one candidate when the signature
	// at offset 0 is absent, i.e. when it is already scanning a tail for a
	// fallback match; in that mode prefer the first candidate that yields a
	// non-empty file list over one that merely parses, following the
	// "first non-empty result wins" recovery heuristic. With a single candidate
	// (the common case) a structurally valid, empty archive is accepted.
	preferNonEmpty := len(offsets) > 1

	var (
		parsed  bool
		lastErr error
	)
	for _, off := range offsets {
		ok, err := z.tryParseAt(r, size, off, preferNonEmpty)
		if ok {
			parsed = true
			break
		}
		lastErr = err
	}
	if !parsed {
		if lastErr != nil {
			return lastErr
		}
		return BadSignatureError{}
	}
	return nil
}

// tryParseAt attempts to parse a complete archive starting at a candidate
// signature offset. It validates the signature header and start header,
// falling back to a backward tail scan for the next header when the start
// header's CRC field is zeroed out.
func (z *Reader) tryParseAt(r io.ReaderAt, size, off int64, preferNonEmpty bool) (bool, error) {
	sr := io.NewSectionReader(r, off, size-off)

	var sig [6]byte
	if _, err := io.ReadFull(sr, sig[:]); err != nil {
		return false, err
	}
	if sig != signature {
		return false, BadSignatureError{}
	}
	var verBuf [2]byte
	if _, err := io.ReadFull(sr, verBuf[:]); err != nil {
		return false, err
	}
	if verBuf[0] != 0 {
		return false, UnsupportedVersionError{Major: verBuf[0], Minor: verBuf[1]}
	}
	var crcBuf [4]byte
	if _, err := io.ReadFull(sr, crcBuf[:]); err != nil {
		return false, err
	}
	headerCRC := binary.LittleEndian.Uint32(crcBuf[:])

	var start struct {
		Offset uint64
		Size   uint64
		CRC    uint32
	}
	startBuf := make([]byte, startHeaderSize)
	if _, err := io.ReadFull(sr, startBuf); err != nil {
		return false, err
	}
	start.Offset = binary.LittleEndian.Uint64(startBuf[0:8])
	start.Size = binary.LittleEndian.Uint64(startBuf[8:16])
	start.CRC = binary.LittleEndian.Uint32(startBuf[16:20])

	allZero := true
	for _, b := range startBuf {
		if b != 0 {
			allZero = false
			break
		}
	}

	if crc32.Checksum(startBuf, crc32.IEEETable) != headerCRC {
		if headerCRC != 0 || allZero {
			return false, ChecksumError{Kind: "start header"}
		}
		// Start-header CRC field is zeroed but the 20 bytes aren't: the
		// start header can't be trusted, so recover the next-header origin
		// by scanning the archive tail.
		return z.tailScan(r, size, off)
	}

	return z.parseNextHeader(r, off, start.Offset, start.Size, start.CRC, preferNonEmpty)
}

// tailScan scans backward from end-of-file (bounded by searchLimit) for a
// byte that could begin a next header (kHeader or kEncodedHeader) and
// accepts the first candidate that parses into a non-empty file list. This
// is deliberately best-effort: with several candidate bytes in the tail the
// earliest-from-the-end non-empty parse wins.
func (z *Reader) tailScan(r io.ReaderAt, size, off int64) (bool, error) {
	scanStart := off + 32
	if min := size - searchLimit; min > scanStart {
		scanStart = min
	}
	if scanStart >= size {
		return false, CorruptInputError{Context: "archive too small to recover a header from"}
	}

	buf := make([]byte, size-scanStart)
	if _, err := io.ReadFull(io.NewSectionReader(r, scanStart, size-scanStart), buf); err != nil {
		return false, err
	}

	var lastErr error
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i] != idHeader && buf[i] != idEncodedHeader {
			continue
		}
		abs := scanStart + int64(i)
		ok, err := z.parseNextHeader(r, off, uint64(abs-(off+32)), uint64(size-abs), 0, true) //nolint:gosec
		if ok {
			return true, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return false, lastErr
	}
	return false, CorruptInputError{Context: "no recoverable header found in archive tail"}
}

// parseNextHeader reads and parses the next header at nextOffset (relative
// to the end of the signature header), verifying nextCRC over its bytes when
// non-zero, then builds the file list and stream map. requireNonEmpty makes
// an empty file list a soft failure so scan loops can move to the next
// candidate.
func (z *Reader) parseNextHeader(r io.ReaderAt, off int64, nextOffset, nextSize uint64, nextCRC uint32, requireNonEmpty bool) (bool, error) {
	z.start = off + 32
	z.end = z.start + int64(nextOffset) //nolint:gosec
	z.ra = r

	h := crc32.NewIEEE()
	tra := teeReaderAt{r: r, h: h}
	headerRegion := io.NewSectionReader(&tra, z.end, int64(nextSize)) //nolint:gosec
	br := bufio.NewReader(headerRegion)

	id, hr, err := readTopLevel(br)
	if err != nil {
		return false, err
	}

	var ph *parsedHeader
	switch id {
	case idHeader:
		if ph, err = readHeader(hr); err != nil {
			return false, err
		}
	case idEncodedHeader:
		encSI, err := readStreamsInfo(hr)
		if err != nil {
			return false, err
		}
		decoded, err := decodeEncodedHeader(r, z.start+packedRegionOffset(encSI, 0), encSI, z.password)
		if err != nil {
			return false, err
		}
		ph2, err := readHeader(newHeaderReader(bytes.NewReader(decoded)))
		if err != nil {
			return false, err
		}
		ph = ph2
	default:
		return false, CorruptInputError{Context: fmt.Sprintf("unexpected top-level id 0x%02x", id)}
	}

	if _, err := io.Copy(io.Discard, br); err != nil {
		return false, err
	}
	if nextCRC != 0 && h.Sum32() != nextCRC {
		return false, ChecksumError{Kind: "next header"}
	}

	if requireNonEmpty && len(ph.files) == 0 {
		return false, nil
	}

	z.si = ph.streamsInfo
	z.files = ph.files

	sm, err := buildStreamMap(z.si, z.files)
	if err != nil {
		return false, err
	}
	z.sm = sm

	if err := z.buildFiles(); err != nil {
		return false, err
	}

	return true, nil
}

// packedRegionOffset returns the byte offset, relative to the start of the
// packed-streams region, where folder i's packed data begins.
func packedRegionOffset(si *streamsInfo, i int) int64 {
	var pos uint64
	if si.packInfo != nil {
		pos = si.packInfo.position
	}
	var prefix uint64
	for j := 0; j < i; j++ {
		for k := 0; k < len(si.folders[j].packedStreams); k++ {
			prefix += si.packInfo.sizes[folderPackBase(si, j)+k]
		}
	}
	return int64(pos + prefix) //nolint:gosec
}

func folderPackBase(si *streamsInfo, folderIdx int) int {
	base := 0
	for i := 0; i < folderIdx; i++ {
		base += len(si.folders[i].packedStreams)
	}
	return base
}

// buildFiles materializes the public File slice from the parsed fileEntry
// list, assigning each stream-bearing entry its folder index, per-folder
// byte offset, and the CRC that SubStreamsInfo records for its substream
// (for a folder with a single substream and a folder-level CRC, that CRC).
// Without SubStreamsInfo no entry gets a CRC.
func (z *Reader) buildFiles() error {
	z.File = make([]*File, len(z.files))

	substreamSizes := map[int][]uint64{}
	substreamCRCs := map[int][]uint32{}
	substreamHasCRC := map[int][]bool{}
	if z.si != nil && z.si.subStreams != nil {
		idx := 0
		for fi, n := range z.si.subStreams.numUnpackStreams {
			sizes := make([]uint64, n)
			crcs := make([]uint32, n)
			has := make([]bool, n)
			for j := 0; j < n; j++ {
				if idx < len(z.si.subStreams.sizes) {
					sizes[j] = z.si.subStreams.sizes[idx]
				}
				if idx < len(z.si.subStreams.digests) {
					crcs[j] = z.si.subStreams.digests[idx]
					has[j] = true
				}
				idx++
			}
			substreamSizes[fi] = sizes
			substreamCRCs[fi] = crcs
			substreamHasCRC[fi] = has
		}
	}

	perFolderNext := map[int]int{}
	perFolderOffset := map[int]int64{}

	for i := range z.files {
		fe := z.files[i]
		f := &File{r: z, folder: -1}
		f.Name = toSlashName(fe.name)
		f.Attributes = fe.attributes
		f.IsDir = fe.isDirectory
		f.IsAnti = fe.isAntiItem
		if fe.hasCTime {
			f.Created = fe.cTime
		}
		if fe.hasATime {
			f.Accessed = fe.aTime
		}
		if fe.hasMTime {
			f.Modified = fe.mTime
		}
		f.isEmptyStream = !fe.hasStream

		if fe.hasStream {
			folder := z.sm.fileFolderIndex[i]
			if folder < 0 {
				return CorruptInputError{Context: "file stream has no folder assignment"}
			}
			f.folder = folder
			sub := perFolderNext[folder]
			perFolderNext[folder]++

			sizes := substreamSizes[folder]
			if sub < len(sizes) {
				f.UncompressedSize = sizes[sub]
			} else if len(z.si.folders) > folder {
				f.UncompressedSize = z.si.folders[folder].unpackSize()
			}

			if has := substreamHasCRC[folder]; sub < len(has) && has[sub] {
				f.CRC32 = substreamCRCs[folder][sub]
				f.HasCRC = true
			}

			f.offset = perFolderOffset[folder]
			perFolderOffset[folder] += int64(f.UncompressedSize) //nolint:gosec
		}

		z.File[i] = f
	}

	if z.si != nil {
		z.pool = make([]*pool.Pool, len(z.si.folders))
		for i := range z.pool {
			p, err := pool.New(2)
			if err != nil {
				return err
			}
			z.pool[i] = p
		}
	}

	return nil
}

// folderStream opens a fresh decoder pipeline over folder i, honoring the
// configured memory limit and password.
func (z *Reader) folderStream(i int) (io.ReadCloser, error) {
	mem := memoryLimit{limitKB: z.memLimitKB}
	abs := z.start + packedRegionOffset(z.si, i)
	return folderReader(z.ra, abs, z.si, i, z.password, mem)
}

// Open returns a fresh, independent reader over f's decompressed contents.
// Several Files sharing the same folder may each be opened; a small pool
// caches in-flight folder decoders so sequential opens of files from the
// same solid folder don't each restart decoding the folder from byte zero.
func (f *File) Open() (io.ReadCloser, error) {
	if f.isEmptyStream || f.FileHeader.IsDir {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	var rc io.ReadCloser
	if cached, ok := f.r.pool[f.folder].Get(f.offset); ok {
		rc = cached
	} else {
		var err error
		rc, err = f.r.folderStream(f.folder)
		if err != nil {
			return nil, err
		}
		if _, err := io.CopyN(io.Discard, rc, f.offset); err != nil {
			return nil, fmt.Errorf("sevenzip: error seeking to file offset: %w", err)
		}
	}

	return &fileReader{
		r:      folderReaderForFile(rc, f.UncompressedSize, f.CRC32, f.HasCRC),
		rc:     rc,
		f:      f,
		remain: int64(f.UncompressedSize), //nolint:gosec
	}, nil
}

// ForEach visits every entry in archive order, opening its decompressed
// stream and passing both to fn. Entries without a stream (directories,
// empty files) get an empty reader. Iteration stops at the first error or
// when fn returns false.
func (z *Reader) ForEach(fn func(f *File, r io.Reader) (bool, error)) error {
	for _, f := range z.File {
		rc, err := f.Open()
		if err != nil {
			return err
		}
		cont, err := fn(f, rc)
		cerr := rc.Close()
		if err != nil {
			return err
		}
		if cerr != nil {
			return cerr
		}
		if !cont {
			return nil
		}
	}
	return nil
}

type fileReader struct {
	r      io.Reader
	rc     io.ReadCloser
	f      *File
	remain int64
}

func (fr *fileReader) Read(p []byte) (int, error) {
	if fr.remain <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > fr.remain {
		p = p[:fr.remain]
	}
	n, err := fr.r.Read(p)
	fr.remain -= int64(n)
	if errors.Is(err, io.EOF) && fr.remain > 0 {
		// The pipeline drained before producing the entry's declared size;
		// surfacing EOF here would let a truncated pack region masquerade
		// as a successful read.
		return n, CorruptInputError{Context: "decoded stream ended before the entry's declared size"}
	}
	return n, err
}

// Close parks the folder stream back in the pool keyed by how far it has
// been consumed, so the next file opened from the same solid folder can
// resume it instead of decoding the folder from byte zero again.
func (fr *fileReader) Close() error {
	f := fr.f
	f.r.pool[f.folder].Put(f.offset+int64(f.UncompressedSize)-fr.remain, fr.rc) //nolint:gosec
	return nil
}

// teeReaderAt tees every ReadAt through h, used so the next-header CRC
// check can be computed incrementally as bytes are first
// read off of the underlying source, the way bodgit/sevenzip's
// plumbing.TeeReaderAt does.
type teeReaderAt struct {
	r io.ReaderAt
	h interface{ Write([]byte) (int, error) }
}

func (t *teeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := t.r.ReadAt(p, off)
	if n > 0 {
		_, _ = t.h.Write(p[:n])
	}
	return n, err
}

// openFsFile wraps afero/os file handles for OpenReader's multi-volume
// support.
func openFsFile(fsys afero.Fs, name string) (io.ReaderAt, int64, []afero.File, error) {
	f, err := fsys.Open(filepath.Clean(name))
	if err != nil {
		return nil, 0, nil, FileOpenError{Name: name, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, nil, FileOpenError{Name: name, Err: err}
	}

	var reader io.ReaderAt = f
	size := info.Size()
	files := []afero.File{f}

	if ext := filepath.Ext(name); ext == ".001" {
		sr := []readerutil.SizeReaderAt{io.NewSectionReader(f, 0, size)}
		for i := 2; ; i++ {
			vol := fmt.Sprintf("%s.%03d", strings.TrimSuffix(name, ext), i)
			vf, err := fsys.Open(vol)
			if err != nil {
				if errors.Is(err, iofs.ErrNotExist) {
					break
				}
				for _, of := range files {
					_ = of.Close()
				}
				return nil, 0, nil, FileOpenError{Name: vol, Err: err}
			}
			files = append(files, vf)
			vinfo, err := vf.Stat()
			if err != nil {
				for _, of := range files {
					_ = of.Close()
				}
				return nil, 0, nil, FileOpenError{Name: vol, Err: err}
			}
			sr = append(sr, io.NewSectionReader(vf, 0, vinfo.Size()))
		}
		mr := readerutil.NewMultiReaderAt(sr...)
		reader, size = mr, mr.Size()
	}

	return reader, size, files, nil
}

// OpenReader opens the 7z archive at name and returns a ReadCloser. A
// ".001"-suffixed name is treated as the first volume of a sequentially
// numbered split archive, with each following volume opened automatically.
func OpenReader(name string) (*ReadCloser, error) {
	return OpenReaderWithPassword(name, "")
}

// OpenReaderWithPassword is OpenReader, using password to decrypt any
// AES-256-SHA256-encrypted folders.
func OpenReaderWithPassword(name, password string) (*ReadCloser, error) {
	ra, size, files, err := openFsFile(afero.NewOsFs(), name)
	if err != nil {
		return nil, err
	}
	rc := &ReadCloser{files: files}
	rc.password = password
	if err := rc.init(ra, size); err != nil {
		for _, f := range files {
			_ = f.Close()
		}
		return nil, err
	}
	return rc, nil
}

// Volumes returns the names of every volume file opened as part of this
// archive.
func (rc *ReadCloser) Volumes() []string {
	names := make([]string, len(rc.files))
	for i, f := range rc.files {
		names[i] = f.Name()
	}
	return names
}

// Close closes every volume file backing this archive.
func (rc *ReadCloser) Close() error {
	var errs []error
	for _, f := range rc.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range rc.pool {
		if p != nil {
			_ = p.Close()
		}
	}
	return errors.Join(errs...)
}

// --- io/fs support ---

type fileListEntry struct {
	name  string
	file  *File
	isDir bool
	isDup bool
}

func (e *fileListEntry) stat() (iofsFileInfoDirEntry, error) {
	if e.isDup {
		return nil, fmt.Errorf("sevenzip: %s: duplicate entries in archive", e.name)
	}
	if !e.isDir {
		return headerFileInfo{&e.file.FileHeader}, nil
	}
	return e, nil
}

type iofsFileInfoDirEntry interface {
	iofs.FileInfo
	iofs.DirEntry
}

func (e *fileListEntry) Name() string              { _, elem := splitPath(e.name); return elem }
func (e *fileListEntry) Size() int64                { return 0 }
func (e *fileListEntry) Mode() iofs.FileMode        { return iofs.ModeDir | 0o555 }
func (e *fileListEntry) Type() iofs.FileMode        { return iofs.ModeDir }
func (e *fileListEntry) IsDir() bool                { return true }
func (e *fileListEntry) Sys() interface{}           { return nil }
func (e *fileListEntry) Info() (iofs.FileInfo, error) { return e, nil }
func (e *fileListEntry) ModTime() time.Time {
	if e.file == nil {
		return time.Time{}
	}
	return e.file.Modified.UTC()
}

func splitPath(name string) (dir, elem string) {
	name = strings.TrimSuffix(name, "/")
	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		return ".", name
	}
	return name[:i], name[i+1:]
}

func toValidName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	p := strings.TrimPrefix(path.Clean(name), "/")
	for strings.HasPrefix(p, "../") {
		p = p[len("../"):]
	}
	return p
}

func (z *Reader) initFileList() {
	z.fileListOnce.Do(func() {
		known := make(map[string]int)
		dirSet := map[string]struct{}{}

		for _, f := range z.File {
			name := toValidName(f.Name)
			if name == "" {
				continue
			}
			isDir := f.IsDir
			if idx, ok := known[name]; ok {
				z.fileList[idx].isDup = true
				continue
			}
			for dir := path.Dir(name); dir != "."; dir = path.Dir(dir) {
				dirSet[dir] = struct{}{}
			}
			idx := len(z.fileList)
			z.fileList = append(z.fileList, fileListEntry{name: name, file: f, isDir: isDir})
			known[name] = idx
		}
		for dir := range dirSet {
			if _, ok := known[dir]; !ok {
				idx := len(z.fileList)
				z.fileList = append(z.fileList, fileListEntry{name: dir, isDir: true})
				known[dir] = idx
			}
		}
		sort.Slice(z.fileList, func(i, j int) bool {
			id, ie := splitPath(z.fileList[i].name)
			jd, je := splitPath(z.fileList[j].name)
			return id < jd || (id == jd && ie < je)
		})
	})
}

// Open opens the named file using fs.FS path semantics (slash-separated,
// no leading / or ../ elements).
func (z *Reader) Open(name string) (iofs.File, error) {
	z.initFileList()
	if !iofs.ValidPath(name) {
		return nil, &iofs.PathError{Op: "open", Path: name, Err: iofs.ErrInvalid}
	}

	e := z.openLookup(name)
	if e == nil {
		return nil, &iofs.PathError{Op: "open", Path: name, Err: iofs.ErrNotExist}
	}
	if e.isDir {
		return &openDir{e: e, entries: z.openReadDir(name)}, nil
	}
	rc, err := e.file.Open()
	if err != nil {
		return nil, err
	}
	return &fsFile{ReadCloser: rc, fh: &e.file.FileHeader}, nil
}

type fsFile struct {
	io.ReadCloser
	fh *FileHeader
}

func (f *fsFile) Stat() (iofs.FileInfo, error) { return headerFileInfo{f.fh}, nil }

func (z *Reader) openLookup(name string) *fileListEntry {
	if name == "." {
		return &fileListEntry{name: "./", isDir: true}
	}
	dir, elem := splitPath(name)
	files := z.fileList
	i := sort.Search(len(files), func(i int) bool {
		id, ie := splitPath(files[i].name)
		return id > dir || (id == dir && ie >= elem)
	})
	if i < len(files) {
		fname := files[i].name
		if fname == name || (len(fname) == len(name)+1 && strings.HasPrefix(fname, name) && fname[len(name)] == '/') {
			return &files[i]
		}
	}
	return nil
}

func (z *Reader) openReadDir(dir string) []fileListEntry {
	files := z.fileList
	i := sort.Search(len(files), func(i int) bool { d, _ := splitPath(files[i].name); return d >= dir })
	j := sort.Search(len(files), func(j int) bool { d, _ := splitPath(files[j].name); return d > dir })
	return files[i:j]
}

type openDir struct {
	e       *fileListEntry
	entries []fileListEntry
	offset  int
}

func (d *openDir) Close() error                { return nil }
func (d *openDir) Stat() (iofs.FileInfo, error) { return d.e.stat() }
func (d *openDir) Read([]byte) (int, error) {
	return 0, &iofs.PathError{Op: "read", Path: d.e.name, Err: errIsDirectory}
}

var errIsDirectory = errors.New("is a directory")

func (d *openDir) ReadDir(count int) ([]iofs.DirEntry, error) {
	n := len(d.entries) - d.offset
	if count > 0 && n > count {
		n = count
	}
	if n == 0 {
		if count <= 0 {
			return nil, nil
		}
		return nil, io.EOF
	}
	out := make([]iofs.DirEntry, n)
	for i := range out {
		s, err := d.entries[d.offset+i].stat()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	d.offset += n
	return out, nil
}
