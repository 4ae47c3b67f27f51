// Package ioutil supplies the bounded and checksum-verifying reader
// wrappers the 7z decoder pipeline layers around every folder and file
// stream. Bounding reuses bodgit/plumbing's LimitReadCloser so the pipeline
// shares its stream-limiting mechanism with the rest of the 7z ecosystem
// rather than reimplementing io.LimitReader with a Close method bolted on.
package ioutil

import (
	"hash"
	"hash/crc32"
	"io"

	"github.com/bodgit/plumbing"
)

// BoundedReadCloser limits r to exactly n bytes and gives it a Close method,
// wrapping a plain io.Reader with io.NopCloser first when it isn't already
// an io.ReadCloser.
func BoundedReadCloser(r io.Reader, n int64) io.ReadCloser {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	return plumbing.LimitReadCloser(rc, n)
}

// CRC32Reader tees r through a running CRC-32/IEEE checksum so a folder or
// file stream's integrity can be verified once it has been fully consumed.
type CRC32Reader struct {
	io.Reader
	h hash.Hash32
}

// NewCRC32Reader wraps r so every byte read through it also updates a
// CRC-32/IEEE checksum.
func NewCRC32Reader(r io.Reader) *CRC32Reader {
	h := crc32.NewIEEE()
	return &CRC32Reader{Reader: io.TeeReader(r, h), h: h}
}

// Sum32 returns the checksum of everything read so far.
func (c *CRC32Reader) Sum32() uint32 { return c.h.Sum32() }
