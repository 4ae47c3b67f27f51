package lzma

import "io"

// Reader decodes a raw LZMA1 stream, as used by 7z's kLZMA coder: five
// property bytes (lc/lp/pb, then a 4-byte little-endian dictionary size)
// precede the range-coder-framed body. Unlike the legacy .lzma file format
// there is no 8-byte uncompressed-size field; 7z folders carry that size out
// of band, so a Reader is told how many bytes to expect.
type Reader struct {
	dec      *decoder
	win      *window
	unpacked uint64 // bytes still to produce
	eosSeen  bool
}

// NewReader constructs an LZMA1 reader for a 7z kLZMA coder: props is the
// 5-byte coder-properties blob (1 properties byte + 4-byte little-endian
// dictionary size) and unpackedSize is the folder's exact output size for
// this coder.
func NewReader(r io.Reader, props []byte, unpackedSize uint64) (*Reader, error) {
	if len(props) != 5 {
		return nil, CorruptInputError{Context: "lzma coder properties must be 5 bytes"}
	}
	p, err := PropsFromByte(props[0])
	if err != nil {
		return nil, err
	}
	dictSize := uint32(props[1]) | uint32(props[2])<<8 | uint32(props[3])<<16 | uint32(props[4])<<24

	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReaderAdapter{r: r}
	}
	rc, err := newRangeDecoder(br)
	if err != nil {
		return nil, err
	}
	win := newWindow(dictSize)
	return &Reader{
		dec:      newDecoder(rc, win, p),
		win:      win,
		unpacked: unpackedSize,
	}, nil
}

// Read produces the next decompressed bytes. A request larger than the
// dictionary is served in window-sized decode/flush cycles so the sliding
// window never overwrites bytes it has not handed out yet.
func (r *Reader) Read(p []byte) (int, error) {
	if r.unpacked == 0 {
		return 0, io.EOF
	}
	want := len(p)
	if uint64(want) > r.unpacked {
		want = int(r.unpacked)
	}

	n := 0
	for n < want {
		if r.eosSeen {
			return n, CorruptInputError{Context: "lzma stream ended before its declared size"}
		}
		r.win.setLimit(want - n)
		eos, err := r.dec.decode()
		if err != nil {
			return n, err
		}
		got := r.win.flush(p[n:want], 0)
		n += got
		r.unpacked -= uint64(got)
		if eos {
			r.eosSeen = true
		} else if got == 0 {
			return n, CorruptInputError{Context: "lzma decoder produced no output before end of requested size"}
		}
	}
	return n, nil
}

// byteReaderAdapter upgrades a plain io.Reader to io.ByteReader so the range
// decoder always has ReadByte available, without requiring every caller to
// pass a *bufio.Reader.
type byteReaderAdapter struct {
	r   io.Reader
	buf [1]byte
}

func (a *byteReaderAdapter) ReadByte() (byte, error) {
	if _, err := io.ReadFull(a.r, a.buf[:]); err != nil {
		return 0, err
	}
	return a.buf[0], nil
}
