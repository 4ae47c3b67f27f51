package lzma

import (
	"encoding/binary"
	"io"
)

// Reader2 decodes an LZMA2 stream, as used by 7z's kLZMA2 coder and by the
// .xz container. LZMA2 frames its payload into chunks, each either a raw
// copy or an LZMA1 packet stream with its own compressed/uncompressed size
// and an optional properties/state/dictionary reset, so a single LZMA2
// stream can restart its probability model without losing dictionary
// history.
type Reader2 struct {
	src io.Reader
	win *window
	dec *decoder

	haveDec bool // whether dec has ever been constructed (props known)

	pending  []byte
	pendOff  int
	finished bool
}

// NewReader2 constructs an LZMA2 reader for a 7z kLZMA2 coder. props is the
// single dictionary-size-encoding byte 7z stores as the coder's properties.
func NewReader2(r io.Reader, props []byte) (*Reader2, error) {
	if len(props) != 1 {
		return nil, CorruptInputError{Context: "lzma2 coder properties must be 1 byte"}
	}
	dictSize, err := lzma2DictSize(props[0])
	if err != nil {
		return nil, err
	}
	return &Reader2{
		src: r,
		win: newWindow(dictSize),
	}, nil
}

// lzma2DictSize decodes the single LZMA2 dictionary-size byte: bit 6 must be
// clear, and the low 6 bits encode size = (2 | (bits & 1)) << (bits/2 + 11),
// with the special case 40 meaning the maximum 0xFFFFFFFF dictionary.
func lzma2DictSize(b byte) (uint32, error) {
	if b > 40 {
		return 0, CorruptInputError{Context: "lzma2 dictionary size byte out of range"}
	}
	if b == 40 {
		return 0xFFFFFFFF, nil
	}
	bits := uint32(b)
	size := (2 | (bits & 1)) << (bits/2 + 11)
	return size, nil
}

const (
	lzma2CtrlEnd              = 0x00
	lzma2CtrlUncompressedDict = 0x01
	lzma2CtrlUncompressed     = 0x02
	lzma2CtrlLZMAMin          = 0x80
)

func (r *Reader2) Read(p []byte) (int, error) {
	for {
		if r.pendOff < len(r.pending) {
			n := copy(p, r.pending[r.pendOff:])
			r.pendOff += n
			if r.pendOff == len(r.pending) {
				r.pending = nil
				r.pendOff = 0
			}
			return n, nil
		}
		if r.finished {
			return 0, io.EOF
		}
		if err := r.decodeChunk(); err != nil {
			return 0, err
		}
	}
}

// decodeChunk consumes exactly one LZMA2 chunk header, decodes its payload
// into the window and stages the produced bytes in r.pending.
func (r *Reader2) decodeChunk() error {
	ctrl, err := r.readByte()
	if err != nil {
		return err
	}
	if ctrl == lzma2CtrlEnd {
		r.finished = true
		return nil
	}

	if ctrl < lzma2CtrlLZMAMin {
		if ctrl != lzma2CtrlUncompressedDict && ctrl != lzma2CtrlUncompressed {
			return CorruptInputError{Context: "invalid lzma2 control byte"}
		}
		if ctrl == lzma2CtrlUncompressedDict {
			r.win.reset()
		}
		size, err := r.readBE16()
		if err != nil {
			return err
		}
		n := int(size) + 1

		// Chunk sizes are independent of the dictionary size, so copy in
		// window-sized pieces with interleaved flushes.
		buf := make([]byte, n)
		off := 0
		for off < n {
			r.win.setLimit(n - off)
			if _, err := r.win.copyUncompressed(r.src, n-off); err != nil {
				return err
			}
			off += r.win.flush(buf, off)
		}
		r.pending = buf
		r.pendOff = 0
		return nil
	}

	unpackedHigh := uint32(ctrl&0x1F) << 16
	sizeBytes, err := r.readBE16()
	if err != nil {
		return err
	}
	unpackedSize := int(unpackedHigh|uint32(sizeBytes)) + 1

	compressedBytes, err := r.readBE16()
	if err != nil {
		return err
	}
	compressedSize := int(compressedBytes) + 1

	resetKind := (ctrl >> 5) & 0x3
	switch resetKind {
	case 0: // no reset
		if !r.haveDec {
			return CorruptInputError{Context: "lzma2 chunk reuses state before any reset chunk"}
		}
	case 1: // state reset, no new props
		if !r.haveDec {
			return CorruptInputError{Context: "lzma2 state reset chunk with no prior properties"}
		}
		r.dec.resetState()
	case 2: // state reset + new props
		p, err := r.readProps()
		if err != nil {
			return err
		}
		if r.haveDec {
			r.dec.setProps(p)
		} else {
			r.dec = newDecoder(nil, r.win, p)
			r.haveDec = true
		}
	case 3: // state reset + new props + dict reset
		r.win.reset()
		p, err := r.readProps()
		if err != nil {
			return err
		}
		r.dec = newDecoder(nil, r.win, p)
		r.haveDec = true
	}

	rc, err := newBufferedRangeDecoder(r.src, compressedSize)
	if err != nil {
		return err
	}
	r.dec.rc = rc

	// A chunk may declare far more output than the dictionary holds, so
	// decode in window-sized cycles, draining the window into the chunk
	// buffer between them.
	buf := make([]byte, unpackedSize)
	off := 0
	for off < unpackedSize {
		r.win.setLimit(unpackedSize - off)
		eos, err := r.dec.decode()
		if err != nil {
			return err
		}
		got := r.win.flush(buf, off)
		off += got
		if eos {
			break
		}
		if got == 0 {
			return CorruptInputError{Context: "lzma2 chunk produced no output before its declared size"}
		}
	}
	if off != unpackedSize {
		return CorruptInputError{Context: "lzma2 chunk produced fewer bytes than its declared size"}
	}
	if !rc.isFinished() {
		return CorruptInputError{Context: "lzma2 chunk range coder did not consume its entire compressed payload"}
	}
	if r.win.hasPending() {
		return CorruptInputError{Context: "lzma2 chunk ended inside a back-reference copy"}
	}
	r.pending = buf
	r.pendOff = 0
	return nil
}

func (r *Reader2) readProps() (Properties, error) {
	b, err := r.readByte()
	if err != nil {
		return Properties{}, err
	}
	return PropsFromByte(b)
}

func (r *Reader2) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r.src, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader2) readBE16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r.src, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
