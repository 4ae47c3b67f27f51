// Package filter implements the reversible byte filters 7z layers over an
// LZMA/LZMA2 stream before the final coder: delta, which turns sequences of
// near-constant values into small deltas, and the BCJ family, which turns
// relative branch targets in machine code into absolute addresses so the
// LZ stage can match them across call sites.
package filter

import "io"

// NewDeltaReader returns a reader that undoes a delta filter with the given
// distance (1-256): each output byte is the sum of the corresponding
// compressed byte and the output byte produced distance positions earlier.
func NewDeltaReader(r io.Reader, distance int) io.Reader {
	return &deltaReader{r: r, distance: distance}
}

type deltaReader struct {
	r        io.Reader
	distance int
	history  [256]byte
	pos      byte
}

func (d *deltaReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	for i := 0; i < n; i++ {
		v := p[i] + d.history[(int(d.pos)+d.distance)&0xFF]
		d.history[d.pos] = v
		d.pos--
		p[i] = v
	}
	return n, err
}
