package dib

// bitReader reads fixed-width fields from a row, most significant bit
// first. Fields may straddle byte boundaries.
type bitReader struct {
	buf []byte
	pos int // in bits
}

func newBitReader(buf []byte) *bitReader {
	return &bitReader{buf: buf}
}

// read returns the next n bits (n <= 32). The caller guarantees the row is
// long enough.
func (r *bitReader) read(n int) uint32 {
	var v uint32
	for range n {
		b := r.buf[r.pos>>3]
		bit := (b >> (7 - uint(r.pos&7))) & 1
		v = v<<1 | uint32(bit)
		r.pos++
	}
	return v
}

// bitWriter packs fixed-width fields into a row, most significant bit
// first. Bits past the last field keep whatever the row held.
type bitWriter struct {
	buf []byte
	pos int // in bits
}

func newBitWriter(buf []byte) *bitWriter {
	return &bitWriter{buf: buf}
}

// write stores the low n bits of v.
func (w *bitWriter) write(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		mask := byte(1) << (7 - uint(w.pos&7))
		if (v>>uint(i))&1 != 0 {
			w.buf[w.pos>>3] |= mask
		} else {
			w.buf[w.pos>>3] &^= mask
		}
		w.pos++
	}
}
