package dib

import (
	"encoding/binary"
	"fmt"
	"image/color"
)

// Encode overwrites the bitmap stored in b with the top-down RGBA buffer
// pix, keeping the header, the bit depth and the length of b. Indexed
// bitmaps get a new colour table built from the colours of pix in order
// of first appearance; there is no colour reduction, so pix may use at
// most h.PaletteCapacity() distinct colours.
//
// Nothing in b is modified unless the whole encode succeeds.
func Encode(b []byte, h Header, pix []byte) error {
	if want := h.PixelBufferLen(); uint64(len(pix)) != want {
		return fmt.Errorf("%w: got %d bytes, want %d for %dx%d",
			ErrWrongPixelBufferSize, len(pix), want, h.Width, h.Height)
	}

	palEnd, pixEnd, err := h.layout(len(b))
	if err != nil {
		return err
	}
	if len(pix) == 0 {
		return nil
	}

	if !h.Indexed() {
		encodeDirect(b[palEnd:pixEnd], h, pix)
		return nil
	}

	pal := newBuilder(h.PaletteCapacity())
	indices := make([]uint32, 0, len(pix)/4)
	for i := 0; i < len(pix); i += 4 {
		n, err := pal.add(color.RGBA{R: pix[i], G: pix[i+1], B: pix[i+2], A: pix[i+3]})
		if err != nil {
			return err
		}
		indices = append(indices, n)
	}

	rows := make([]byte, pixEnd-palEnd)
	copy(rows, b[palEnd:pixEnd])
	encodeIndexed(rows, h, indices)

	pal.put(b)
	copy(b[palEnd:pixEnd], rows)
	return nil
}

func encodeIndexed(rows []byte, h Header, indices []uint32) {
	stride := int(h.Stride())
	width, height, depth := int(h.Width), int(h.Height), int(h.BitDepth)
	used := (width*depth + 7) / 8

	for y := range height {
		row := rows[(height-1-y)*stride : (height-y)*stride]
		clear(row[:used])
		line := indices[y*width : (y+1)*width]

		switch depth {
		case 1, 2, 4:
			bits := newBitWriter(row)
			for _, n := range line {
				bits.write(n, depth)
			}
		case 8:
			for x, n := range line {
				row[x] = byte(n)
			}
		case 16:
			// written little endian; Decode reads them most significant
			// byte first
			for x, n := range line {
				binary.LittleEndian.PutUint16(row[x*2:], uint16(n))
			}
		}
	}
}

func encodeDirect(rows []byte, h Header, pix []byte) {
	stride := int(h.Stride())
	height := int(h.Height)
	opp := int(h.BitDepth / 8)

	rd := 0
	for y := range height {
		row := rows[(height-1-y)*stride : (height-y)*stride]

		for x := range int(h.Width) {
			px := row[x*opp : (x+1)*opp]
			px[0] = pix[rd+2]
			px[1] = pix[rd+1]
			px[2] = pix[rd+0]
			if opp == 4 {
				px[3] = pix[rd+3]
			}
			rd += 4
		}
	}
}
