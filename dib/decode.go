package dib

import (
	"fmt"
)

// Decode converts the bitmap stored in b into a top-down RGBA buffer of
// Width*Height*4 bytes. The last stored row becomes the first output row.
func Decode(b []byte, h Header) ([]byte, error) {
	palEnd, pixEnd, err := h.layout(len(b))
	if err != nil {
		return nil, err
	}
	if h.PixelBufferLen() == 0 {
		return []byte{}, nil
	}

	pix := make([]byte, h.PixelBufferLen())
	if h.Indexed() {
		pal, err := ReadPalette(b, h)
		if err != nil {
			return nil, err
		}
		indices, err := decodeIndices(b[palEnd:pixEnd], h, len(pal))
		if err != nil {
			return nil, err
		}
		for i, n := range indices {
			c := pal[n]
			pix[i*4+0] = c.R
			pix[i*4+1] = c.G
			pix[i*4+2] = c.B
			pix[i*4+3] = c.A
		}
		return pix, nil
	}

	decodeDirect(b[palEnd:pixEnd], h, pix)
	return pix, nil
}

// DecodeIndices returns the colour table index of every pixel of an
// indexed bitmap, top-down, Width*Height entries. Every index is checked
// against the stored table.
func DecodeIndices(b []byte, h Header) ([]uint32, error) {
	if !h.Indexed() {
		return nil, fmt.Errorf("%w: %d bits per pixel", ErrNotIndexed, h.BitDepth)
	}

	palEnd, pixEnd, err := h.layout(len(b))
	if err != nil {
		return nil, err
	}
	if h.PixelBufferLen() == 0 {
		return []uint32{}, nil
	}
	return decodeIndices(b[palEnd:pixEnd], h, int(h.PaletteEntries()))
}

func decodeIndices(rows []byte, h Header, entries int) ([]uint32, error) {
	stride := int(h.Stride())
	width, depth := int(h.Width), int(h.BitDepth)

	res := make([]uint32, 0, int(h.PixelBufferLen()/4))
	for y := int(h.Height) - 1; y >= 0; y-- {
		row := rows[y*stride : (y+1)*stride]
		bits := newBitReader(row)

		for x := range width {
			var n uint32
			if depth >= 8 {
				// whole bytes, most significant first
				for _, v := range row[x*depth/8 : (x+1)*depth/8] {
					n = n<<8 | uint32(v)
				}
			} else {
				n = bits.read(depth)
			}

			if int(n) >= entries {
				return nil, fmt.Errorf("%w: %d at (%d, %d), table has %d entries",
					ErrPaletteIndexOutOfRange, n, x, int(h.Height)-1-y, entries)
			}
			res = append(res, n)
		}
	}

	return res, nil
}

func decodeDirect(rows []byte, h Header, pix []byte) {
	stride := int(h.Stride())
	opp := int(h.BitDepth / 8)

	wr := 0
	for y := int(h.Height) - 1; y >= 0; y-- {
		row := rows[y*stride : (y+1)*stride]

		for x := range int(h.Width) {
			px := row[x*opp : (x+1)*opp]
			pix[wr+0] = px[2]
			pix[wr+1] = px[1]
			pix[wr+2] = px[0]
			if opp == 4 {
				pix[wr+3] = px[3]
			} else {
				pix[wr+3] = 0xff
			}
			wr += 4
		}
	}
}
