package dib

import (
	"fmt"
	"image/color"
)

// Palette is a colour table. The position of a colour is the index stored
// in the pixel data.
type Palette []color.RGBA

/*
typedef struct tagRGBQUAD {
  BYTE rgbBlue;
  BYTE rgbGreen;
  BYTE rgbRed;
  BYTE rgbReserved;
} RGBQUAD;
*/

// ReadPalette returns the colour table stored after the header. Entries
// are opaque; the reserved byte is ignored.
func ReadPalette(b []byte, h Header) (Palette, error) {
	palEnd, _, err := h.layout(len(b))
	if err != nil {
		return nil, err
	}

	pal := make(Palette, 0, h.PaletteEntries())
	for off := InfoHeaderLen; off < palEnd; off += 4 {
		pal = append(pal, color.RGBA{R: b[off+2], G: b[off+1], B: b[off], A: 0xff})
	}
	return pal, nil
}

// Colors converts the table for use with the image/color packages.
func (p Palette) Colors() color.Palette {
	res := make(color.Palette, len(p))
	for i, c := range p {
		res[i] = c
	}
	return res
}

// builder assigns indices to colours in order of first appearance.
type builder struct {
	capacity int
	colours  Palette
	index    map[color.RGBA]uint32
}

func newBuilder(capacity int) *builder {
	return &builder{
		capacity: capacity,
		index:    make(map[color.RGBA]uint32),
	}
}

// add returns the index of c, allocating the next free one for a colour
// not seen before.
func (p *builder) add(c color.RGBA) (uint32, error) {
	if i, ok := p.index[c]; ok {
		return i, nil
	}
	if len(p.colours) >= p.capacity {
		return 0, fmt.Errorf("%w: more than %d", ErrTooManyColours, p.capacity)
	}

	i := uint32(len(p.colours))
	p.index[c] = i
	p.colours = append(p.colours, c)
	return i, nil
}

// put writes the table in RGBQUAD order with a zero reserved byte. Slots
// past the used colours are left as they are.
func (p *builder) put(b []byte) {
	off := InfoHeaderLen
	for _, c := range p.colours {
		b[off+0] = c.B
		b[off+1] = c.G
		b[off+2] = c.R
		b[off+3] = 0x00
		off += 4
	}
}
