// Package dib reads and rewrites the pixel data of device-independent
// bitmaps as they are stored in executable resources: a 40 byte
// BITMAPINFOHEADER, an optional colour table and bottom-up, 4 byte aligned
// rows. Pixels are exchanged as flat, top-down RGBA buffers.
package dib

import (
	"encoding/binary"
	"errors"
	"fmt"
)

/*
typedef struct tagBITMAPINFOHEADER {
  DWORD biSize;           //  0
  LONG  biWidth;          //  4
  LONG  biHeight;         //  8
  WORD  biPlanes;         // 12
  WORD  biBitCount;       // 14
  DWORD biCompression;    // 16
  DWORD biSizeImage;      // 20
  LONG  biXPelsPerMeter;  // 24
  LONG  biYPelsPerMeter;  // 28
  DWORD biClrUsed;        // 32
  DWORD biClrImportant;   // 36
} BITMAPINFOHEADER;
*/

const (
	InfoHeaderLen = 40

	widthOffset       = 4
	heightOffset      = 8
	bitDepthOffset    = 14
	paletteSizeOffset = 32
)

var (
	ErrHeaderTooShort         = errors.New("dib: header too short")
	ErrUnsupportedBitDepth    = errors.New("dib: unsupported bit depth")
	ErrPaletteIndexOutOfRange = errors.New("dib: palette index out of range")
	ErrWrongPixelBufferSize   = errors.New("dib: wrong pixel buffer size")
	ErrTooManyColours         = errors.New("dib: too many colours")
	ErrTruncated              = errors.New("dib: bitmap data truncated")
	ErrNotIndexed             = errors.New("dib: bitmap has no colour table")
)

// Header holds the fields of a BITMAPINFOHEADER the codec depends on.
type Header struct {
	Width    uint32
	Height   uint32
	BitDepth uint16
	// PaletteSize is biClrUsed; zero means the full 2^BitDepth table.
	PaletteSize uint32
}

// ParseHeader reads the header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < InfoHeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes, need %d", ErrHeaderTooShort, len(b), InfoHeaderLen)
	}

	h := Header{
		Width:       binary.LittleEndian.Uint32(b[widthOffset:]),
		Height:      binary.LittleEndian.Uint32(b[heightOffset:]),
		BitDepth:    binary.LittleEndian.Uint16(b[bitDepthOffset:]),
		PaletteSize: binary.LittleEndian.Uint32(b[paletteSizeOffset:]),
	}

	switch h.BitDepth {
	case 1, 2, 4, 8, 16, 24, 32:
	default:
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, h.BitDepth)
	}

	return h, nil
}

// Indexed reports whether pixels are stored as colour table indices.
func (h Header) Indexed() bool {
	return h.BitDepth <= 16
}

// PaletteEntries is the number of colour table entries stored after the
// header. Direct colour bitmaps have none.
func (h Header) PaletteEntries() uint64 {
	if !h.Indexed() {
		return 0
	}
	if h.PaletteSize != 0 {
		return uint64(h.PaletteSize)
	}
	return 1 << h.BitDepth
}

// PaletteCapacity is the number of distinct colours an encode may use:
// the stored table size, but never more than the bit depth can address.
func (h Header) PaletteCapacity() int {
	n := h.PaletteEntries()
	if limit := uint64(1) << h.BitDepth; h.Indexed() && n > limit {
		n = limit
	}
	return int(n)
}

// Stride is the length in bytes of one stored row, padded to 4 bytes.
func (h Header) Stride() uint64 {
	if h.Indexed() {
		return (uint64(h.Width)*uint64(h.BitDepth) + 31) / 32 * 4
	}
	opp := uint64(h.BitDepth / 8)
	return (uint64(h.Width)*opp + 3) / 4 * 4
}

// PixelBufferLen is the length of the RGBA buffer for this bitmap.
func (h Header) PixelBufferLen() uint64 {
	return uint64(h.Width) * uint64(h.Height) * 4
}

// layout returns where the colour table and the pixel rows sit inside a
// resource of size n, failing if either would run past its end.
func (h Header) layout(n int) (paletteEnd, pixelsEnd int, err error) {
	size := uint64(n)

	pal := uint64(InfoHeaderLen) + h.PaletteEntries()*4
	if pal > size {
		return 0, 0, fmt.Errorf("%w: colour table of %d entries needs %d bytes, have %d",
			ErrTruncated, h.PaletteEntries(), pal, size)
	}

	stride := h.Stride()
	if h.Height != 0 && stride > (size-pal)/uint64(h.Height) {
		return 0, 0, fmt.Errorf("%w: %d rows of %d bytes do not fit in %d bytes",
			ErrTruncated, h.Height, stride, size-pal)
	}

	return int(pal), int(pal + stride*uint64(h.Height)), nil
}
