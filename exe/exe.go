// Package exe holds an executable's bytes and exposes its bitmap
// resources for reading and in-place patching.
//
// An Image is not safe for concurrent use while it is being patched.
// Reading distinct bitmaps concurrently is fine.
package exe

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"exeskin/dib"
	"exeskin/rsrc"
)

var ErrUnknownResourceID = errors.New("exe: unknown bitmap id")

// Descriptor describes one bitmap resource.
type Descriptor struct {
	ID uint16
	dib.Header
	Range rsrc.Range
}

// Image is a parsed executable. Patches are applied to its own copy of
// the file.
type Image struct {
	buf     []byte
	code    rsrc.Range
	bitmaps map[uint16]Descriptor
}

// Open copies buf, locates its bitmap resources and parses their headers.
// Any failure makes the whole executable unusable.
func Open(buf []byte) (*Image, error) {
	buf = bytes.Clone(buf)

	layout, err := rsrc.Locate(buf)
	if err != nil {
		return nil, fmt.Errorf("could not locate resources: %w", err)
	}

	im := &Image{
		buf:     buf,
		code:    layout.Code,
		bitmaps: make(map[uint16]Descriptor, len(layout.Bitmaps)),
	}

	for id, r := range layout.Bitmaps {
		h, err := dib.ParseHeader(r.Slice(buf))
		if err != nil {
			return nil, fmt.Errorf("could not parse bitmap %d: %w", id, err)
		}
		im.bitmaps[id] = Descriptor{ID: id, Header: h, Range: r}
	}

	return im, nil
}

// Bitmaps lists the bitmap resources ordered by id.
func (im *Image) Bitmaps() []Descriptor {
	res := make([]Descriptor, 0, len(im.bitmaps))
	for _, d := range im.bitmaps {
		res = append(res, d)
	}
	slices.SortFunc(res, func(a, b Descriptor) int {
		return int(a.ID) - int(b.ID)
	})
	return res
}

// Bitmap returns the descriptor of bitmap id.
func (im *Image) Bitmap(id uint16) (Descriptor, error) {
	d, ok := im.bitmaps[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %d", ErrUnknownResourceID, id)
	}
	return d, nil
}

// Code is the file range of the code section.
func (im *Image) Code() rsrc.Range {
	return im.code
}

// ReadImage decodes bitmap id into a top-down RGBA buffer.
func (im *Image) ReadImage(id uint16) ([]byte, error) {
	d, err := im.Bitmap(id)
	if err != nil {
		return nil, err
	}

	pix, err := dib.Decode(d.Range.Slice(im.buf), d.Header)
	if err != nil {
		return nil, fmt.Errorf("bitmap %d: %w", id, err)
	}
	return pix, nil
}

// ReadPalette returns the stored colour table of an indexed bitmap, or nil
// for a direct colour one.
func (im *Image) ReadPalette(id uint16) (dib.Palette, error) {
	d, err := im.Bitmap(id)
	if err != nil {
		return nil, err
	}
	if !d.Indexed() {
		return nil, nil
	}

	pal, err := dib.ReadPalette(d.Range.Slice(im.buf), d.Header)
	if err != nil {
		return nil, fmt.Errorf("bitmap %d: %w", id, err)
	}
	return pal, nil
}

// PatchImage re-encodes bitmap id from a top-down RGBA buffer in place.
// The resource keeps its size and bit depth. On error the bitmap is left
// unchanged.
func (im *Image) PatchImage(id uint16, pix []byte) error {
	d, err := im.Bitmap(id)
	if err != nil {
		return err
	}

	if err := dib.Encode(d.Range.Slice(im.buf), d.Header, pix); err != nil {
		return fmt.Errorf("bitmap %d: %w", id, err)
	}
	return nil
}

// Bytes returns a copy of the executable with all patches applied.
func (im *Image) Bytes() []byte {
	return bytes.Clone(im.buf)
}
