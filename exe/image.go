package exe

import (
	"errors"
	"fmt"
	"image"
	"os"

	"exeskin/dib"

	"golang.org/x/image/draw"
)

var ErrDimensions = errors.New("exe: image size differs from bitmap")

// Load reads and opens the executable at name.
func Load(name string) (*Image, error) {
	buf, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("could not read executable %q: %w", name, err)
	}

	im, err := Open(buf)
	if err != nil {
		return nil, fmt.Errorf("could not open executable %q: %w", name, err)
	}
	return im, nil
}

// ReadNRGBA decodes bitmap id as an image.
func (im *Image) ReadNRGBA(id uint16) (*image.NRGBA, error) {
	d, err := im.Bitmap(id)
	if err != nil {
		return nil, err
	}

	pix, err := im.ReadImage(id)
	if err != nil {
		return nil, err
	}

	return &image.NRGBA{
		Pix:    pix,
		Stride: 4 * int(d.Width),
		Rect:   image.Rect(0, 0, int(d.Width), int(d.Height)),
	}, nil
}

// ReadPaletted reads an indexed bitmap of at most 8 bits per pixel with
// its stored colour table, keeping every pixel's stored index. ok is false
// for other bitmaps.
func (im *Image) ReadPaletted(id uint16) (img *image.Paletted, ok bool, err error) {
	d, err := im.Bitmap(id)
	if err != nil || !d.Indexed() || d.BitDepth > 8 {
		return nil, false, err
	}

	pal, err := im.ReadPalette(id)
	if err != nil {
		return nil, false, err
	}
	indices, err := dib.DecodeIndices(d.Range.Slice(im.buf), d.Header)
	if err != nil {
		return nil, false, fmt.Errorf("bitmap %d: %w", id, err)
	}

	// indices never reach past 1<<BitDepth
	pal = pal[:min(len(pal), 1<<d.BitDepth)]
	img = &image.Paletted{
		Pix:     make([]uint8, len(indices)),
		Stride:  int(d.Width),
		Rect:    image.Rect(0, 0, int(d.Width), int(d.Height)),
		Palette: pal.Colors(),
	}
	for i, n := range indices {
		img.Pix[i] = uint8(n)
	}
	return img, true, nil
}

// PatchFrom patches bitmap id with img, converted to 8-bit RGBA. img must
// have the size of the bitmap, it is never scaled.
func (im *Image) PatchFrom(id uint16, img image.Image) error {
	d, err := im.Bitmap(id)
	if err != nil {
		return err
	}

	b := img.Bounds()
	if b.Dx() != int(d.Width) || b.Dy() != int(d.Height) {
		return fmt.Errorf("%w: bitmap %d is %dx%d, image is %dx%d",
			ErrDimensions, id, d.Width, d.Height, b.Dx(), b.Dy())
	}

	dst, ok := img.(*image.NRGBA)
	if !ok || dst.Rect.Min != (image.Point{}) || dst.Stride != 4*b.Dx() {
		dst = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	}

	return im.PatchImage(id, dst.Pix[:4*b.Dx()*b.Dy()])
}
