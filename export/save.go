package export

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"slices"
	"sync"

	"exeskin/fileop"
	"exeskin/palette"

	"github.com/jsummers/gobmp"
	"golang.org/x/image/tiff"
)

func save(img image.Image, format, destDir string, id uint16) error {
	destName := filepath.Join(destDir, fmt.Sprintf("%d.%s", id, format))

	return fileop.WriteFile(destName, 0o644, func(w io.Writer) error {
		switch format {
		case "png":
			enc := png.Encoder{
				CompressionLevel: png.BestCompression,
				BufferPool:       pngPool,
			}
			if err := enc.Encode(w, img); err != nil {
				return fmt.Errorf("could not encode PNG destination %q: %w", destName, err)
			}
		case "bmp":
			if err := gobmp.Encode(w, img); err != nil {
				return fmt.Errorf("could not encode BMP destination %q: %w", destName, err)
			}
		case "tiff":
			if err := tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
				return fmt.Errorf("could not encode TIFF destination %q: %w", destName, err)
			}
		default:
			return fmt.Errorf("unsupported output format: %s", format)
		}
		return nil
	})
}

func savePalette(pal color.Palette, destDir string, id uint16) error {
	destName := filepath.Join(destDir, fmt.Sprintf("%d.pal", id))

	return fileop.WriteFile(destName, 0o644, func(w io.Writer) error {
		// 16 bit tables can exceed what one chunk holds
		chunks := slices.Collect(slices.Chunk(pal, 0xffff))
		if _, err := palette.WriteTo(w, chunks); err != nil {
			return fmt.Errorf("could not write palette %q: %w", destName, err)
		}
		return nil
	})
}

type pngEncoderBufferPool struct {
	pool sync.Pool
}

func (p *pngEncoderBufferPool) Get() *png.EncoderBuffer {
	return p.pool.Get().(*png.EncoderBuffer)
}

func (p *pngEncoderBufferPool) Put(buf *png.EncoderBuffer) {
	p.pool.Put(buf)
}

var pngPool = &pngEncoderBufferPool{
	pool: sync.Pool{
		New: func() any {
			return &png.EncoderBuffer{}
		},
	},
}
