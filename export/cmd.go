package export

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"

	"exeskin/exe"
	"exeskin/parallel"

	"github.com/alecthomas/kong"
)

type CLICmd struct {
	Exe     string   `arg:"" help:"Executable to export bitmaps from" type:"existingfile"`
	Dest    string   `help:"Destination folder. Relative to the executable's folder if not absolute." default:"bitmaps"`
	ID      []uint16 `help:"Only export these bitmap ids" name:"id"`
	Format  string   `help:"Output format" enum:"png,bmp,tiff" default:"png"`
	Palette bool     `help:"Also save the colour table of indexed bitmaps as a RIFF PAL file" default:"false"`
}

func (c *CLICmd) Validate(kctx *kong.Context) error {
	exePath, err := filepath.Abs(c.Exe)
	if err != nil {
		return fmt.Errorf("invalid executable path %q: %w", c.Exe, err)
	}
	c.Exe = exePath

	if !filepath.IsAbs(c.Dest) {
		c.Dest = filepath.Join(filepath.Dir(exePath), c.Dest)
	}

	return nil
}

func (c *CLICmd) Run(pool *parallel.Pool) error {
	im, err := exe.Load(c.Exe)
	if err != nil {
		return err
	}

	ids, err := c.selected(im)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.Dest, 0o755); err != nil {
		return fmt.Errorf("unable to create destination folder %q: %w", c.Dest, err)
	}

	var processedCount, errCount atomic.Uint64
	for _, id := range ids {
		pool.Go(func() error {
			logger := slog.Default().With("bitmap", id)

			if err := c.export(logger, im, id); err != nil {
				errCount.Add(1)
				logger.Error("could not export bitmap", "error", err)
				return err
			}
			processedCount.Add(1)
			return nil
		})
	}

	err = pool.Wait()

	processed := processedCount.Load()
	errors := errCount.Load()
	slog.Info("stats", "processed", processed, "errors", errors,
		"total", processed+errors)

	if errors > 0 {
		return fmt.Errorf("error processing %d bitmaps: %w", errors, err)
	}
	return nil
}

func (c *CLICmd) selected(im *exe.Image) ([]uint16, error) {
	if len(c.ID) == 0 {
		var ids []uint16
		for _, d := range im.Bitmaps() {
			ids = append(ids, d.ID)
		}
		return ids, nil
	}

	ids := slices.Clone(c.ID)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	for _, id := range ids {
		if _, err := im.Bitmap(id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (c *CLICmd) export(logger *slog.Logger, im *exe.Image, id uint16) error {
	var img image.Image

	paletted, ok, err := im.ReadPaletted(id)
	switch {
	case err != nil:
		return err
	case ok:
		img = paletted
	default:
		if img, err = im.ReadNRGBA(id); err != nil {
			return err
		}
	}

	if err := save(img, c.Format, c.Dest, id); err != nil {
		return err
	}
	logger.Debug("exported", "format", c.Format, "size", img.Bounds().Size())

	if !c.Palette {
		return nil
	}

	pal, err := im.ReadPalette(id)
	if err != nil || pal == nil {
		return err
	}
	return savePalette(pal.Colors(), c.Dest, id)
}
