package patch

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"exeskin/exe"
	"exeskin/fileop"
	"exeskin/manifest"
	"exeskin/parallel"

	"github.com/alecthomas/kong"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/vp8l"
	_ "golang.org/x/image/webp"
)

type CLICmd struct {
	Exe         string            `arg:"" optional:"" help:"Executable to patch. Defaults to the manifest's input."`
	Output      string            `short:"o" help:"Patched executable. Defaults to the manifest's output, else the executable is overwritten after saving a .bak copy."`
	Manifest    string            `short:"m" help:"YAML, TOML or JSON file listing images and colours" type:"existingfile"`
	Image       map[uint16]string `help:"Replace a bitmap with an image of the same size" placeholder:"ID=FILE"`
	Colour      []string          `help:"Replace a colour constant in the code section" placeholder:"#RRGGBB=#RRGGBB" group:"colours"`
	ColoursFrom string            `help:"RIFF PAL file with colours to replace" type:"existingfile" group:"colours"`
	ColoursTo   string            `help:"RIFF PAL file with the replacement colours, entry by entry" type:"existingfile" group:"colours"`
	Watch       bool              `help:"Patch again whenever the manifest or an image changes, until interrupted" default:"false"`

	debounce time.Duration
}

type replacement struct {
	id   uint16
	file string
}

type plan struct {
	images []replacement
	swaps  []exe.Swap
}

func (c *CLICmd) Validate(kctx *kong.Context) error {
	if c.Manifest != "" {
		manifestPath, err := filepath.Abs(c.Manifest)
		if err != nil {
			return fmt.Errorf("invalid manifest path %q: %w", c.Manifest, err)
		}
		c.Manifest = manifestPath

		m, err := manifest.Load(c.Manifest)
		if err != nil {
			return err
		}
		if c.Exe == "" {
			c.Exe = m.Input
		}
		if c.Output == "" {
			c.Output = m.Output
		}
	}

	if c.Exe == "" {
		return fmt.Errorf("no executable given")
	}
	exePath, err := filepath.Abs(c.Exe)
	var info os.FileInfo
	if err == nil {
		if info, err = os.Stat(exePath); err == nil && !info.Mode().IsRegular() {
			err = fmt.Errorf("not a regular file")
		}
	}
	if err != nil {
		return fmt.Errorf("invalid executable path %q: %w", c.Exe, err)
	}
	c.Exe = exePath

	if c.Output == "" {
		c.Output = c.Exe
	} else if c.Output, err = filepath.Abs(c.Output); err != nil {
		return fmt.Errorf("invalid output path %q: %w", c.Output, err)
	}

	for id, file := range c.Image {
		if c.Image[id], err = filepath.Abs(file); err != nil {
			return fmt.Errorf("invalid image path %q: %w", file, err)
		}
	}

	if (c.ColoursFrom == "") != (c.ColoursTo == "") {
		return fmt.Errorf("--colours-from and --colours-to go together")
	}

	for _, s := range c.Colour {
		if _, err := manifest.ParseSwap(s); err != nil {
			return err
		}
	}

	if c.Watch && len(c.sources()) == 0 {
		return fmt.Errorf("nothing to watch")
	}

	return nil
}

func (c *CLICmd) Run(ctx context.Context, pool *parallel.Pool) error {
	src, err := os.ReadFile(c.Exe)
	if err != nil {
		return fmt.Errorf("could not read executable %q: %w", c.Exe, err)
	}

	if c.Watch {
		return c.watch(ctx, pool, src)
	}
	return c.patch(pool, src)
}

// plan collects the replacements. Command line images win over the
// manifest's for the same id, and command line colours are tried first.
func (c *CLICmd) plan() (*plan, error) {
	p := &plan{}
	images := make(map[uint16]string, len(c.Image))
	for id, file := range c.Image {
		images[id] = file
	}

	for _, s := range c.Colour {
		swap, err := manifest.ParseSwap(s)
		if err != nil {
			return nil, err
		}
		p.swaps = append(p.swaps, swap)
	}

	if c.ColoursFrom != "" {
		swaps, err := manifest.PaletteSwaps(c.ColoursFrom, c.ColoursTo)
		if err != nil {
			return nil, err
		}
		p.swaps = append(p.swaps, swaps...)
	}

	if c.Manifest != "" {
		m, err := manifest.Load(c.Manifest)
		if err != nil {
			return nil, err
		}
		for _, r := range m.Images {
			if _, ok := images[r.ID]; !ok {
				images[r.ID] = r.File
			}
		}

		swaps, err := m.Swaps()
		if err != nil {
			return nil, err
		}
		p.swaps = append(p.swaps, swaps...)
	}

	for id, file := range images {
		p.images = append(p.images, replacement{id: id, file: file})
	}
	slices.SortFunc(p.images, func(a, b replacement) int {
		return int(a.id) - int(b.id)
	})

	return p, nil
}

// sources lists the files a patch run reads besides the executable.
func (c *CLICmd) sources() []string {
	var files []string
	if c.Manifest != "" {
		files = append(files, c.Manifest)
		if m, err := manifest.Load(c.Manifest); err == nil {
			files = append(files, m.Files()...)
		}
	}
	for _, file := range c.Image {
		files = append(files, file)
	}
	if c.ColoursFrom != "" {
		files = append(files, c.ColoursFrom, c.ColoursTo)
	}
	return files
}

// patch applies the plan to a copy of src and writes the result. Nothing
// is written if any bitmap fails.
func (c *CLICmd) patch(pool *parallel.Pool, src []byte) error {
	p, err := c.plan()
	if err != nil {
		return err
	}

	im, err := exe.Open(src)
	if err != nil {
		return fmt.Errorf("could not open executable %q: %w", c.Exe, err)
	}

	var errCount atomic.Uint64
	imgs := make([]image.Image, len(p.images))
	for i, r := range p.images {
		pool.Go(func() error {
			img, err := decodeFile(r.file)
			if err != nil {
				errCount.Add(1)
				slog.Error("could not decode image", "bitmap", r.id, "file", r.file, "error", err)
				return err
			}
			imgs[i] = img
			return nil
		})
	}
	errs := []error{pool.Wait()}

	var patched int
	for i, r := range p.images {
		if imgs[i] == nil {
			continue
		}
		if err := im.PatchFrom(r.id, imgs[i]); err != nil {
			errCount.Add(1)
			slog.Error("could not patch bitmap", "bitmap", r.id, "file", r.file, "error", err)
			errs = append(errs, err)
			continue
		}
		patched++
	}

	report, err := im.PatchColours(slog.Default(), p.swaps)
	if err != nil {
		return fmt.Errorf("could not patch colours: %w", err)
	}

	failed := errCount.Load()
	slog.Info("stats", "bitmaps", patched, "colours", len(report.Replaced),
		"skipped_colours", len(report.Skipped), "errors", failed)

	if failed > 0 {
		return fmt.Errorf("error processing %d bitmaps, %q not written: %w", failed, c.Output, errors.Join(errs...))
	}

	return c.write(im)
}

func (c *CLICmd) write(im *exe.Image) error {
	lock, err := lockFile(c.Output)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Error("could not unlock output", "file", lock.Path(), "error", err)
		}
	}()

	info, err := os.Stat(c.Exe)
	if err != nil {
		return fmt.Errorf("cannot stat executable %q: %w", c.Exe, err)
	}

	if c.Output == c.Exe {
		backup := c.Exe + ".bak"
		if err := fileop.CopyFile(c.Exe, backup); err != nil {
			if !errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("could not back up %q: %w", c.Exe, err)
			}
			slog.Debug("keeping existing backup", "file", backup)
		}
	}

	buf := im.Bytes()
	err = fileop.WriteFile(c.Output, info.Mode().Perm(), func(w io.Writer) error {
		_, err := w.Write(buf)
		return err
	})
	if err != nil {
		return err
	}

	slog.Info("written", "file", c.Output)
	return nil
}

func decodeFile(name string) (image.Image, error) {
	imgFile, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("could not open image: %w", err)
	}
	defer func() {
		if closeErr := imgFile.Close(); closeErr != nil {
			slog.Error("could not close image", "file", name, "error", closeErr)
		}
	}()

	img, _, err := image.Decode(imgFile)
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}
	return img, nil
}
