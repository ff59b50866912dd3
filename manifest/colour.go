package manifest

import (
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"strings"

	"exeskin/exe"
	"exeskin/palette"
)

// ParseColour reads #RGB or #RRGGBB into 0xRRGGBB.
func ParseColour(s string) (uint32, error) {
	var c color.RGBA
	switch len(s) {
	case 4:
		n, err := fmt.Sscanf(s, "#%1x%1x%1x", &c.R, &c.G, &c.B)
		if err != nil {
			return 0, fmt.Errorf("could not read color %q: %w", s, err)
		} else if n < 3 {
			return 0, fmt.Errorf("insufficient color fields in %q: %d", s, n)
		}

		c.R |= c.R << 4
		c.G |= c.G << 4
		c.B |= c.B << 4
	case 7:
		n, err := fmt.Sscanf(s, "#%2x%2x%2x", &c.R, &c.G, &c.B)
		if err != nil {
			return 0, fmt.Errorf("could not read color %q: %w", s, err)
		} else if n < 3 {
			return 0, fmt.Errorf("insufficient color fields in %q: %d", s, n)
		}
	default:
		return 0, fmt.Errorf("invalid color %q, should be #RGB or #RRGGBB", s)
	}

	return rgb(c), nil
}

// ParseSwap reads FROM=TO.
func ParseSwap(s string) (exe.Swap, error) {
	from, to, ok := strings.Cut(s, "=")
	if !ok {
		return exe.Swap{}, fmt.Errorf("invalid colour swap %q, should be FROM=TO", s)
	}
	return (ColourSwap{From: from, To: to}).Swap()
}

func (c ColourSwap) Swap() (exe.Swap, error) {
	from, err := ParseColour(c.From)
	if err != nil {
		return exe.Swap{}, err
	}
	to, err := ParseColour(c.To)
	if err != nil {
		return exe.Swap{}, err
	}
	return exe.Swap{From: from, To: to}, nil
}

// Swaps returns the colour swaps of the manifest, palette pairs last.
func (m *Manifest) Swaps() ([]exe.Swap, error) {
	res := make([]exe.Swap, 0, len(m.Colours))
	for _, c := range m.Colours {
		s, err := c.Swap()
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}

	if m.Palettes.From != "" {
		pal, err := PaletteSwaps(m.Palettes.From, m.Palettes.To)
		if err != nil {
			return nil, err
		}
		res = append(res, pal...)
	}

	return res, nil
}

// PaletteSwaps pairs the entries of two RIFF PAL files.
func PaletteSwaps(fromFile, toFile string) ([]exe.Swap, error) {
	from, err := loadPalette(fromFile)
	if err != nil {
		return nil, err
	}
	to, err := loadPalette(toFile)
	if err != nil {
		return nil, err
	}

	if len(from) != len(to) {
		return nil, fmt.Errorf("palettes %q and %q differ in size: %d != %d", fromFile, toFile, len(from), len(to))
	}

	res := make([]exe.Swap, len(from))
	for i := range from {
		res[i] = exe.Swap{
			From: rgb(color.RGBAModel.Convert(from[i]).(color.RGBA)),
			To:   rgb(color.RGBAModel.Convert(to[i]).(color.RGBA)),
		}
	}
	return res, nil
}

func loadPalette(name string) (color.Palette, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("could not open palette %q: %w", name, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Error("could not close palette", "file", name, "error", closeErr)
		}
	}()

	pals, err := palette.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("could not read palette %q: %w", name, err)
	}

	var res color.Palette
	for _, p := range pals {
		res = append(res, p...)
	}
	return res, nil
}

func rgb(c color.RGBA) uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}
