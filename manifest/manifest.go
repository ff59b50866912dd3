// Package manifest loads the description of a re-skin: which bitmaps to
// replace with which files and which colour constants to swap.
package manifest

import (
	"fmt"
	"path/filepath"

	"github.com/kkyr/fig"
)

const EnvPrefix = "EXESKIN"

// Replacement maps a bitmap resource to an image file.
type Replacement struct {
	ID   uint16 `fig:"id" validate:"required"`
	File string `fig:"file" validate:"required"`
}

// ColourSwap is a pair of colours in #RGB or #RRGGBB notation.
type ColourSwap struct {
	From string `fig:"from" validate:"required"`
	To   string `fig:"to" validate:"required"`
}

// PaletteSwap maps entry i of one RIFF PAL file to entry i of another.
type PaletteSwap struct {
	From string `fig:"from"`
	To   string `fig:"to"`
}

type Manifest struct {
	// Input and Output are only defaults; the command line wins.
	Input    string        `fig:"input"`
	Output   string        `fig:"output"`
	Images   []Replacement `fig:"images"`
	Colours  []ColourSwap  `fig:"colours"`
	Palettes PaletteSwap   `fig:"palettes"`
}

// Load reads a YAML, TOML or JSON manifest. Scalar settings can be
// overridden from the environment, e.g. EXESKIN_OUTPUT. Relative paths in
// the manifest are relative to the manifest's directory.
func Load(path string) (*Manifest, error) {
	var m Manifest
	dir := filepath.Dir(path)

	err := fig.Load(&m,
		fig.File(filepath.Base(path)),
		fig.Dirs(dir),
		fig.UseEnv(EnvPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("could not load manifest %q: %w", path, err)
	}

	if (m.Palettes.From == "") != (m.Palettes.To == "") {
		return nil, fmt.Errorf("manifest %q: palettes need both from and to", path)
	}

	m.Input = resolve(dir, m.Input)
	m.Output = resolve(dir, m.Output)
	m.Palettes.From = resolve(dir, m.Palettes.From)
	m.Palettes.To = resolve(dir, m.Palettes.To)
	for i := range m.Images {
		m.Images[i].File = resolve(dir, m.Images[i].File)
	}

	return &m, nil
}

// Files lists the files the manifest depends on.
func (m *Manifest) Files() []string {
	var res []string
	for _, r := range m.Images {
		res = append(res, r.File)
	}
	if m.Palettes.From != "" {
		res = append(res, m.Palettes.From, m.Palettes.To)
	}
	return res
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
