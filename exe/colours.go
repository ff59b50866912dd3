package exe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

var ErrInvalidColour = errors.New("exe: colour out of 24 bit range")

// colourPrefixes are the opcodes known to take a colour as an imm32.
var colourPrefixes = []byte{
	0x68, // PUSH imm32
	0xb9, // MOV ecx, imm32
}

// Swap replaces a colour constant, both given as 0xRRGGBB.
type Swap struct {
	From uint32
	To   uint32
}

// Match is an occurrence of a Swap's From colour in the code section.
type Match struct {
	Swap   Swap
	Offset int // in the file
	// Prefix is the byte before the constant; meaningless when AtStart.
	Prefix  byte
	AtStart bool
}

// ColourReport lists the constants that were rewritten and the ones left
// alone because their prefix byte is not a known colour-taking opcode.
type ColourReport struct {
	Replaced []Match
	Skipped  []Match
}

// PatchColours rewrites colour constants in the code section. A colour
// 0xRRGGBB is searched as the 4 bytes RR GG BB 00 (a COLORREF immediate).
// All occurrences are found before anything is written; when several
// swaps match at one position the first one wins. Skipped occurrences are
// logged as warnings and reported, they do not fail the patch.
func (im *Image) PatchColours(logger *slog.Logger, swaps []Swap) (ColourReport, error) {
	type pattern struct {
		swap            Swap
		search, replace [4]byte
	}

	patterns := make([]pattern, 0, len(swaps))
	for _, s := range swaps {
		if s.From > 0xffffff || s.To > 0xffffff {
			return ColourReport{}, fmt.Errorf("%w: %06x -> %06x", ErrInvalidColour, s.From, s.To)
		}
		p := pattern{swap: s}
		binary.BigEndian.PutUint32(p.search[:], s.From<<8)
		binary.BigEndian.PutUint32(p.replace[:], s.To<<8)
		patterns = append(patterns, p)
	}

	code := im.code.Slice(im.buf)

	type found struct {
		Match
		p *pattern
	}
	var hits []found
	for i := 0; i+4 <= len(code); i++ {
		for j := range patterns {
			if !bytes.Equal(code[i:i+4], patterns[j].search[:]) {
				continue
			}
			m := Match{Swap: patterns[j].swap, Offset: im.code.Offset + i, AtStart: i == 0}
			if !m.AtStart {
				m.Prefix = code[i-1]
			}
			hits = append(hits, found{Match: m, p: &patterns[j]})
			break
		}
	}

	var report ColourReport
	for _, h := range hits {
		m := h.Match

		if m.AtStart || !slices.Contains(colourPrefixes, m.Prefix) {
			logger.Warn("unknown colour prefix byte",
				"offset", fmt.Sprintf("0x%x", m.Offset),
				"prefix", fmt.Sprintf("%02x", m.Prefix),
				"colour", fmt.Sprintf("%06x", m.Swap.From))
			report.Skipped = append(report.Skipped, m)
			continue
		}

		copy(code[m.Offset-im.code.Offset:], h.p.replace[:])
		report.Replaced = append(report.Replaced, m)
	}

	logger.Debug("patched colour constants", "replaced", len(report.Replaced), "skipped", len(report.Skipped))
	return report, nil
}
