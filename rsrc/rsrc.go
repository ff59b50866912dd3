// Package rsrc finds the bitmap resources and the code section inside the
// raw bytes of a PE executable.
package rsrc

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// TypeBitmap is the RT_BITMAP resource type id.
const TypeBitmap = 2

const (
	CodeSection     = ".text"
	ResourceSection = ".rsrc"
)

var (
	ErrMalformedImage         = errors.New("rsrc: malformed PE image")
	ErrMissingSection         = errors.New("rsrc: missing section")
	ErrMissingResourceType    = errors.New("rsrc: missing bitmap resource directory")
	ErrNonIDResourceName      = errors.New("rsrc: bitmap has name instead of id")
	ErrMalformedResourceEntry = errors.New("rsrc: malformed resource entry")
)

// Range is a byte range inside the executable file.
type Range struct {
	Offset int
	Length int
}

// Slice returns the bytes of r inside buf. r must come from a Layout
// located in buf.
func (r Range) Slice(buf []byte) []byte {
	return buf[r.Offset : r.Offset+r.Length : r.Offset+r.Length]
}

func (r Range) String() string {
	return fmt.Sprintf("0x%x+0x%x", r.Offset, r.Length)
}

// Layout is where the interesting parts of an executable live.
type Layout struct {
	Code    Range
	Bitmaps map[uint16]Range
}

// Locate reads the section table and walks the resource directory of the
// executable in buf. Localised bitmaps are not expected: only the first
// language entry of each bitmap is used.
func Locate(buf []byte) (*Layout, error) {
	f, err := pe.NewFile(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedImage, err)
	}

	code, err := sectionRange(buf, f, CodeSection)
	if err != nil {
		return nil, err
	}

	res, err := sectionRange(buf, f, ResourceSection)
	if err != nil {
		return nil, err
	}

	dir := &directory{
		data:   res.Slice(buf),
		base:   f.Section(ResourceSection).VirtualAddress,
		offset: res.Offset,
		size:   len(buf),
	}

	bitmaps, err := dir.bitmaps()
	if err != nil {
		return nil, err
	}

	return &Layout{Code: code, Bitmaps: bitmaps}, nil
}

func sectionRange(buf []byte, f *pe.File, name string) (Range, error) {
	s := f.Section(name)
	if s == nil {
		return Range{}, fmt.Errorf("%w: %s", ErrMissingSection, name)
	}

	if uint64(s.Offset)+uint64(s.Size) > uint64(len(buf)) {
		return Range{}, fmt.Errorf("%w: section %s at 0x%x+0x%x past end of file (0x%x)",
			ErrMalformedImage, name, s.Offset, s.Size, len(buf))
	}

	return Range{Offset: int(s.Offset), Length: int(s.Size)}, nil
}

/*
typedef struct _IMAGE_RESOURCE_DIRECTORY {
  DWORD Characteristics;
  DWORD TimeDateStamp;
  WORD  MajorVersion;
  WORD  MinorVersion;
  WORD  NumberOfNamedEntries;
  WORD  NumberOfIdEntries;
} IMAGE_RESOURCE_DIRECTORY;

typedef struct _IMAGE_RESOURCE_DIRECTORY_ENTRY {
  DWORD NameOrId;     // high bit: offset of a name string
  DWORD OffsetToData; // high bit: offset of a subdirectory
} IMAGE_RESOURCE_DIRECTORY_ENTRY;

typedef struct _IMAGE_RESOURCE_DATA_ENTRY {
  DWORD OffsetToData; // RVA
  DWORD Size;
  DWORD CodePage;
  DWORD Reserved;
} IMAGE_RESOURCE_DATA_ENTRY;
*/

const (
	dirHeaderLen = 16
	dirEntryLen  = 8
	dataEntryLen = 16
	highBit      = 0x80000000
)

type entry struct {
	name   uint32
	offset uint32
}

// id returns the integer id of e, ok is false for a named entry.
func (e entry) id() (uint32, bool) {
	if e.name&highBit != 0 {
		return 0, false
	}
	return e.name, true
}

func (e entry) isDir() bool {
	return e.offset&highBit != 0
}

// directory reads the resource tree of a section. Offsets inside the tree
// are relative to the start of the section; data entries point at RVAs.
type directory struct {
	data   []byte
	base   uint32 // section virtual address
	offset int    // section file offset
	size   int    // file size
}

func (d *directory) bitmaps() (map[uint16]Range, error) {
	types, err := d.table(0)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}

	var bitmapType *entry
	for i, e := range types {
		if id, ok := e.id(); ok && id == TypeBitmap {
			bitmapType = &types[i]
			break
		}
	}
	if bitmapType == nil {
		return nil, ErrMissingResourceType
	}

	names, err := d.subdir(*bitmapType)
	if err != nil {
		return nil, fmt.Errorf("bitmap directory missing entries: %w", err)
	}

	res := make(map[uint16]Range, len(names))
	for _, e := range names {
		raw, ok := e.id()
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNonIDResourceName, d.name(e))
		}
		if raw > 0xffff {
			return nil, fmt.Errorf("%w: bitmap id 0x%x out of range", ErrMalformedResourceEntry, raw)
		}
		id := uint16(raw)
		if _, dup := res[id]; dup {
			return nil, fmt.Errorf("%w: bitmap %d listed twice", ErrMalformedResourceEntry, id)
		}

		langs, err := d.subdir(e)
		if err != nil {
			return nil, fmt.Errorf("bitmap %d: missing bitmap contents: %w", id, err)
		}
		if len(langs) == 0 {
			return nil, fmt.Errorf("%w: bitmap %d has no language entries", ErrMalformedResourceEntry, id)
		}

		r, err := d.leaf(langs[0])
		if err != nil {
			return nil, fmt.Errorf("bitmap %d: missing bitmap data: %w", id, err)
		}
		res[id] = r
	}

	return res, nil
}

func (d *directory) table(off uint32) ([]entry, error) {
	if uint64(off)+dirHeaderLen > uint64(len(d.data)) {
		return nil, fmt.Errorf("%w: directory at 0x%x past end of section", ErrMalformedResourceEntry, off)
	}

	hdr := d.data[off : off+dirHeaderLen]
	n := uint64(binary.LittleEndian.Uint16(hdr[12:])) + uint64(binary.LittleEndian.Uint16(hdr[14:]))

	start := uint64(off) + dirHeaderLen
	if start+n*dirEntryLen > uint64(len(d.data)) {
		return nil, fmt.Errorf("%w: %d entries at 0x%x past end of section", ErrMalformedResourceEntry, n, off)
	}

	entries := make([]entry, n)
	for i := range entries {
		raw := d.data[start+uint64(i)*dirEntryLen:]
		entries[i] = entry{
			name:   binary.LittleEndian.Uint32(raw[0:]),
			offset: binary.LittleEndian.Uint32(raw[4:]),
		}
	}
	return entries, nil
}

func (d *directory) subdir(e entry) ([]entry, error) {
	if !e.isDir() {
		return nil, fmt.Errorf("%w: expected a directory, found a data entry", ErrMalformedResourceEntry)
	}
	return d.table(e.offset &^ highBit)
}

func (d *directory) leaf(e entry) (Range, error) {
	if e.isDir() {
		return Range{}, fmt.Errorf("%w: expected a data entry, found a directory", ErrMalformedResourceEntry)
	}
	if uint64(e.offset)+dataEntryLen > uint64(len(d.data)) {
		return Range{}, fmt.Errorf("%w: data entry at 0x%x past end of section", ErrMalformedResourceEntry, e.offset)
	}

	raw := d.data[e.offset:]
	rva := binary.LittleEndian.Uint32(raw[0:])
	size := binary.LittleEndian.Uint32(raw[4:])

	if rva < d.base {
		return Range{}, fmt.Errorf("%w: data at RVA 0x%x before resource section (0x%x)",
			ErrMalformedResourceEntry, rva, d.base)
	}

	off := uint64(rva-d.base) + uint64(d.offset)
	if off+uint64(size) > uint64(d.size) {
		return Range{}, fmt.Errorf("%w: data at 0x%x+0x%x past end of file (0x%x)",
			ErrMalformedResourceEntry, off, size, d.size)
	}

	return Range{Offset: int(off), Length: int(size)}, nil
}

// name reads an IMAGE_RESOURCE_DIR_STRING_U for error messages.
func (d *directory) name(e entry) string {
	off := uint64(e.name &^ highBit)
	if off+2 > uint64(len(d.data)) {
		return ""
	}

	n := uint64(binary.LittleEndian.Uint16(d.data[off:]))
	if off+2+n*2 > uint64(len(d.data)) {
		return ""
	}

	chars := make([]uint16, n)
	for i := range chars {
		chars[i] = binary.LittleEndian.Uint16(d.data[off+2+uint64(i)*2:])
	}
	return string(utf16.Decode(chars))
}
