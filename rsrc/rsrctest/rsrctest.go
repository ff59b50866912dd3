// Package rsrctest builds minimal PE32 executables with a resource
// directory for tests.
package rsrctest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"unicode/utf16"

	"exeskin/dib"
)

const (
	CodeVA     = 0x1000
	ResourceVA = 0x4000

	typeBitmap = 2
	highBit    = 0x80000000
	peOffset   = 0x40
	fileAlign  = 0x200
)

// Bitmap is one RT_BITMAP resource.
type Bitmap struct {
	ID uint16
	// RawID, when set, is written as the entry's id in place of ID.
	RawID uint32
	// Name, when set, identifies the entry by name instead of ID.
	Name string
	Data []byte
	// Alternate adds a second language entry holding this data.
	Alternate []byte
	// NoLanguages leaves the language directory empty.
	NoLanguages bool
	// LeafIsDir points the language entry at a directory.
	LeafIsDir bool
}

// Image describes the executable to build.
type Image struct {
	Code    []byte
	Bitmaps []Bitmap
	// OtherTypes are resource types listed before RT_BITMAP, each with an
	// empty directory.
	OtherTypes     []uint16
	OmitBitmapType bool
	OmitCode       bool
	OmitResources  bool
}

// Built is an assembled executable.
type Built struct {
	Bytes          []byte
	CodeOffset     int
	ResourceOffset int
	// DataRVA is the RVA stored in the data entry of each bitmap.
	DataRVA map[uint16]uint32
}

// Build assembles the image. Section file offsets differ from their
// virtual addresses so RVA conversion is exercised.
func (im *Image) Build() *Built {
	res := &Built{DataRVA: make(map[uint16]uint32)}

	code := pad(bytes.Clone(im.Code), fileAlign)
	tree := im.tree(res.DataRVA)

	var sections []pe.SectionHeader32
	off := uint32(fileAlign)
	if !im.OmitCode {
		sections = append(sections, section(".text", CodeVA, off, uint32(len(im.Code)), uint32(len(code))))
		res.CodeOffset = int(off)
		off += uint32(len(code))
	}
	if !im.OmitResources {
		sections = append(sections, section(".rsrc", ResourceVA, off, uint32(len(tree)), uint32(len(tree))))
		res.ResourceOffset = int(off)
	}

	var buf bytes.Buffer
	dos := make([]byte, peOffset)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3c:], peOffset)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	opt := pe.OptionalHeader32{
		Magic:               0x10b,
		ImageBase:           0x400000,
		SectionAlignment:    0x1000,
		FileAlignment:       fileAlign,
		SizeOfImage:         ResourceVA + 0x1000,
		SizeOfHeaders:       fileAlign,
		Subsystem:           pe.IMAGE_SUBSYSTEM_WINDOWS_GUI,
		NumberOfRvaAndSizes: 16,
	}
	if !im.OmitResources {
		opt.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_RESOURCE] = pe.DataDirectory{
			VirtualAddress: ResourceVA,
			Size:           uint32(len(tree)),
		}
	}

	must(binary.Write(&buf, binary.LittleEndian, pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     uint16(len(sections)),
		SizeOfOptionalHeader: uint16(binary.Size(opt)),
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_32BIT_MACHINE,
	}))
	must(binary.Write(&buf, binary.LittleEndian, opt))
	must(binary.Write(&buf, binary.LittleEndian, sections))

	out := pad(buf.Bytes(), fileAlign)
	if !im.OmitCode {
		out = append(out, code...)
	}
	if !im.OmitResources {
		out = append(out, tree...)
	}
	res.Bytes = out
	return res
}

func (im *Image) tree(rvas map[uint16]uint32) []byte {
	t := &tree{}

	types := len(im.OtherTypes)
	if !im.OmitBitmapType {
		types++
	}
	root := t.dir(0, types)

	for i, typ := range im.OtherTypes {
		t.entry(root, i, uint32(typ), uint32(t.dir(0, 0))|highBit)
	}
	if im.OmitBitmapType {
		return t.buf
	}

	var named int
	for _, b := range im.Bitmaps {
		if b.Name != "" {
			named++
		}
	}
	names := t.dir(named, len(im.Bitmaps)-named)
	t.entry(root, len(im.OtherTypes), typeBitmap, uint32(names)|highBit)

	type pending struct {
		id    uint16
		entry int
		data  []byte
	}
	var leaves []pending

	for i, b := range im.Bitmaps {
		var blobs [][]byte
		if !b.NoLanguages {
			blobs = append(blobs, b.Data)
			if b.Alternate != nil {
				blobs = append(blobs, b.Alternate)
			}
		}

		langs := t.dir(0, len(blobs))
		nameOrID := uint32(b.ID)
		if b.RawID != 0 {
			nameOrID = b.RawID
		}
		if b.Name != "" {
			nameOrID = uint32(t.str(b.Name)) | highBit
		}
		t.entry(names, i, nameOrID, uint32(langs)|highBit)

		for j, data := range blobs {
			if b.LeafIsDir {
				t.entry(langs, j, uint32(0x409+j), uint32(t.dir(0, 0))|highBit)
				continue
			}
			leaf := t.alloc(16)
			t.entry(langs, j, uint32(0x409+j), uint32(leaf))
			leaves = append(leaves, pending{id: b.ID, entry: leaf, data: data})
		}
	}

	for _, l := range leaves {
		off := t.alloc(len(l.data))
		copy(t.buf[off:], l.data)
		rva := uint32(ResourceVA + off)
		binary.LittleEndian.PutUint32(t.buf[l.entry:], rva)
		binary.LittleEndian.PutUint32(t.buf[l.entry+4:], uint32(len(l.data)))
		if _, ok := rvas[l.id]; !ok {
			rvas[l.id] = rva
		}
	}

	return t.buf
}

type tree struct {
	buf []byte
}

// alloc reserves n zero bytes aligned to 4 and returns their offset.
func (t *tree) alloc(n int) int {
	t.buf = pad(t.buf, 4)
	off := len(t.buf)
	t.buf = append(t.buf, make([]byte, n)...)
	return off
}

func (t *tree) dir(named, ids int) int {
	off := t.alloc(16 + (named+ids)*8)
	binary.LittleEndian.PutUint16(t.buf[off+12:], uint16(named))
	binary.LittleEndian.PutUint16(t.buf[off+14:], uint16(ids))
	return off
}

func (t *tree) entry(dir, i int, name, offset uint32) {
	off := dir + 16 + i*8
	binary.LittleEndian.PutUint32(t.buf[off:], name)
	binary.LittleEndian.PutUint32(t.buf[off+4:], offset)
}

func (t *tree) str(s string) int {
	chars := utf16.Encode([]rune(s))
	off := t.alloc(2 + len(chars)*2)
	binary.LittleEndian.PutUint16(t.buf[off:], uint16(len(chars)))
	for i, c := range chars {
		binary.LittleEndian.PutUint16(t.buf[off+2+i*2:], c)
	}
	return off
}

func section(name string, va, off, virtualSize, rawSize uint32) pe.SectionHeader32 {
	s := pe.SectionHeader32{
		VirtualSize:      virtualSize,
		VirtualAddress:   va,
		SizeOfRawData:    rawSize,
		PointerToRawData: off,
	}
	copy(s.Name[:], name)
	return s
}

func pad(b []byte, align int) []byte {
	if r := len(b) % align; r != 0 {
		b = append(b, make([]byte, align-r)...)
	}
	return b
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// DIB builds a stored bitmap with a zeroed colour table and pixels.
func DIB(width, height uint32, depth uint16, paletteSize uint32) []byte {
	h := dib.Header{Width: width, Height: height, BitDepth: depth, PaletteSize: paletteSize}
	b := make([]byte, dib.InfoHeaderLen+int(h.PaletteEntries())*4+int(h.Stride())*int(height))
	binary.LittleEndian.PutUint32(b[0:], dib.InfoHeaderLen)
	binary.LittleEndian.PutUint32(b[4:], width)
	binary.LittleEndian.PutUint32(b[8:], height)
	binary.LittleEndian.PutUint16(b[12:], 1)
	binary.LittleEndian.PutUint16(b[14:], depth)
	binary.LittleEndian.PutUint32(b[32:], paletteSize)
	return b
}
