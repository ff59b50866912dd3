package rsrc_test

import (
	"encoding/binary"
	"testing"

	"exeskin/rsrc"
	"exeskin/rsrc/rsrctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate(t *testing.T) {
	im := &rsrctest.Image{
		Code:       []byte{0x68, 0x11, 0x22, 0x33, 0x00, 0xc3},
		OtherTypes: []uint16{1},
		Bitmaps: []rsrctest.Bitmap{
			{ID: 101, Data: []byte("first bitmap")},
			{ID: 7, Data: []byte("second"), Alternate: []byte("localised copy")},
		},
	}
	built := im.Build()

	layout, err := rsrc.Locate(built.Bytes)
	require.NoError(t, err)

	assert.Equal(t, rsrc.Range{Offset: built.CodeOffset, Length: 0x200}, layout.Code)
	assert.Equal(t, im.Code, layout.Code.Slice(built.Bytes)[:len(im.Code)])

	require.Len(t, layout.Bitmaps, 2)
	for _, b := range im.Bitmaps {
		r, ok := layout.Bitmaps[b.ID]
		require.True(t, ok, "bitmap %d", b.ID)

		want := int(built.DataRVA[b.ID]) - rsrctest.ResourceVA + built.ResourceOffset
		assert.Equal(t, want, r.Offset, "bitmap %d", b.ID)
		assert.Equal(t, len(b.Data), r.Length, "bitmap %d", b.ID)
		assert.Equal(t, b.Data, r.Slice(built.Bytes), "bitmap %d", b.ID)
	}
}

func TestLocateNoBitmaps(t *testing.T) {
	built := (&rsrctest.Image{Code: []byte{0x90}}).Build()

	layout, err := rsrc.Locate(built.Bytes)
	require.NoError(t, err)
	assert.Empty(t, layout.Bitmaps)
}

func TestLocateErrors(t *testing.T) {
	tests := []struct {
		name string
		im   rsrctest.Image
		err  error
	}{
		{"no code section", rsrctest.Image{OmitCode: true}, rsrc.ErrMissingSection},
		{"no resource section", rsrctest.Image{OmitResources: true}, rsrc.ErrMissingSection},
		{"no bitmap type", rsrctest.Image{OmitBitmapType: true, OtherTypes: []uint16{3, 14}}, rsrc.ErrMissingResourceType},
		{"named bitmap", rsrctest.Image{Bitmaps: []rsrctest.Bitmap{
			{ID: 1, Data: []byte{1}},
			{Name: "LOGO", Data: []byte{2}},
		}}, rsrc.ErrNonIDResourceName},
		{"no languages", rsrctest.Image{Bitmaps: []rsrctest.Bitmap{
			{ID: 1, NoLanguages: true},
		}}, rsrc.ErrMalformedResourceEntry},
		{"leaf is directory", rsrctest.Image{Bitmaps: []rsrctest.Bitmap{
			{ID: 1, Data: []byte{1}, LeafIsDir: true},
		}}, rsrc.ErrMalformedResourceEntry},
		{"id above 16 bits", rsrctest.Image{Bitmaps: []rsrctest.Bitmap{
			{ID: 5, Data: []byte{1}},
			{RawID: 0x10005, Data: []byte{2}},
		}}, rsrc.ErrMalformedResourceEntry},
		{"duplicate id", rsrctest.Image{Bitmaps: []rsrctest.Bitmap{
			{ID: 5, Data: []byte{1}},
			{ID: 5, Data: []byte{2}},
		}}, rsrc.ErrMalformedResourceEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rsrc.Locate(tt.im.Build().Bytes)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLocateNamedBitmapMessage(t *testing.T) {
	im := &rsrctest.Image{Bitmaps: []rsrctest.Bitmap{{Name: "LOGO", Data: []byte{2}}}}
	_, err := rsrc.Locate(im.Build().Bytes)
	require.ErrorIs(t, err, rsrc.ErrNonIDResourceName)
	assert.Contains(t, err.Error(), `"LOGO"`)
}

func TestLocateBadIDMessages(t *testing.T) {
	im := &rsrctest.Image{Bitmaps: []rsrctest.Bitmap{{RawID: 0x7fff0001, Data: []byte{1}}}}
	_, err := rsrc.Locate(im.Build().Bytes)
	assert.ErrorContains(t, err, "bitmap id 0x7fff0001 out of range")

	im = &rsrctest.Image{Bitmaps: []rsrctest.Bitmap{
		{ID: 9, Data: []byte{1}},
		{ID: 9, Data: []byte{2}},
	}}
	_, err = rsrc.Locate(im.Build().Bytes)
	assert.ErrorContains(t, err, "bitmap 9 listed twice")
}

func TestLocateDataOutOfBounds(t *testing.T) {
	im := &rsrctest.Image{Bitmaps: []rsrctest.Bitmap{{ID: 1, Data: []byte{1, 2, 3, 4}}}}
	built := im.Build()

	layout, err := rsrc.Locate(built.Bytes)
	require.NoError(t, err)

	// grow the stored size past the end of the file
	entry := findDataEntry(t, built, layout.Bitmaps[1])
	binary.LittleEndian.PutUint32(built.Bytes[entry+4:], 0x10000)

	_, err = rsrc.Locate(built.Bytes)
	assert.ErrorIs(t, err, rsrc.ErrMalformedResourceEntry)

	// point the data before the section
	binary.LittleEndian.PutUint32(built.Bytes[entry+4:], 4)
	binary.LittleEndian.PutUint32(built.Bytes[entry:], rsrctest.ResourceVA-1)

	_, err = rsrc.Locate(built.Bytes)
	assert.ErrorIs(t, err, rsrc.ErrMalformedResourceEntry)
}

func TestLocateNotPE(t *testing.T) {
	_, err := rsrc.Locate([]byte("MZ not really an executable"))
	assert.ErrorIs(t, err, rsrc.ErrMalformedImage)

	_, err = rsrc.Locate(nil)
	assert.ErrorIs(t, err, rsrc.ErrMalformedImage)
}

func TestLocateTruncatedDirectory(t *testing.T) {
	im := &rsrctest.Image{Bitmaps: []rsrctest.Bitmap{{ID: 1, Data: []byte{1}}}}
	built := im.Build()

	// claim more root entries than the section holds
	root := built.ResourceOffset
	binary.LittleEndian.PutUint16(built.Bytes[root+14:], 0xfff)

	_, err := rsrc.Locate(built.Bytes)
	assert.ErrorIs(t, err, rsrc.ErrMalformedResourceEntry)
}

// findDataEntry returns the file offset of the data entry pointing at r.
func findDataEntry(t *testing.T, built *rsrctest.Built, r rsrc.Range) int {
	t.Helper()

	rva := uint32(r.Offset - built.ResourceOffset + rsrctest.ResourceVA)
	for off := built.ResourceOffset; off+8 <= len(built.Bytes); off += 4 {
		if binary.LittleEndian.Uint32(built.Bytes[off:]) == rva &&
			binary.LittleEndian.Uint32(built.Bytes[off+4:]) == uint32(r.Length) {
			return off
		}
	}
	t.Fatalf("no data entry for %v", r)
	return 0
}
