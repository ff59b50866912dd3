package exe

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"exeskin/dib"
	"exeskin/rsrc"
	"exeskin/rsrc/rsrctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func open(t *testing.T, im *rsrctest.Image) (*Image, *rsrctest.Built) {
	t.Helper()
	built := im.Build()
	exe, err := Open(built.Bytes)
	require.NoError(t, err)
	return exe, built
}

func TestOpen(t *testing.T) {
	im, built := open(t, &rsrctest.Image{Bitmaps: []rsrctest.Bitmap{
		{ID: 30, Data: rsrctest.DIB(4, 2, 24, 0)},
		{ID: 2, Data: rsrctest.DIB(16, 16, 4, 0)},
		{ID: 11, Data: rsrctest.DIB(3, 1, 8, 7)},
	}})

	got := im.Bitmaps()
	require.Len(t, got, 3)

	assert.Equal(t, uint16(2), got[0].ID)
	assert.Equal(t, dib.Header{Width: 16, Height: 16, BitDepth: 4}, got[0].Header)
	assert.Equal(t, uint16(11), got[1].ID)
	assert.Equal(t, dib.Header{Width: 3, Height: 1, BitDepth: 8, PaletteSize: 7}, got[1].Header)
	assert.Equal(t, uint16(30), got[2].ID)
	assert.Equal(t, dib.Header{Width: 4, Height: 2, BitDepth: 24}, got[2].Header)

	want := int(built.DataRVA[30]) - rsrctest.ResourceVA + built.ResourceOffset
	assert.Equal(t, rsrc.Range{Offset: want, Length: len(rsrctest.DIB(4, 2, 24, 0))}, got[2].Range)

	assert.Equal(t, built.Bytes, im.Bytes())
}

func TestOpenCopiesInput(t *testing.T) {
	built := (&rsrctest.Image{Bitmaps: []rsrctest.Bitmap{{ID: 1, Data: rsrctest.DIB(1, 1, 32, 0)}}}).Build()
	orig := bytes.Clone(built.Bytes)

	im, err := Open(built.Bytes)
	require.NoError(t, err)
	require.NoError(t, im.PatchImage(1, []byte{1, 2, 3, 4}))

	assert.Equal(t, orig, built.Bytes)
	assert.NotEqual(t, orig, im.Bytes())
}

func TestOpenBadHeader(t *testing.T) {
	_, err := Open((&rsrctest.Image{Bitmaps: []rsrctest.Bitmap{
		{ID: 1, Data: rsrctest.DIB(1, 1, 24, 0)},
		{ID: 2, Data: make([]byte, 20)},
	}}).Build().Bytes)
	assert.ErrorIs(t, err, dib.ErrHeaderTooShort)

	_, err = Open((&rsrctest.Image{Bitmaps: []rsrctest.Bitmap{
		{ID: 1, Data: rsrctest.DIB(1, 1, 12, 0)},
	}}).Build().Bytes)
	assert.ErrorIs(t, err, dib.ErrUnsupportedBitDepth)

	_, err = Open((&rsrctest.Image{OmitResources: true}).Build().Bytes)
	assert.ErrorIs(t, err, rsrc.ErrMissingSection)
}

func TestReadPatchImage(t *testing.T) {
	im, _ := open(t, &rsrctest.Image{Bitmaps: []rsrctest.Bitmap{
		{ID: 1, Data: rsrctest.DIB(2, 2, 4, 0)},
		{ID: 2, Data: rsrctest.DIB(2, 1, 24, 0)},
	}})
	untouched, err := im.ReadImage(2)
	require.NoError(t, err)

	pix := []byte{
		0xff, 0x00, 0x00, 0xff, 0x00, 0xff, 0x00, 0xff,
		0x00, 0xff, 0x00, 0xff, 0xff, 0x00, 0x00, 0xff,
	}
	require.NoError(t, im.PatchImage(1, pix))

	got, err := im.ReadImage(1)
	require.NoError(t, err)
	assert.Equal(t, pix, got)

	pal, err := im.ReadPalette(1)
	require.NoError(t, err)
	assert.Len(t, pal, 16)
	assert.Equal(t, uint8(0xff), pal[0].R)
	assert.Equal(t, uint8(0xff), pal[1].G)

	got, err = im.ReadImage(2)
	require.NoError(t, err)
	assert.Equal(t, untouched, got)

	pal, err = im.ReadPalette(2)
	require.NoError(t, err)
	assert.Nil(t, pal)
}

func TestPatchImageErrorsLeaveBufferAlone(t *testing.T) {
	im, built := open(t, &rsrctest.Image{Bitmaps: []rsrctest.Bitmap{
		{ID: 5, Data: rsrctest.DIB(3, 1, 1, 0)},
	}})

	err := im.PatchImage(5, make([]byte, 4))
	assert.ErrorIs(t, err, dib.ErrWrongPixelBufferSize)
	assert.Equal(t, built.Bytes, im.Bytes())

	err = im.PatchImage(5, []byte{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3})
	assert.ErrorIs(t, err, dib.ErrTooManyColours)
	assert.Equal(t, built.Bytes, im.Bytes())
}

func TestUnknownID(t *testing.T) {
	im, _ := open(t, &rsrctest.Image{Bitmaps: []rsrctest.Bitmap{{ID: 1, Data: rsrctest.DIB(1, 1, 24, 0)}}})

	_, err := im.ReadImage(2)
	assert.ErrorIs(t, err, ErrUnknownResourceID)

	err = im.PatchImage(2, make([]byte, 4))
	assert.ErrorIs(t, err, ErrUnknownResourceID)

	_, err = im.ReadPalette(2)
	assert.ErrorIs(t, err, ErrUnknownResourceID)
}

func TestPatchColours(t *testing.T) {
	code := []byte{
		0x68, 0x11, 0x22, 0x33, 0x00, // push 0x00332211
		0xb9, 0x11, 0x22, 0x33, 0x00, // mov ecx, 0x00332211
		0xb8, 0x11, 0x22, 0x33, 0x00, // mov eax, 0x00332211
		0x68, 0xaa, 0xbb, 0xcc, 0x00, // push 0x00ccbbaa
		0xc3,
	}
	im, built := open(t, &rsrctest.Image{Code: code})

	report, err := im.PatchColours(quiet, []Swap{
		{From: 0x112233, To: 0x445566},
		{From: 0xaabbcc, To: 0x010203},
	})
	require.NoError(t, err)

	assert.Len(t, report.Replaced, 3)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, built.CodeOffset+11, report.Skipped[0].Offset)
	assert.Equal(t, byte(0xb8), report.Skipped[0].Prefix)

	got := im.Code().Slice(im.Bytes())[:len(code)]
	assert.Equal(t, []byte{
		0x68, 0x44, 0x55, 0x66, 0x00,
		0xb9, 0x44, 0x55, 0x66, 0x00,
		0xb8, 0x11, 0x22, 0x33, 0x00,
		0x68, 0x01, 0x02, 0x03, 0x00,
		0xc3,
	}, got)
}

func TestPatchColoursAtStart(t *testing.T) {
	im, _ := open(t, &rsrctest.Image{Code: []byte{0x11, 0x22, 0x33, 0x00, 0xc3}})

	report, err := im.PatchColours(quiet, []Swap{{From: 0x112233, To: 0}})
	require.NoError(t, err)
	assert.Empty(t, report.Replaced)
	require.Len(t, report.Skipped, 1)
	assert.True(t, report.Skipped[0].AtStart)
}

func TestPatchColoursFirstSwapWins(t *testing.T) {
	im, _ := open(t, &rsrctest.Image{Code: []byte{0x68, 0x11, 0x22, 0x33, 0x00}})

	_, err := im.PatchColours(quiet, []Swap{
		{From: 0x112233, To: 0x0000ff},
		{From: 0x112233, To: 0x00ff00},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x68, 0x00, 0x00, 0xff, 0x00}, im.Code().Slice(im.Bytes())[:5])
}

func TestPatchColoursInvalid(t *testing.T) {
	im, _ := open(t, &rsrctest.Image{Code: []byte{0xc3}})

	_, err := im.PatchColours(quiet, []Swap{{From: 0x1000000, To: 0}})
	assert.ErrorIs(t, err, ErrInvalidColour)
}
