package photoproc

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/fleetzen/internal/common"
)

func pngBytes(t *testing.T, w, h int, noise bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r := rand.New(rand.NewSource(1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255}
			if noise {
				c = color.RGBA{R: uint8(r.Intn(256)), G: uint8(r.Intn(256)), B: uint8(r.Intn(256)), A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetectMIME(t *testing.T) {
	got, err := DetectMIME(pngBytes(t, 4, 4, false))
	require.NoError(t, err)
	assert.Equal(t, "image/png", got)

	_, err = DetectMIME([]byte("%PDF-1.4 not a photo"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnsupportedMedia)
}

func TestCompress_FitsLongestSide(t *testing.T) {
	out, err := Compress(pngBytes(t, 3000, 150, false), DefaultOptions())
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 1920, img.Bounds().Dx())
	assert.Equal(t, 96, img.Bounds().Dy())

	mime, err := DetectMIME(out)
	require.NoError(t, err)
	assert.Equal(t, OutputMIME, mime)
}

func TestCompress_SmallImageKeepsSize(t *testing.T) {
	out, err := Compress(pngBytes(t, 64, 32, false), DefaultOptions())
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestCompress_LowersQualityForTarget(t *testing.T) {
	src := pngBytes(t, 300, 300, true)

	loose := DefaultOptions()
	loose.TargetBytes = 0
	big, err := Compress(src, loose)
	require.NoError(t, err)

	tight := DefaultOptions()
	tight.TargetBytes = len(big) * 3 / 4
	small, err := Compress(src, tight)
	require.NoError(t, err)

	assert.Less(t, len(small), len(big))
	assert.LessOrEqual(t, len(small), tight.TargetBytes)
}

func TestCompress_DownscalesBelowMinQuality(t *testing.T) {
	src := pngBytes(t, 400, 400, true)

	floor := DefaultOptions()
	floor.StartQuality = floor.MinQuality
	floor.TargetBytes = 0
	atMin, err := Compress(src, floor)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.TargetBytes = len(atMin) / 2
	out, err := Compress(src, opts)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), opts.TargetBytes)

	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Less(t, img.Bounds().Dx(), 400)
}

func TestCompress_UnreachableTargetIsTooLarge(t *testing.T) {
	opts := DefaultOptions()
	opts.TargetBytes = 1
	_, err := Compress(pngBytes(t, 300, 300, true), opts)
	assert.ErrorIs(t, err, common.ErrPayloadTooLarge)
}

func TestCompress_RejectsGarbage(t *testing.T) {
	_, err := Compress([]byte("nope"), DefaultOptions())
	assert.ErrorIs(t, err, common.ErrUnsupportedMedia)
}
