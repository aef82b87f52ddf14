// Package photoproc validates and compresses uploaded intervention photos.
package photoproc

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/dmitrijs2005/fleetzen/internal/common"
)

// OutputMIME is the content type of every compressed photo.
const OutputMIME = "image/jpeg"

var allowedMIME = []string{"image/jpeg", "image/png", "image/webp"}

// DetectMIME sniffs the content type and rejects anything outside the
// jpeg/png/webp allow-list.
func DetectMIME(data []byte) (string, error) {
	m := mimetype.Detect(data)
	for _, a := range allowedMIME {
		if m.Is(a) {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %s", common.ErrUnsupportedMedia, m.String())
}

type Options struct {
	MaxDimension int
	TargetBytes  int
	StartQuality int
	MinQuality   int
	QualityStep  int
}

func DefaultOptions() Options {
	return Options{
		MaxDimension: 1920,
		TargetBytes:  1 << 20,
		StartQuality: 85,
		MinQuality:   40,
		QualityStep:  10,
	}
}

// maxDownscales bounds how often Compress shrinks an image that stays over
// TargetBytes at MinQuality.
const maxDownscales = 4

// Compress decodes data, fits it into MaxDimension on both axes and
// re-encodes it as JPEG, lowering the quality until the result is at most
// TargetBytes. At MinQuality the image is shrunk to 3/4 per side and
// encoded again. Returns common.ErrPayloadTooLarge when the target cannot
// be met.
func Compress(data []byte, opts Options) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", common.ErrUnsupportedMedia, err)
	}

	b := img.Bounds()
	if opts.MaxDimension > 0 && (b.Dx() > opts.MaxDimension || b.Dy() > opts.MaxDimension) {
		img = imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
	}

	step := opts.QualityStep
	if step <= 0 {
		step = 10
	}
	fits := func(n int) bool { return opts.TargetBytes <= 0 || n <= opts.TargetBytes }

	var buf bytes.Buffer
	for q := opts.StartQuality; ; q -= step {
		if q < opts.MinQuality {
			q = opts.MinQuality
		}
		if err := encode(&buf, img, q); err != nil {
			return nil, err
		}
		if fits(buf.Len()) || q <= opts.MinQuality {
			break
		}
	}

	for i := 0; !fits(buf.Len()); i++ {
		w, h := img.Bounds().Dx()*3/4, img.Bounds().Dy()*3/4
		if i == maxDownscales || w < 1 || h < 1 {
			return nil, fmt.Errorf("%w: photo stays above %d bytes after compression", common.ErrPayloadTooLarge, opts.TargetBytes)
		}
		img = imaging.Resize(img, w, h, imaging.Lanczos)
		if err := encode(&buf, img, opts.MinQuality); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, img image.Image, quality int) error {
	buf.Reset()
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}
