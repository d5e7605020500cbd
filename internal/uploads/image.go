package uploads

import (
	"bytes"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

// profile photos are normalized to fit this bounding box before storage.
const (
	photoMaxWidth  = 512
	photoMaxHeight = 512
)

// NormalizePhoto decodes an uploaded image, proving it really is one,
// downscales anything larger than the bounding box and re-encodes it as
// JPEG. EXIF orientation is applied so phone photos come out upright.
func NormalizePhoto(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > photoMaxWidth || bounds.Dy() > photoMaxHeight {
		img = imaging.Fit(img, photoMaxWidth, photoMaxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode photo: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail renders a video poster frame substitute from an uploaded cover
// image, cropped to the player's 16:9 card.
func Thumbnail(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img = imaging.Fill(img, 640, 360, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
