package services

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// MaxDetectionDimension matches the detection model's input size; larger
// uploads only cost bandwidth.
const MaxDetectionDimension = 640

// NormalizeScanImage decodes an uploaded photo, downscales it so neither
// side exceeds maxDim, and re-encodes it as JPEG for the detection service.
// Images already within bounds are still re-encoded so the upload is always
// image/jpeg regardless of what the device produced.
func NormalizeScanImage(data []byte, maxDim uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding scan image: %w", err)
	}

	bounds := img.Bounds()
	if uint(bounds.Dx()) > maxDim || uint(bounds.Dy()) > maxDim {
		img = resize.Thumbnail(maxDim, maxDim, img, resize.Bicubic)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encoding scan image: %w", err)
	}
	return buf.Bytes(), nil
}
