package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	"github.com/rwcarlsen/goexif/exif"
)

// maxThumbnailDimension bounds the longer edge of a saved thumbnail.
const maxThumbnailDimension = 512

// normalize decodes an uploaded image, strips any EXIF metadata (most
// relevant for JPEGs, which may carry camera/location data), downsizes it
// to maxThumbnailDimension on its longest edge, and re-encodes as PNG —
// the on-disk format for every thumbnail that normalizes successfully.
//
// webp uploads have no decoder in this stack; normalize returns an error
// for them and the caller falls back to storing the original bytes.
func normalize(mimeType string, payload []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if mimeType == "image/jpeg" {
		if x, err := exif.Decode(bytes.NewReader(payload)); err == nil {
			img = applyOrientation(img, x)
		}
	}

	bounds := img.Bounds()
	width, height := uint(bounds.Dx()), uint(bounds.Dy())
	resized := img
	if width > maxThumbnailDimension || height > maxThumbnailDimension {
		if width >= height {
			resized = resize.Resize(maxThumbnailDimension, 0, img, resize.Lanczos3)
		} else {
			resized = resize.Resize(0, maxThumbnailDimension, img, resize.Lanczos3)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, fmt.Errorf("encode thumbnail png: %w", err)
	}
	return buf.Bytes(), nil
}

// applyOrientation rotates/flips img per the JPEG EXIF orientation tag so
// the saved thumbnail displays upright regardless of how the source
// camera wrote it. Re-encoding to PNG afterwards drops the EXIF block
// entirely, which also strips any camera/location metadata it carried.
func applyOrientation(img image.Image, x *exif.Exif) image.Image {
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return img
	}

	switch orientation {
	case 3:
		return rotate180(img)
	case 6:
		return rotate90CW(img)
	case 8:
		return rotate90CCW(img)
	default:
		return img
	}
}
