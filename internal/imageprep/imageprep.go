// Package imageprep normalizes local product images before upload so they
// respect the editing services' pixel limits.
package imageprep

import (
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// MaxDimension is the largest edge length sent to the editing services.
const MaxDimension = 2048

// NormalizeFile decodes the image at path, downscales it to fit within
// maxDim on both edges, and writes the result as a PNG into dir with the
// same base name. Images already within bounds are still re-encoded so
// every upload is a PNG. The returned path is the caller's to remove.
func NormalizeFile(path string, maxDim int, dir string) (string, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to decode image %s: %w", filepath.Base(path), err)
	}

	img = FitWithin(img, maxDim)

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(dir, base+".png")
	if err := imaging.Save(img, out); err != nil {
		return "", fmt.Errorf("failed to encode normalized image: %w", err)
	}

	return out, nil
}

// FitWithin downscales img so both edges are at most maxDim. Smaller images
// pass through untouched; product photos are never upscaled.
func FitWithin(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
}

// CenterCrop crops img to the target aspect ratio around its center and
// resizes to exactly width x height.
func CenterCrop(img image.Image, width, height int) image.Image {
	return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
}

// EncodePNG writes img as PNG to w.
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

// Decode reads an image from r.
func Decode(r io.Reader) (image.Image, error) {
	return imaging.Decode(r)
}
