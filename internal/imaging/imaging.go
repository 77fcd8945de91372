// Package imaging converts uploaded pictures into the flat grayscale buffers
// the keypoint network reads.
package imaging

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
)

// Decode reads a JPEG or PNG image.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// ToInput resizes img to size×size and returns its luminance in [0, 1],
// one value per pixel in row-major order.
func ToInput(img image.Image, size int) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	bounds := resized.Bounds()

	out := make([]float32, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			g := color.Gray16Model.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			out[y*size+x] = float32(g.Y) / 65535.0
		}
	}
	return out
}

// Load decodes r and converts it with ToInput.
func Load(r io.Reader, size int) ([]float32, error) {
	img, _, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return ToInput(img, size), nil
}
