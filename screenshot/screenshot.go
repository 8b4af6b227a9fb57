package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/kbinani/screenshot"
	"golang.org/x/image/draw"
)

// Region represents a screen region to capture, in absolute virtual-screen
// coordinates.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Valid reports whether the region has positive dimensions.
func (r Region) Valid() bool { return r.Width > 0 && r.Height > 0 }

func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)
}

// upscaleFactor enlarges captures before OCR. Tesseract accuracy degrades
// badly on small on-screen text; 3x is the observed sweet spot.
const upscaleFactor = 3

// binarizeThreshold splits grayscale pixels into pure black/white.
const binarizeThreshold = 128

// CaptureRegion captures a specific region of the screen.
func CaptureRegion(region Region) (*image.RGBA, error) {
	if !region.Valid() {
		return nil, fmt.Errorf("invalid region dimensions: width=%d, height=%d", region.Width, region.Height)
	}
	if screenshot.NumActiveDisplays() == 0 {
		return nil, fmt.Errorf("no active displays found")
	}

	rect := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height)
	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("failed to capture region %s: %w", region, err)
	}
	return img, nil
}

// Preprocess prepares a capture for OCR: grayscale, 3x upscale with
// Catmull-Rom resampling, then binarization at a fixed threshold. Both
// the numeric and the free-text field share this transform.
func Preprocess(src image.Image) *image.Gray {
	b := src.Bounds()

	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)

	scaled := image.NewGray(image.Rect(0, 0, b.Dx()*upscaleFactor, b.Dy()*upscaleFactor))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	for i, px := range scaled.Pix {
		if px < binarizeThreshold {
			scaled.Pix[i] = 0
		} else {
			scaled.Pix[i] = 255
		}
	}
	return scaled
}

// EncodePNG encodes an image as PNG bytes for the OCR engine.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
