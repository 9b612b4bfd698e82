package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/hypertrack/pkg/stats"
)

var ErrEmptyFrame = errors.New("Frame has zero width or height")

// Frame is a grayscale raster. Intensities are on a 0..255 scale.
// A Frame must not be modified after it has been handed to the tracker.
type Frame struct {
	Width  int
	Height int
	Pix    []float64 // Row major, len = Width * Height
}

// New wraps pix (row major) into a Frame. pix is not copied.
func New(width, height int, pix []float64) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyFrame
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("Frame %v x %v needs %v pixels, but got %v", width, height, width*height, len(pix))
	}
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    pix,
	}, nil
}

func (f *Frame) At(x, y int) float64 {
	return f.Pix[y*f.Width+x]
}

func (f *Frame) Bounds() Rect {
	return Rect{Width: f.Width, Height: f.Height}
}

func luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

// FromCImage converts a decoded image to grayscale.
// 1 channel images are taken as-is, otherwise the first 3 channels are treated as RGB.
func FromCImage(img *cimg.Image) (*Frame, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return nil, ErrEmptyFrame
	}
	nchan := img.NChan()
	if nchan != 1 && nchan < 3 {
		return nil, fmt.Errorf("Unsupported image with %v channels", nchan)
	}
	pix := make([]float64, img.Width*img.Height)
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride:]
		dst := pix[y*img.Width : (y+1)*img.Width]
		for x := 0; x < img.Width; x++ {
			if nchan == 1 {
				dst[x] = float64(src[x])
			} else {
				p := src[x*nchan:]
				dst[x] = luma(float64(p[0]), float64(p[1]), float64(p[2]))
			}
		}
	}
	return New(img.Width, img.Height, pix)
}

// FromImage converts any image.Image to grayscale
func FromImage(img image.Image) (*Frame, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyFrame
	}
	pix := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// RGBA() is 16 bits per channel
			pix[y*width+x] = luma(float64(r>>8), float64(g>>8), float64(bl>>8))
		}
	}
	return New(width, height, pix)
}

// ToImage returns an 8-bit copy of the frame
func (f *Frame) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := stats.Clamp(f.At(x, y), 0, 255)
			img.SetGray(x, y, color.Gray{Y: uint8(v + 0.5)})
		}
	}
	return img
}
