// Package render draws the tracked box onto frames and writes them out
package render

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/hypertrack/pkg/frame"
	"github.com/fogleman/gg"
)

// BoxWriter writes each frame to Dir, under its original name, with the target box drawn on top
type BoxWriter struct {
	Dir         string
	Color       color.Color
	LineWidth   float64
	JPEGQuality int
}

func NewBoxWriter(dir string) (*BoxWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("Failed to create output directory %v: %w", dir, err)
	}
	return &BoxWriter{
		Dir:         dir,
		Color:       color.RGBA{R: 255, A: 255},
		LineWidth:   3,
		JPEGQuality: 90,
	}, nil
}

// Draw returns an RGB copy of f with box outlined
func (w *BoxWriter) Draw(f *frame.Frame, box frame.Rect) image.Image {
	dc := gg.NewContextForImage(f.ToImage())
	dc.SetColor(w.Color)
	dc.SetLineWidth(w.LineWidth)
	dc.DrawRectangle(float64(box.X), float64(box.Y), float64(box.Width), float64(box.Height))
	dc.Stroke()
	return dc.Image()
}

// Emit draws the box and writes the result. PNG names are written as PNG, anything else as JPEG.
func (w *BoxWriter) Emit(f *frame.Frame, name string, box frame.Rect) error {
	img := w.Draw(f, box)
	filename := filepath.Join(w.Dir, name)
	if strings.ToLower(filepath.Ext(name)) == ".png" {
		return gg.SavePNG(filename, img)
	}
	return toCImage(img).WriteJPEG(filename, cimg.MakeCompressParams(cimg.Sampling444, w.JPEGQuality, 0), 0644)
}

func toCImage(img image.Image) *cimg.Image {
	b := img.Bounds()
	out := cimg.NewImage(b.Dx(), b.Dy(), cimg.PixelFormatRGB)
	for y := 0; y < b.Dy(); y++ {
		row := out.Pixels[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			row[x*3] = uint8(r >> 8)
			row[x*3+1] = uint8(g >> 8)
			row[x*3+2] = uint8(bl >> 8)
		}
	}
	return out
}
