package render

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/hypertrack/pkg/frame"
	"github.com/stretchr/testify/require"
)

func grayFrame(t *testing.T, width, height int, v float64) *frame.Frame {
	pix := make([]float64, width*height)
	for i := range pix {
		pix[i] = v
	}
	f, err := frame.New(width, height, pix)
	require.NoError(t, err)
	return f
}

func TestEmitPNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := NewBoxWriter(dir)
	require.NoError(t, err)
	f := grayFrame(t, 64, 48, 51)
	box := frame.Rect{X: 20, Y: 10, Width: 20, Height: 20}
	require.NoError(t, w.Emit(f, "0001.png", box))

	file, err := os.Open(filepath.Join(dir, "0001.png"))
	require.NoError(t, err)
	defer file.Close()
	img, err := png.Decode(file)
	require.NoError(t, err)
	require.Equal(t, 64, img.Bounds().Dx())
	require.Equal(t, 48, img.Bounds().Dy())

	// On the left edge of the box
	r, g, b, _ := img.At(box.X, box.Y+box.Height/2).RGBA()
	require.Greater(t, r>>8, uint32(200))
	require.Less(t, g>>8, uint32(60))
	require.Less(t, b>>8, uint32(60))

	// Inside the box, and far outside it, the frame is untouched
	for _, p := range []frame.Point{box.Center(), {X: 2, Y: 2}} {
		r, g, b, _ = img.At(p.X, p.Y).RGBA()
		require.Equal(t, uint32(51), r>>8)
		require.Equal(t, uint32(51), g>>8)
		require.Equal(t, uint32(51), b>>8)
	}
}

func TestEmitJPEG(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBoxWriter(dir)
	require.NoError(t, err)
	f := grayFrame(t, 64, 48, 100)
	require.NoError(t, w.Emit(f, "0002.jpg", frame.Rect{X: 10, Y: 10, Width: 16, Height: 16}))

	img, err := cimg.ReadFile(filepath.Join(dir, "0002.jpg"))
	require.NoError(t, err)
	require.Equal(t, 64, img.Width)
	require.Equal(t, 48, img.Height)
}
