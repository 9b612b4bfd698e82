package frame

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeom(t *testing.T) {
	a := Point{0, 0}
	b := Point{3, 4}
	require.Equal(t, float32(5), a.Distance(b))

	r := Rect{X: 10, Y: 20, Width: 30, Height: 40}
	require.Equal(t, Point{25, 40}, r.Center())
	require.Equal(t, 40, r.X2())
	require.Equal(t, 60, r.Y2())
	require.True(t, r.Contains(Point{10, 20}))
	require.False(t, r.Contains(Point{40, 20}))
	require.Equal(t, r, CenteredRect(r.Center(), 30, 40))
}

func TestParseRect(t *testing.T) {
	r, err := ParseRect("155, 64,63,69")
	require.NoError(t, err)
	require.Equal(t, Rect{X: 155, Y: 64, Width: 63, Height: 69}, r)

	_, err = ParseRect("1,2,3")
	require.Error(t, err)
	_, err = ParseRect("1,2,0,5")
	require.Error(t, err)
	_, err = ParseRect("a,2,3,4")
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	_, err := New(0, 10, nil)
	require.ErrorIs(t, err, ErrEmptyFrame)
	_, err = New(2, 2, make([]float64, 3))
	require.Error(t, err)
	f, err := New(2, 2, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, 3.0, f.At(0, 1))
	require.Equal(t, Rect{Width: 2, Height: 2}, f.Bounds())
}

func TestImageRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.RGBA{255, 255, 255, 255})
	img.Set(1, 0, color.RGBA{255, 0, 0, 255})
	f, err := FromImage(img)
	require.NoError(t, err)
	require.Equal(t, 3, f.Width)
	require.Equal(t, 2, f.Height)
	require.InDelta(t, 255, f.At(0, 0), 1e-9)
	require.InDelta(t, 0.299*255, f.At(1, 0), 1e-9)
	require.InDelta(t, 0, f.At(2, 1), 1e-9)

	gray := f.ToImage()
	require.Equal(t, uint8(255), gray.GrayAt(0, 0).Y)
	require.Equal(t, uint8(76), gray.GrayAt(1, 0).Y)
}

func writePNG(t *testing.T, filename string, v uint8) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	file, err := os.Create(filename)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, png.Encode(file, img))
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "0002.png"), 20)
	writePNG(t, filepath.Join(dir, "0001.png"), 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0755))

	src, err := NewDirSource(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"0001.png", "0002.png"}, src.Names)
	require.Equal(t, 2, src.Len())

	f, name, err := src.Load(1)
	require.NoError(t, err)
	require.Equal(t, "0002.png", name)
	require.InDelta(t, 20, f.At(3, 3), 1e-9)

	_, err = NewDirSource(t.TempDir())
	require.Error(t, err)
}
