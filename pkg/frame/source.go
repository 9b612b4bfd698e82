package frame

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmharper/cimg/v2"
)

// DirSource is an ordered directory of image files.
// Files are visited in lexicographic order of their names.
type DirSource struct {
	Dir   string
	Names []string
}

func isFrameFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// NewDirSource lists the frames inside dir
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("Failed to read frames directory '%v': %w", dir, err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !isFrameFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("No .jpg or .png frames found in '%v'", dir)
	}
	return &DirSource{
		Dir:   dir,
		Names: names,
	}, nil
}

func (s *DirSource) Len() int {
	return len(s.Names)
}

// Load decodes frame i, and returns it along with its file name
func (s *DirSource) Load(i int) (*Frame, string, error) {
	name := s.Names[i]
	f, err := LoadFile(filepath.Join(s.Dir, name))
	return f, name, err
}

// LoadFile decodes a JPEG or PNG file into a grayscale Frame
func LoadFile(filename string) (*Frame, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".png" {
		file, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		img, err := png.Decode(file)
		if err != nil {
			return nil, fmt.Errorf("Failed to decode %v: %w", filename, err)
		}
		return FromImage(img)
	}
	img, err := cimg.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode %v: %w", filename, err)
	}
	return FromCImage(img)
}
