package frame

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	return math32.Sqrt(float32((p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y)))
}

func (p Point) String() string {
	return fmt.Sprintf("(%v,%v)", p.X, p.Y)
}

type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) X2() int {
	return r.X + r.Width
}

func (r Rect) Y2() int {
	return r.Y + r.Height
}

func (r Rect) Center() Point {
	return Point{
		X: r.X + r.Width/2,
		Y: r.Y + r.Height/2,
	}
}

// Contains is true if p lies inside the half-open box [X, X2) x [Y, Y2)
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X2() && p.Y >= r.Y && p.Y < r.Y2()
}

// CenteredRect returns the box of the given size whose center is c.
// This is the inverse of Rect.Center for even sizes.
func CenteredRect(c Point, width, height int) Rect {
	return Rect{
		X:      c.X - width/2,
		Y:      c.Y - height/2,
		Width:  width,
		Height: height,
	}
}

// ParseRect parses "x,y,width,height"
func ParseRect(s string) (Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rect{}, fmt.Errorf("Invalid box '%v'. Expected x,y,width,height", s)
	}
	v := [4]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Rect{}, fmt.Errorf("Invalid box '%v': %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return Rect{}, fmt.Errorf("Invalid box '%v'. Width and height must be positive", s)
	}
	return Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}
