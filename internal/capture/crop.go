package capture

import (
	"image"
	"math"

	"golang.org/x/image/math/f64"
)

// Rect is a crop window in source pixel space. Coordinates stay fractional
// so the centring holds exactly for any zoom.
type Rect struct {
	X, Y, W, H float64
}

// Crop returns the centred window a digital zoom of z selects from a w×h
// frame: the window is w/z × h/z with equal margins on both sides. Zooms
// below 1 are treated as 1.
func Crop(w, h int, z float64) Rect {
	if z < 1 || math.IsNaN(z) {
		z = 1
	}
	srcW := float64(w) / z
	srcH := float64(h) / z
	return Rect{
		X: (float64(w) - srcW) / 2,
		Y: (float64(h) - srcH) / 2,
		W: srcW,
		H: srcH,
	}
}

// Bounds is the smallest pixel rectangle covering r, offset by origin (the
// frame's Bounds().Min). The result is never empty.
func (r Rect) Bounds(origin image.Point) image.Rectangle {
	x0 := int(math.Floor(r.X))
	y0 := int(math.Floor(r.Y))
	x1 := int(math.Ceil(r.X + r.W))
	y1 := int(math.Ceil(r.Y + r.H))
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return image.Rect(x0, y0, x1, y1).Add(origin)
}

// Transform maps source coordinates onto a width×height output so that r,
// offset by origin, fills it exactly.
func (r Rect) Transform(origin image.Point, width, height int) f64.Aff3 {
	sx := float64(width) / r.W
	sy := float64(height) / r.H
	return f64.Aff3{
		sx, 0, -(r.X + float64(origin.X)) * sx,
		0, sy, -(r.Y + float64(origin.Y)) * sy,
	}
}
