package utils

import "math"

// RotatedRect is an oriented rectangle. Angle is the rotation in radians of
// the width axis from the positive x axis, clockwise on screen since image y
// grows downward. Rectangles built through NewRotatedRect always have an
// angle in (-pi/4, pi/4]; the perpendicular description is folded in by
// swapping width and height.
type RotatedRect struct {
	Center Point
	Width  float64
	Height float64
	Angle  float64
}

// NewRotatedRect builds a rectangle and normalises its angle.
func NewRotatedRect(center Point, width, height, angle float64) RotatedRect {
	width, height = math.Abs(width), math.Abs(height)
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		angle = 0
	}
	// A rectangle is symmetric under a half turn.
	angle = math.Mod(angle, math.Pi)
	if angle <= -math.Pi/2 {
		angle += math.Pi
	} else if angle > math.Pi/2 {
		angle -= math.Pi
	}
	switch {
	case angle > math.Pi/4:
		angle -= math.Pi / 2
		width, height = height, width
	case angle <= -math.Pi/4:
		angle += math.Pi / 2
		width, height = height, width
	}
	return RotatedRect{Center: center, Width: width, Height: height, Angle: angle}
}

// RotatedRectFromBox returns the unrotated rectangle covering b.
func RotatedRectFromBox(b Box) RotatedRect {
	return RotatedRect{
		Center: Point{X: (b.MinX + b.MaxX) / 2, Y: (b.MinY + b.MaxY) / 2},
		Width:  b.Width(),
		Height: b.Height(),
	}
}

// WidthAxis is the unit vector along the rectangle's width.
func (r RotatedRect) WidthAxis() Point {
	return Point{X: math.Cos(r.Angle), Y: math.Sin(r.Angle)}
}

// HeightAxis is the unit vector along the rectangle's height, pointing from
// the top edge to the bottom edge.
func (r RotatedRect) HeightAxis() Point {
	return Point{X: -math.Sin(r.Angle), Y: math.Cos(r.Angle)}
}

// Corners returns the corners in the order top-left, top-right,
// bottom-right, bottom-left relative to the rectangle's own axes.
func (r RotatedRect) Corners() [4]Point {
	u := r.WidthAxis().Scale(r.Width / 2)
	v := r.HeightAxis().Scale(r.Height / 2)
	return [4]Point{
		r.Center.Sub(u).Sub(v),
		r.Center.Add(u).Sub(v),
		r.Center.Add(u).Add(v),
		r.Center.Sub(u).Add(v),
	}
}

// BoundingBox returns the axis-aligned bounds of the rectangle.
func (r RotatedRect) BoundingBox() Box {
	c := r.Corners()
	return BoundingBox(c[:])
}

// Area returns width times height.
func (r RotatedRect) Area() float64 { return r.Width * r.Height }

// IsEmpty reports whether the rectangle has zero area.
func (r RotatedRect) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Resize returns a rectangle with the same centre and angle and the given size.
func (r RotatedRect) Resize(width, height float64) RotatedRect {
	r.Width = math.Max(width, 0)
	r.Height = math.Max(height, 0)
	return r
}

// Expand grows the rectangle by d on every side. Negative d shrinks it.
func (r RotatedRect) Expand(d float64) RotatedRect {
	return r.Resize(r.Width+2*d, r.Height+2*d)
}

// SubRect slices the rectangle along its width axis, keeping the span
// between fractions u0 and u1 (0 is the left edge, 1 the right edge).
func (r RotatedRect) SubRect(u0, u1 float64) RotatedRect {
	if u1 < u0 {
		u0, u1 = u1, u0
	}
	offset := r.Width * ((u0+u1)/2 - 0.5)
	return RotatedRect{
		Center: r.Center.Add(r.WidthAxis().Scale(offset)),
		Width:  r.Width * (u1 - u0),
		Height: r.Height,
		Angle:  r.Angle,
	}
}

// Contains reports whether p lies inside or on the border of the rectangle.
func (r RotatedRect) Contains(p Point) bool {
	const eps = 1e-9
	d := p.Sub(r.Center)
	return math.Abs(d.Dot(r.WidthAxis())) <= r.Width/2+eps &&
		math.Abs(d.Dot(r.HeightAxis())) <= r.Height/2+eps
}

// Overlaps reports whether the two rectangles share interior area, using the
// separating axis test over both rectangles' axes.
func (r RotatedRect) Overlaps(o RotatedRect) bool {
	rc, oc := r.Corners(), o.Corners()
	for _, axis := range []Point{r.WidthAxis(), r.HeightAxis(), o.WidthAxis(), o.HeightAxis()} {
		rMin, rMax := project(rc, axis)
		oMin, oMax := project(oc, axis)
		if rMax <= oMin || oMax <= rMin {
			return false
		}
	}
	return true
}

func project(pts [4]Point, axis Point) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		v := p.Dot(axis)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
