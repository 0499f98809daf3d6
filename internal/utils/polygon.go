package utils

import (
	"cmp"
	"math"
	"slices"
)

// ConvexHull returns the hull of pts counter-clockwise (in y-up terms),
// without repeating the first vertex and without collinear vertices.
func ConvexHull(pts []Point) []Point {
	p := slices.Clone(pts)
	slices.SortFunc(p, func(a, b Point) int {
		return cmp.Or(cmp.Compare(a.X, b.X), cmp.Compare(a.Y, b.Y))
	})
	p = slices.Compact(p)
	if len(p) <= 2 {
		return p
	}

	// Andrew's monotone chain: lower chain left to right, then upper chain
	// right to left. Each chain ends on the first vertex of the next.
	hull := make([]Point, 0, 2*len(p))
	walk := func(pt Point, floor int) {
		for len(hull) >= floor+2 && turn(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	for _, pt := range p {
		walk(pt, 0)
	}
	lower := len(hull) - 1
	for i := len(p) - 2; i >= 0; i-- {
		walk(p[i], lower)
	}
	return hull[:len(hull)-1]
}

// turn is positive when o->a->b turns counter-clockwise.
func turn(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// caliper is the extent of a point set in the frame (u, v).
type caliper struct {
	u, v           Point
	s0, s1, t0, t1 float64
}

func (c caliper) area() float64 { return (c.s1 - c.s0) * (c.t1 - c.t0) }

func measure(hull []Point, u Point) caliper {
	c := caliper{u: u, v: Point{X: -u.Y, Y: u.X}}
	c.s0, c.t0 = math.Inf(1), math.Inf(1)
	c.s1, c.t1 = math.Inf(-1), math.Inf(-1)
	for _, p := range hull {
		s, t := p.Dot(c.u), p.Dot(c.v)
		c.s0, c.s1 = math.Min(c.s0, s), math.Max(c.s1, s)
		c.t0, c.t1 = math.Min(c.t0, t), math.Max(c.t1, t)
	}
	return c
}

// MinAreaRect returns the smallest rectangle enclosing pts. One side of the
// optimum is collinear with a hull edge, so only edge directions are tried.
// A single point gives an empty rectangle at that point; collinear input
// gives a rectangle of zero height.
func MinAreaRect(pts []Point) RotatedRect {
	hull := ConvexHull(pts)
	switch len(hull) {
	case 0:
		return RotatedRect{}
	case 1:
		return RotatedRect{Center: hull[0]}
	case 2:
		d := hull[1].Sub(hull[0])
		return NewRotatedRect(hull[0].Add(hull[1]).Scale(0.5), math.Hypot(d.X, d.Y), 0, math.Atan2(d.Y, d.X))
	}

	var best caliper
	found := false
	for i, a := range hull {
		d := hull[(i+1)%len(hull)].Sub(a)
		l := math.Hypot(d.X, d.Y)
		if l == 0 {
			continue
		}
		if c := measure(hull, d.Scale(1/l)); !found || c.area() < best.area() {
			best, found = c, true
		}
	}

	center := best.u.Scale((best.s0 + best.s1) / 2).Add(best.v.Scale((best.t0 + best.t1) / 2))
	return NewRotatedRect(center, best.s1-best.s0, best.t1-best.t0, math.Atan2(best.u.Y, best.u.X))
}
