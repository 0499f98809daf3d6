package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatedRect_NormalisesAngle(t *testing.T) {
	c := Point{X: 10, Y: 20}
	tests := []struct {
		name         string
		w, h, angle  float64
		wantW, wantH float64
		wantAngle    float64
	}{
		{"zero", 10, 5, 0, 10, 5, 0},
		{"quarter turn swaps", 10, 5, math.Pi / 2, 5, 10, 0},
		{"half turn", 10, 5, math.Pi, 10, 5, 0},
		{"negative quarter turn", 10, 5, -math.Pi / 2, 5, 10, 0},
		{"lower boundary folds up", 10, 5, -math.Pi / 4, 5, 10, math.Pi / 4},
		{"upper boundary kept", 10, 5, math.Pi / 4, 10, 5, math.Pi / 4},
		{"small tilt", 10, 5, 0.1, 10, 5, 0.1},
		{"negative sizes", -10, -5, 0, 10, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRotatedRect(c, tt.w, tt.h, tt.angle)
			assert.InDelta(t, tt.wantW, r.Width, 1e-9)
			assert.InDelta(t, tt.wantH, r.Height, 1e-9)
			assert.InDelta(t, tt.wantAngle, r.Angle, 1e-9)
			assert.Equal(t, c, r.Center)
		})
	}
}

func TestRotatedRect_Corners(t *testing.T) {
	r := RotatedRectFromBox(NewBox(0, 0, 10, 4))
	want := [4]Point{{0, 0}, {10, 0}, {10, 4}, {0, 4}}
	got := r.Corners()
	for i := range want {
		assert.InDelta(t, want[i].X, got[i].X, 1e-9)
		assert.InDelta(t, want[i].Y, got[i].Y, 1e-9)
	}

	b := r.BoundingBox()
	assert.InDelta(t, 40.0, b.Area(), 1e-9)
	assert.InDelta(t, 40.0, r.Area(), 1e-9)
}

func TestRotatedRect_CornersRotated(t *testing.T) {
	r := NewRotatedRect(Point{X: 0, Y: 0}, 2, 2, math.Pi/4)
	c := r.Corners()
	// Top-left corner of a square rotated clockwise by 45 degrees sits straight up.
	assert.InDelta(t, 0.0, c[0].X, 1e-9)
	assert.InDelta(t, -math.Sqrt2, c[0].Y, 1e-9)
	assert.InDelta(t, math.Sqrt2, c[1].X, 1e-9)
	assert.InDelta(t, 0.0, c[1].Y, 1e-9)
}

func TestRotatedRect_SubRect(t *testing.T) {
	r := RotatedRectFromBox(NewBox(0, 0, 10, 4))

	s := r.SubRect(0.2, 0.5)
	b := s.BoundingBox()
	assert.InDelta(t, 2.0, b.MinX, 1e-9)
	assert.InDelta(t, 5.0, b.MaxX, 1e-9)
	assert.InDelta(t, 0.0, b.MinY, 1e-9)
	assert.InDelta(t, 4.0, b.MaxY, 1e-9)

	swapped := r.SubRect(0.5, 0.2)
	assert.Equal(t, s, swapped)

	full := r.SubRect(0, 1)
	assert.InDelta(t, r.Width, full.Width, 1e-9)
	assert.InDelta(t, r.Center.X, full.Center.X, 1e-9)
}

func TestRotatedRect_ResizeExpand(t *testing.T) {
	r := NewRotatedRect(Point{X: 5, Y: 5}, 10, 4, 0.2)

	e := r.Expand(3)
	assert.InDelta(t, 16.0, e.Width, 1e-9)
	assert.InDelta(t, 10.0, e.Height, 1e-9)
	assert.Equal(t, r.Center, e.Center)
	assert.Equal(t, r.Angle, e.Angle)

	shrunk := r.Expand(-10)
	assert.Equal(t, 0.0, shrunk.Width)
	assert.Equal(t, 0.0, shrunk.Height)
	assert.True(t, shrunk.IsEmpty())
}

func TestRotatedRect_Contains(t *testing.T) {
	r := NewRotatedRect(Point{X: 0, Y: 0}, 10, 2, math.Pi/4)
	assert.True(t, r.Contains(Point{X: 0, Y: 0}))
	assert.True(t, r.Contains(Point{X: 3, Y: 3}))
	assert.False(t, r.Contains(Point{X: 3, Y: -3}))
	assert.False(t, r.Contains(Point{X: 5, Y: 0}))
}

func TestRotatedRect_Overlaps(t *testing.T) {
	a := RotatedRectFromBox(NewBox(0, 0, 10, 10))
	tests := []struct {
		name string
		b    RotatedRect
		want bool
	}{
		{"overlapping", RotatedRectFromBox(NewBox(5, 5, 15, 15)), true},
		{"touching edge", RotatedRectFromBox(NewBox(10, 0, 20, 10)), false},
		{"disjoint", RotatedRectFromBox(NewBox(20, 20, 30, 30)), false},
		{"contained", RotatedRectFromBox(NewBox(2, 2, 4, 4)), true},
		// Diamond whose bounding box overlaps the square but whose body does not.
		{"rotated near corner", NewRotatedRect(Point{X: 12, Y: 12}, 4, 4, math.Pi/4), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(a))
		})
	}
}

func TestBoundingBox_Empty(t *testing.T) {
	require.Equal(t, Box{}, BoundingBox(nil))
}
