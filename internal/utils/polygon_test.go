package utils

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvexHull(t *testing.T) {
	tests := []struct {
		name    string
		points  []Point
		wantLen int
	}{
		{"empty", nil, 0},
		{"single", []Point{{1, 1}}, 1},
		{"duplicates collapse", []Point{{1, 1}, {1, 1}, {1, 1}}, 1},
		{"collinear", []Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}}, 2},
		{"square with interior point", []Point{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {2, 2}}, 4},
		{"square with edge midpoints", []Point{{0, 0}, {2, 0}, {4, 0}, {4, 2}, {4, 4}, {0, 4}}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, ConvexHull(tt.points), tt.wantLen)
		})
	}
}

func TestMinAreaRect_AxisAligned(t *testing.T) {
	r := MinAreaRect([]Point{{0, 0}, {10, 0}, {10, 5}, {0, 5}, {3, 2}})
	assert.InDelta(t, 10.0, r.Width, 1e-9)
	assert.InDelta(t, 5.0, r.Height, 1e-9)
	assert.InDelta(t, 0.0, r.Angle, 1e-9)
	assert.InDelta(t, 5.0, r.Center.X, 1e-9)
	assert.InDelta(t, 2.5, r.Center.Y, 1e-9)
}

func TestMinAreaRect_RecoversRotatedRect(t *testing.T) {
	want := NewRotatedRect(Point{X: 50, Y: 40}, 40, 10, 0.3)
	c := want.Corners()
	got := MinAreaRect(c[:])

	assert.InDelta(t, want.Center.X, got.Center.X, 1e-6)
	assert.InDelta(t, want.Center.Y, got.Center.Y, 1e-6)
	assert.InDelta(t, want.Width, got.Width, 1e-6)
	assert.InDelta(t, want.Height, got.Height, 1e-6)
	assert.InDelta(t, want.Angle, got.Angle, 1e-6)
}

func TestMinAreaRect_Degenerate(t *testing.T) {
	require.Equal(t, RotatedRect{}, MinAreaRect(nil))

	single := MinAreaRect([]Point{{3, 4}})
	assert.Equal(t, Point{X: 3, Y: 4}, single.Center)
	assert.True(t, single.IsEmpty())

	seg := MinAreaRect([]Point{{0, 0}, {10, 0}, {5, 0}})
	assert.InDelta(t, 10.0, seg.Width, 1e-9)
	assert.InDelta(t, 0.0, seg.Height, 1e-9)
	assert.InDelta(t, 5.0, seg.Center.X, 1e-9)
}

func genPoint() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(-100, 100),
		gen.Float64Range(-100, 100),
	).Map(func(vals []interface{}) Point {
		return Point{X: vals[0].(float64), Y: vals[1].(float64)}
	})
}

func TestMinAreaRect_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("rectangle contains every input point", prop.ForAll(
		func(points []Point) bool {
			r := MinAreaRect(points).Expand(1e-6)
			for _, p := range points {
				if !r.Contains(p) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, genPoint()),
	))

	properties.Property("area never exceeds axis-aligned bounds", prop.ForAll(
		func(points []Point) bool {
			return MinAreaRect(points).Area() <= BoundingBox(points).Area()+1e-6
		},
		gen.SliceOfN(12, genPoint()),
	))

	properties.Property("angle stays in canonical range", prop.ForAll(
		func(points []Point) bool {
			a := MinAreaRect(points).Angle
			return a > -math.Pi/4-1e-12 && a <= math.Pi/4+1e-12
		},
		gen.SliceOfN(12, genPoint()),
	))

	properties.TestingRun(t)
}
