// Package layout groups word rectangles into lines in reading order.
package layout

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/MeKo-Tech/linocr/internal/utils"
)

// Direction is the order in which words are read along a line.
type Direction int

const (
	LeftToRight Direction = iota
	RightToLeft
)

// String returns "ltr" or "rtl".
func (d Direction) String() string {
	if d == RightToLeft {
		return "rtl"
	}
	return "ltr"
}

// ParseDirection accepts "ltr" or "rtl" (case-insensitive). Empty means ltr.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ltr":
		return LeftToRight, nil
	case "rtl":
		return RightToLeft, nil
	default:
		return LeftToRight, fmt.Errorf("unknown reading direction %q", s)
	}
}

// Config holds configuration for line grouping.
type Config struct {
	// BandTolerance is the half-height of each member's band as a fraction
	// of its height, measured along the line normal (default: 0.5).
	BandTolerance float64
	// MaxAngleDiff is the largest angle in radians between a word and a
	// line it may join (default: 15 degrees).
	MaxAngleDiff float64
	// MaxGapRatio splits a line where the gap between neighbouring words
	// exceeds this multiple of the mean word height. 0 disables splitting.
	MaxGapRatio float64
	Direction   Direction
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		BandTolerance: 0.5,
		MaxAngleDiff:  15 * math.Pi / 180,
		MaxGapRatio:   5.0,
		Direction:     LeftToRight,
	}
}

// Word angles live in (-pi/4, pi/4]: a word tilted just past 45 degrees is
// stored at the opposite end of the range with width and height swapped.
// Angles are therefore compared and averaged with period pi/2, and a line's
// axis is always taken within 45 degrees of horizontal. Text running steeper
// than that is read along the perpendicular axis unless its words already
// share a line.

// angleDiff is the distance between two rectangle angles modulo pi/2.
func angleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), math.Pi/2)
	return math.Min(d, math.Pi/2-d)
}

type line struct {
	words []utils.RotatedRect
	// sum of (cos 4a, sin 4a) over members, for a mean with period pi/2
	sumCos, sumSin float64
}

func (l *line) angle() float64 { return math.Atan2(l.sumSin, l.sumCos) / 4 }

func (l *line) add(r utils.RotatedRect) {
	l.words = append(l.words, r)
	l.sumCos += math.Cos(4 * r.Angle)
	l.sumSin += math.Sin(4 * r.Angle)
}

// thickness is the side of w that runs across a line with direction u.
func thickness(w utils.RotatedRect, u utils.Point) float64 {
	if math.Abs(w.WidthAxis().Dot(u)) >= math.Abs(w.HeightAxis().Dot(u)) {
		return w.Height
	}
	return w.Width
}

// axes returns the unit vector along the line, pointing to increasing x,
// and its normal. Close to 45 degrees the mean angle cannot tell the two
// axes apart, so a line of several words runs along the one its word
// centres spread over.
func (l *line) axes() (utils.Point, utils.Point) {
	a := l.angle()
	u := utils.Point{X: math.Cos(a), Y: math.Sin(a)}
	if len(l.words) > 1 && math.Abs(a) > math.Pi/6 {
		if perp := (utils.Point{X: -u.Y, Y: u.X}); spread(l.words, perp) > spread(l.words, u) {
			u = perp
		}
	}
	if u.X < 0 || (u.X == 0 && u.Y < 0) {
		u = u.Scale(-1)
	}
	return u, utils.Point{X: -u.Y, Y: u.X}
}

// spread is the range of the word centres projected on u.
func spread(words []utils.RotatedRect, u utils.Point) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, w := range words {
		v := w.Center.Dot(u)
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	return hi - lo
}

// band is the union of the members' bands along the line normal.
func (l *line) band(tol float64) (float64, float64) {
	u, n := l.axes()
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, w := range l.words {
		c, h := w.Center.Dot(n), thickness(w, u)
		lo = math.Min(lo, c-h*tol)
		hi = math.Max(hi, c+h*tol)
	}
	return lo, hi
}

// FindTextLines groups words into lines. Lines are returned top to bottom
// and the words of each line in cfg.Direction order along the line's mean
// angle. No words yields no lines.
func FindTextLines(words []utils.RotatedRect, cfg Config) [][]utils.RotatedRect {
	if len(words) == 0 {
		return nil
	}

	sorted := make([]utils.RotatedRect, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Center, sorted[j].Center
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	var lines []*line
	for _, w := range sorted {
		if best := bestLine(lines, w, cfg); best != nil {
			best.add(w)
			continue
		}
		l := &line{}
		l.add(w)
		lines = append(lines, l)
	}

	for _, l := range lines {
		orderAlongLine(l, cfg.Direction)
	}
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i].words[0].Center, lines[j].words[0].Center
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if cfg.Direction == RightToLeft {
			return a.X > b.X
		}
		return a.X < b.X
	})

	var out [][]utils.RotatedRect
	for _, l := range lines {
		out = append(out, splitAtGaps(l, cfg)...)
	}
	return out
}

// bestLine returns the compatible line whose band centre is nearest to w,
// or nil if w fits no line.
func bestLine(lines []*line, w utils.RotatedRect, cfg Config) *line {
	var best *line
	bestDist := math.Inf(1)
	for _, l := range lines {
		if angleDiff(w.Angle, l.angle()) > cfg.MaxAngleDiff {
			continue
		}
		lo, hi := l.band(cfg.BandTolerance)
		_, n := l.axes()
		c := w.Center.Dot(n)
		if c < lo || c > hi {
			continue
		}
		if d := math.Abs(c - (lo+hi)/2); d < bestDist {
			best, bestDist = l, d
		}
	}
	return best
}

func orderAlongLine(l *line, dir Direction) {
	u, n := l.axes()
	sort.SliceStable(l.words, func(i, j int) bool {
		a, b := l.words[i].Center.Dot(u), l.words[j].Center.Dot(u)
		if a == b {
			return l.words[i].Center.Dot(n) < l.words[j].Center.Dot(n)
		}
		if dir == RightToLeft {
			return a > b
		}
		return a < b
	})
}

// extent projects the rectangle's corners onto axis u.
func extent(r utils.RotatedRect, u utils.Point) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range r.Corners() {
		v := c.Dot(u)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// splitAtGaps breaks an ordered line where neighbouring words are too far apart.
func splitAtGaps(l *line, cfg Config) [][]utils.RotatedRect {
	if cfg.MaxGapRatio <= 0 || len(l.words) < 2 {
		return [][]utils.RotatedRect{l.words}
	}
	u, _ := l.axes()
	var meanH float64
	for _, w := range l.words {
		meanH += thickness(w, u)
	}
	meanH /= float64(len(l.words))
	limit := cfg.MaxGapRatio * meanH

	if cfg.Direction == RightToLeft {
		u = u.Scale(-1)
	}
	var out [][]utils.RotatedRect
	start := 0
	for i := 1; i < len(l.words); i++ {
		_, prevEnd := extent(l.words[i-1], u)
		nextStart, _ := extent(l.words[i], u)
		if nextStart-prevEnd > limit {
			out = append(out, l.words[start:i])
			start = i
		}
	}
	return append(out, l.words[start:])
}
