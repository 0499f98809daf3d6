package detector

import (
	"github.com/MeKo-Tech/linocr/internal/mempool"
	"github.com/MeKo-Tech/linocr/internal/utils"
)

// ProbabilityMap is a per-pixel text probability surface in row-major order.
type ProbabilityMap struct {
	Data   []float32
	Width  int
	Height int
}

// ExtractOptions controls how a probability map is turned into word regions.
type ExtractOptions struct {
	// Threshold above or at which a pixel counts as text.
	Threshold float32
	// MinArea is the minimum component size in pixels.
	MinArea int
	// ExpandDist is added to every side of a fitted rectangle.
	ExpandDist float64
	// ExpandRatio adds ExpandRatio*min(width, height) to every side.
	ExpandRatio float64
	// Connectivity is 4 or 8.
	Connectivity int
}

// DefaultExtractOptions returns the settings used with the stock detection model.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		Threshold:    0.2,
		MinArea:      100,
		ExpandDist:   3,
		ExpandRatio:  0,
		Connectivity: 4,
	}
}

// Region is an extracted word region with component statistics.
type Region struct {
	Rect utils.RotatedRect
	// Score is the mean probability over the component's pixels.
	Score float64
	// Area is the component's pixel count.
	Area int
}

// compStats represents statistics for a connected component.
type compStats struct {
	label int32
	count int
	sum   float64
	minX  int
	minY  int
	maxX  int
	maxY  int
}

var (
	neighbors4 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	neighbors8 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {-1, 1}, {1, -1}, {-1, -1}}
)

// Extract returns the word regions of m in component discovery order
// (row-major by the component's first pixel). Callers must not rely on
// that order. A map whose data length does not match its size yields no
// regions.
func Extract(m ProbabilityMap, opts ExtractOptions) []utils.RotatedRect {
	regions := ExtractRegions(m, opts)
	rects := make([]utils.RotatedRect, len(regions))
	for i, r := range regions {
		rects[i] = r.Rect
	}
	return rects
}

// ExtractRegions is Extract with per-region statistics.
func ExtractRegions(m ProbabilityMap, opts ExtractOptions) []Region {
	w, h := m.Width, m.Height
	if w <= 0 || h <= 0 || len(m.Data) != w*h {
		return nil
	}

	mask := binarize(m.Data, opts.Threshold)
	defer mempool.PutBool(mask)
	labels := mempool.GetInt32(w * h)
	defer mempool.PutInt32(labels)

	dirs := neighbors4
	if opts.Connectivity == 8 {
		dirs = neighbors8
	}
	comps := connectedComponents(mask, m.Data, labels, w, h, dirs)

	regions := make([]Region, 0, len(comps))
	for _, c := range comps {
		if c.count < opts.MinArea {
			continue
		}
		rect := componentRect(labels, w, h, c)
		margin := opts.ExpandDist + opts.ExpandRatio*min(rect.Width, rect.Height)
		regions = append(regions, Region{
			Rect:  rect.Expand(margin),
			Score: c.sum / float64(c.count),
			Area:  c.count,
		})
	}
	return regions
}

// binarize creates a pooled binary mask from a probability map with threshold t.
func binarize(prob []float32, t float32) []bool {
	mask := mempool.GetBool(len(prob))
	for i, p := range prob {
		mask[i] = p >= t
	}
	return mask
}

// connectedComponents labels connected components of mask in place
// (labels must be zeroed) and returns their statistics in seed order.
func connectedComponents(mask []bool, prob []float32, labels []int32, w, h int, dirs [][2]int) []compStats {
	var comps []compStats
	var queue []int
	label := int32(0)

	for seed := range mask {
		if !mask[seed] || labels[seed] != 0 {
			continue
		}
		label++
		st := compStats{label: label, minX: seed % w, minY: seed / w, maxX: seed % w, maxY: seed / w}
		labels[seed] = label
		queue = append(queue[:0], seed)
		for len(queue) > 0 {
			ci := queue[0]
			queue = queue[1:]
			cx, cy := ci%w, ci/w
			st.count++
			st.sum += float64(prob[ci])
			st.minX, st.maxX = min(st.minX, cx), max(st.maxX, cx)
			st.minY, st.maxY = min(st.minY, cy), max(st.maxY, cy)
			for _, d := range dirs {
				nx, ny := cx+d[0], cy+d[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if mask[ni] && labels[ni] == 0 {
					labels[ni] = label
					queue = append(queue, ni)
				}
			}
		}
		comps = append(comps, st)
	}
	return comps
}

// componentRect fits the minimum-area rectangle around the pixel footprint
// (all four corners of every boundary pixel) of a component.
func componentRect(labels []int32, w, h int, c compStats) utils.RotatedRect {
	boundary := traceContourMoore(labels, w, h, c)
	if len(boundary) == 0 {
		return utils.RotatedRectFromBox(utils.NewBox(
			float64(c.minX), float64(c.minY), float64(c.maxX+1), float64(c.maxY+1)))
	}
	corners := make([]utils.Point, 0, 4*len(boundary))
	for _, p := range boundary {
		corners = append(corners,
			p,
			utils.Point{X: p.X + 1, Y: p.Y},
			utils.Point{X: p.X + 1, Y: p.Y + 1},
			utils.Point{X: p.X, Y: p.Y + 1},
		)
	}
	return utils.MinAreaRect(corners)
}
