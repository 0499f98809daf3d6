package detector

import "github.com/MeKo-Tech/linocr/internal/utils"

// Clockwise 8-neighbourhood starting east: E, SE, S, SW, W, NW, N, NE.
var (
	mooreDX = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	mooreDY = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
)

// traceContourMoore walks the outer boundary of a labelled component using
// Moore-neighbour tracing with Jacob's stopping criterion. Points are the
// integer coordinates of boundary pixels in visiting order.
func traceContourMoore(labels []int32, w, h int, st compStats) []utils.Point {
	isLabel := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && labels[y*w+x] == st.label
	}

	// The first labelled pixel in row-major order has nothing above it or
	// to its left, so it is on the outer boundary.
	sx, sy := -1, -1
	for y := st.minY; y <= st.maxY && sx < 0; y++ {
		for x := st.minX; x <= st.maxX; x++ {
			if isLabel(x, y) {
				sx, sy = x, y
				break
			}
		}
	}
	if sx < 0 {
		return nil
	}

	pts := []utils.Point{{X: float64(sx), Y: float64(sy)}}
	cx, cy := sx, sy
	bx, by := sx-1, sy
	startBX, startBY := bx, by
	maxSteps := 4*st.count + 8
	secondX, secondY := -1, -1

	for range maxSteps {
		nx, ny, nbx, nby, found := nextBoundaryPixel(isLabel, cx, cy, bx, by)
		if !found {
			// Isolated pixel.
			break
		}
		if secondX < 0 {
			secondX, secondY = nx, ny
		} else if cx == sx && cy == sy && nx == secondX && ny == secondY {
			// Thin shapes re-enter the start pixel from another side.
			break
		}
		cx, cy, bx, by = nx, ny, nbx, nby
		if cx == sx && cy == sy && bx == startBX && by == startBY {
			break
		}
		last := pts[len(pts)-1]
		if last.X != float64(cx) || last.Y != float64(cy) {
			pts = append(pts, utils.Point{X: float64(cx), Y: float64(cy)})
		}
	}

	if n := len(pts); n >= 2 && pts[0] == pts[n-1] {
		pts = pts[:n-1]
	}
	return pts
}

// nextBoundaryPixel scans the Moore neighbourhood of (cx, cy) clockwise,
// starting just after the backtrack pixel (bx, by). It returns the next
// boundary pixel and the new backtrack, which is the last background
// neighbour examined.
func nextBoundaryPixel(isLabel func(x, y int) bool, cx, cy, bx, by int) (int, int, int, int, bool) {
	start := 0
	for i := range 8 {
		if mooreDX[i] == bx-cx && mooreDY[i] == by-cy {
			start = (i + 1) % 8
			break
		}
	}
	pbx, pby := bx, by
	for k := range 8 {
		i := (start + k) % 8
		tx, ty := cx+mooreDX[i], cy+mooreDY[i]
		if isLabel(tx, ty) {
			return tx, ty, pbx, pby, true
		}
		pbx, pby = tx, ty
	}
	return 0, 0, bx, by, false
}
