package rectify

import (
	"errors"
	"math"

	"github.com/MeKo-Tech/linocr/internal/utils"
)

// Homography is a row-major 3x3 projective transform with h[8] fixed to 1.
type Homography [9]float64

var errSingular = errors.New("degenerate quadrilateral")

// homographyFromQuads computes H mapping p[i] -> q[i].
func homographyFromQuads(p, q [4]utils.Point) (Homography, error) {
	// Two equations per correspondence in the eight unknowns h0..h7:
	//   x' (h6 X + h7 Y + 1) = h0 X + h1 Y + h2
	//   y' (h6 X + h7 Y + 1) = h3 X + h4 Y + h5
	var a [8][9]float64
	for i := range 4 {
		X, Y := p[i].X, p[i].Y
		x, y := q[i].X, q[i].Y
		a[2*i] = [9]float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x, x}
		a[2*i+1] = [9]float64{0, 0, 0, X, Y, 1, -X * y, -Y * y, y}
	}

	// Gauss-Jordan elimination with partial pivoting on the augmented matrix.
	for col := range 8 {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return Homography{}, errSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		div := a[col][col]
		for c := col; c < 9; c++ {
			a[col][c] /= div
		}
		for r := range 8 {
			if r == col || a[r][col] == 0 {
				continue
			}
			f := a[r][col]
			for c := col; c < 9; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}

	var h Homography
	for i := range 8 {
		h[i] = a[i][8]
	}
	h[8] = 1
	return h, nil
}

// Apply maps (x, y) through h. Points sent to infinity come back as NaN.
func (h Homography) Apply(x, y float64) (float64, float64) {
	d := h[6]*x + h[7]*y + h[8]
	if d == 0 {
		return math.NaN(), math.NaN()
	}
	return (h[0]*x + h[1]*y + h[2]) / d, (h[3]*x + h[4]*y + h[5]) / d
}
