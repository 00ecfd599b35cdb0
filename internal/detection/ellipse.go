package detection

import (
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ellipseFit is the best-fitting ellipse of a pixel set, in calibrated units.
type ellipseFit struct {
	Major float64
	Minor float64
	Angle float64 // degrees, 0..180, counter-clockwise with Y up
	CX    float64
	CY    float64
}

// fitEllipse matches the second moments of the pixels to an ellipse and then
// rescales both axes so the ellipse area equals the pixel area. Every pixel
// is a pw x ph cell, so each contributes its own 1/12 spread per axis.
func fitEllipse(pixels []image.Point, pw, ph float64) ellipseFit {
	n := len(pixels)
	if n == 0 {
		return ellipseFit{}
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range pixels {
		xs[i] = (float64(p.X) + 0.5) * pw
		ys[i] = (float64(p.Y) + 0.5) * ph
	}
	cx := stat.Mean(xs, nil)
	cy := stat.Mean(ys, nil)

	var sxx, syy, sxy float64
	for i := range xs {
		dx := xs[i] - cx
		dy := ys[i] - cy
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	fn := float64(n)
	sxx = sxx/fn + pw*pw/12
	syy = syy/fn + ph*ph/12
	sxy /= fn

	cov := mat.NewSymDense(2, []float64{sxx, sxy, sxy, syy})
	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		d := 2 * math.Sqrt(fn*pw*ph/math.Pi)
		return ellipseFit{Major: d, Minor: d, CX: cx, CY: cy}
	}
	vals := eig.Values(nil) // ascending
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	l1 := math.Max(vals[1], 0)
	l2 := math.Max(vals[0], 0)
	major := 4 * math.Sqrt(l1)
	minor := 4 * math.Sqrt(l2)

	area := fn * pw * ph
	if major > 0 && minor > 0 {
		s := math.Sqrt(area / (math.Pi / 4 * major * minor))
		major *= s
		minor *= s
	}

	// Eigenvector of the larger eigenvalue; flip Y for a Y-up angle
	vx, vy := vecs.At(0, 1), vecs.At(1, 1)
	angle := math.Atan2(-vy, vx) * 180 / math.Pi
	if angle < 0 {
		angle += 180
	}
	if angle >= 180 {
		angle -= 180
	}

	return ellipseFit{Major: major, Minor: minor, Angle: angle, CX: cx, CY: cy}
}
