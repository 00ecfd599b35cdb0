package detection

import (
	"image"
	"math"
	"sort"
)

// Crack directions, clockwise in image coordinates (Y down).
const (
	dirRight = iota
	dirDown
	dirLeft
	dirUp
)

var dirStep = [4]image.Point{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}

// traceOutline follows the outer boundary of a component along pixel edges
// and returns the polygon vertices (pixel corners where the direction
// changes), clockwise, starting at the top-left corner of first. first must
// be the component's first pixel in raster order.
//
// Interior stays on the right of every edge. Where two pixels touch only at
// a corner the trace turns left, which keeps 8-connected pixels inside one
// outline.
func traceOutline(in func(x, y int) bool, pixels []image.Point, first image.Point) []image.Point {
	// out[v] holds the outgoing directions at corner v as a bit set
	out := make(map[image.Point]uint8)
	addEdge := func(v image.Point, d int) { out[v] |= 1 << d }

	for _, p := range pixels {
		x, y := p.X, p.Y
		if !in(x, y-1) {
			addEdge(image.Pt(x, y), dirRight)
		}
		if !in(x+1, y) {
			addEdge(image.Pt(x+1, y), dirDown)
		}
		if !in(x, y+1) {
			addEdge(image.Pt(x+1, y+1), dirLeft)
		}
		if !in(x-1, y) {
			addEdge(image.Pt(x, y+1), dirUp)
		}
	}

	start := first
	dir := dirRight
	v := start
	vertices := []image.Point{start}
	for {
		v = v.Add(dirStep[dir])
		outs := out[v]
		var next int
		switch {
		case outs&(1<<((dir+3)%4)) != 0: // left turn, taken at corner-touching pixels
			next = (dir + 3) % 4
		case outs&(1<<dir) != 0:
			next = dir
		default:
			next = (dir + 1) % 4
		}
		if v == start && next == dirRight {
			break
		}
		if next != dir {
			vertices = append(vertices, v)
		}
		dir = next
	}
	return vertices
}

// tracedPerimeter measures a traced outline polygon, counting each
// staircase corner as a diagonal step instead of two unit edges. pw and ph
// scale horizontal and vertical runs; the corner correction uses their mean.
func tracedPerimeter(vertices []image.Point, pw, ph float64) float64 {
	n := len(vertices)
	if n == 0 {
		return 0
	}
	var sumdx, sumdy, corners int
	dx1 := vertices[0].X - vertices[n-1].X
	dy1 := vertices[0].Y - vertices[n-1].Y
	side1 := absInt(dx1) + absInt(dy1)
	corner := false
	for i := 0; i < n; i++ {
		next := (i + 1) % n
		dx2 := vertices[next].X - vertices[i].X
		dy2 := vertices[next].Y - vertices[i].Y
		sumdx += absInt(dx1)
		sumdy += absInt(dy1)
		side2 := absInt(dx2) + absInt(dy2)
		if side1 > 1 || !corner {
			corner = true
			corners++
		} else {
			corner = false
		}
		dx1, dy1, side1 = dx2, dy2, side2
	}
	return float64(sumdx)*pw + float64(sumdy)*ph - float64(corners)*(2.0-math.Sqrt2)*(pw+ph)/2
}

type point2 struct{ x, y float64 }

// convexHull returns the hull of pts counter-clockwise (in a Y-up frame)
// using the monotone chain algorithm. Collinear points are dropped.
func convexHull(pts []point2) []point2 {
	if len(pts) < 3 {
		out := make([]point2, len(pts))
		copy(out, pts)
		return out
	}
	sorted := make([]point2, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].x != sorted[j].x {
			return sorted[i].x < sorted[j].x
		}
		return sorted[i].y < sorted[j].y
	})

	cross := func(o, a, b point2) float64 {
		return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
	}

	hull := make([]point2, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// polygonArea is the absolute shoelace area.
func polygonArea(poly []point2) float64 {
	var s float64
	n := len(poly)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		s += poly[i].x*poly[j].y - poly[j].x*poly[i].y
	}
	return math.Abs(s) / 2
}

// feretDiameters returns the largest caliper width of a convex hull with its
// angle in degrees (0..180, counter-clockwise from the X axis with Y up),
// and the smallest caliper width over all hull edge orientations.
func feretDiameters(hull []point2) (maxF, angle, minF float64) {
	n := len(hull)
	if n < 2 {
		return 0, 0, 0
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := hull[j].x - hull[i].x
			dy := hull[j].y - hull[i].y
			d := math.Hypot(dx, dy)
			if d > maxF {
				maxF = d
				// image Y grows downward
				a := math.Atan2(-dy, dx) * 180 / math.Pi
				if a < 0 {
					a += 180
				}
				if a >= 180 {
					a -= 180
				}
				angle = a
			}
		}
	}

	if n < 3 {
		return maxF, angle, 0
	}

	minF = math.Inf(1)
	for i := 0; i < n; i++ {
		a := hull[i]
		b := hull[(i+1)%n]
		ex, ey := b.x-a.x, b.y-a.y
		el := math.Hypot(ex, ey)
		if el == 0 {
			continue
		}
		var width float64
		for _, p := range hull {
			d := math.Abs((p.x-a.x)*ey-(p.y-a.y)*ex) / el
			if d > width {
				width = d
			}
		}
		if width < minF {
			minF = width
		}
	}
	return maxF, angle, minF
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
