package detection

import (
	"image"
	"math"
	"reflect"
	"testing"

	"github.com/ironsheep/organoid-counter/internal/imaging"
)

func traceMask(m *imaging.BinaryMask) []image.Point {
	var pixels []image.Point
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.At(x, y) {
				pixels = append(pixels, image.Pt(x, y))
			}
		}
	}
	return traceOutline(m.At, pixels, pixels[0])
}

func TestTraceOutline_SinglePixel(t *testing.T) {
	m := imaging.NewBinaryMask(5, 5)
	m.Set(2, 2, true)

	got := traceMask(m)
	want := []image.Point{{2, 2}, {3, 2}, {3, 3}, {2, 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("vertices: got %v, want %v", got, want)
	}
}

func TestTraceOutline_DiagonalPixels(t *testing.T) {
	m := imaging.NewBinaryMask(6, 6)
	m.Set(2, 2, true)
	m.Set(3, 3, true)

	got := traceMask(m)
	want := []image.Point{{2, 2}, {3, 2}, {3, 3}, {4, 3}, {4, 4}, {3, 4}, {3, 3}, {2, 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("vertices: got %v, want %v", got, want)
	}
}

func TestTraceOutline_Rectangle(t *testing.T) {
	m := rectMask(imaging.NewBinaryMask(20, 20), 5, 5, 15, 10)

	got := traceMask(m)
	want := []image.Point{{5, 5}, {15, 5}, {15, 10}, {5, 10}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("vertices: got %v, want %v", got, want)
	}
}

func TestTracedPerimeter(t *testing.T) {
	square := []image.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	want := 40 - 4*(2-math.Sqrt2)

	if got := tracedPerimeter(square, 1, 1); math.Abs(got-want) > 1e-9 {
		t.Errorf("perimeter: got %v, want %v", got, want)
	}
	if got := tracedPerimeter(square, 2, 2); math.Abs(got-2*want) > 1e-9 {
		t.Errorf("scaled perimeter: got %v, want %v", got, 2*want)
	}
	if got := tracedPerimeter(nil, 1, 1); got != 0 {
		t.Errorf("empty perimeter: got %v, want 0", got)
	}
}

func TestConvexHull(t *testing.T) {
	pts := []point2{{0, 0}, {10, 0}, {5, 5}, {10, 10}, {0, 10}, {5, 0}, {3, 7}}
	hull := convexHull(pts)

	if len(hull) != 4 {
		t.Fatalf("hull size: got %d, want 4 (%v)", len(hull), hull)
	}
	if a := polygonArea(hull); math.Abs(a-100) > 1e-9 {
		t.Errorf("hull area: got %v, want 100", a)
	}
}

func TestConvexHull_Degenerate(t *testing.T) {
	if got := convexHull(nil); len(got) != 0 {
		t.Errorf("empty input: got %v", got)
	}
	two := []point2{{0, 0}, {1, 1}}
	if got := convexHull(two); len(got) != 2 {
		t.Errorf("two points: got %v", got)
	}
}

func TestFeretDiameters(t *testing.T) {
	tests := []struct {
		name    string
		hull    []point2
		wantMax float64
		wantMin float64
	}{
		{"square", []point2{{0, 0}, {10, 0}, {10, 10}, {0, 10}}, math.Sqrt(200), 10},
		{"wide rectangle", []point2{{0, 0}, {30, 0}, {30, 4}, {0, 4}}, math.Hypot(30, 4), 4},
		{"segment", []point2{{0, 0}, {3, 4}}, 5, 0},
		{"point", []point2{{1, 1}}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maxF, angle, minF := feretDiameters(tt.hull)
			if math.Abs(maxF-tt.wantMax) > 1e-9 {
				t.Errorf("Feret: got %v, want %v", maxF, tt.wantMax)
			}
			if math.Abs(minF-tt.wantMin) > 1e-9 {
				t.Errorf("MinFeret: got %v, want %v", minF, tt.wantMin)
			}
			if angle < 0 || angle >= 180 {
				t.Errorf("angle out of range: %v", angle)
			}
		})
	}
}
