package detection

import (
	"image"
	"math"

	"github.com/ironsheep/organoid-counter/internal/imaging"
)

// ShapeDescriptors are the measurements of one region in calibrated units.
// Lengths are in the calibration unit and areas in unit².
type ShapeDescriptors struct {
	Area         float64 `json:"area"`
	Perimeter    float64 `json:"perimeter"`
	Feret        float64 `json:"feret"`
	MinFeret     float64 `json:"min_feret"`
	FeretAngle   float64 `json:"feret_angle"`
	Major        float64 `json:"major"`
	Minor        float64 `json:"minor"`
	EllipseAngle float64 `json:"ellipse_angle"`
	CentroidX    float64 `json:"centroid_x"`
	CentroidY    float64 `json:"centroid_y"`
	ConvexArea   float64 `json:"convex_area"`
	Circularity  float64 `json:"circularity"`
	Roundness    float64 `json:"roundness"`
	Solidity     float64 `json:"solidity"`
	AspectRatio  float64 `json:"aspect_ratio"`
}

// Region is one measured connected component of a mask.
type Region struct {
	// Label is the component's 1-based position in raster discovery order,
	// counting excluded components too.
	Label     int             `json:"label"`
	PixelArea int             `json:"pixel_area"`
	Bounds    image.Rectangle `json:"bounds"`

	// Pixels lists the member pixels; Outline the members with a
	// 4-neighbor outside the region.
	Pixels  []image.Point `json:"-"`
	Outline []image.Point `json:"-"`

	// Vertices is the traced boundary polygon in pixel-corner coordinates.
	Vertices []image.Point `json:"-"`

	Shape ShapeDescriptors `json:"shape"`
}

// ExtractParams are the extraction-time gates. Sizes are in pixels.
type ExtractParams struct {
	MinSize        int
	MaxSize        int // 0 disables the upper bound
	CircularityMin float64
	CircularityMax float64
}

// Exclusions counts components dropped during extraction, by reason.
type Exclusions struct {
	Border      int `json:"border"`
	Size        int `json:"size"`
	Circularity int `json:"circularity"`
}

// ExtractResult is the outcome of ExtractParticles.
type ExtractResult struct {
	// Regions are the surviving components in discovery order.
	Regions    []Region   `json:"regions"`
	Components int        `json:"components"`
	Excluded   Exclusions `json:"excluded"`
}

// ExtractParticles labels the 8-connected foreground components of mask and
// measures the ones that survive the gates.
//
// Components are discovered by a row-major scan: a component's position is
// that of its top-most, then left-most pixel. Components touching the image
// border, smaller than MinSize pixels, larger than a non-zero MaxSize, or
// with circularity outside [CircularityMin, CircularityMax] are dropped.
func ExtractParticles(mask *imaging.BinaryMask, cal imaging.Calibration, p ExtractParams) *ExtractResult {
	w, h := mask.Width, mask.Height
	labels := make([]int, w*h)
	result := &ExtractResult{Regions: []Region{}}

	next := 0
	for i, fg := range mask.Pix {
		if !fg || labels[i] != 0 {
			continue
		}
		next++
		pixels, touches := labelComponent(mask, labels, i, next)
		result.Components++

		if touches {
			result.Excluded.Border++
			continue
		}
		n := len(pixels)
		if n < p.MinSize || (p.MaxSize > 0 && n > p.MaxSize) {
			result.Excluded.Size++
			continue
		}

		region := measureRegion(labels, w, h, next, pixels, cal)
		c := region.Shape.Circularity
		if c < p.CircularityMin || c > p.CircularityMax {
			result.Excluded.Circularity++
			continue
		}
		result.Regions = append(result.Regions, region)
	}
	return result
}

// labelComponent assigns label to every pixel 8-connected to start and
// reports whether any of them lies on the image border.
func labelComponent(mask *imaging.BinaryMask, labels []int, start, label int) ([]image.Point, bool) {
	w, h := mask.Width, mask.Height
	var pixels []image.Point
	touches := false

	stack := []int{start}
	labels[start] = label
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		x, y := i%w, i/w
		pixels = append(pixels, image.Pt(x, y))
		if x == 0 || y == 0 || x == w-1 || y == h-1 {
			touches = true
		}

		forEachNeighbor8(i, w, h, func(j int) {
			if mask.Pix[j] && labels[j] == 0 {
				labels[j] = label
				stack = append(stack, j)
			}
		})
	}
	return pixels, touches
}

func measureRegion(labels []int, w, h, label int, pixels []image.Point, cal imaging.Calibration) Region {
	in := func(x, y int) bool {
		if x < 0 || y < 0 || x >= w || y >= h {
			return false
		}
		return labels[y*w+x] == label
	}

	bounds := image.Rectangle{Min: pixels[0], Max: pixels[0].Add(image.Pt(1, 1))}
	var outline []image.Point
	for _, p := range pixels {
		bounds = bounds.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
		if !in(p.X-1, p.Y) || !in(p.X+1, p.Y) || !in(p.X, p.Y-1) || !in(p.X, p.Y+1) {
			outline = append(outline, p)
		}
	}

	// The scan found pixels[0] first, so it is the top-most, left-most pixel
	vertices := traceOutline(in, pixels, pixels[0])

	return Region{
		Label:     label,
		PixelArea: len(pixels),
		Bounds:    bounds,
		Pixels:    pixels,
		Outline:   outline,
		Vertices:  vertices,
		Shape:     describe(pixels, vertices, cal),
	}
}

// describe computes the calibrated shape descriptors of a region.
func describe(pixels []image.Point, vertices []image.Point, cal imaging.Calibration) ShapeDescriptors {
	pw, ph := cal.PixelWidth, cal.PixelHeight
	area := float64(len(pixels)) * cal.PixelArea()
	perimeter := tracedPerimeter(vertices, pw, ph)

	scaled := make([]point2, len(vertices))
	for i, v := range vertices {
		scaled[i] = point2{float64(v.X) * pw, float64(v.Y) * ph}
	}
	hull := convexHull(scaled)
	convexArea := polygonArea(hull)
	feret, feretAngle, minFeret := feretDiameters(hull)

	el := fitEllipse(pixels, pw, ph)

	s := ShapeDescriptors{
		Area:         area,
		Perimeter:    perimeter,
		Feret:        feret,
		MinFeret:     minFeret,
		FeretAngle:   feretAngle,
		Major:        el.Major,
		Minor:        el.Minor,
		EllipseAngle: el.Angle,
		CentroidX:    el.CX,
		CentroidY:    el.CY,
		ConvexArea:   convexArea,
	}
	if perimeter > 0 {
		s.Circularity = math.Min(1, 4*math.Pi*area/(perimeter*perimeter))
	}
	if el.Major > 0 {
		s.Roundness = 4 * area / (math.Pi * el.Major * el.Major)
	}
	if convexArea > 0 {
		s.Solidity = area / convexArea
	}
	if el.Minor > 0 {
		s.AspectRatio = el.Major / el.Minor
	}
	return s
}
