package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Calibration maps pixels to physical units.
type Calibration struct {
	PixelWidth  float64 `json:"pixel_width"`  // units per pixel along X
	PixelHeight float64 `json:"pixel_height"` // units per pixel along Y
	Unit        string  `json:"unit"`
}

// Validate rejects non-positive or non-finite pixel dimensions.
func (c Calibration) Validate() error {
	for _, v := range []float64{c.PixelWidth, c.PixelHeight} {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid calibration %vx%v", c.PixelWidth, c.PixelHeight)
		}
	}
	return nil
}

// PixelArea is the physical area of one pixel.
func (c Calibration) PixelArea() float64 {
	return c.PixelWidth * c.PixelHeight
}

// CalibratedImage is a single-channel 8-bit view of a source image with its
// physical scale attached. It is built once per input and never modified.
type CalibratedImage struct {
	// Name identifies the image in logs and operator prompts.
	Name string

	// Source is the decoded input, kept for annotation.
	Source image.Image

	// Gray holds the intensity samples; bounds always start at (0,0).
	Gray *image.Gray

	Calibration Calibration
}

// Width returns the image width in pixels.
func (c *CalibratedImage) Width() int { return c.Gray.Rect.Dx() }

// Height returns the image height in pixels.
func (c *CalibratedImage) Height() int { return c.Gray.Rect.Dy() }

// Calibrate attaches cal to src and reduces it to 8-bit grayscale.
//
// Multi-channel sources are reduced with luminance weights. 16-bit grayscale
// sources are linearly stretched from their own min..max range onto 0..255,
// the way a microscope export is normally displayed before thresholding.
func Calibrate(name string, src image.Image, cal Calibration) (*CalibratedImage, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrImageLoad)
	}

	var gray *image.Gray
	if g16, ok := src.(*image.Gray16); ok {
		gray = stretchGray16(g16)
	} else {
		gray = toGray(src)
	}

	return &CalibratedImage{
		Name:        name,
		Source:      src,
		Gray:        gray,
		Calibration: cal,
	}, nil
}

// toGray converts via imaging.Grayscale, whose output is an NRGBA with equal
// channels, and keeps the red channel.
func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		w, h := g.Rect.Dx(), g.Rect.Dy()
		gray := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			copy(gray.Pix[y*gray.Stride:y*gray.Stride+w], g.Pix[g.PixOffset(g.Rect.Min.X, g.Rect.Min.Y+y):])
		}
		return gray
	}

	nrgba := imaging.Grayscale(src)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		out := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x := 0; x < w; x++ {
			out[x] = row[x*4]
		}
	}
	return gray
}

func stretchGray16(src *image.Gray16) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	lo, hi := uint16(math.MaxUint16), uint16(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := src.Gray16At(x, y).Y
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	scale := 256.0 / float64(int(hi)-int(lo)+1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(src.Gray16At(x+b.Min.X, y+b.Min.Y).Y-lo) * scale
			if v > 255 {
				v = 255
			}
			gray.Pix[y*gray.Stride+x] = uint8(v)
		}
	}
	return gray
}
