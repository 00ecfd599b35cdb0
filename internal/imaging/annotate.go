package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LabelOffset is how far above a region's bounding box its index is drawn.
const LabelOffset = 2

// ROIImageDir is the subdirectory of the output location that receives
// annotated images.
const ROIImageDir = "ROI_Images"

// Overlay is one numbered region to draw.
type Overlay struct {
	Index   int
	Outline []image.Point   // boundary pixels
	Bounds  image.Rectangle // pixel bounding box, Max exclusive
}

// AnnotateOptions controls overlay colors, as "#RRGGBB" hex strings.
type AnnotateOptions struct {
	OutlineColor string
	LabelColor   string
}

// LabelPlacement records where an index was drawn. X is the left edge of the
// text and Y its baseline.
type LabelPlacement struct {
	Index  int             `json:"index"`
	Text   string          `json:"text"`
	X      int             `json:"x"`
	Y      int             `json:"y"`
	Bounds image.Rectangle `json:"-"`
}

// TextBounds returns the pixel rectangle covered by the rendered label.
func (l LabelPlacement) TextBounds() image.Rectangle {
	face := basicfont.Face7x13
	w := face.Advance * len(l.Text)
	return image.Rect(l.X, l.Y-face.Ascent, l.X+w, l.Y+face.Descent)
}

// AnnotatedImage is the flattened export raster. It has no drawing methods:
// once flattened it is only encoded or saved.
type AnnotatedImage struct {
	Image  *image.NRGBA
	Labels []LabelPlacement
}

// Annotate draws every overlay onto a copy of src, in the order given: first
// the outline, then the index just above the bounding box (left edge at the
// box's left edge, baseline LabelOffset pixels above its top edge). The
// result is flattened into a single NRGBA raster.
func Annotate(src image.Image, overlays []Overlay, opts AnnotateOptions) (*AnnotatedImage, error) {
	outline, err := parseColor(opts.OutlineColor, colorful.Color{R: 1, G: 1, B: 0})
	if err != nil {
		return nil, fmt.Errorf("outline color: %w", err)
	}
	label, err := parseColor(opts.LabelColor, colorful.Color{R: 1, G: 1, B: 0})
	if err != nil {
		return nil, fmt.Errorf("label color: %w", err)
	}

	// Work in a zero-origin RGBA copy so grayscale sources take colored overlays
	b := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Src)

	placements := make([]LabelPlacement, 0, len(overlays))
	for _, ov := range overlays {
		for _, p := range ov.Outline {
			if p.In(canvas.Rect) {
				canvas.Set(p.X, p.Y, outline)
			}
		}

		lp := LabelPlacement{
			Index:  ov.Index,
			Text:   strconv.Itoa(ov.Index),
			X:      ov.Bounds.Min.X,
			Y:      ov.Bounds.Min.Y - LabelOffset,
			Bounds: ov.Bounds,
		}
		drawText(canvas, lp.X, lp.Y, lp.Text, label)
		placements = append(placements, lp)
	}

	return &AnnotatedImage{
		Image:  imaging.Clone(canvas),
		Labels: placements,
	}, nil
}

// parseColor reads a hex color, falling back to def for an empty string.
func parseColor(hex string, def colorful.Color) (color.Color, error) {
	if strings.TrimSpace(hex) == "" {
		return def, nil
	}
	c, err := colorful.Hex(strings.TrimSpace(hex))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// drawText renders text with its baseline at (x, y) using basicfont.
func drawText(img draw.Image, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// AnnotatedFileName derives the export name for a source file: the image
// suffix is replaced by "_ROIs.png".
func AnnotatedFileName(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + "_ROIs.png"
}

// Save writes the annotated raster as PNG, creating the parent directory.
func (a *AnnotatedImage) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create annotation directory: %w", err)
	}
	if err := imaging.Save(a.Image, path); err != nil {
		return fmt.Errorf("failed to save annotated image: %w", err)
	}
	return nil
}

// EncodeBase64 returns the raster as base64 PNG for JSON responses.
func (a *AnnotatedImage) EncodeBase64() (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, a.Image); err != nil {
		return "", fmt.Errorf("failed to encode annotated image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// CropLabel cuts the area around a placed label out of the annotation and
// enlarges it by scale with nearest-neighbor sampling, which keeps the
// bitmap glyph edges sharp for OCR. The crop never reaches into the
// labelled region's own bounding box, so its outline stays out of the crop.
func (a *AnnotatedImage) CropLabel(l LabelPlacement, margin, scale int) image.Image {
	r := l.TextBounds().Inset(-margin)
	if !l.Bounds.Empty() && r.Max.Y > l.Bounds.Min.Y {
		r.Max.Y = l.Bounds.Min.Y
	}
	r = r.Intersect(a.Image.Rect)
	if r.Empty() {
		return image.NewNRGBA(image.Rect(0, 0, 1, 1))
	}
	cropped := imaging.Crop(a.Image, r)
	if scale > 1 {
		cropped = imaging.Resize(cropped, r.Dx()*scale, r.Dy()*scale, imaging.NearestNeighbor)
	}
	return cropped
}
