package ocr

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/organoid-counter/internal/imaging"
)

// Defaults for AuditOptions.
const (
	DefaultLabelMargin = 3
	DefaultLabelScale  = 4

	// Lab distance under which a pixel counts as label ink
	labelColorTolerance = 0.25
)

// LabelReading is the OCR result for one drawn index.
type LabelReading struct {
	Index      int     `json:"index"`
	Expected   string  `json:"expected"`
	Read       string  `json:"read"`
	Confidence float64 `json:"confidence"`
	Match      bool    `json:"match"`
}

// LabelAudit summarizes the readings for one annotated image.
type LabelAudit struct {
	Labels     []LabelReading `json:"labels"`
	Matched    int            `json:"matched"`
	Mismatched int            `json:"mismatched"`
}

// OK reports whether every label was read back correctly.
func (a *LabelAudit) OK() bool {
	return a.Mismatched == 0
}

// AuditOptions controls how labels are isolated before reading.
type AuditOptions struct {
	LabelColor string // "#RRGGBB", the color labels were drawn in
	Margin     int
	Scale      int
}

// AuditLabels reads every placed label of ann back with reader, in placement
// order. A reader error aborts the audit.
func AuditLabels(ann *imaging.AnnotatedImage, reader Reader, opts AuditOptions) (*LabelAudit, error) {
	ink, err := colorful.Hex(strings.TrimSpace(opts.LabelColor))
	if err != nil {
		return nil, fmt.Errorf("label color: %w", err)
	}
	margin := opts.Margin
	if margin <= 0 {
		margin = DefaultLabelMargin
	}
	scale := opts.Scale
	if scale <= 0 {
		scale = DefaultLabelScale
	}

	audit := &LabelAudit{Labels: make([]LabelReading, 0, len(ann.Labels))}
	for _, l := range ann.Labels {
		glyphs := isolateInk(ann.CropLabel(l, margin, scale), ink)
		text, conf, err := reader.ReadDigits(glyphs)
		if err != nil {
			return nil, fmt.Errorf("label %d: %w", l.Index, err)
		}

		r := LabelReading{
			Index:      l.Index,
			Expected:   strconv.Itoa(l.Index),
			Read:       text,
			Confidence: conf,
		}
		r.Match = r.Read == r.Expected
		if r.Match {
			audit.Matched++
		} else {
			audit.Mismatched++
		}
		audit.Labels = append(audit.Labels, r)
	}
	return audit, nil
}

// isolateInk renders pixels close to ink as black on white, the polarity
// Tesseract expects. Outlines and the underlying micrograph drop out.
func isolateInk(img image.Image, ink colorful.Color) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := uint8(255)
			if c, ok := colorful.MakeColor(img.At(x, y)); ok && c.DistanceLab(ink) < labelColorTolerance {
				v = 0
			}
			out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: v})
		}
	}
	return out
}
