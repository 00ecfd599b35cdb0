package ocr

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/ironsheep/organoid-counter/internal/imaging"
)

// scriptedReader answers with a fixed reading per call and keeps the images
// it was given.
type scriptedReader struct {
	answers []string
	err     error
	seen    []image.Image
}

func (r *scriptedReader) ReadDigits(img image.Image) (string, float64, error) {
	r.seen = append(r.seen, img)
	if r.err != nil {
		return "", 0, r.err
	}
	i := len(r.seen) - 1
	if i >= len(r.answers) {
		return "", 0, nil
	}
	return r.answers[i], 0.9, nil
}

var auditColors = imaging.AnnotateOptions{OutlineColor: "#FF0000", LabelColor: "#00FF00"}

func annotated(t *testing.T, boxes ...image.Rectangle) *imaging.AnnotatedImage {
	t.Helper()

	src := image.NewGray(image.Rect(0, 0, 160, 80))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	overlays := make([]imaging.Overlay, len(boxes))
	for i, b := range boxes {
		overlays[i] = imaging.Overlay{
			Index:   i + 1,
			Outline: []image.Point{b.Min, image.Pt(b.Max.X-1, b.Max.Y-1)},
			Bounds:  b,
		}
	}
	ann, err := imaging.Annotate(src, overlays, auditColors)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	return ann
}

func TestAuditLabels(t *testing.T) {
	ann := annotated(t, image.Rect(20, 30, 40, 50), image.Rect(90, 30, 110, 50))
	reader := &scriptedReader{answers: []string{"1", "7"}}

	audit, err := AuditLabels(ann, reader, AuditOptions{LabelColor: auditColors.LabelColor})
	if err != nil {
		t.Fatalf("AuditLabels failed: %v", err)
	}

	if len(audit.Labels) != 2 {
		t.Fatalf("labels: got %d, want 2", len(audit.Labels))
	}
	if audit.Matched != 1 || audit.Mismatched != 1 || audit.OK() {
		t.Errorf("counts: matched %d, mismatched %d, OK %v", audit.Matched, audit.Mismatched, audit.OK())
	}

	want := []LabelReading{
		{Index: 1, Expected: "1", Read: "1", Confidence: 0.9, Match: true},
		{Index: 2, Expected: "2", Read: "7", Confidence: 0.9, Match: false},
	}
	for i, w := range want {
		if audit.Labels[i] != w {
			t.Errorf("label %d: got %+v, want %+v", i, audit.Labels[i], w)
		}
	}
}

func TestAuditLabelsAllMatch(t *testing.T) {
	ann := annotated(t, image.Rect(20, 30, 40, 50))
	audit, err := AuditLabels(ann, &scriptedReader{answers: []string{"1"}}, AuditOptions{LabelColor: "#00FF00"})
	if err != nil {
		t.Fatalf("AuditLabels failed: %v", err)
	}
	if !audit.OK() || audit.Matched != 1 {
		t.Errorf("expected a clean audit, got %+v", audit)
	}
}

func TestAuditLabelsIsolatesInk(t *testing.T) {
	ann := annotated(t, image.Rect(20, 30, 40, 50))
	reader := &scriptedReader{answers: []string{"1"}}

	if _, err := AuditLabels(ann, reader, AuditOptions{LabelColor: "#00FF00", Margin: 3, Scale: 4}); err != nil {
		t.Fatalf("AuditLabels failed: %v", err)
	}
	if len(reader.seen) != 1 {
		t.Fatalf("reader calls: got %d, want 1", len(reader.seen))
	}

	// Text "1" covers (20,17)-(27,30); margin 3 and the region top give
	// (17,14)-(30,30), enlarged four times
	img := reader.seen[0]
	if img.Bounds().Dx() != 13*4 || img.Bounds().Dy() != 16*4 {
		t.Errorf("crop size: got %v, want %dx%d", img.Bounds(), 13*4, 16*4)
	}

	var black, white int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			switch color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y {
			case 0:
				black++
			case 255:
				white++
			default:
				t.Fatalf("pixel (%d,%d) is neither black nor white", x, y)
			}
		}
	}
	if black == 0 {
		t.Error("label glyph pixels should be black")
	}
	if white <= black {
		t.Errorf("background should dominate: %d white, %d black", white, black)
	}
}

func TestAuditLabelsDefaults(t *testing.T) {
	ann := annotated(t, image.Rect(20, 30, 40, 50))
	reader := &scriptedReader{}

	if _, err := AuditLabels(ann, reader, AuditOptions{LabelColor: "#00FF00"}); err != nil {
		t.Fatalf("AuditLabels failed: %v", err)
	}
	crop := ann.CropLabel(ann.Labels[0], DefaultLabelMargin, DefaultLabelScale)
	if reader.seen[0].Bounds().Size() != crop.Bounds().Size() {
		t.Errorf("default crop: got %v, want %v", reader.seen[0].Bounds().Size(), crop.Bounds().Size())
	}
}

func TestAuditLabelsNoLabels(t *testing.T) {
	ann := annotated(t)
	audit, err := AuditLabels(ann, &scriptedReader{}, AuditOptions{LabelColor: "#00FF00"})
	if err != nil {
		t.Fatalf("AuditLabels failed: %v", err)
	}
	if len(audit.Labels) != 0 || !audit.OK() {
		t.Errorf("expected an empty clean audit, got %+v", audit)
	}
}

func TestAuditLabelsErrors(t *testing.T) {
	ann := annotated(t, image.Rect(20, 30, 40, 50))

	if _, err := AuditLabels(ann, &scriptedReader{}, AuditOptions{LabelColor: "green"}); err == nil {
		t.Error("expected error for a non-hex label color")
	}

	boom := errors.New("engine failure")
	_, err := AuditLabels(ann, &scriptedReader{err: boom}, AuditOptions{LabelColor: "#00FF00"})
	if !errors.Is(err, boom) {
		t.Errorf("expected reader error to propagate, got %v", err)
	}
}

func TestTesseractReadDigits(t *testing.T) {
	ann := annotated(t, image.Rect(20, 30, 40, 50))
	glyphs := isolateInk(ann.CropLabel(ann.Labels[0], DefaultLabelMargin, DefaultLabelScale), mustInk(t, "#00FF00"))

	text, conf, err := Tesseract{}.ReadDigits(glyphs)
	if err != nil {
		t.Skipf("Tesseract not available: %v", err)
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			t.Errorf("reading %q contains non-digits", text)
		}
	}
	if conf < 0 || conf > 1 {
		t.Errorf("confidence %f outside 0..1", conf)
	}
	t.Logf("Tesseract %s read %q (confidence %.2f)", Version(), text, conf)
}
