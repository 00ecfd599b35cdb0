package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

var testOptions = AnnotateOptions{OutlineColor: "#FF0000", LabelColor: "#00FF00"}

func ringOverlay(index int, r image.Rectangle) Overlay {
	var outline []image.Point
	for x := r.Min.X; x < r.Max.X; x++ {
		outline = append(outline, image.Pt(x, r.Min.Y), image.Pt(x, r.Max.Y-1))
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		outline = append(outline, image.Pt(r.Min.X, y), image.Pt(r.Max.X-1, y))
	}
	return Overlay{Index: index, Outline: outline, Bounds: r}
}

func TestAnnotate(t *testing.T) {
	src := organoidImage(120, 80, [3]int{30, 40, 10}, [3]int{80, 40, 10})
	overlays := []Overlay{
		ringOverlay(1, image.Rect(20, 30, 41, 51)),
		ringOverlay(2, image.Rect(70, 30, 91, 51)),
	}

	before := append([]uint8(nil), src.Pix...)
	ann, err := Annotate(src, overlays, testOptions)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	if ann.Image.Bounds() != src.Bounds() {
		t.Errorf("bounds: got %v, want %v", ann.Image.Bounds(), src.Bounds())
	}
	if got := ann.Image.NRGBAAt(20, 40); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("outline pixel: got %v", got)
	}
	if got := ann.Image.NRGBAAt(5, 75); got != (color.NRGBA{220, 220, 220, 255}) {
		t.Errorf("untouched pixel: got %v", got)
	}
	if !bytes.Equal(src.Pix, before) {
		t.Error("Annotate should not modify the source")
	}

	if len(ann.Labels) != 2 {
		t.Fatalf("labels: got %d, want 2", len(ann.Labels))
	}
	for i, l := range ann.Labels {
		ov := overlays[i]
		if l.Index != ov.Index || l.Text != []string{"1", "2"}[i] {
			t.Errorf("label %d: got %+v", i, l)
		}
		if l.X != ov.Bounds.Min.X || l.Y != ov.Bounds.Min.Y-LabelOffset {
			t.Errorf("label %d at (%d,%d), want (%d,%d)", i, l.X, l.Y, ov.Bounds.Min.X, ov.Bounds.Min.Y-LabelOffset)
		}
		if !hasColor(ann.Image, l.TextBounds(), color.NRGBA{0, 255, 0, 255}) {
			t.Errorf("label %d: no glyph pixels inside %v", i, l.TextBounds())
		}
	}
}

func hasColor(img *image.NRGBA, r image.Rectangle, c color.NRGBA) bool {
	r = r.Intersect(img.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.NRGBAAt(x, y) == c {
				return true
			}
		}
	}
	return false
}

func TestAnnotate_NoOverlays(t *testing.T) {
	src := organoidImage(10, 10)
	ann, err := Annotate(src, nil, AnnotateOptions{})
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	if len(ann.Labels) != 0 {
		t.Errorf("labels: got %d, want 0", len(ann.Labels))
	}
	if got := ann.Image.NRGBAAt(3, 3); got != (color.NRGBA{220, 220, 220, 255}) {
		t.Errorf("pixel: got %v", got)
	}
}

func TestAnnotate_BadColor(t *testing.T) {
	_, err := Annotate(organoidImage(10, 10), nil, AnnotateOptions{OutlineColor: "yellow"})
	if err == nil {
		t.Error("invalid outline color should fail")
	}
	_, err = Annotate(organoidImage(10, 10), nil, AnnotateOptions{LabelColor: "#12"})
	if err == nil {
		t.Error("invalid label color should fail")
	}
}

func TestLabelPlacement_TextBounds(t *testing.T) {
	l := LabelPlacement{Text: "12", X: 10, Y: 30}
	want := image.Rect(10, 19, 24, 32)
	if got := l.TextBounds(); got != want {
		t.Errorf("TextBounds: got %v, want %v", got, want)
	}
}

func TestAnnotatedFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"well_A1.tif", "well_A1_ROIs.png"},
		{"plate/day3.jpeg", "day3_ROIs.png"},
		{"scan.v2.png", "scan.v2_ROIs.png"},
		{"noext", "noext_ROIs.png"},
	}
	for _, tt := range tests {
		if got := AnnotatedFileName(tt.in); got != tt.want {
			t.Errorf("AnnotatedFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAnnotatedImage_SaveAndEncode(t *testing.T) {
	ann, err := Annotate(organoidImage(30, 30, [3]int{15, 15, 5}), []Overlay{ringOverlay(1, image.Rect(10, 10, 21, 21))}, testOptions)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), ROIImageDir, AnnotatedFileName("a.tif"))
	if err := ann.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("annotated file missing: %v", err)
	}
	img, format, err := Decode(data)
	if err != nil || format != "png" {
		t.Fatalf("saved file: format %q, err %v", format, err)
	}
	if img.Bounds().Dx() != 30 {
		t.Errorf("saved width: got %d", img.Bounds().Dx())
	}

	encoded, err := ann.EncodeBase64()
	if err != nil {
		t.Fatalf("EncodeBase64 failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	if _, _, err := Decode(raw); err != nil {
		t.Errorf("encoded payload does not decode: %v", err)
	}
}

func TestAnnotatedImage_CropLabel(t *testing.T) {
	ann, err := Annotate(organoidImage(60, 60), []Overlay{ringOverlay(7, image.Rect(20, 30, 40, 50))}, testOptions)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	l := ann.Labels[0]

	// Text spans (20,17)-(27,30); the margin grows it to (18,15)-(29,32)
	// and the region top at y=30 cuts it back
	crop := ann.CropLabel(l, 2, 4)
	if crop.Bounds().Dx() != 11*4 || crop.Bounds().Dy() != 15*4 {
		t.Errorf("crop size: got %v, want %dx%d", crop.Bounds(), 11*4, 15*4)
	}

	offscreen := LabelPlacement{Text: "9", X: 500, Y: 500}
	if b := ann.CropLabel(offscreen, 0, 1).Bounds(); b.Dx() != 1 || b.Dy() != 1 {
		t.Errorf("offscreen crop: got %v", b)
	}
}
