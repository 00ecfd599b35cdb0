package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is the Tesseract language used when none is configured.
const DefaultLanguage = "eng"

// Reader recognizes a run of digits in an image and reports its confidence
// in 0..1.
type Reader interface {
	ReadDigits(img image.Image) (string, float64, error)
}

// Tesseract is a Reader backed by a local Tesseract installation. Each call
// uses its own client, so one value can be shared between goroutines.
type Tesseract struct {
	Language string
}

// ReadDigits implements Reader. The image is treated as a single word and
// recognition is restricted to the digits 0-9.
func (t Tesseract) ReadDigits(img image.Image) (string, float64, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", 0, fmt.Errorf("failed to encode label image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	lang := t.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	if err := client.SetLanguage(lang); err != nil {
		return "", 0, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetWhitelist("0123456789"); err != nil {
		return "", 0, fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_WORD); err != nil {
		return "", 0, fmt.Errorf("failed to set page segmentation: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", 0, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", 0, fmt.Errorf("OCR failed: %w", err)
	}
	text = strings.Join(strings.Fields(text), "")

	// Confidence is best effort; the text stands without it
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return text, 0, nil
	}
	var conf float64
	for _, box := range boxes {
		conf += box.Confidence
	}
	return text, conf / float64(len(boxes)) / 100.0, nil
}

// Version reports the linked Tesseract library version.
func Version() string {
	return gosseract.Version()
}
