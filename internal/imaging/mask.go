package imaging

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
)

// ErrInvertUnsupported is returned by InvertMask when the mask carries no
// foreground/background distinction to swap. Callers keep the original mask.
var ErrInvertUnsupported = errors.New("mask cannot be meaningfully inverted")

// BinaryMask is a row-major boolean grid; true marks foreground.
type BinaryMask struct {
	Width  int
	Height int
	Pix    []bool
}

// NewBinaryMask allocates an all-background mask.
func NewBinaryMask(width, height int) *BinaryMask {
	return &BinaryMask{
		Width:  width,
		Height: height,
		Pix:    make([]bool, width*height),
	}
}

// At reports whether (x, y) is foreground. Out-of-range points are background.
func (m *BinaryMask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x]
}

// Set marks (x, y) as foreground or background.
func (m *BinaryMask) Set(x, y int, v bool) {
	m.Pix[y*m.Width+x] = v
}

// Count returns the number of foreground pixels.
func (m *BinaryMask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (m *BinaryMask) Clone() *BinaryMask {
	c := &BinaryMask{Width: m.Width, Height: m.Height, Pix: make([]bool, len(m.Pix))}
	copy(c.Pix, m.Pix)
	return c
}

// Image renders the mask as black foreground on white, the usual look of a
// binary mask in microscopy tools.
func (m *BinaryMask) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		if v {
			img.Pix[i] = 0
		} else {
			img.Pix[i] = 255
		}
	}
	return img
}

// Save writes the mask image to path, creating parent directories. The
// format follows the extension.
func (m *BinaryMask) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create mask directory: %w", err)
	}
	if err := imaging.Save(m.Image(), path); err != nil {
		return fmt.Errorf("failed to save mask: %w", err)
	}
	return nil
}

// Binarize marks pixels brighter than level as foreground.
func Binarize(img *CalibratedImage, level uint8) *BinaryMask {
	w, h := img.Width(), img.Height()
	mask := NewBinaryMask(w, h)
	if level == 255 {
		return mask
	}

	// segment.Threshold keeps values >= its level
	th := segment.Threshold(img.Gray, level+1)
	for y := 0; y < h; y++ {
		row := th.Pix[y*th.Stride : y*th.Stride+w]
		for x, v := range row {
			mask.Pix[y*w+x] = v != 0
		}
	}
	return mask
}

// InvertMask swaps foreground and background.
//
// A mask that is empty or uniform (all foreground or all background) has
// nothing to invert: the threshold did not separate anything, and swapping
// would turn the whole frame into one border-touching region. In that case
// the original mask is returned with ErrInvertUnsupported.
func InvertMask(m *BinaryMask) (*BinaryMask, error) {
	if len(m.Pix) == 0 {
		return m, ErrInvertUnsupported
	}
	n := m.Count()
	if n == 0 || n == len(m.Pix) {
		return m, ErrInvertUnsupported
	}

	out := &BinaryMask{Width: m.Width, Height: m.Height, Pix: make([]bool, len(m.Pix))}
	for i, v := range m.Pix {
		out.Pix[i] = !v
	}
	return out, nil
}
