package imaging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/anthonynsimon/bild/histogram"
)

// Thresholder chooses the binarization level for an image. Pixels with an
// intensity strictly above the level become foreground.
type Thresholder interface {
	Threshold(ctx context.Context, img *CalibratedImage) (uint8, error)
}

// AutoThreshold is the deterministic histogram strategy: an iterative
// intermeans (IsoData) search over the 8-bit histogram with the two extreme
// bins ignored, assuming a dark background.
type AutoThreshold struct{}

// Threshold implements Thresholder.
func (AutoThreshold) Threshold(ctx context.Context, img *CalibratedImage) (uint8, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return IsoDataLevel(Histogram(img)), nil
}

// Histogram returns the 256-bin intensity histogram of img.
func Histogram(img *CalibratedImage) []int {
	h := histogram.NewRGBAHistogram(img.Gray)
	bins := make([]int, 256)
	copy(bins, h.R.Bins)
	return bins
}

// IsoDataLevel computes the intermeans threshold of a 256-bin histogram.
//
// The first and last bins are excluded so saturated or masked-out pixels do
// not drag the level. Starting at the lowest populated bin, the split index
// moves up until it passes the midpoint of the two class means; the rounded
// midpoint is the level. A histogram with at most one populated bin (after
// exclusion) yields the mid-range level 128.
func IsoDataLevel(bins []int) uint8 {
	data := make([]float64, len(bins))
	for i, v := range bins {
		data[i] = float64(v)
	}
	maxValue := len(data) - 1
	data[0] = 0
	data[maxValue] = 0

	lo := 0
	for lo < maxValue && data[lo] == 0 {
		lo++
	}
	hi := maxValue
	for hi > 0 && data[hi] == 0 {
		hi--
	}
	if lo >= hi {
		return uint8(len(data) / 2)
	}

	moving := lo
	var result float64
	for {
		var sum1, sum2, sum3, sum4 float64
		for i := lo; i <= moving; i++ {
			sum1 += float64(i) * data[i]
			sum2 += data[i]
		}
		for i := moving + 1; i <= hi; i++ {
			sum3 += float64(i) * data[i]
			sum4 += data[i]
		}
		result = (sum1/sum2 + sum3/sum4) / 2.0
		moving++
		if !(float64(moving+1) <= result && moving < hi-1) {
			break
		}
	}

	level := math.Round(result)
	if level < 0 {
		level = 0
	}
	if level > 255 {
		level = 255
	}
	return uint8(level)
}

// ConfirmFunc asks an operator to accept or replace the suggested level for
// the named image. It may block for as long as the operator takes.
type ConfirmFunc func(ctx context.Context, name string, suggested uint8) (uint8, error)

// InteractiveThreshold computes the automatic level and hands it to an
// operator for confirmation. There is no timeout and no fallback: the image
// waits until Confirm returns.
type InteractiveThreshold struct {
	Confirm ConfirmFunc
}

// Threshold implements Thresholder.
func (t InteractiveThreshold) Threshold(ctx context.Context, img *CalibratedImage) (uint8, error) {
	suggested, err := AutoThreshold{}.Threshold(ctx, img)
	if err != nil {
		return 0, err
	}
	if t.Confirm == nil {
		return 0, fmt.Errorf("interactive threshold has no operator callback")
	}
	return t.Confirm(ctx, img.Name, suggested)
}

// PromptConfirm returns a ConfirmFunc that asks on out and reads answers
// from in, one line per image. An empty line accepts the suggestion; any
// other answer must be an integer in 0..255 and is asked again otherwise.
// Calls are serialized.
func PromptConfirm(in io.Reader, out io.Writer) ConfirmFunc {
	var mu sync.Mutex
	reader := bufio.NewReader(in)

	return func(_ context.Context, name string, suggested uint8) (uint8, error) {
		mu.Lock()
		defer mu.Unlock()

		for {
			fmt.Fprintf(out, "Adjust threshold for %s [%d]: ", name, suggested)
			line, err := reader.ReadString('\n')
			answer := strings.TrimSpace(line)
			if answer == "" {
				if err != nil {
					return 0, fmt.Errorf("threshold prompt: %w", err)
				}
				return suggested, nil
			}
			v, perr := strconv.Atoi(answer)
			if perr == nil && v >= 0 && v <= 255 {
				return uint8(v), nil
			}
			fmt.Fprintf(out, "Threshold must be a whole number between 0 and 255\n")
			if err != nil {
				return 0, fmt.Errorf("threshold prompt: %w", err)
			}
		}
	}
}
