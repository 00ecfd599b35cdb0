package batch

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ironsheep/organoid-counter/internal/config"
)

// discImage paints filled discs {cx, cy, r} in fg over a bg field
func discImage(width, height int, fg, bg uint8, discs ...[3]int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := bg
			for _, d := range discs {
				if (x-d[0])*(x-d[0])+(y-d[1])*(y-d[1]) <= d[2]*d[2] {
					v = fg
				}
			}
			img.Pix[y*img.Stride+x] = v
		}
	}
	return img
}

// darkDiscs is the usual brightfield look: dark organoids on a light field
func darkDiscs(width, height int, discs ...[3]int) *image.Gray {
	return discImage(width, height, 40, 220, discs...)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// defaultConfig is the shipped configuration, resolved
func defaultConfig(t *testing.T) config.Run {
	t.Helper()
	cfg := config.Default()
	cfg.Workers = 2
	cfg, err := cfg.Resolve()
	require.NoError(t, err)
	return cfg
}

// pixelConfig measures in pixels with small size gates
func pixelConfig(t *testing.T) config.Run {
	t.Helper()
	cfg := config.Default()
	cfg.ScalePreset = config.PresetCustom
	cfg.PixelWidth, cfg.PixelHeight = 1, 1
	cfg.Unit = "px"
	cfg.MinimumSize = 100
	cfg.AreaThreshold = 100
	cfg.Workers = 2
	cfg, err := cfg.Resolve()
	require.NoError(t, err)
	return cfg
}
