package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/image/tiff"
)

// organoidImage returns a light field with dark filled discs, given as
// {cx, cy, r}, the way brightfield organoid images look.
func organoidImage(width, height int, discs ...[3]int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(220)
			for _, d := range discs {
				if (x-d[0])*(x-d[0])+(y-d[1])*(y-d[1]) <= d[2]*d[2] {
					v = 40
				}
			}
			img.Pix[y*img.Stride+x] = v
		}
	}
	return img
}

// writeImageFile encodes img as PNG at dir/name and returns the path
func writeImageFile(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
	return path
}

func TestDecode(t *testing.T) {
	var pngData bytes.Buffer
	if err := png.Encode(&pngData, organoidImage(20, 10)); err != nil {
		t.Fatal(err)
	}
	var tiffData bytes.Buffer
	if err := tiff.Encode(&tiffData, organoidImage(20, 10), nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		data       []byte
		wantFormat string
		wantErr    bool
	}{
		{"png", pngData.Bytes(), "png", false},
		{"tiff", tiffData.Bytes(), "tiff", false},
		{"empty", nil, "", true},
		{"garbage", []byte("not an image"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, format, err := Decode(tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrImageLoad) {
					t.Fatalf("error: got %v, want ErrImageLoad", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if format != tt.wantFormat {
				t.Errorf("format: got %s, want %s", format, tt.wantFormat)
			}
			if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 10 {
				t.Errorf("bounds: got %v", img.Bounds())
			}
		})
	}
}

func TestImageCache_Load(t *testing.T) {
	cache := NewImageCache()
	path := writeImageFile(t, t.TempDir(), "plate.png", organoidImage(100, 80))

	first, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	second, err := cache.Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if first != second {
		t.Error("second Load did not return the cached image")
	}

	cache.Evict(path)
	cache.mu.RLock()
	_, cached := cache.images[path]
	cache.mu.RUnlock()
	if cached {
		t.Error("Evict did not remove the image")
	}

	cache.Load(path)
	if n := cache.Len(); n != 1 {
		t.Errorf("Len: got %d, want 1", n)
	}
	cache.Clear()
	if n := cache.Len(); n != 0 {
		t.Errorf("Clear left %d images", n)
	}
}

func TestImageCache_LoadFailures(t *testing.T) {
	cache := NewImageCache()
	dir := t.TempDir()

	bad := filepath.Join(dir, "corrupt.tif")
	if err := os.WriteFile(bad, []byte("II*\x00garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{bad, filepath.Join(dir, "missing.png")} {
		if _, err := cache.Load(path); !errors.Is(err, ErrImageLoad) {
			t.Errorf("Load(%s): got %v, want ErrImageLoad", filepath.Base(path), err)
		}
	}
}

func TestImageCache_ConcurrentAccess(t *testing.T) {
	cache := NewImageCache()
	path := writeImageFile(t, t.TempDir(), "plate.png", organoidImage(50, 50))

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Load(path); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Load error: %v", err)
	}
}

func TestLoadImageInfo(t *testing.T) {
	cache := NewImageCache()
	dir := t.TempDir()

	gray := writeImageFile(t, dir, "gray.png", organoidImage(200, 150))
	info, err := LoadImageInfo(cache, gray)
	if err != nil {
		t.Fatalf("LoadImageInfo failed: %v", err)
	}
	if info.Width != 200 || info.Height != 150 {
		t.Errorf("size: got %dx%d, want 200x150", info.Width, info.Height)
	}
	if info.Format != "png" || !info.Grayscale || info.ColorDepth != "8-bit" {
		t.Errorf("got %+v", info)
	}
	if info.FileSizeBytes <= 0 {
		t.Error("FileSizeBytes should be positive")
	}

	deep := image.NewGray16(image.Rect(0, 0, 10, 10))
	deep.SetGray16(3, 3, color.Gray16{Y: 40000})
	path := writeImageFile(t, dir, "deep.tiff", deep)
	info, err = LoadImageInfo(cache, path)
	if err != nil {
		t.Fatalf("LoadImageInfo failed: %v", err)
	}
	if info.Format != "tiff" || info.ColorDepth != "16-bit" || !info.Grayscale {
		t.Errorf("got %+v", info)
	}
}

func TestLoadImageInfo_NonExistent(t *testing.T) {
	_, err := LoadImageInfo(NewImageCache(), "/nonexistent/image.png")
	if err == nil {
		t.Error("LoadImageInfo should fail for a missing file")
	}
}
