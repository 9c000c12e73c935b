package thumbnail

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestSampleFactor(t *testing.T) {
	tests := []struct {
		w, h, size, want int
	}{
		{100, 100, 256, 1},
		{1024, 768, 256, 2},
		{4000, 3000, 256, 8},
		{4000, 300, 256, 1},
		{512, 512, 0, 1},
	}
	for _, tt := range tests {
		if got := SampleFactor(tt.w, tt.h, tt.size); got != tt.want {
			t.Errorf("SampleFactor(%d, %d, %d) = %d, want %d", tt.w, tt.h, tt.size, got, tt.want)
		}
	}
}

func TestSubsample(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1000, 600))

	if got := subsample(src, 1); got != image.Image(src) {
		t.Error("subsample() with factor 1 should return the source")
	}

	got := subsample(src, 4).Bounds()
	if got.Dx() != 250 || got.Dy() != 150 {
		t.Errorf("subsample() = %dx%d, want 250x150", got.Dx(), got.Dy())
	}
}

func TestGenerate(t *testing.T) {
	t.Run("Subsampled", func(t *testing.T) {
		out, err := Generate(bytes.NewReader(pngBytes(t, 1024, 768)), 256, 0)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("output is not JPEG: %v", err)
		}
		if cfg.Width != 256 || cfg.Height != 192 {
			t.Errorf("thumbnail = %dx%d, want 256x192", cfg.Width, cfg.Height)
		}
	})


	t.Run("Landscape", func(t *testing.T) {
		out, err := Generate(bytes.NewReader(pngBytes(t, 400, 200)), 100, 0)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("output is not JPEG: %v", err)
		}
		if cfg.Width != 100 || cfg.Height != 50 {
			t.Errorf("thumbnail = %dx%d, want 100x50", cfg.Width, cfg.Height)
		}
	})

	t.Run("SmallerThanRequested", func(t *testing.T) {
		out, err := Generate(bytes.NewReader(pngBytes(t, 30, 60)), 256, 90)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		cfg, _ := jpeg.DecodeConfig(bytes.NewReader(out))
		if cfg.Width != 30 || cfg.Height != 60 {
			t.Errorf("thumbnail = %dx%d, want 30x60", cfg.Width, cfg.Height)
		}
	})

	t.Run("NotAnImage", func(t *testing.T) {
		_, err := Generate(bytes.NewReader([]byte("plain text, not pixels")), 100, 0)
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("Generate() error = %v, want ErrUnsupported", err)
		}
	})

	t.Run("TruncatedImage", func(t *testing.T) {
		data := pngBytes(t, 64, 64)
		_, err := Generate(bytes.NewReader(data[:len(data)/2]), 32, 0)
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("Generate() error = %v, want ErrUnsupported", err)
		}
	})
}
