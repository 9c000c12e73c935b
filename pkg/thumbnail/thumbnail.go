// Package thumbnail produces small JPEG previews of images.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	// Registered decoders
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/image/draw"
)

const (
	// DefaultQuality is the JPEG quality of generated thumbnails
	DefaultQuality = 80

	// MaxPixels bounds the decoded source size
	MaxPixels = 64 << 20
)

var (
	// ErrUnsupported means the input is not a decodable image
	ErrUnsupported = errors.New("unsupported image format")
	// ErrTooLarge means the image exceeds MaxPixels
	ErrTooLarge = errors.New("image too large to thumbnail")
)

// SampleFactor returns the largest power of two that keeps both dimensions
// at or above size once divided by it
func SampleFactor(width, height, size int) int {
	factor := 1
	if size <= 0 {
		return factor
	}
	for width/(factor*2) >= size && height/(factor*2) >= size {
		factor *= 2
	}
	return factor
}

// subsample shrinks src by factor in each dimension
func subsample(src image.Image, factor int) image.Image {
	if factor <= 1 {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, max(1, b.Dx()/factor), max(1, b.Dy()/factor)))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// fit scales w x h down to fit inside size x size, keeping the aspect ratio
func fit(w, h, size int) (int, int) {
	if w <= size && h <= size {
		return w, h
	}
	if w >= h {
		return size, max(1, h*size/w)
	}
	return max(1, w*size/h), size
}

// Generate reads the image bounds first, rejects formats it cannot decode
// and oversized images, then decodes and scales the image so its longest
// edge is at most size, re-encoded as JPEG.
func Generate(r io.ReadSeeker, size, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupported)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind image: %w", err)
	}

	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	// The decoders have no reduced-resolution mode, so the decoded image is
	// reduced by the sample factor with a cheap nearest-neighbour pass and
	// only that smaller copy goes through the bilinear scaler.
	src = subsample(src, SampleFactor(cfg.Width, cfg.Height, size))

	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if size > 0 {
		w, h = fit(w, h, size)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
