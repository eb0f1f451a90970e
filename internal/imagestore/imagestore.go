// Package imagestore keeps uploaded place images and hands out opaque
// references to them. Uploads are sniffed and size-limited before they are
// written; oversized pictures are scaled down.
package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decode support
)

var (
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrTooLarge         = errors.New("image exceeds size limit")
	ErrInvalidRef       = errors.New("invalid image reference")
)

// Store saves and releases images.
type Store interface {
	// Save stores the image read from r and returns its reference.
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	// Release deletes the image. Releasing a missing image is not an error.
	Release(ctx context.Context, ref string) error
}

const (
	DefaultMaxBytes    = 5 << 20
	DefaultMaxWidth    = 1200
	DefaultJPEGQuality = 85
)

// Options bounds what Save accepts.
type Options struct {
	MaxBytes int64
	MaxWidth int
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	return o
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// upload is a validated image ready to be written.
type upload struct {
	data        []byte
	contentType string
	ext         string
}

// prepare reads r, rejects anything that is not a decodable PNG, JPEG or
// WebP within the size limit, and scales wide images down to MaxWidth.
func prepare(r io.Reader, opts Options) (*upload, error) {
	data, err := io.ReadAll(io.LimitReader(r, opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if int64(len(data)) > opts.MaxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrTooLarge, opts.MaxBytes)
	}

	contentType := detectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, contentType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= opts.MaxWidth {
		return &upload{data: data, contentType: contentType, ext: ext}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return resize(img, contentType, opts.MaxWidth)
}

// resize keeps the aspect ratio. PNG stays PNG; everything else is written
// as JPEG since there is no WebP encoder.
func resize(img image.Image, contentType string, maxWidth int) (*upload, error) {
	bounds := img.Bounds()
	newHeight := int(float64(bounds.Dy()) * float64(maxWidth) / float64(bounds.Dx()))
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if contentType == "image/png" {
		if err := png.Encode(&buf, dst); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
		return &upload{data: buf.Bytes(), contentType: "image/png", ext: ".png"}, nil
	}
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: DefaultJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return &upload{data: buf.Bytes(), contentType: "image/jpeg", ext: ".jpg"}, nil
}

func detectContentType(data []byte) string {
	if len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	if len(data) >= 8 && bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")) {
		return "image/png"
	}
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}
	return "application/octet-stream"
}
