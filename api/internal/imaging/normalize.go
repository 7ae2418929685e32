// Package imaging turns uploaded bytes into an in-memory image with a
// predictable color model, and re-encodes it for transmission.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type ColorMode string

const (
	ModeRGB   ColorMode = "rgb"
	ModeGray  ColorMode = "gray"
	ModeOther ColorMode = "other"
)

// DefaultMaxPixels bounds width*height read from the image header, so a
// forged header cannot make the decoder allocate gigabytes.
const DefaultMaxPixels = 40_000_000

var (
	ErrEmpty    = errors.New("image is empty")
	ErrTooLarge = errors.New("image dimensions exceed the pixel limit")
)

// DecodeError reports bytes that are not a supported image container.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "failed to load image: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Normalized is a decoded image restricted to ModeRGB or ModeGray.
type Normalized struct {
	Image  image.Image
	Format string // container name as registered with image.Decode, e.g. "jpeg"
	Mode   ColorMode
}

func (n *Normalized) Size() (int, int) {
	b := n.Image.Bounds()
	return b.Dx(), b.Dy()
}

// Load is LoadLimited with DefaultMaxPixels.
func Load(data []byte) (*Normalized, error) {
	return LoadLimited(data, DefaultMaxPixels)
}

// LoadLimited decodes data, applies JPEG EXIF orientation and converts every
// color model other than 8-bit gray or opaque RGBA into opaque RGBA. Images
// whose header declares more than maxPixels pixels are rejected before any
// pixel buffer is allocated. maxPixels <= 0 disables the check.
func LoadLimited(data []byte, maxPixels int) (*Normalized, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: ErrEmpty}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Err: errors.New("image has no pixels")}
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %dx%d > %d", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Err: errors.New("image has no pixels")}
	}

	if format == "jpeg" {
		if o := Orientation(data); o != 1 {
			img = Orient(img, o)
		}
	}

	out, mode := toSupportedMode(img)
	return &Normalized{Image: out, Format: format, Mode: mode}, nil
}

// ModeOf classifies the color model of img.
func ModeOf(img image.Image) ColorMode {
	switch m := img.(type) {
	case *image.Gray:
		return ModeGray
	case *image.RGBA:
		if m.Opaque() {
			return ModeRGB
		}
	}
	return ModeOther
}

func toSupportedMode(img image.Image) (image.Image, ColorMode) {
	if mode := ModeOf(img); mode != ModeOther {
		return img, mode
	}
	return flattenRGB(img), ModeRGB
}

// flattenRGB draws img over an opaque white canvas.
func flattenRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// newLike allocates a canvas that keeps gray images gray.
func newLike(img image.Image, w, h int) draw.Image {
	if _, ok := img.(*image.Gray); ok {
		return image.NewGray(image.Rect(0, 0, w, h))
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}
