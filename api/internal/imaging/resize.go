package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/apex/log"
	"golang.org/x/image/draw"

	"comic-vault/api/internal/util"
)

const (
	DefaultMaxSize = 1024
	DefaultQuality = 85
)

// DefaultAllowedFormats is used by ValidateFormat when no list is given.
var DefaultAllowedFormats = []string{"jpeg", "png", "webp"}

// Encoded is an image ready to be embedded into a model request.
type Encoded struct {
	Data []byte
	MIME string
}

func (e Encoded) DataURL() string { return util.MakeDataURL(e.MIME, e.Data) }

type OptimizeOptions struct {
	MaxWidth  int
	MaxHeight int
	Quality   int // JPEG quality, 1..100
}

func DefaultOptimizeOptions() OptimizeOptions {
	return OptimizeOptions{MaxWidth: DefaultMaxSize, MaxHeight: DefaultMaxSize, Quality: DefaultQuality}
}

// Resize fits img into maxW x maxH keeping the aspect ratio. Images already
// inside the box are returned unchanged.
func Resize(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return img
	}

	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := min(maxW, max(1, int(math.Round(float64(w)*scale))))
	nh := min(maxH, max(1, int(math.Round(float64(h)*scale))))

	dst := newLike(img, nw, nh)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodePNG encodes the image losslessly.
func EncodePNG(n *Normalized) (Encoded, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, n.Image); err != nil {
		return Encoded{}, fmt.Errorf("encode png: %w", err)
	}
	return Encoded{Data: buf.Bytes(), MIME: "image/png"}, nil
}

// OptimizeForAPI shrinks the image into the bounding box when it exceeds it
// and re-encodes it as JPEG.
func OptimizeForAPI(n *Normalized, opt OptimizeOptions) (Encoded, error) {
	def := DefaultOptimizeOptions()
	if opt.MaxWidth <= 0 {
		opt.MaxWidth = def.MaxWidth
	}
	if opt.MaxHeight <= 0 {
		opt.MaxHeight = def.MaxHeight
	}
	if opt.Quality < 1 || opt.Quality > 100 {
		opt.Quality = def.Quality
	}

	img := n.Image
	w, h := n.Size()
	if w > opt.MaxWidth || h > opt.MaxHeight {
		img = Resize(img, opt.MaxWidth, opt.MaxHeight)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opt.Quality}); err != nil {
		return Encoded{}, fmt.Errorf("encode jpeg: %w", err)
	}
	nb := img.Bounds()
	log.Debugf("image optimized: %dx%d -> %dx%d, %d bytes (quality %d)", w, h, nb.Dx(), nb.Dy(), buf.Len(), opt.Quality)
	return Encoded{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

// ValidateFormat reports whether format is in allowed (DefaultAllowedFormats
// when allowed is empty). Comparison is case-insensitive and treats "jpg" as "jpeg".
func ValidateFormat(format string, allowed []string) bool {
	if len(allowed) == 0 {
		allowed = DefaultAllowedFormats
	}
	f := canonicalFormat(format)
	if f == "" {
		return false
	}
	for _, a := range allowed {
		if canonicalFormat(a) == f {
			return true
		}
	}
	return false
}

func canonicalFormat(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "jpg" {
		return "jpeg"
	}
	return s
}
