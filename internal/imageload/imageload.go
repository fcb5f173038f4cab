// Package imageload turns uploaded image files and raw pixel buffers into engine images
// backed by pooled off-heap memory.
package imageload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"
	"github.com/johbar/ocrlib/pkg/pixpool"
	"github.com/johbar/ocrlib/pkg/tesswrap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrTooLarge        = errors.New("image is too large")
	ErrEmpty           = errors.New("no image data")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrUndecodable     = errors.New("image cannot be decoded")
)

// RawMime is the type of uploads carrying raw pixels.
const RawMime = "application/octet-stream"

var supported = []string{"image/png", "image/jpeg", "image/gif", "image/tiff", "image/bmp", "image/webp"}

// RawParams describes the layout of a raw pixel upload.
type RawParams struct {
	Width         int `form:"width" json:"width" validate:"min=1"`
	Height        int `form:"height" json:"height" validate:"min=1"`
	BytesPerPixel int `form:"bpp" json:"bpp" validate:"oneof=0 1 3 4"`
	BytesPerLine  int `form:"bpl" json:"bpl" validate:"min=0"`
}

type Loader struct {
	pool *pixpool.Pool
	// MaxFileSize limits the size of encoded uploads
	MaxFileSize uint64
	// MaxPixelBytes limits the size of decoded images
	MaxPixelBytes uint64
	log           *slog.Logger
}

func New(pool *pixpool.Pool, maxFileSize, maxPixelBytes uint64, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{pool: pool, MaxFileSize: maxFileSize, MaxPixelBytes: maxPixelBytes, log: logger}
}

// Load decodes data, or copies it if raw is given, into a pooled buffer.
// The caller must eventually call Release of the returned image.
func (l *Loader) Load(data []byte, raw *RawParams) (tesswrap.Image, error) {
	if len(data) == 0 {
		return tesswrap.Image{}, ErrEmpty
	}
	if l.MaxFileSize > 0 && uint64(len(data)) > l.MaxFileSize {
		return tesswrap.Image{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	if raw != nil {
		return l.loadRaw(data, raw)
	}
	mtype := mimetype.Detect(data)
	l.log.Debug("Detected", "mimetype", mtype.String(), "ext", mtype.Extension())
	if !mimetype.EqualsAny(mtype.String(), supported...) {
		return tesswrap.Image{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return tesswrap.Image{}, fmt.Errorf("%w: reading %s header: %w", ErrUndecodable, mtype.String(), err)
	}
	if err := l.checkPixels(cfg.Width, cfg.Height); err != nil {
		return tesswrap.Image{}, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return tesswrap.Image{}, fmt.Errorf("%w: decoding %s: %w", ErrUndecodable, mtype.String(), err)
	}
	return l.fromImage(src)
}

func (l *Loader) checkPixels(w, h int) error {
	if w < 1 || h < 1 {
		return fmt.Errorf("%w: %dx%d", tesswrap.ErrInvalidGeometry, w, h)
	}
	if n := uint64(w) * uint64(h) * 4; l.MaxPixelBytes > 0 && n > l.MaxPixelBytes {
		return fmt.Errorf("%w: %dx%d pixels", ErrTooLarge, w, h)
	}
	return nil
}

func (l *Loader) loadRaw(data []byte, raw *RawParams) (tesswrap.Image, error) {
	img := tesswrap.Image{
		Pix:           data,
		Width:         raw.Width,
		Height:        raw.Height,
		BytesPerPixel: raw.BytesPerPixel,
		BytesPerLine:  raw.BytesPerLine,
	}
	if err := img.Validate(); err != nil {
		return tesswrap.Image{}, err
	}
	if err := l.checkPixels(raw.Width, raw.Height); err != nil {
		return tesswrap.Image{}, err
	}
	n := img.RequiredLen()
	buf, release, err := l.pool.Get(n)
	if err != nil {
		l.log.Warn("could not map pixel buffer, using heap", "err", err)
	}
	copy(buf, data[:n])
	img.Pix, img.Release = buf, release
	return img, nil
}

// isGray reports whether src carries no color information.
func isGray(src image.Image) bool {
	switch src.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return true
	}
	return false
}

// fromImage draws src onto white in a pooled buffer, as 8 bit grey or RGBA.
func (l *Loader) fromImage(src image.Image) (tesswrap.Image, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	bpp := 4
	if isGray(src) {
		bpp = 1
	}
	buf, release, err := l.pool.Get(w * h * bpp)
	if err != nil {
		l.log.Warn("could not map pixel buffer, using heap", "err", err)
	}
	r := image.Rect(0, 0, w, h)
	var dst draw.Image
	if bpp == 1 {
		dst = &image.Gray{Pix: buf, Stride: w, Rect: r}
	} else {
		dst = &image.RGBA{Pix: buf, Stride: w * 4, Rect: r}
	}
	draw.Draw(dst, r, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, r, src, b.Min, draw.Over)
	return tesswrap.Image{
		Pix:           buf,
		Width:         w,
		Height:        h,
		BytesPerPixel: bpp,
		BytesPerLine:  w * bpp,
		Release:       release,
	}, nil
}
