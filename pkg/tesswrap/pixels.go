package tesswrap

import (
	"fmt"
	"image"
	"image/png"
	"io"
)

// Image describes raw pixels in the layout TessBaseAPI::SetImage expects.
// Greyscale of 1 and color of 3 (RGB) or 4 (RGBA) bytes per pixel may be given.
// Binary images use 0 bytes per pixel: they must be byte packed with the MSB of the
// first byte being the first pixel, and a 1 represents white.
type Image struct {
	Pix           []byte
	Width, Height int
	BytesPerPixel int
	// BytesPerLine is the row stride. Zero means rows are tightly packed.
	BytesPerLine int
	// Release is called once, when whoever borrowed Pix is done with it. May be nil.
	Release func()
}

// Stride returns the number of bytes between the starts of two consecutive rows.
func (img Image) Stride() int {
	if img.BytesPerLine > 0 {
		return img.BytesPerLine
	}
	return img.rowBytes()
}

func (img Image) rowBytes() int {
	if img.BytesPerPixel == 0 {
		return (img.Width + 7) / 8
	}
	return img.Width * img.BytesPerPixel
}

// RequiredLen is the minimum length of Pix for the image's geometry.
func (img Image) RequiredLen() int {
	if img.Height < 1 {
		return 0
	}
	return img.Stride()*(img.Height-1) + img.rowBytes()
}

// Bounds returns the rectangle covered by the image.
func (img Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, img.Width, img.Height)
}

// Validate checks the geometry of img against the length of its buffer.
func (img Image) Validate() error {
	switch img.BytesPerPixel {
	case 0, 1, 3, 4:
	default:
		return fmt.Errorf("%w: %d bytes per pixel", ErrInvalidGeometry, img.BytesPerPixel)
	}
	if img.Width < 1 || img.Height < 1 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, img.Width, img.Height)
	}
	if img.BytesPerLine > 0 && img.BytesPerLine < img.rowBytes() {
		return fmt.Errorf("%w: %d bytes per line for %d pixels", ErrInvalidGeometry, img.BytesPerLine, img.Width)
	}
	if len(img.Pix) < img.RequiredLen() {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrShortBuffer, len(img.Pix), img.RequiredLen())
	}
	return nil
}

// ToImage returns the part of img inside r as an [image.Image].
// An empty r selects the whole image. Greyscale and RGBA pixels are not copied.
func (img Image) ToImage(r image.Rectangle) (image.Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	if r.Empty() {
		r = bounds
	}
	r = r.Intersect(bounds)
	if r.Empty() {
		return nil, fmt.Errorf("%w: rectangle outside of image", ErrInvalidGeometry)
	}
	stride := img.Stride()
	switch img.BytesPerPixel {
	case 1:
		g := &image.Gray{Pix: img.Pix, Stride: stride, Rect: bounds}
		return g.SubImage(r), nil
	case 4:
		rgba := &image.RGBA{Pix: img.Pix, Stride: stride, Rect: bounds}
		return rgba.SubImage(r), nil
	case 3:
		out := image.NewRGBA(r)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			src := img.Pix[y*stride:]
			dst := out.Pix[out.PixOffset(r.Min.X, y):]
			for x := r.Min.X; x < r.Max.X; x++ {
				i, j := x*3, (x-r.Min.X)*4
				dst[j], dst[j+1], dst[j+2], dst[j+3] = src[i], src[i+1], src[i+2], 0xff
			}
		}
		return out, nil
	default:
		out := image.NewGray(r)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := img.Pix[y*stride:]
			dst := out.Pix[out.PixOffset(r.Min.X, y):]
			for x := r.Min.X; x < r.Max.X; x++ {
				if row[x/8]&(0x80>>(x%8)) != 0 {
					dst[x-r.Min.X] = 0xff
				}
			}
		}
		return out, nil
	}
}

var pngEncoder = png.Encoder{CompressionLevel: png.BestSpeed}

// EncodePNG writes the part of img inside r as PNG to w. An empty r selects the whole image.
func (img Image) EncodePNG(w io.Writer, r image.Rectangle) error {
	m, err := img.ToImage(r)
	if err != nil {
		return err
	}
	return pngEncoder.Encode(w, m)
}
