// Package imageproc turns encoded images into CLIP vision-tower input tensors.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder

	_ "golang.org/x/image/bmp" // BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder

	"github.com/kailas-cloud/flagsearch/internal/domain"
)

// DefaultMaxPixels bounds the decoded size of an upload (about 40 megapixels).
const DefaultMaxPixels = 40_000_000

// CLIP normalisation constants (RGB order).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Preprocessor resizes, centre-crops and normalises images for a square CLIP input.
type Preprocessor struct {
	size      int
	maxPixels int
}

// New creates a preprocessor for size x size inputs.
func New(size int) *Preprocessor {
	return &Preprocessor{size: size, maxPixels: DefaultMaxPixels}
}

// WithMaxPixels returns a copy that rejects images larger than n pixels.
func (p *Preprocessor) WithMaxPixels(n int) *Preprocessor {
	cp := *p
	cp.maxPixels = n
	return &cp
}

// Size returns the square edge length of the produced tensor.
func (p *Preprocessor) Size() int { return p.size }

// Shape returns the NCHW tensor shape for a single image.
func (p *Preprocessor) Shape() []int64 {
	return []int64{1, 3, int64(p.size), int64(p.size)}
}

// Tensor decodes data and returns the normalised NCHW float32 tensor.
// Undecodable or oversized input is reported as domain.ErrInvalidQuery.
func (p *Preprocessor) Tensor(data []byte) ([]float32, error) {
	img, err := p.Decode(data)
	if err != nil {
		return nil, err
	}
	return p.FromImage(img), nil
}

// Decode decodes PNG, JPEG, GIF, WebP or BMP data after checking its declared size.
func (p *Preprocessor) Decode(data []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unrecognised image: %w", domain.ErrInvalidQuery, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %s image has no pixels", domain.ErrInvalidQuery, format)
	}
	if p.maxPixels > 0 && cfg.Width*cfg.Height > p.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d %s image exceeds %d pixels",
			domain.ErrInvalidQuery, cfg.Width, cfg.Height, format, p.maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", domain.ErrInvalidQuery, format, err)
	}
	return img, nil
}

// FromImage takes the centred square of img, scales it to Size with Catmull-Rom and
// normalises it. Cropping before scaling matches resize-then-crop up to edge sampling.
// Transparent regions are composited over white.
func (p *Preprocessor) FromImage(img image.Image) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, p.size, p.size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, centreSquare(img.Bounds()), draw.Over, nil)

	plane := p.size * p.size
	out := make([]float32, 3*plane)
	for y := 0; y < p.size; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < p.size; x++ {
			px := row[x*4:]
			i := y*p.size + x
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				out[c*plane+i] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}

// centreSquare returns the largest square centred in r.
func centreSquare(r image.Rectangle) image.Rectangle {
	side := min(r.Dx(), r.Dy())
	x0 := r.Min.X + (r.Dx()-side)/2
	y0 := r.Min.Y + (r.Dy()-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}
