package logo

import (
	"bytes"
	"image"
	"image/png"

	// registered decoders
	_ "image/gif"
	_ "image/jpeg"

	"refdata-seeder/internal/seeding/domain/repository"
	apperrors "refdata-seeder/internal/shared/errors"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PNGRenderer scales a source image into a transparent size x size PNG,
// preserving the aspect ratio and centering the result
type PNGRenderer struct {
	scaler draw.Scaler
}

var _ repository.VariantRenderer = (*PNGRenderer)(nil)

// NewPNGRenderer uses Catmull-Rom resampling
func NewPNGRenderer() *PNGRenderer {
	return &PNGRenderer{scaler: draw.CatmullRom}
}

// Render decodes content and encodes the variant for size
func (r *PNGRenderer) Render(content []byte, size int) ([]byte, error) {
	if size <= 0 {
		return nil, apperrors.NewValidationError("variant size must be positive").WithDetail("size", size)
	}
	src, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, apperrors.NewValidationError("logo is not a decodable image").WithCause(err)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	r.scaler.Scale(dst, fitRect(src.Bounds(), size), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, dst); err != nil {
		return nil, apperrors.NewInternalError("encode variant").WithCause(err)
	}
	return buf.Bytes(), nil
}

// fitRect returns the centered rectangle inside a size x size square that keeps the aspect of b
func fitRect(b image.Rectangle, size int) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return image.Rect(0, 0, size, size)
	}
	tw, th := size, size
	if w > h {
		th = max(1, h*size/w)
	} else if h > w {
		tw = max(1, w*size/h)
	}
	x0 := (size - tw) / 2
	y0 := (size - th) / 2
	return image.Rect(x0, y0, x0+tw, y0+th)
}

// PassthroughRenderer returns content unchanged for every size
type PassthroughRenderer struct{}

// Render implements repository.VariantRenderer
func (PassthroughRenderer) Render(content []byte, _ int) ([]byte, error) {
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}
