package logo

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "refdata-seeder/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPNGRenderer_SquareVariants(t *testing.T) {
	r := NewPNGRenderer()
	src := samplePNG(t, 300, 150)

	for _, size := range []int{32, 64, 128} {
		out, err := r.Render(src, size)
		require.NoError(t, err)

		img, err := png.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, size, img.Bounds().Dx())
		assert.Equal(t, size, img.Bounds().Dy())

		// wide source leaves transparent bands top and bottom
		_, _, _, a := img.At(size/2, 0).RGBA()
		assert.Zero(t, a)
		_, _, _, a = img.At(size/2, size/2).RGBA()
		assert.NotZero(t, a)
	}
}

func TestPNGRenderer_Errors(t *testing.T) {
	r := NewPNGRenderer()
	_, err := r.Render([]byte("not an image"), 64)
	assert.True(t, apperrors.IsValidation(err))

	_, err = r.Render(samplePNG(t, 10, 10), 0)
	assert.True(t, apperrors.IsValidation(err))
}

func TestFitRect(t *testing.T) {
	assert.Equal(t, image.Rect(0, 25, 100, 75), fitRect(image.Rect(0, 0, 200, 100), 100))
	assert.Equal(t, image.Rect(25, 0, 75, 100), fitRect(image.Rect(0, 0, 100, 200), 100))
	assert.Equal(t, image.Rect(0, 0, 64, 64), fitRect(image.Rect(0, 0, 10, 10), 64))
}

func TestPassthroughRenderer(t *testing.T) {
	out, err := PassthroughRenderer{}.Render([]byte("abc"), 512)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
}

func TestHTTPFetcher(t *testing.T) {
	logo := samplePNG(t, 8, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/toyota.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(logo)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, 0)

	body, err := f.Fetch(context.Background(), srv.URL+"/toyota.png")
	require.NoError(t, err)
	assert.Equal(t, logo, body)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.png")
	assert.True(t, apperrors.IsStorage(err))

	_, err = f.Fetch(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, srv.URL+"/toyota.png")
	assert.ErrorIs(t, err, context.Canceled)
}
