package imageprep

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDataURLPassesThroughExistingURLs(t *testing.T) {
	for _, ref := range []string{
		"http://example.com/a.jpg",
		"https://example.com/a.jpg",
		"data:image/png;base64,AAAA",
	} {
		got, err := ToDataURL(ref, Options{})
		require.NoError(t, err)
		assert.Equal(t, ref, got)
	}
}

func TestToDataURLDownscalesAndEncodesJPEG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.jpg")
	writeTestJPEG(t, path, 1024, 768)

	got, err := ToDataURL(path, Options{MaxSide: 512, JPEGQuality: 85})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "data:image/jpeg;base64,"))
}

func TestToDataURLRawModeSkipsReencode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.png")
	require.NoError(t, os.WriteFile(path, []byte("not a real image"), 0o644))

	got, err := ToDataURL(path, Options{RawBytes: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "data:image/png;base64,"))
}

func TestToDataURLFallsBackOnDecodeFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xD8, 0x00, 0x01}, 0o644))

	got, err := ToDataURL(path, Options{MaxSide: 512, JPEGQuality: 85})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "data:image/jpeg;base64,"))
}

func writeTestJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 90}))
}
