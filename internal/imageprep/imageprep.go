// Package imageprep turns a filesystem image reference into a compact
// data: URL suitable for the VLM's JSON request body, downscaling and
// re-encoding so full-resolution bodies don't cause station timeouts.
package imageprep

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Options mirrors the MAX_IMAGE_SIDE / JPEG_QUALITY / RAW_IMAGE_BYTES knobs.
type Options struct {
	MaxSide     int
	JPEGQuality int
	RawBytes    bool
}

// ToDataURL returns imageRef unchanged if it is already an http(s):// or
// data: URL. Otherwise it reads the file at imageRef and produces a
// data:image/jpeg;base64,... URL (or, in raw mode / on decode failure,
// a base64 blob of the original bytes with a best-guess MIME type).
func ToDataURL(imageRef string, opts Options) (string, error) {
	if strings.HasPrefix(imageRef, "http://") || strings.HasPrefix(imageRef, "https://") || strings.HasPrefix(imageRef, "data:") {
		return imageRef, nil
	}

	if opts.RawBytes {
		return rawDataURL(imageRef)
	}

	data, err := os.ReadFile(imageRef)
	if err != nil {
		return "", fmt.Errorf("imageprep: read %s: %w", imageRef, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return rawDataURLFromBytes(imageRef, data)
	}

	maxSide := opts.MaxSide
	if maxSide <= 0 {
		maxSide = 512
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxSide || h > maxSide {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = 85
	}

	encoded := &b64Writer{}
	if err := jpeg.Encode(encoded, img, &jpeg.Options{Quality: quality}); err != nil {
		return rawDataURLFromBytes(imageRef, data)
	}

	return "data:image/jpeg;base64," + encoded.String(), nil
}

func rawDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("imageprep: read %s: %w", path, err)
	}
	return rawDataURLFromBytes(path, data)
}

func rawDataURLFromBytes(path string, data []byte) (string, error) {
	m := mime.TypeByExtension(filepath.Ext(path))
	if m == "" {
		m = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", m, base64.StdEncoding.EncodeToString(data)), nil
}

// b64Writer buffers the JPEG encoder's output in memory and renders it
// as base64 on demand.
type b64Writer struct {
	buf []byte
}

func (w *b64Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *b64Writer) String() string {
	return base64.StdEncoding.EncodeToString(w.buf)
}
