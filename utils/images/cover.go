package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"cfinav/config"
)

// ErrUnsupported is returned when cover data could not be turned into image.
var ErrUnsupported = errors.New("unsupported cover image")

// PrepareCover makes cover resource suitable for sending to the host: SVG is
// rasterized, large images are scaled down to fit the configured box and
// re-encoded as JPEG. JPEG and PNG covers which already fit are returned as is.
// Returns resulting data and its mime type.
func PrepareCover(data []byte, declaredMime string, cfg *config.CoverConfig) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty data", ErrUnsupported)
	}

	mimeType := strings.ToLower(declaredMime)
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		mimeType = kind.MIME.Value
	}

	var (
		img image.Image
		err error
	)
	if isSVG(data, mimeType) {
		if img, err = RasterizeSVG(data, cfg.MaxWidth, cfg.MaxHeight); err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrUnsupported, err)
		}
		return encodeJPEG(img, cfg.JPEGQuality)
	}

	img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", ErrUnsupported, mimeType, err)
	}

	if fits(img, cfg.MaxWidth, cfg.MaxHeight) {
		switch mimeType {
		case "image/jpeg", "image/png":
			return data, mimeType, nil
		}
		return encodeJPEG(img, cfg.JPEGQuality)
	}

	switch {
	case cfg.MaxWidth > 0 && cfg.MaxHeight > 0:
		img = imaging.Fit(img, cfg.MaxWidth, cfg.MaxHeight, imaging.Lanczos)
	case cfg.MaxWidth > 0:
		img = imaging.Resize(img, cfg.MaxWidth, 0, imaging.Lanczos)
	default:
		img = imaging.Resize(img, 0, cfg.MaxHeight, imaging.Lanczos)
	}
	return encodeJPEG(img, cfg.JPEGQuality)
}

// EncodeCover returns cover payload as it is sent to the host.
func EncodeCover(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func isSVG(data []byte, mimeType string) bool {
	if mimeType == "image/svg+xml" {
		return true
	}
	head := data[:min(len(data), 512)]
	return bytes.Contains(head, []byte("<svg"))
}

func fits(img image.Image, maxW, maxH int) bool {
	b := img.Bounds()
	return (maxW <= 0 || b.Dx() <= maxW) && (maxH <= 0 || b.Dy() <= maxH)
}

func encodeJPEG(img image.Image, quality int) ([]byte, string, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, toGray(img), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, "", fmt.Errorf("unable to encode cover: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}
