package images

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Used when SVG viewBox has no size.
const defaultSVGSize = 1024

// Upper bound for either side of rasterized cover, protects from SVGs with
// enormous viewBox.
var maxRasterDim = 4096

// RasterizeSVG renders SVG cover on white background. Picture is scaled to fit
// into maxW x maxH box keeping aspect ratio, zero value means side is not
// limited. When both are zero intrinsic viewBox size is used.
func RasterizeSVG(data []byte, maxW, maxH int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unable to parse svg: %w", err)
	}

	w, h := svgTargetSize(icon.ViewBox.W, icon.ViewBox.H, maxW, maxH)
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	return dst, nil
}

func svgTargetSize(vbW, vbH float64, maxW, maxH int) (int, int) {
	iw, ih := math.Ceil(vbW), math.Ceil(vbH)
	if iw <= 0 {
		iw = defaultSVGSize
	}
	if ih <= 0 {
		ih = defaultSVGSize
	}

	scale := 1.0
	switch {
	case maxW > 0 && maxH > 0:
		scale = min(float64(maxW)/iw, float64(maxH)/ih)
	case maxW > 0:
		scale = float64(maxW) / iw
	case maxH > 0:
		scale = float64(maxH) / ih
	}
	if limit := min(float64(maxRasterDim)/(iw*scale), float64(maxRasterDim)/(ih*scale)); limit < 1 {
		scale *= limit
	}
	return max(int(math.Round(iw*scale)), 1), max(int(math.Round(ih*scale)), 1)
}
