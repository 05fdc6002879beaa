package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"cfinav/config"
)

func makePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func decodedSize(t *testing.T, data []byte) (string, int, int) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	return format, cfg.Width, cfg.Height
}

func TestPrepareCover(t *testing.T) {
	red := color.RGBA{200, 10, 10, 255}
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 50"><rect width="100" height="50" fill="red"/></svg>`)

	small := makePNG(t, 40, 60, red)
	palette := image.NewPaletted(image.Rect(0, 0, 30, 30), []color.Color{color.Black, red})
	gifBuf := new(bytes.Buffer)
	if err := gif.Encode(gifBuf, palette, nil); err != nil {
		t.Fatalf("gif.Encode() error = %v", err)
	}

	tests := []struct {
		name     string
		data     []byte
		declared string
		cfg      config.CoverConfig
		wantMime string
		wantFmt  string
		wantW    int
		wantH    int
		same     bool
	}{
		{"png fits", small, "", config.CoverConfig{MaxWidth: 100, MaxHeight: 100, JPEGQuality: 75}, "image/png", "png", 40, 60, true},
		{"png no limits", small, "image/png", config.CoverConfig{JPEGQuality: 75}, "image/png", "png", 40, 60, true},
		{"png fit box", makePNG(t, 400, 200, red), "", config.CoverConfig{MaxWidth: 100, MaxHeight: 100, JPEGQuality: 75}, "image/jpeg", "jpeg", 100, 50, false},
		{"png by height", makePNG(t, 400, 200, red), "", config.CoverConfig{MaxHeight: 50, JPEGQuality: 75}, "image/jpeg", "jpeg", 100, 50, false},
		{"gif reencoded", gifBuf.Bytes(), "", config.CoverConfig{MaxWidth: 100, MaxHeight: 100, JPEGQuality: 75}, "image/jpeg", "jpeg", 30, 30, false},
		{"svg declared", svg, "image/svg+xml", config.CoverConfig{MaxWidth: 200, MaxHeight: 200, JPEGQuality: 75}, "image/jpeg", "jpeg", 200, 100, false},
		{"svg sniffed", svg, "", config.CoverConfig{MaxHeight: 25, JPEGQuality: 75}, "image/jpeg", "jpeg", 50, 25, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, mime, err := PrepareCover(tt.data, tt.declared, &tt.cfg)
			if err != nil {
				t.Fatalf("PrepareCover() error = %v", err)
			}
			if mime != tt.wantMime {
				t.Errorf("mime = %q, want %q", mime, tt.wantMime)
			}
			if tt.same && !bytes.Equal(data, tt.data) {
				t.Error("cover which fits must be returned unchanged")
			}
			format, w, h := decodedSize(t, data)
			if format != tt.wantFmt || w != tt.wantW || h != tt.wantH {
				t.Errorf("result = %s %dx%d, want %s %dx%d", format, w, h, tt.wantFmt, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPrepareCover_Unsupported(t *testing.T) {
	cfg := &config.CoverConfig{MaxWidth: 100, MaxHeight: 100, JPEGQuality: 75}
	for _, data := range [][]byte{nil, []byte("definitely not an image"), []byte("<svg broken")} {
		if _, _, err := PrepareCover(data, "image/jpeg", cfg); !errors.Is(err, ErrUnsupported) {
			t.Errorf("PrepareCover(%q) error = %v, want ErrUnsupported", data, err)
		}
	}
}

func TestEncodeGrayscale(t *testing.T) {
	gray := color.RGBA{90, 90, 90, 255}
	img, err := png.Decode(bytes.NewReader(makePNG(t, 400, 400, gray)))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if !IsGrayscale(img) {
		t.Fatal("IsGrayscale() = false for gray picture")
	}
	if _, ok := toGray(img).(*image.Gray); !ok {
		t.Errorf("toGray() = %T, want *image.Gray", toGray(img))
	}

	colored := image.NewRGBA(image.Rect(0, 0, 2, 2))
	colored.Set(1, 1, color.RGBA{255, 0, 0, 255})
	if IsGrayscale(colored) {
		t.Error("IsGrayscale() = true for colored picture")
	}
	if toGray(colored) != image.Image(colored) {
		t.Error("toGray() must keep colored picture")
	}
}

func TestSVGTargetSize(t *testing.T) {
	tests := []struct {
		name         string
		vbW, vbH     float64
		maxW, maxH   int
		wantW, wantH int
	}{
		{"intrinsic", 100, 50, 0, 0, 100, 50},
		{"by width", 100, 50, 200, 0, 200, 100},
		{"by height", 100, 50, 0, 200, 400, 200},
		{"fit box", 100, 50, 150, 150, 150, 75},
		{"no viewbox", 0, 0, 0, 0, defaultSVGSize, defaultSVGSize},
		{"clamped", 100000, 50000, 0, 0, maxRasterDim, maxRasterDim / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := svgTargetSize(tt.vbW, tt.vbH, tt.maxW, tt.maxH)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("svgTargetSize() = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestEncodeCover(t *testing.T) {
	data := []byte{0xff, 0xd8, 0xff, 0x00}
	got := EncodeCover(data)
	back, err := base64.StdEncoding.DecodeString(got)
	if err != nil || !bytes.Equal(back, data) {
		t.Errorf("EncodeCover() = %q does not decode back", got)
	}
}
