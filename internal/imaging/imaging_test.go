package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestProcessJPEGPassthrough(t *testing.T) {
	data := testJPEG(t, 640, 480)
	res, err := Process(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.MIME != "image/jpeg" {
		t.Fatalf("MIME = %q, want image/jpeg", res.MIME)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Fatalf("dimensions = %dx%d, want 640x480", cfg.Width, cfg.Height)
	}
}

func TestProcessDownscalesLargeImage(t *testing.T) {
	data := testJPEG(t, MaxDimension*2, MaxDimension)
	res, err := Process(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if cfg.Width != MaxDimension || cfg.Height != MaxDimension/2 {
		t.Fatalf("dimensions = %dx%d, want %dx%d", cfg.Width, cfg.Height, MaxDimension, MaxDimension/2)
	}
}

func TestProcessConvertsPNGToJPEG(t *testing.T) {
	data := testPNG(t, 100, 100)
	res, err := Process(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.MIME != "image/jpeg" {
		t.Fatalf("MIME = %q, want image/jpeg", res.MIME)
	}
	if _, err := jpeg.Decode(bytes.NewReader(res.Data)); err != nil {
		t.Fatalf("result is not a jpeg: %v", err)
	}
}

func TestProcessRejectsNonImage(t *testing.T) {
	_, err := Process(strings.NewReader("<html><body>nope</body></html>"))
	if err == nil {
		t.Fatal("expected error for non-image upload")
	}
	if !strings.Contains(err.Error(), "unsupported image format") {
		t.Fatalf("unexpected error: %v", err)
	}
}
