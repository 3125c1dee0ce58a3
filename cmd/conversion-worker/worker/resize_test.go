package worker

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/vaultiq/mediavault/common/models"
)

func TestFitWithin(t *testing.T) {
	cases := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{100, 100, 64, 64, 64, 64},
		{200, 100, 64, 64, 64, 32},
		{100, 200, 64, 64, 32, 64},
		{32, 32, 64, 64, 32, 32},   // never upscale
		{10000, 1, 64, 64, 64, 1},  // extreme aspect ratios floor at 1px
		{1, 10000, 64, 64, 1, 64},
	}
	for _, c := range cases {
		gotW, gotH := fitWithin(c.w, c.h, c.maxW, c.maxH)
		if gotW != c.wantW || gotH != c.wantH {
			t.Errorf("fitWithin(%d, %d, %d, %d) = (%d, %d), want (%d, %d)",
				c.w, c.h, c.maxW, c.maxH, gotW, gotH, c.wantW, c.wantH)
		}
	}
}

func encodePNG(t *testing.T, width, height int) *bytes.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf
}

func TestRenderConversion_ScalesAndKeepsFormat(t *testing.T) {
	src := encodePNG(t, 200, 100)

	out, err := renderConversion(src, models.ConversionSpec{Name: "thumb", Width: 64, Height: 64})
	if err != nil {
		t.Fatalf("renderConversion failed: %v", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("decode rendition: %v", err)
	}
	if format != "png" {
		t.Errorf("png source must stay png, got %s", format)
	}
	if cfg.Width != 64 || cfg.Height != 32 {
		t.Errorf("expected 64x32, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestRenderConversion_JPEGSource(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	src := &bytes.Buffer{}
	if err := jpeg.Encode(src, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}

	out, err := renderConversion(src, models.ConversionSpec{Name: "thumb", Width: 64, Height: 64})
	if err != nil {
		t.Fatalf("renderConversion failed: %v", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("decode rendition: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("jpeg source must stay jpeg, got %s", format)
	}
	if cfg.Width != 64 || cfg.Height != 64 {
		t.Errorf("expected 64x64, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestRenderConversion_NoUpscale(t *testing.T) {
	src := encodePNG(t, 16, 16)

	out, err := renderConversion(src, models.ConversionSpec{Name: "large", Width: 1024, Height: 1024})
	if err != nil {
		t.Fatalf("renderConversion failed: %v", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("decode rendition: %v", err)
	}
	if cfg.Width != 16 || cfg.Height != 16 {
		t.Errorf("small sources must not be upscaled, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestRenderConversion_GarbageInput(t *testing.T) {
	if _, err := renderConversion(bytes.NewReader([]byte("not an image")), models.ConversionSpec{Name: "thumb", Width: 64, Height: 64}); err == nil {
		t.Error("undecodable source must fail")
	}
}
