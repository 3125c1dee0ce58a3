package scan

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/vaultiq/mediavault/common/models"
)

func testValidator() *Validator {
	return NewValidator(ValidatorConfig{
		MaxFileSize:       10 << 20,
		MaxPixels:         25_000_000,
		MaxDimension:      8192,
		MaxDecompression:  250,
		AllowedExtensions: []string{"jpg", "jpeg", "png", "gif", "webp"},
	})
}

func testProfile() models.UploadProfile {
	return models.UploadProfile{
		Name:        "avatar",
		MaxBytes:    10 << 20,
		AllowedMIME: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
	}
}

// pngBytes encodes a width x height image with per-pixel noise so the
// result does not compress down to a bomb-like ratio.
func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = byte(i * 31)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func validationCode(t *testing.T, err error) string {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	return verr.Code
}

func TestValidate_CleanPNG(t *testing.T) {
	data := pngBytes(t, 64, 64)
	declared := Declared{
		FileName:  "avatar.png",
		MimeType:  "image/png",
		SizeBytes: int64(len(data)),
		Profile:   testProfile(),
	}

	if err := testValidator().Validate(bytes.NewReader(data), declared); err != nil {
		t.Errorf("valid png must pass: %v", err)
	}
}

func TestValidate_EmptyFile(t *testing.T) {
	declared := Declared{FileName: "a.png", SizeBytes: 0, Profile: testProfile()}

	err := testValidator().Validate(bytes.NewReader(nil), declared)
	if code := validationCode(t, err); code != "empty_file" {
		t.Errorf("expected empty_file, got %s", code)
	}
}

func TestValidate_ProfileSizeTightensGlobalBound(t *testing.T) {
	data := pngBytes(t, 32, 32)
	profile := testProfile()
	profile.MaxBytes = 10

	declared := Declared{FileName: "a.png", SizeBytes: int64(len(data)), Profile: profile}

	err := testValidator().Validate(bytes.NewReader(data), declared)
	if code := validationCode(t, err); code != "file_too_large" {
		t.Errorf("expected file_too_large, got %s", code)
	}
}

func TestValidate_ExtensionNotAllowed(t *testing.T) {
	data := pngBytes(t, 32, 32)
	declared := Declared{FileName: "shell.php", SizeBytes: int64(len(data)), Profile: testProfile()}

	err := testValidator().Validate(bytes.NewReader(data), declared)
	if code := validationCode(t, err); code != "extension_not_allowed" {
		t.Errorf("expected extension_not_allowed, got %s", code)
	}
}

func TestValidate_MimeMismatch(t *testing.T) {
	data := pngBytes(t, 32, 32)
	declared := Declared{
		FileName:  "a.png",
		MimeType:  "image/jpeg",
		SizeBytes: int64(len(data)),
		Profile:   testProfile(),
	}

	err := testValidator().Validate(bytes.NewReader(data), declared)
	if code := validationCode(t, err); code != "mime_mismatch" {
		t.Errorf("expected mime_mismatch, got %s", code)
	}
}

func TestValidate_SniffedTypeNotAccepted(t *testing.T) {
	// Plain text renamed to .png sniffs as text/plain
	data := []byte("just some text pretending to be an image")
	declared := Declared{FileName: "a.png", SizeBytes: int64(len(data)), Profile: testProfile()}

	err := testValidator().Validate(bytes.NewReader(data), declared)
	if code := validationCode(t, err); code != "mime_not_allowed" {
		t.Errorf("expected mime_not_allowed, got %s", code)
	}
}

func TestValidate_DimensionBound(t *testing.T) {
	v := NewValidator(ValidatorConfig{
		MaxFileSize:       10 << 20,
		MaxPixels:         25_000_000,
		MaxDimension:      100,
		MaxDecompression:  250,
		AllowedExtensions: []string{"png"},
	})

	data := pngBytes(t, 200, 50)
	declared := Declared{FileName: "a.png", SizeBytes: int64(len(data)), Profile: testProfile()}

	err := v.Validate(bytes.NewReader(data), declared)
	if code := validationCode(t, err); code != "image_dimensions" {
		t.Errorf("expected image_dimensions, got %s", code)
	}
}

func TestValidate_DecompressionBomb(t *testing.T) {
	v := NewValidator(ValidatorConfig{
		MaxFileSize:       10 << 20,
		MaxPixels:         25_000_000,
		MaxDimension:      8192,
		MaxDecompression:  2,
		AllowedExtensions: []string{"png"},
	})

	// A compressible image whose decoded raster dwarfs the file size
	img := image.NewRGBA(image.Rect(0, 0, 512, 512))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	declared := Declared{FileName: "a.png", SizeBytes: int64(buf.Len()), Profile: testProfile()}

	err := v.Validate(bytes.NewReader(buf.Bytes()), declared)
	if code := validationCode(t, err); code != "decompression_ratio" {
		t.Errorf("expected decompression_ratio, got %s", code)
	}
}

func TestValidate_TruncatedImage(t *testing.T) {
	data := pngBytes(t, 64, 64)[:20]
	declared := Declared{FileName: "a.png", SizeBytes: int64(len(data)), Profile: testProfile()}

	err := testValidator().Validate(bytes.NewReader(data), declared)
	if code := validationCode(t, err); code != "image_undecodable" {
		t.Errorf("expected image_undecodable, got %s", code)
	}
}
