package scan

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"net/http"
	"path"
	"strings"

	// Registered decoders for dimension checks
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/vaultiq/mediavault/common/models"
)

// ValidatorConfig bounds what structural validation accepts.
type ValidatorConfig struct {
	MaxFileSize       int64
	MaxPixels         int64
	MaxDimension      int
	MaxDecompression  float64
	AllowedExtensions []string
}

// Validator performs structural validation of a staged upload before any
// engine is asked for an opinion: declared size and type against the
// allow-list, magic-byte sniffing, and decoded-image bounds that reject
// decompression bombs.
type Validator struct {
	cfg ValidatorConfig
}

// NewValidator creates a structural validator
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Declared is what the client claimed about the upload.
type Declared struct {
	FileName  string
	MimeType  string
	SizeBytes int64
	Profile   models.UploadProfile
}

// Validate checks the staged content against the declared profile.
// All failures are ValidationErrors with stable codes.
func (v *Validator) Validate(r io.Reader, declared Declared) error {
	if declared.SizeBytes <= 0 {
		return &ValidationError{Code: "empty_file", Detail: "uploaded file is empty"}
	}

	maxBytes := v.cfg.MaxFileSize
	if declared.Profile.MaxBytes > 0 && declared.Profile.MaxBytes < maxBytes {
		maxBytes = declared.Profile.MaxBytes
	}
	if declared.SizeBytes > maxBytes {
		return &ValidationError{Code: "file_too_large", Detail: fmt.Sprintf("size exceeds %d bytes", maxBytes)}
	}

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(declared.FileName)), ".")
	if !v.extensionAllowed(ext) {
		return &ValidationError{Code: "extension_not_allowed", Detail: "file extension is not on the allow-list"}
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("read upload head: %w", err)
	}
	head = head[:n]

	sniffed := http.DetectContentType(head)
	if !declared.Profile.AcceptsMIME(baseMIME(sniffed)) {
		return &ValidationError{Code: "mime_not_allowed", Detail: "detected content type is not accepted by the profile"}
	}
	if declared.MimeType != "" && baseMIME(declared.MimeType) != baseMIME(sniffed) {
		return &ValidationError{Code: "mime_mismatch", Detail: "declared content type does not match file contents"}
	}

	if strings.HasPrefix(sniffed, "image/") {
		return v.validateImage(io.MultiReader(bytes.NewReader(head), r), declared.SizeBytes)
	}

	return nil
}

// validateImage decodes only the image header and bounds its dimensions.
func (v *Validator) validateImage(r io.Reader, sizeBytes int64) error {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return &ValidationError{Code: "image_undecodable", Detail: "image header could not be decoded"}
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return &ValidationError{Code: "image_dimensions", Detail: "image has invalid dimensions"}
	}

	if cfg.Width > v.cfg.MaxDimension || cfg.Height > v.cfg.MaxDimension {
		return &ValidationError{Code: "image_dimensions", Detail: fmt.Sprintf("dimension exceeds %dpx", v.cfg.MaxDimension)}
	}

	pixels := int64(cfg.Width) * int64(cfg.Height)
	if pixels > v.cfg.MaxPixels {
		return &ValidationError{Code: "image_megapixels", Detail: "image pixel count exceeds the configured bound"}
	}

	// Decompression-bomb guard: a tiny file that decodes to an enormous
	// raster is rejected before any resizer touches it.
	decoded := pixels * 4
	if sizeBytes > 0 && float64(decoded)/float64(sizeBytes) > v.cfg.MaxDecompression {
		return &ValidationError{Code: "decompression_ratio", Detail: "decoded size to file size ratio exceeds the configured bound"}
	}

	return nil
}

func (v *Validator) extensionAllowed(ext string) bool {
	for _, allowed := range v.cfg.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func baseMIME(mime string) string {
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	mime = strings.TrimSpace(strings.ToLower(mime))
	if mime == "image/jpg" {
		return "image/jpeg"
	}
	return mime
}
