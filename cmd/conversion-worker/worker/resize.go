package worker

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/webp"

	"github.com/vaultiq/mediavault/common/models"
	"golang.org/x/image/draw"
)

// renderConversion decodes the original and scales it to fit inside the
// rendition's bounding box, preserving aspect ratio. Output format follows
// the source format; webp sources re-encode as jpeg since the webp package
// only decodes.
func renderConversion(src io.Reader, spec models.ConversionSpec) (*bytes.Buffer, error) {
	img, format, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	w, h := fitWithin(img.Bounds().Dx(), img.Bounds().Dy(), spec.Width, spec.Height)
	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	buf := &bytes.Buffer{}
	switch format {
	case "png":
		err = png.Encode(buf, scaled)
	case "gif":
		err = gif.Encode(buf, scaled, nil)
	default:
		err = jpeg.Encode(buf, scaled, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s rendition: %w", spec.Name, err)
	}
	return buf, nil
}

// fitWithin shrinks (w, h) to fit inside (maxW, maxH) without upscaling.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}

	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	outW := int(float64(w) * scale)
	outH := int(float64(h) * scale)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return outW, outH
}
