// Package frame turns inbound encoded image payloads into canonical RGBA frames.
package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultMaxDim = 640
	// DefaultMaxPixels bounds the canvas a header may declare (4096x4096).
	DefaultMaxPixels = 4096 * 4096
)

// ErrMalformedFrame marks payloads that cannot be turned into an image. The
// session drops such frames and keeps reading.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one decoded image. It lives only for a single processing step.
type Frame struct {
	Raw    []byte
	Format string
	Image  *image.RGBA
}

// Decoder strips transport prefixes, decodes and normalizes frames.
type Decoder struct {
	// MaxDim bounds the longest side of the output image; 0 disables scaling.
	MaxDim int
	// MaxBytes bounds the decoded payload size; 0 disables the check.
	MaxBytes int
	// MaxPixels bounds width*height declared by the image header. It is
	// checked before any pixel buffer is allocated; 0 disables the check.
	MaxPixels int64
}

func NewDecoder(maxDim, maxBytes int) *Decoder {
	return &Decoder{MaxDim: maxDim, MaxBytes: maxBytes, MaxPixels: DefaultMaxPixels}
}

// Decode accepts "<prefix>,<base64>" (data URI) or bare base64.
func (d *Decoder) Decode(payload string) (*Frame, error) {
	encoded := StripPrefix(payload)
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedFrame)
	}
	raw, err := decodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedFrame, err)
	}
	if d.MaxBytes > 0 && len(raw) > d.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit %d", ErrMalformedFrame, len(raw), d.MaxBytes)
	}
	return d.DecodeBytes(raw)
}

// DecodeBytes decodes an already binary image.
func (d *Decoder) DecodeBytes(raw []byte) (*Frame, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrMalformedFrame)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); d.MaxPixels > 0 && px > d.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds pixel limit %d", ErrMalformedFrame, cfg.Width, cfg.Height, d.MaxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrMalformedFrame)
	}
	return &Frame{
		Raw:    raw,
		Format: format,
		Image:  normalize(img, d.MaxDim),
	}, nil
}

// StripPrefix drops everything up to and including the first comma, which is
// where data URIs ("data:image/jpeg;base64,") end.
func StripPrefix(payload string) string {
	payload = strings.TrimSpace(payload)
	if i := strings.IndexByte(payload, ','); i >= 0 {
		payload = payload[i+1:]
	}
	return strings.TrimSpace(payload)
}

func decodeBase64(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return raw, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// normalize converts img to RGBA anchored at the origin, scaling it down when
// its longest side exceeds maxDim.
func normalize(img image.Image, maxDim int) *image.RGBA {
	src := img.Bounds()
	w, h := src.Dx(), src.Dy()
	if maxDim > 0 && (w > maxDim || h > maxDim) {
		if w >= h {
			h = max(1, h*maxDim/w)
			w = maxDim
		} else {
			w = max(1, w*maxDim/h)
			h = maxDim
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
		return dst
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	return dst
}
