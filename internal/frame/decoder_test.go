package frame

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"runtime"
	"testing"
)

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodeStripsDataURIPrefix(t *testing.T) {
	d := NewDecoder(0, 0)
	f, err := d.Decode("data:image/png;base64," + pngBase64(t, 8, 6))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if f.Format != "png" {
		t.Fatalf("Format = %q, want png", f.Format)
	}
	if got := f.Image.Bounds(); got != image.Rect(0, 0, 8, 6) {
		t.Fatalf("Bounds = %v, want 8x6", got)
	}
}

func TestDecodeBareBase64(t *testing.T) {
	d := NewDecoder(0, 0)
	if _, err := d.Decode(pngBase64(t, 2, 2)); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
}

func TestDecodeDownscalesLongestSide(t *testing.T) {
	d := NewDecoder(16, 0)
	f, err := d.Decode(pngBase64(t, 64, 32))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := f.Image.Bounds(); got.Dx() != 16 || got.Dy() != 8 {
		t.Fatalf("Bounds = %v, want 16x8", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	d := NewDecoder(0, 16)
	cases := map[string]string{
		"empty":      "",
		"prefixOnly": "data:image/png;base64,",
		"notBase64":  "data:image/png;base64,@@@",
		"notImage":   base64.StdEncoding.EncodeToString([]byte("hello world")),
		"tooLarge":   pngBase64(t, 32, 32),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.Decode(payload)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("Decode() error = %v, want ErrMalformedFrame", err)
			}
		})
	}
}

func TestStripPrefix(t *testing.T) {
	if got := StripPrefix(" data:x,abc "); got != "abc" {
		t.Fatalf("StripPrefix() = %q, want abc", got)
	}
	if got := StripPrefix("abc"); got != "abc" {
		t.Fatalf("StripPrefix() = %q, want abc", got)
	}
}

// pngHeaderOnly returns a PNG that declares a w x h gray canvas but carries no
// pixel data.
func pngHeaderOnly(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.Write([]byte("\x89PNG\r\n\x1a\n"))
	chunk := func(typ string, data []byte) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(data)))
		buf.Write(n[:])
		body := append([]byte(typ), data...)
		buf.Write(body)
		binary.BigEndian.PutUint32(n[:], crc32.ChecksumIEEE(body))
		buf.Write(n[:])
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 0 // grayscale
	chunk("IHDR", ihdr)
	chunk("IDAT", nil)
	chunk("IEND", nil)
	return buf.Bytes()
}

func TestDecodeRejectsOversizedHeaderBeforeAllocating(t *testing.T) {
	d := NewDecoder(640, 2<<20)
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeaderOnly(16000, 16000))

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := d.Decode(payload)
	runtime.ReadMemStats(&after)

	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Decode() error = %v, want ErrMalformedFrame", err)
	}
	if grew := after.TotalAlloc - before.TotalAlloc; grew > 8<<20 {
		t.Fatalf("Decode() allocated %d bytes for a header-only payload", grew)
	}
}

func TestDecodePixelLimit(t *testing.T) {
	d := NewDecoder(0, 0)
	d.MaxPixels = 100
	if _, err := d.Decode(pngBase64(t, 10, 10)); err != nil {
		t.Fatalf("Decode() at limit error = %v", err)
	}
	if _, err := d.Decode(pngBase64(t, 11, 10)); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Decode() over limit error = %v, want ErrMalformedFrame", err)
	}

	d.MaxPixels = 0
	if _, err := d.Decode(pngBase64(t, 64, 64)); err != nil {
		t.Fatalf("Decode() with limit disabled error = %v", err)
	}
	if NewDecoder(0, 0).MaxPixels != DefaultMaxPixels {
		t.Fatalf("NewDecoder() MaxPixels = %d, want %d", NewDecoder(0, 0).MaxPixels, DefaultMaxPixels)
	}
}
