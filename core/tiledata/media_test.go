package tiledata

import (
	"bytes"
	"testing"
)

func TestDetectMediaMagicBytes(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want Media
	}{
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0}, PNG},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, JPEG},
		{"gif", []byte("GIF89a...")[:8], GIF},
		{"webp", append([]byte("RIFF\x00\x00\x00\x00"), []byte("WEBP")...), WEBP},
		{"unknown", []byte{0x00, 0x01, 0x02}, Unknown},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DetectMedia(c.data); got != c.want {
				t.Fatalf("DetectMedia(%q) = %v, want %v", c.name, got, c.want)
			}
		})
	}
}

func TestDetectMediaGzipUnwrap(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 1, 2, 3}
	gz, err := Encode(png, Gzip)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got := DetectMedia(gz); got != PNG {
		t.Fatalf("DetectMedia(gzip-wrapped png) = %v, want PNG", got)
	}
}

func TestEncodingRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("martin tile payload "), 64)

	for _, enc := range []Encoding{Identity, Gzip, Brotli, Zstd} {
		enc := enc
		t.Run(enc.String(), func(t *testing.T) {
			encoded, err := Encode(payload, enc)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := Decode(encoded, enc)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(decoded, payload) {
				t.Fatalf("round trip mismatch for %v", enc)
			}
		})
	}
}

func TestDecodeInvalidEncoding(t *testing.T) {
	if _, err := Decode([]byte("not gzip"), Gzip); err == nil {
		t.Fatal("expected error for corrupt gzip payload")
	}
}

func TestIsVector(t *testing.T) {
	if !IsVector(MVT) {
		t.Fatal("MVT should be vector")
	}
	if IsVector(PNG) {
		t.Fatal("PNG should not be vector")
	}
}
