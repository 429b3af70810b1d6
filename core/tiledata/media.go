// Package tiledata detects tile media types from magic bytes and converts
// tile payloads between the content-encodings the server negotiates with
// clients.
package tiledata

import (
	"bytes"
	"compress/gzip"
	"io/ioutil"
)

// Media identifies the payload format of a tile.
type Media int

const (
	Unknown Media = iota
	MVT
	PNG
	JPEG
	WEBP
	GIF
	JSONMedia
)

var mediaStrings = [...]string{
	"unknown",
	"application/x-protobuf",
	"image/png",
	"image/jpeg",
	"image/webp",
	"image/gif",
	"application/json",
}

// ContentType returns the MIME content type for the media.
func (m Media) ContentType() string {
	return mediaStrings[m]
}

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	gifMagic  = []byte{0x47, 0x49, 0x46, 0x38}
	gzipMagic = []byte{0x1F, 0x8B}
)

// DetectMedia inspects the leading bytes of a tile payload to determine its
// media type. If the payload is gzip-wrapped it is unwrapped (at most one
// layer) before classification, so DetectMedia(Encode(b, Gzip)) equals
// DetectMedia(b). Brotli- and zstd-encoded payloads are not unwrapped and
// are classified by their encoded bytes.
func DetectMedia(data []byte) Media {
	if bytes.HasPrefix(data, gzipMagic) {
		if inner, err := gunzipOnce(data); err == nil {
			return detectRaw(inner)
		}
		// Truncated/corrupt gzip stream masking an unknown format: still
		// classify on the wrapper bytes so callers get a best-effort answer.
	}
	return detectRaw(data)
}

func detectRaw(data []byte) Media {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return PNG
	case bytes.HasPrefix(data, jpegMagic):
		return JPEG
	case bytes.HasPrefix(data, gifMagic):
		return GIF
	case isWebP(data):
		return WEBP
	case looksLikeMVT(data):
		return MVT
	default:
		return Unknown
	}
}

func isWebP(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	return bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP"))
}

func gunzipOnce(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ioutil.ReadAll(r)
}

// IsVector reports whether a media type carries vector geometry.
func IsVector(m Media) bool {
	return m == MVT
}
