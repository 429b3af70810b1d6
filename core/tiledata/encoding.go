package tiledata

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// Encoding identifies a tile payload's content-encoding.
type Encoding int

const (
	Identity Encoding = iota
	Gzip
	Brotli
	Zstd
)

func (e Encoding) String() string {
	switch e {
	case Gzip:
		return "gzip"
	case Brotli:
		return "br"
	case Zstd:
		return "zstd"
	default:
		return "identity"
	}
}

// ErrInvalidEncoding signals a truncated or corrupt encoded payload.
var ErrInvalidEncoding = errors.New("tiledata: invalid or corrupt encoded payload")

// ErrUnsupportedEncoding signals an encoding this server does not implement.
var ErrUnsupportedEncoding = errors.New("tiledata: unsupported encoding")

// Decode converts data from the given encoding to raw bytes.
func Decode(data []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case Identity:
		return data, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
		defer r.Close()
		out, err := ioutil.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
		return out, nil
	case Brotli:
		out, err := ioutil.ReadAll(brotli.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
		return out, nil
	case Zstd:
		dec, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
		defer dec.Close()
		out, err := ioutil.ReadAll(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
		return out, nil
	default:
		return nil, ErrUnsupportedEncoding
	}
}

// Encode converts raw bytes to the target encoding.
func Encode(data []byte, target Encoding) ([]byte, error) {
	switch target {
	case Identity:
		return data, nil
	case Gzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Brotli:
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, ErrUnsupportedEncoding
	}
}

// Recompress decodes data from src and re-encodes it as dst, a no-op when
// src == dst.
func Recompress(data []byte, src, dst Encoding) ([]byte, error) {
	if src == dst {
		return data, nil
	}
	raw, err := Decode(data, src)
	if err != nil {
		return nil, err
	}
	return Encode(raw, dst)
}
