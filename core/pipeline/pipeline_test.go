package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"testing"

	"github.com/tarkov-database/martin-tileserver/core/tiledata"
	"github.com/tarkov-database/martin-tileserver/core/tilesource"
	"github.com/tarkov-database/martin-tileserver/model"
)

type fakeHandle struct {
	kind    tilesource.Kind
	payload *tilesource.TilePayload
}

func (f *fakeHandle) Kind() tilesource.Kind                { return f.kind }
func (f *fakeHandle) Describe() (*model.TileJSON, error)   { return &model.TileJSON{}, nil }
func (f *fakeHandle) AllowXYZ(model.TileCoord) bool        { return true }
func (f *fakeHandle) SupportsQuery() bool                  { return false }
func (f *fakeHandle) Close() error                         { return nil }
func (f *fakeHandle) GetTile(context.Context, model.TileCoord, map[string]string) (*tilesource.TilePayload, error) {
	return f.payload, nil
}

func gzipBytes(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// TestFetchSingleSourcePassthroughPreservesStoredBytes reproduces scenario
// §8.1: a flat archive row at (6,10,40 TMS)/(6,10,23 XYZ) whose tile_data is
// already gzip-compressed MVT. A client accepting gzip must receive that
// blob byte-for-byte, not a freshly re-gzipped copy of the decompressed
// content.
func TestFetchSingleSourcePassthroughPreservesStoredBytes(t *testing.T) {
	raw := []byte("not actually valid mvt but bytes are bytes")
	stored := gzipBytes(t, raw)

	h := &fakeHandle{
		kind: tilesource.KindSQLiteArchive,
		payload: &tilesource.TilePayload{
			Data:     stored,
			Media:    tiledata.MVT,
			Encoding: tiledata.Gzip,
			ETag:     "etag-1",
		},
	}

	p := New(DefaultConfig(), nil)
	coord := model.TileCoord{Z: 6, X: 10, Y: 23}

	result, err := p.Fetch(context.Background(), []string{"worldcities"}, []tilesource.Handle{h}, coord, nil, "gzip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Encoding != tiledata.Gzip {
		t.Fatalf("expected gzip encoding, got %v", result.Encoding)
	}
	if !bytes.Equal(result.Data, stored) {
		t.Fatalf("expected byte-identical passthrough of stored tile_data, got a re-encoded copy")
	}
}

// TestFetchSingleSourceRecompressesWhenTargetDiffers verifies the
// passthrough path still recompresses when the negotiated encoding isn't
// the payload's own — e.g. a gzip-stored tile served to a brotli-only
// client.
func TestFetchSingleSourceRecompressesWhenTargetDiffers(t *testing.T) {
	raw := []byte("some mvt-shaped bytes")
	stored := gzipBytes(t, raw)

	h := &fakeHandle{
		kind: tilesource.KindSQLiteArchive,
		payload: &tilesource.TilePayload{
			Data:     stored,
			Media:    tiledata.MVT,
			Encoding: tiledata.Gzip,
		},
	}

	p := New(DefaultConfig(), nil)
	coord := model.TileCoord{Z: 6, X: 10, Y: 23}

	result, err := p.Fetch(context.Background(), []string{"worldcities"}, []tilesource.Handle{h}, coord, nil, "br")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Encoding != tiledata.Brotli {
		t.Fatalf("expected brotli encoding, got %v", result.Encoding)
	}
	if bytes.Equal(result.Data, stored) {
		t.Fatalf("expected recompressed output to differ from the gzip-stored blob")
	}
}
