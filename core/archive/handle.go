package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/zeebo/blake3"

	"github.com/tarkov-database/martin-tileserver/core/tiledata"
	"github.com/tarkov-database/martin-tileserver/core/tilesource"
	"github.com/tarkov-database/martin-tileserver/model"
)

// SourceHandle adapts a Reader to the tilesource.Handle capability set so
// the catalog and pipeline can treat archives uniformly with database and
// raster sources.
type SourceHandle struct {
	ID     string
	Tiles  string // public tile URL template; not set by NewSourceHandle and not read by Describe
	reader *Reader
}

// NewSourceHandle wraps reader as a published source handle under id.
func NewSourceHandle(id string, reader *Reader) *SourceHandle {
	return &SourceHandle{ID: id, reader: reader}
}

func (h *SourceHandle) Kind() tilesource.Kind { return tilesource.KindSQLiteArchive }

func (h *SourceHandle) SupportsQuery() bool { return false }

func (h *SourceHandle) Close() error { return h.reader.Close() }

func (h *SourceHandle) Describe() (*model.TileJSON, error) {
	md, err := h.reader.GetMetadata()
	if err != nil {
		return nil, err
	}

	tj := &model.TileJSON{
		TileJSON:     model.TileJSONVersion,
		Name:         md.Name,
		Description:  md.Description,
		Version:      md.Version,
		Scheme:       "xyz",
		MinZoom:      md.MinZoom,
		MaxZoom:      md.MaxZoom,
		Bounds:       md.Bounds,
		Center:       md.Center,
		Format:       md.Format,
		VectorLayers: md.VectorLayers,
		Tiles:        []string{fmt.Sprintf("{scheme}://{host}/%s/{z}/{x}/{y}.%s", h.ID, md.Format)},
	}
	return tj, nil
}

func (h *SourceHandle) AllowXYZ(coord model.TileCoord) bool {
	md, err := h.reader.GetMetadata()
	if err != nil {
		return false
	}
	if int(coord.Z) < md.MinZoom || int(coord.Z) > md.MaxZoom {
		return false
	}
	if md.Bounds == ([4]float64{}) {
		return true
	}
	lon, lat := tileCenterLonLat(coord)
	return lon >= md.Bounds[0] && lon <= md.Bounds[2] && lat >= md.Bounds[1] && lat <= md.Bounds[3]
}

func (h *SourceHandle) GetTile(_ context.Context, coord model.TileCoord, _ map[string]string) (*tilesource.TilePayload, error) {
	data, err := h.reader.GetTile(coord)
	if err != nil {
		if errors.Is(err, ErrTileNotFound) {
			return nil, tilesource.ErrNoTile
		}
		return nil, err
	}

	media := tiledata.DetectMedia(data)
	enc := tiledata.Identity
	if looksGzipped(data) {
		enc = tiledata.Gzip
	}

	h := blake3.New()
	h.Write(data)
	sum := h.Sum(nil)
	return &tilesource.TilePayload{
		Data:     data,
		Media:    media,
		Encoding: enc,
		ETag:     hex.EncodeToString(sum),
	}, nil
}

func looksGzipped(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1F && data[1] == 0x8B
}

// tileCenterLonLat returns the lon/lat of a tile's center in Web Mercator,
// used only for the coarse bounds check in AllowXYZ.
func tileCenterLonLat(c model.TileCoord) (lon, lat float64) {
	n := float64(uint32(1) << c.Z)
	lon = (float64(c.X)+0.5)/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*(float64(c.Y)+0.5)/n)))
	lat = latRad * 180.0 / math.Pi
	return
}
