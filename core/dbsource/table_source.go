package dbsource

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zeebo/blake3"

	"github.com/tarkov-database/martin-tileserver/core/tiledata"
	"github.com/tarkov-database/martin-tileserver/core/tilesource"
	"github.com/tarkov-database/martin-tileserver/model"
)

// TableSource implements tilesource.Handle over a discovered table/view
// spatial column, generating the ST_AsMVT query on every request.
type TableSource struct {
	ID      string
	Pool    *Pool
	Desc    TableDescriptor
	Opts    TileSourceOptions
	MinZoom int
	MaxZoom int
}

func (s *TableSource) Kind() tilesource.Kind { return tilesource.KindTable }

func (s *TableSource) SupportsQuery() bool { return false }

func (s *TableSource) Close() error { return nil }

func (s *TableSource) Describe() (*model.TileJSON, error) {
	fields := make(map[string]string, len(s.Desc.Fields))
	for _, f := range s.Desc.Fields {
		fields[f.Name] = f.Type
	}

	return &model.TileJSON{
		TileJSON: model.TileJSONVersion,
		Name:     s.ID,
		Scheme:   "xyz",
		MinZoom:  s.MinZoom,
		MaxZoom:  s.MaxZoom,
		Bounds:   s.Desc.Bounds,
		Format:   "pbf",
		VectorLayers: []model.VectorLayer{
			{ID: s.ID, Fields: fields, MinZoom: s.MinZoom, MaxZoom: s.MaxZoom},
		},
	}, nil
}

func (s *TableSource) AllowXYZ(coord model.TileCoord) bool {
	if int(coord.Z) < s.MinZoom || int(coord.Z) > s.MaxZoom {
		return false
	}
	if s.Desc.Bounds == ([4]float64{}) {
		return true
	}
	xmin, ymin, xmax, ymax := tileBoundsMercator(coord)
	return xmax >= s.Desc.Bounds[0] && xmin <= s.Desc.Bounds[2] &&
		ymax >= s.Desc.Bounds[1] && ymin <= s.Desc.Bounds[3]
}

func (s *TableSource) GetTile(ctx context.Context, coord model.TileCoord, _ map[string]string) (*tilesource.TilePayload, error) {
	query := buildTableQuery(s.Desc, s.ID, s.Opts)
	args := tableQueryArgs(coord)

	var data []byte
	err := s.Pool.QueryRowRetry(ctx, func(ctx context.Context, pool *pgxpool.Pool) error {
		return pool.QueryRow(ctx, query, args...).Scan(&data)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tilesource.ErrNoTile
		}
		return nil, fmt.Errorf("dbsource: query table %s: %w", s.ID, err)
	}
	if len(data) == 0 {
		return nil, tilesource.ErrNoTile
	}

	h := blake3.New()
	h.Write(data)
	sum := h.Sum(nil)
	return &tilesource.TilePayload{
		Data:     data,
		Media:    tiledata.MVT,
		Encoding: tiledata.Identity,
		ETag:     hex.EncodeToString(sum),
	}, nil
}
