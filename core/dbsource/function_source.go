package dbsource

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zeebo/blake3"

	"github.com/tarkov-database/martin-tileserver/core/tiledata"
	"github.com/tarkov-database/martin-tileserver/core/tilesource"
	"github.com/tarkov-database/martin-tileserver/model"
)

// FunctionSource implements tilesource.Handle by invoking a discovered tile
// function per request.
type FunctionSource struct {
	ID           string
	Pool         *Pool
	Desc         FunctionDescriptor
	MinZoom      int
	MaxZoom      int
	Bounds       [4]float64
	SafeQueryKeys map[string]bool // configured per-source allowlist, spec §6
}

func (s *FunctionSource) Kind() tilesource.Kind { return tilesource.KindFunction }

func (s *FunctionSource) SupportsQuery() bool { return s.Desc.HasQuery }

func (s *FunctionSource) Close() error { return nil }

func (s *FunctionSource) Describe() (*model.TileJSON, error) {
	return &model.TileJSON{
		TileJSON: model.TileJSONVersion,
		Name:     s.ID,
		Scheme:   "xyz",
		MinZoom:  s.MinZoom,
		MaxZoom:  s.MaxZoom,
		Bounds:   s.Bounds,
		Format:   "pbf",
		VectorLayers: []model.VectorLayer{
			{ID: s.ID, MinZoom: s.MinZoom, MaxZoom: s.MaxZoom},
		},
	}, nil
}

func (s *FunctionSource) AllowXYZ(coord model.TileCoord) bool {
	if int(coord.Z) < s.MinZoom || int(coord.Z) > s.MaxZoom {
		return false
	}
	if s.Bounds == ([4]float64{}) {
		return true
	}
	xmin, ymin, xmax, ymax := tileBoundsMercator(coord)
	return xmax >= s.Bounds[0] && xmin <= s.Bounds[2] &&
		ymax >= s.Bounds[1] && ymin <= s.Bounds[3]
}

// filterQueryParams drops `token` and any key starting with `_`, regardless
// of the allowlist. When SafeQueryKeys is non-empty, only its keys survive;
// when it is empty, every other key is forwarded.
func (s *FunctionSource) filterQueryParams(raw map[string]string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string)
	for k, v := range raw {
		if k == "token" || strings.HasPrefix(k, "_") {
			continue
		}
		if len(s.SafeQueryKeys) > 0 && !s.SafeQueryKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// buildQueryJSON forwards every allowed query value as a JSON string, per
// the literal example in spec §8.4: a URL value like "9" stays the JSON
// string "9", never a coerced number or boolean. The query string carries
// no type information, so no value is ever reinterpreted.
func buildQueryJSON(params map[string]string) ([]byte, error) {
	if len(params) == 0 {
		return []byte("{}"), nil
	}
	obj := make(map[string]string, len(params))
	for k, v := range params {
		obj[k] = v
	}
	return json.Marshal(obj)
}

func (s *FunctionSource) GetTile(ctx context.Context, coord model.TileCoord, query map[string]string) (*tilesource.TilePayload, error) {
	sqlText := buildFunctionCall(s.Desc)
	args := []interface{}{int(coord.Z), int(coord.X), int(coord.Y)}

	if s.Desc.HasQuery {
		payload, err := buildQueryJSON(s.filterQueryParams(query))
		if err != nil {
			return nil, fmt.Errorf("dbsource: build query json for %s: %w", s.ID, err)
		}
		args = append(args, string(payload))
	}

	var data []byte
	var tag string

	err := s.Pool.QueryRowRetry(ctx, func(ctx context.Context, pool *pgxpool.Pool) error {
		switch s.Desc.ReturnKind {
		case "table-bytea-text":
			return pool.QueryRow(ctx, sqlText, args...).Scan(&data, &tag)
		default:
			return pool.QueryRow(ctx, sqlText, args...).Scan(&data)
		}
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tilesource.ErrNoTile
		}
		return nil, fmt.Errorf("dbsource: invoke function %s: %w", s.ID, err)
	}
	if len(data) == 0 {
		return nil, tilesource.ErrNoTile
	}

	etag := tag
	if etag == "" {
		h := blake3.New()
		h.Write(data)
		etag = hex.EncodeToString(h.Sum(nil))
	}

	return &tilesource.TilePayload{
		Data:     data,
		Media:    tiledata.MVT,
		Encoding: tiledata.Identity,
		ETag:     etag,
	}, nil
}
