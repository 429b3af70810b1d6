package archive

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tarkov-database/martin-tileserver/model"
)

// Metadata is the parsed form of an archive's `metadata` key/value table.
// Keys absent from the table surface as zero values, except minzoom and
// maxzoom, which GetMetadata fills from the tiles view; callers that need
// to distinguish "absent" from "zero" should use RawMetadata instead.
type Metadata struct {
	Name          string
	Description   string
	Version       string
	MinZoom       int
	MaxZoom       int
	Bounds        [4]float64
	Center        [3]float64
	Format        string
	AggTilesHash  string
	VectorLayers  []model.VectorLayer
}

// RawMetadata returns the archive's metadata table as a raw key/value map,
// read and cached once per Reader. Missing keys are simply absent from the
// map; that is not an error.
func (r *Reader) RawMetadata() (map[string]string, error) {
	r.metaOnce.Do(func() {
		r.meta, r.metaErr = r.loadRawMetadata()
	})
	return r.meta, r.metaErr
}

func (r *Reader) loadRawMetadata() (map[string]string, error) {
	rows, err := r.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, fmt.Errorf("archive: read metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("archive: scan metadata row: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// GetMetadata parses the well-known metadata keys listed in spec §6 into a
// Metadata struct, falling back to scanning the tiles view for the zoom
// range when minzoom/maxzoom are absent.
func (r *Reader) GetMetadata() (*Metadata, error) {
	raw, err := r.RawMetadata()
	if err != nil {
		return nil, err
	}

	md := &Metadata{
		Name:         raw["name"],
		Description:  raw["description"],
		Version:      raw["version"],
		Format:       raw["format"],
		AggTilesHash: raw["agg_tiles_hash"],
	}

	if v, ok := raw["minzoom"]; ok {
		md.MinZoom, _ = strconv.Atoi(v)
	}
	if v, ok := raw["maxzoom"]; ok {
		md.MaxZoom, _ = strconv.Atoi(v)
	}
	_, hasMin := raw["minzoom"]
	_, hasMax := raw["maxzoom"]
	if !hasMin || !hasMax {
		minZ, maxZ, err := r.scanZoomRange()
		if err == nil {
			if !hasMin {
				md.MinZoom = minZ
			}
			if !hasMax {
				md.MaxZoom = maxZ
			}
		}
	}

	if v, ok := raw["bounds"]; ok {
		if b, err := parseFloats4(v); err == nil {
			md.Bounds = b
		}
	}
	if v, ok := raw["center"]; ok {
		if c, err := parseFloats3(v); err == nil {
			md.Center = c
		}
	}
	if v, ok := raw["json"]; ok {
		var layerDoc struct {
			VectorLayers []model.VectorLayer `json:"vector_layers"`
		}
		if err := json.Unmarshal([]byte(v), &layerDoc); err == nil {
			md.VectorLayers = layerDoc.VectorLayers
		}
	}

	return md, nil
}

func (r *Reader) scanZoomRange() (min, max int, err error) {
	err = r.db.QueryRow("SELECT MIN(zoom_level), MAX(zoom_level) FROM tiles").Scan(&min, &max)
	return
}

func parseFloats4(s string) (out [4]float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return out, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}
	for i, p := range parts {
		out[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func parseFloats3(s string) (out [3]float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("expected 3 comma-separated values, got %d", len(parts))
	}
	for i, p := range parts {
		out[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
