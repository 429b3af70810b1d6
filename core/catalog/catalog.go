// Package catalog implements the source registry and resolver of spec §4.D:
// unique id assignment, comma-separated path resolution, composite-source
// compatibility checks, and atomic-pointer snapshot publish for auto-reload.
// Grounded in the teacher's package-level `tilesets` map and
// `LoadTilesets`/`GetTileset` pair (core/mbtiles/mbtiles.go), generalized
// from a mutex-free package global to an atomic-pointer snapshot so
// auto-reload never blocks an in-flight request (spec §5).
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/logger"

	"github.com/tarkov-database/martin-tileserver/core/tilesource"
	"github.com/tarkov-database/martin-tileserver/model"
)

var (
	ErrSourceNotFound        = errors.New("catalog: source not found")
	ErrIncompatibleComposition = errors.New("catalog: mixing raster with vector sources is not allowed")
	ErrDuplicateLayerID      = errors.New("catalog: duplicate vector layer id in composite source")
)

// snapshot is the immutable, published view of the catalog. Readers obtain
// it via Catalog.load and never see a torn or partially-built map.
type snapshot struct {
	byID map[string]tilesource.Handle
}

// Catalog is a read-mostly source registry. Readers call Resolve without
// blocking; Publish installs a new snapshot with an atomic swap, per spec §5's "published as an immutable snapshot behind an
// atomic pointer; writers build a new snapshot and atomically swap."
type Catalog struct {
	current atomic.Pointer[snapshot]
}

// New returns an empty catalog; call Publish to populate it.
func New() *Catalog {
	c := &Catalog{}
	c.current.Store(&snapshot{byID: map[string]tilesource.Handle{}})
	return c
}

func (c *Catalog) load() *snapshot { return c.current.Load() }

// Get resolves a single source id.
func (c *Catalog) Get(id string) (tilesource.Handle, error) {
	snap := c.load()
	h, ok := snap.byID[id]
	if !ok {
		return nil, ErrSourceNotFound
	}
	return h, nil
}

// Resolve splits a `{source_ids}` path component on "," and resolves each
// piece to a handle, per spec §4.D. If any piece is unknown the whole
// request fails with ErrSourceNotFound; mixing raster with vector handles
// fails with ErrIncompatibleComposition.
func (c *Catalog) Resolve(sourceIDsPath string) ([]tilesource.Handle, error) {
	ids := strings.Split(sourceIDsPath, ",")
	snap := c.load()

	handles := make([]tilesource.Handle, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		h, ok := snap.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrSourceNotFound, id)
		}
		handles = append(handles, h)
	}

	if len(handles) > 1 {
		hasRaster, hasVector := false, false
		for _, h := range handles {
			if h.Kind() == tilesource.KindRaster {
				hasRaster = true
			} else {
				hasVector = true
			}
		}
		if hasRaster && hasVector {
			return nil, ErrIncompatibleComposition
		}
	}

	return handles, nil
}

// Publish replaces the catalog contents with handles, keyed by the ids
// AssignID produced. Every handle from the old snapshot that is not the
// same instance in the new one — whether its id disappeared entirely or
// was republished with a freshly discovered handle — is closed after the
// swap, never before, so in-flight requests holding a reference to the old
// snapshot keep working.
func (c *Catalog) Publish(named map[string]tilesource.Handle) {
	old := c.load()

	next := &snapshot{byID: named}
	c.current.Store(next)

	for id, h := range old.byID {
		if next.byID[id] != h {
			if err := h.Close(); err != nil {
				logger.Warningf("catalog: closing replaced source %q: %v", id, err)
			}
		}
	}

	logger.Infof("catalog: published %d source(s)", len(named))
}

// AssignID applies spec §4.D's identifier policy: try the default id,
// then suffix with .1, .2, ... on collision. used is mutated to record the
// id as taken.
func AssignID(defaultID string, used map[string]bool) string {
	if !used[defaultID] {
		used[defaultID] = true
		return defaultID
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d", defaultID, i)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}

// CatalogEntry describes one source in the /catalog listing, spec §6.
type CatalogEntry struct {
	ContentType     string `json:"content_type"`
	ContentEncoding string `json:"content_encoding,omitempty"`
	Description     string `json:"description,omitempty"`
}

// CatalogResponse is the /catalog endpoint body. Sprites/fonts/styles are
// out of the core's scope (spec §1's explicit non-goal); their maps are
// always present but empty so clients built against the full Martin
// catalog schema don't need to special-case this server.
type CatalogResponse struct {
	Tiles   map[string]CatalogEntry `json:"tiles"`
	Sprites map[string]CatalogEntry `json:"sprites"`
	Fonts   map[string]CatalogEntry `json:"fonts"`
	Styles  map[string]CatalogEntry `json:"styles"`
}

// ListCatalog builds the /catalog response from the currently published
// snapshot.
func (c *Catalog) ListCatalog() *CatalogResponse {
	snap := c.load()

	resp := &CatalogResponse{
		Tiles:   make(map[string]CatalogEntry, len(snap.byID)),
		Sprites: map[string]CatalogEntry{},
		Fonts:   map[string]CatalogEntry{},
		Styles:  map[string]CatalogEntry{},
	}

	for id, h := range snap.byID {
		entry := CatalogEntry{ContentType: "application/vnd.mapbox-vector-tile"}
		if tj, err := h.Describe(); err == nil {
			entry.Description = tj.Description
			if tj.Format != "" {
				entry.ContentType = formatContentType(tj.Format)
			}
		}
		resp.Tiles[id] = entry
	}

	return resp
}

func formatContentType(format string) string {
	switch format {
	case "pbf", "mvt":
		return "application/vnd.mapbox-vector-tile"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Describe builds the TileJSON for one or more comma-joined source ids. For
// a single source it is a passthrough; for a composite it concatenates
// vector_layers in source order and rejects layer id collisions.
func Describe(handles []tilesource.Handle) (*model.TileJSON, error) {
	if len(handles) == 1 {
		return handles[0].Describe()
	}

	composed := &model.TileJSON{
		TileJSON: model.TileJSONVersion,
		Scheme:   "xyz",
		Format:   "pbf",
	}

	seenLayers := make(map[string]bool)
	first := true
	for _, h := range handles {
		tj, err := h.Describe()
		if err != nil {
			return nil, err
		}
		if first {
			composed.MinZoom, composed.MaxZoom = tj.MinZoom, tj.MaxZoom
			composed.Bounds = tj.Bounds
			first = false
		} else {
			if tj.MinZoom < composed.MinZoom {
				composed.MinZoom = tj.MinZoom
			}
			if tj.MaxZoom > composed.MaxZoom {
				composed.MaxZoom = tj.MaxZoom
			}
		}
		for _, vl := range tj.VectorLayers {
			if seenLayers[vl.ID] {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateLayerID, vl.ID)
			}
			seenLayers[vl.ID] = true
			composed.VectorLayers = append(composed.VectorLayers, vl)
		}
	}

	return composed, nil
}
