// Package tilesource defines the capability set that every tile-producing
// backend (database table, database function, SQLite archive, flat cloud
// archive, COG raster) is unified behind, per spec §3/§9: a tagged-variant
// representation behind a shared descriptor rather than deep inheritance.
package tilesource

import (
	"context"
	"errors"

	"github.com/tarkov-database/martin-tileserver/core/tiledata"
	"github.com/tarkov-database/martin-tileserver/model"
)

// Kind tags which concrete variant a Handle is, for logging and for the
// raster/vector composition-compatibility check in core/catalog.
type Kind int

const (
	KindUnknown Kind = iota
	KindTable
	KindFunction
	KindSQLiteArchive
	KindFlatArchive
	KindRaster
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	case KindSQLiteArchive:
		return "sqlite-archive"
	case KindFlatArchive:
		return "flat-archive"
	case KindRaster:
		return "raster"
	default:
		return "unknown"
	}
}

// TilePayload is a tile's bytes together with the metadata needed to
// answer the HTTP boundary correctly.
type TilePayload struct {
	Data     []byte
	Media    tiledata.Media
	Encoding tiledata.Encoding
	ETag     string
}

var (
	// ErrTileOutOfRange means the coordinate falls outside the handle's
	// declared zoom range or bounds; callers should treat this as "no tile"
	// (HTTP 204), not an error condition worth logging.
	ErrTileOutOfRange = errors.New("tilesource: tile out of range")
	// ErrNoTile means the coordinate is in range but produced no content
	// (an empty result set, or ST_AsMVT returning NULL).
	ErrNoTile = errors.New("tilesource: no tile at coordinate")
)

// Handle is the capability set every tile source variant implements. It is
// immutable once published by core/catalog and shared across all concurrent
// requests; any internal mutation (e.g. pool resizing) must be safe for
// concurrent use without additional locking by callers.
type Handle interface {
	// Kind reports which concrete variant this handle is.
	Kind() Kind

	// Describe returns this source's TileJSON descriptor.
	Describe() (*model.TileJSON, error)

	// AllowXYZ reports whether coord is within this source's declared
	// zoom range and bounds. The pipeline must check this before issuing
	// GetTile, per spec §4.E step 1.
	AllowXYZ(coord model.TileCoord) bool

	// GetTile fetches the tile at coord. query carries the URL query
	// parameters with reserved keys already removed; function sources
	// apply their own allowlist, other variants ignore it.
	GetTile(ctx context.Context, coord model.TileCoord, query map[string]string) (*TilePayload, error)

	// SupportsQuery reports whether this handle's GetTile makes use of
	// the query parameter (only function sources do).
	SupportsQuery() bool

	// Close releases any resources (connections, file handles) this
	// handle owns. Called by the catalog when a publish drops or replaces
	// it; handles still published at shutdown are not closed.
	Close() error
}
