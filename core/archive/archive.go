// Package archive reads the SQLite-flavored tile archive format in its
// three on-disk layouts (flat, flat-with-hash, deduplicated), classifying,
// validating, and serving tiles from whichever one a given file uses.
//
// Ported and generalized from tarkov-database-tileserver's
// core/mbtiles.Tileset, which only ever handled the flat layout.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/google/logger"
)

// Layout identifies which of the three schema shapes an archive uses.
type Layout int

const (
	LayoutUnknown Layout = iota
	LayoutFlat
	LayoutFlatHash
	LayoutDedup
)

func (l Layout) String() string {
	switch l {
	case LayoutFlat:
		return "flat"
	case LayoutFlatHash:
		return "flat-with-hash"
	case LayoutDedup:
		return "deduplicated"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidArchive reports a schema that matches none of the three
	// supported layouts, or a layout whose required columns are missing.
	ErrInvalidArchive = errors.New("archive: invalid archive")
	// ErrTileNotFound is returned by GetTile when no row matches the coordinate.
	ErrTileNotFound = errors.New("archive: tile not found")
)

// Reader is a read-only handle on one SQLite-flavored tile archive file.
// It is safe for concurrent use by multiple goroutines: the sqlite3 driver
// serializes access to the underlying *sql.DB internally, and the only
// state Reader fills after Open returns is its metadata cache, which is
// loaded once under a sync.Once.
type Reader struct {
	path   string
	db     *sql.DB
	layout Layout

	metaOnce sync.Once
	meta     map[string]string
	metaErr  error
}

// Open opens path read-only, classifies its layout, and validates the
// schema predicates for that layout. It returns ErrInvalidArchive if no
// layout matches.
func Open(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("archive: stat %s: %w", path, err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&immutable=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping %s: %w", path, err)
	}

	layout, err := classifyLayout(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArchive, path, err)
	}

	r := &Reader{path: path, db: db, layout: layout}
	logger.Infof("archive: opened %s as %s layout", path, layout)
	return r, nil
}

// Close releases the underlying database handle.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Path returns the archive's file path.
func (r *Reader) Path() string {
	return r.path
}

// Layout returns the archive's detected on-disk layout.
func (r *Reader) Layout() Layout {
	return r.layout
}

type sqliteObject struct {
	name    string
	objType string // "table" or "view"
}

func listObjects(db *sql.DB, names ...string) (map[string]sqliteObject, error) {
	placeholders := make([]string, len(names))
	args := make([]interface{}, len(names))
	for i, n := range names {
		placeholders[i] = "?"
		args[i] = n
	}
	q := fmt.Sprintf("SELECT name, type FROM sqlite_master WHERE name IN (%s)", strings.Join(placeholders, ","))

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]sqliteObject, len(names))
	for rows.Next() {
		var o sqliteObject
		if err := rows.Scan(&o.name, &o.objType); err != nil {
			return nil, err
		}
		out[o.name] = o
	}
	return out, rows.Err()
}

// columnInfo is one row of PRAGMA table_info().
type columnInfo struct {
	name    string
	colType string
}

func tableColumns(db *sql.DB, table string) (map[string]columnInfo, error) {
	// table is always one of our own hardcoded literals, never user input.
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]columnInfo)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = columnInfo{name: name, colType: strings.ToUpper(ctype)}
	}
	return cols, rows.Err()
}

// requireColumns checks that each required (name, type-substring) pair
// exists in cols. Column order never matters; type matching is by
// substring so e.g. "INTEGER" matches a requirement of "INT".
func requireColumns(cols map[string]columnInfo, required map[string]string) error {
	for name, typ := range required {
		col, ok := cols[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("missing column %q", name)
		}
		if typ != "" && !strings.Contains(col.colType, typ) {
			return fmt.Errorf("column %q has type %q, want %q", name, col.colType, typ)
		}
	}
	return nil
}

var flatColumns = map[string]string{
	"zoom_level":  "INT",
	"tile_column": "INT",
	"tile_row":    "INT",
	"tile_data":   "BLOB",
}

var hashColumns = map[string]string{
	"zoom_level":  "INT",
	"tile_column": "INT",
	"tile_row":    "INT",
	"tile_data":   "BLOB",
	"tile_hash":   "TEXT",
}

var mapColumns = map[string]string{
	"zoom_level":  "INT",
	"tile_column": "INT",
	"tile_row":    "INT",
	"tile_id":     "TEXT",
}

var imagesColumns = map[string]string{
	"tile_id":   "TEXT",
	"tile_data": "BLOB",
}

// classifyLayout decides which of the three layouts the open database uses,
// preferring the more specific layouts (hashed, then dedup) before falling
// back to plain flat, since a dedup or hashed archive also always carries
// a `tiles` view that would otherwise be mistaken for the flat table.
func classifyLayout(db *sql.DB) (Layout, error) {
	objects, err := listObjects(db, "tiles", "tiles_with_hash", "map", "images")
	if err != nil {
		return LayoutUnknown, err
	}

	tilesView, hasTilesView := objects["tiles"]

	if obj, ok := objects["tiles_with_hash"]; ok && obj.objType == "table" {
		if !hasTilesView || tilesView.objType != "view" {
			return LayoutUnknown, errors.New("tiles_with_hash present without a tiles view")
		}
		cols, err := tableColumns(db, "tiles_with_hash")
		if err != nil {
			return LayoutUnknown, err
		}
		if err := requireColumns(cols, hashColumns); err != nil {
			return LayoutUnknown, fmt.Errorf("tiles_with_hash: %w", err)
		}
		return LayoutFlatHash, nil
	}

	mapObj, hasMap := objects["map"]
	imagesObj, hasImages := objects["images"]
	if hasMap && mapObj.objType == "table" && hasImages && imagesObj.objType == "table" {
		if !hasTilesView || tilesView.objType != "view" {
			return LayoutUnknown, errors.New("map/images present without a tiles view")
		}
		mapCols, err := tableColumns(db, "map")
		if err != nil {
			return LayoutUnknown, err
		}
		if err := requireColumns(mapCols, mapColumns); err != nil {
			return LayoutUnknown, fmt.Errorf("map: %w", err)
		}
		imgCols, err := tableColumns(db, "images")
		if err != nil {
			return LayoutUnknown, err
		}
		if err := requireColumns(imgCols, imagesColumns); err != nil {
			return LayoutUnknown, fmt.Errorf("images: %w", err)
		}
		return LayoutDedup, nil
	}

	if hasTilesView && tilesView.objType == "table" {
		cols, err := tableColumns(db, "tiles")
		if err != nil {
			return LayoutUnknown, err
		}
		if err := requireColumns(cols, flatColumns); err != nil {
			return LayoutUnknown, fmt.Errorf("tiles: %w", err)
		}
		return LayoutFlat, nil
	}

	return LayoutUnknown, errors.New("no recognized tiles/tiles_with_hash/map+images schema")
}
