package archive

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// IntegrityLevel selects how thoroughly Validate checks an archive.
type IntegrityLevel int

const (
	// IntegrityFast checks only that the schema matches a known layout.
	IntegrityFast IntegrityLevel = iota
	// IntegrityStandard additionally counts the rows of the tiles view into
	// ValidationResult.TileCount; the count is not compared against the
	// backing table(s).
	IntegrityStandard
	// IntegrityFull additionally recomputes the aggregate tiles hash and,
	// for hashed/deduplicated layouts, verifies every stored per-tile hash.
	IntegrityFull
)

// ErrAggHashMismatch reports that metadata.agg_tiles_hash does not match
// the hash recomputed from the archive's tile payloads.
var ErrAggHashMismatch = errors.New("archive: agg_tiles_hash mismatch")

// TileHashMismatch describes one tile whose stored content hash does not
// match its actual blob content.
type TileHashMismatch struct {
	Zoom           uint8
	Column, TMSRow uint32
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Level          IntegrityLevel
	Layout         Layout
	TileCount      int
	AggHashOK      bool
	ComputedHash   string
	StoredHash     string
	HashMismatches []TileHashMismatch
}

// Validate runs schema, count, and (at IntegrityFull) hash checks.
// Per-tile hash mismatches are collected and returned, never aborting the
// scan on the first failure; only schema errors from Open are fatal.
func (r *Reader) Validate(level IntegrityLevel) (*ValidationResult, error) {
	res := &ValidationResult{Level: level, Layout: r.layout}

	if level == IntegrityFast {
		return res, nil
	}

	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM tiles").Scan(&count); err != nil {
		return nil, fmt.Errorf("archive: count tiles: %w", err)
	}
	res.TileCount = count

	if level == IntegrityStandard {
		return res, nil
	}

	digest, err := r.ComputeAggHash()
	if err != nil {
		return nil, fmt.Errorf("archive: compute agg hash: %w", err)
	}
	res.ComputedHash = digest

	meta, err := r.GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("archive: read metadata for validation: %w", err)
	}
	res.StoredHash = meta.AggTilesHash

	if res.StoredHash != "" {
		res.AggHashOK = res.StoredHash == res.ComputedHash
		if !res.AggHashOK {
			return res, ErrAggHashMismatch
		}
	}

	mismatches, err := r.verifyPerTileHashes()
	if err != nil {
		return nil, fmt.Errorf("archive: per-tile hash check: %w", err)
	}
	res.HashMismatches = mismatches

	return res, nil
}

// ComputeAggHash computes a deterministic digest over the archive's tile
// set: scan (z, x, y_tms) ascending, feed each tile's content hash into a
// rolling XOR accumulator, and hex-encode the final 16-byte state.
//
// Per spec §9's open question, this definition covers tile payloads only;
// it does not fold in the `metadata` table rows, matching how the teacher
// and sfomuseum-go-tilepacks both treat `metadata` as free-form key/value
// storage rather than integrity input.
func (r *Reader) ComputeAggHash() (string, error) {
	var acc [md5.Size]byte

	rows, err := r.selectTileContentHashSource()
	if err != nil {
		return "", err
	}
	defer rows.Close()

	for rows.Next() {
		var tileData []byte
		var storedHash sql.NullString
		if err := rows.Scan(&tileData, &storedHash); err != nil {
			return "", fmt.Errorf("archive: scan tile for hashing: %w", err)
		}

		digest := tileContentDigest(tileData, storedHash)
		for i := 0; i < md5.Size && i < len(digest); i++ {
			acc[i] ^= digest[i]
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	return hex.EncodeToString(acc[:]), nil
}

// tileContentDigest prefers an existing stored hash (tile_hash / tile_id)
// over recomputing one, per spec §4.B; when the stored value isn't valid
// hex it falls back to MD5 of the blob.
func tileContentDigest(tileData []byte, stored sql.NullString) []byte {
	if stored.Valid && stored.String != "" {
		if b, err := hex.DecodeString(stored.String); err == nil {
			return b
		}
	}
	sum := md5.Sum(tileData)
	return sum[:]
}

// selectTileContentHashSource returns tile_data plus whichever stored
// content-hash column the layout provides (NULL when there is none),
// ordered by (z, x, y_tms) ascending.
func (r *Reader) selectTileContentHashSource() (*sql.Rows, error) {
	switch r.layout {
	case LayoutFlatHash:
		return r.db.Query(`
			SELECT tile_data, tile_hash FROM tiles_with_hash
			ORDER BY zoom_level, tile_column, tile_row`)
	case LayoutDedup:
		return r.db.Query(`
			SELECT images.tile_data, map.tile_id
			FROM map JOIN images ON map.tile_id = images.tile_id
			ORDER BY map.zoom_level, map.tile_column, map.tile_row`)
	default:
		return r.db.Query(`
			SELECT tile_data, NULL FROM tiles
			ORDER BY zoom_level, tile_column, tile_row`)
	}
}

// verifyPerTileHashes re-checks every stored per-tile hash against its
// blob, only meaningful for the hashed/deduplicated layouts.
func (r *Reader) verifyPerTileHashes() ([]TileHashMismatch, error) {
	if r.layout != LayoutFlatHash && r.layout != LayoutDedup {
		return nil, nil
	}

	rows, err := r.selectTileCoordsAndHashSource()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mismatches []TileHashMismatch
	for rows.Next() {
		var z uint8
		var x, y uint32
		var tileData []byte
		var storedHash string
		if err := rows.Scan(&z, &x, &y, &tileData, &storedHash); err != nil {
			return nil, err
		}
		want, err := hex.DecodeString(storedHash)
		if err != nil {
			mismatches = append(mismatches, TileHashMismatch{Zoom: z, Column: x, TMSRow: y})
			continue
		}
		got := md5.Sum(tileData)
		if len(want) != len(got) || hex.EncodeToString(want) != hex.EncodeToString(got[:]) {
			mismatches = append(mismatches, TileHashMismatch{Zoom: z, Column: x, TMSRow: y})
		}
	}
	return mismatches, rows.Err()
}

func (r *Reader) selectTileCoordsAndHashSource() (*sql.Rows, error) {
	if r.layout == LayoutFlatHash {
		return r.db.Query(`
			SELECT zoom_level, tile_column, tile_row, tile_data, tile_hash
			FROM tiles_with_hash`)
	}
	return r.db.Query(`
		SELECT map.zoom_level, map.tile_column, map.tile_row, images.tile_data, images.tile_id
		FROM map JOIN images ON map.tile_id = images.tile_id`)
}
