package archive

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/tarkov-database/martin-tileserver/model"
)

// GetTile reads the tile at coord, addressed in XYZ convention, and returns
// its raw blob. The XYZ->TMS row conversion happens here, at the archive
// boundary, and nowhere else.
func (r *Reader) GetTile(coord model.TileCoord) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(
		"SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?",
		coord.Z, coord.X, coord.TMSRow(),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTileNotFound
		}
		return nil, fmt.Errorf("archive: get tile %s: %w", coord, err)
	}
	return data, nil
}

// TileRange restricts ListTiles to a zoom span; a nil range lists everything.
type TileRange struct {
	MinZoom, MaxZoom uint8
}

// ListTiles streams every (z,x,y) present in the archive, ordered by
// (z, x, y_tms) ascending as the archive stores them, converting each row
// back to the XYZ convention before it reaches visit.
func (r *Reader) ListTiles(rng *TileRange, visit func(model.TileCoord) error) error {
	query := "SELECT zoom_level, tile_column, tile_row FROM tiles"
	var args []interface{}
	if rng != nil {
		query += " WHERE zoom_level BETWEEN ? AND ?"
		args = append(args, rng.MinZoom, rng.MaxZoom)
	}
	query += " ORDER BY zoom_level, tile_column, tile_row"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("archive: list tiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var z uint8
		var x, tmsY uint32
		if err := rows.Scan(&z, &x, &tmsY); err != nil {
			return fmt.Errorf("archive: scan tile row: %w", err)
		}
		coord, err := model.XYZFromTMS(z, x, tmsY)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		if err := visit(coord); err != nil {
			return err
		}
	}
	return rows.Err()
}
