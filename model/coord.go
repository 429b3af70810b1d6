// Package model holds the value types shared across the tile-serving core:
// tile coordinates and the TileJSON descriptor shape.
package model

import (
	"errors"
	"fmt"
)

// ErrInvalidCoord reports a tile coordinate outside the valid XYZ range.
var ErrInvalidCoord = errors.New("model: invalid tile coordinate")

// TileCoord is an XYZ tile address: y=0 is the north-most row, matching the
// slippy-map convention used at the HTTP boundary.
type TileCoord struct {
	Z uint8
	X uint32
	Y uint32
}

// MaxZoom is the highest zoom level this server addresses.
const MaxZoom = 30

// NewTileCoord validates and constructs a TileCoord.
func NewTileCoord(z uint8, x, y uint32) (TileCoord, error) {
	if z > MaxZoom {
		return TileCoord{}, fmt.Errorf("%w: zoom %d exceeds max %d", ErrInvalidCoord, z, MaxZoom)
	}
	span := uint32(1) << z
	if x >= span || y >= span {
		return TileCoord{}, fmt.Errorf("%w: (%d,%d) out of range for zoom %d", ErrInvalidCoord, x, y, z)
	}
	return TileCoord{Z: z, X: x, Y: y}, nil
}

// TMSRow converts this coordinate's XYZ row to the TMS row used on disk by
// SQLite-flavored archives. This conversion is an invariant at the archive
// boundary only; nowhere else in the pipeline does the row flip.
func (c TileCoord) TMSRow() uint32 {
	return (uint32(1)<<c.Z - 1) - c.Y
}

// XYZFromTMS converts a TMS row back to the XYZ convention at the given zoom.
func XYZFromTMS(z uint8, x, tmsY uint32) (TileCoord, error) {
	y := (uint32(1)<<z - 1) - tmsY
	return NewTileCoord(z, x, y)
}

func (c TileCoord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}
