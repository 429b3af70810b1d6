package archive

import (
	"testing"

	"github.com/tarkov-database/martin-tileserver/model"
)

// TestCoordRoundTrip exercises the XYZ<->TMS invariant the archive boundary
// depends on: round-tripping through TMSRow and XYZFromTMS must be the
// identity for every valid coordinate.
func TestCoordRoundTrip(t *testing.T) {
	for z := uint8(0); z <= 12; z++ {
		span := uint32(1) << z
		for x := uint32(0); x < span && x < 8; x++ {
			for y := uint32(0); y < span && y < 8; y++ {
				c, err := model.NewTileCoord(z, x, y)
				if err != nil {
					t.Fatalf("NewTileCoord(%d,%d,%d): %v", z, x, y, err)
				}
				tms := c.TMSRow()
				if tms >= span {
					t.Fatalf("TMSRow out of range: z=%d y=%d tms=%d span=%d", z, y, tms, span)
				}
				back, err := model.XYZFromTMS(z, x, tms)
				if err != nil {
					t.Fatalf("XYZFromTMS: %v", err)
				}
				if back != c {
					t.Fatalf("round trip mismatch: got %s, want %s", back, c)
				}
			}
		}
	}
}

// TestZ6SpecExample covers a concrete z=6 case: a flat archive row stored
// at (z=6, x=10, tile_row=40 TMS) must be served at XYZ y=23, since
// 2^6-1-40 = 23.
func TestZ6SpecExample(t *testing.T) {
	c, err := model.XYZFromTMS(6, 10, 40)
	if err != nil {
		t.Fatalf("XYZFromTMS: %v", err)
	}
	if c.Y != 23 {
		t.Fatalf("expected y_xyz=23, got %d", c.Y)
	}
	if c.TMSRow() != 40 {
		t.Fatalf("expected tms row 40, got %d", c.TMSRow())
	}
}
