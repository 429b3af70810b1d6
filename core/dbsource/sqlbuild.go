package dbsource

import (
	"fmt"
	"math"
	"strings"

	"github.com/tarkov-database/martin-tileserver/model"
)

const webMercatorWorldSize = 20037508.34278924

// tileBoundsMercator returns a tile's bounds in EPSG:3857, grounded in
// bike-map's calculateTileBounds.
func tileBoundsMercator(coord model.TileCoord) (xmin, ymin, xmax, ymax float64) {
	span := webMercatorWorldSize * 2
	tileSize := span / math.Exp2(float64(coord.Z))
	xmin = -webMercatorWorldSize + float64(coord.X)*tileSize
	xmax = -webMercatorWorldSize + float64(coord.X+1)*tileSize
	ymax = webMercatorWorldSize - float64(coord.Y)*tileSize
	ymin = webMercatorWorldSize - float64(coord.Y+1)*tileSize
	return
}

// quoteIdent double-quotes a SQL identifier, escaping embedded quotes. Used
// for every schema/table/column name interpolated into generated SQL, since
// those cannot be bound as query parameters.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// TileSourceOptions are the per-source settings spec §4.C names: extent,
// buffer, and clip_geom for the ST_AsMVTGeom call.
type TileSourceOptions struct {
	Extent   int
	Buffer   int
	ClipGeom bool
}

// DefaultTileSourceOptions matches the defaults spec §4.C states.
func DefaultTileSourceOptions() TileSourceOptions {
	return TileSourceOptions{Extent: 4096, Buffer: 64, ClipGeom: true}
}

// buildTableQuery renders the exact query shape spec §4.C describes for a
// table source: a bounds CTE in both 3857 and the column's native SRID,
// followed by ST_AsMVTGeom filtered with the native-SRID bounding box and
// wrapped in ST_AsMVT.
func buildTableQuery(d TableDescriptor, layer string, opts TileSourceOptions) string {
	var props strings.Builder
	for _, f := range d.Fields {
		props.WriteString(", ")
		props.WriteString(quoteIdent(f.Name))
	}

	nativeBounds := fmt.Sprintf(",\n\t       ST_Transform(ST_MakeEnvelope($1, $2, $3, $4, 3857), %d) AS srid_%d", d.SRID, d.SRID)
	geomFilterExpr := fmt.Sprintf("bounds.srid_%d", d.SRID)
	if d.SRID == 3857 {
		nativeBounds = ""
		geomFilterExpr = "bounds.srid_3857"
	}

	table := quoteIdent(d.Schema) + "." + quoteIdent(d.Table)
	geom := quoteIdent(d.GeomColumn)

	return fmt.Sprintf(`WITH bounds AS (
	SELECT ST_MakeEnvelope($1, $2, $3, $4, 3857) AS srid_3857%s
)
SELECT ST_AsMVT(tile, %s, %d, 'geom')
FROM (
	SELECT ST_AsMVTGeom(
	         ST_Transform(ST_CurveToLine(%s.%s), 3857),
	         (SELECT srid_3857 FROM bounds), %d, %d, %t
	       ) AS geom%s
	FROM %s, bounds
	WHERE %s.%s && %s
) AS tile WHERE geom IS NOT NULL`,
		nativeBounds,
		quoteLiteral(layer), opts.Extent,
		table, geom,
		opts.Extent, opts.Buffer, opts.ClipGeom,
		props.String(),
		table,
		table, geom, geomFilterExpr,
	)
}

// tableQueryArgs returns the four bound parameters ($1..$4) for
// buildTableQuery's generated SQL: the tile's Web Mercator envelope.
func tableQueryArgs(coord model.TileCoord) []interface{} {
	xmin, ymin, xmax, ymax := tileBoundsMercator(coord)
	return []interface{}{xmin, ymin, xmax, ymax}
}

// buildFunctionCall renders `SELECT "<schema>"."<func>"($1, $2, $3[, $4::json])`
// per spec §4.C.2.
func buildFunctionCall(d FunctionDescriptor) string {
	fn := quoteIdent(d.Schema) + "." + quoteIdent(d.Name)
	switch d.ReturnKind {
	case "table-bytea-text":
		if d.HasQuery {
			return fmt.Sprintf(`SELECT * FROM %s($1, $2, $3, $4::json)`, fn)
		}
		return fmt.Sprintf(`SELECT * FROM %s($1, $2, $3)`, fn)
	case "table-bytea":
		if d.HasQuery {
			return fmt.Sprintf(`SELECT * FROM %s($1, $2, $3, $4::json)`, fn)
		}
		return fmt.Sprintf(`SELECT * FROM %s($1, $2, $3)`, fn)
	default:
		if d.HasQuery {
			return fmt.Sprintf(`SELECT %s($1, $2, $3, $4::json)`, fn)
		}
		return fmt.Sprintf(`SELECT %s($1, $2, $3)`, fn)
	}
}
