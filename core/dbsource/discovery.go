package dbsource

import (
	"context"
	"fmt"
	"strings"
)

// TableDescriptor is one discovered table/view spatial column, per spec
// §4.C.1.
type TableDescriptor struct {
	Schema      string
	Table       string
	GeomColumn  string
	SRID        int
	GeomType    string
	Bounds      [4]float64
	IsView      bool
	Fields      []FieldDescriptor
}

// FieldDescriptor is a non-geometry column usable as an MVT property.
type FieldDescriptor struct {
	Name string
	Type string
}

// FunctionDescriptor is one discovered tile function, per spec §4.C.2.
type FunctionDescriptor struct {
	Schema     string
	Name       string
	HasQuery   bool // accepts a trailing JSON query argument
	ReturnKind string // "bytea", "table-bytea", or "table-bytea-text"
}

// discoverTablesSQL reads geometry_columns joined against pg_class and
// pg_namespace, restricted to relations that carry a supporting spatial
// (GiST) index. Only geometry columns are listed; geography columns
// (geography_columns) are not discovered.
const discoverTablesSQL = `
SELECT
	g.f_table_schema,
	g.f_table_name,
	g.f_geometry_column,
	g.srid,
	g.type,
	(c.relkind = 'v') AS is_view
FROM geometry_columns g
JOIN pg_catalog.pg_class c
	ON c.relname = g.f_table_name
JOIN pg_catalog.pg_namespace n
	ON n.nspname = g.f_table_schema AND n.oid = c.relnamespace
WHERE EXISTS (
	SELECT 1 FROM pg_catalog.pg_index i
	JOIN pg_catalog.pg_class ic ON ic.oid = i.indexrelid
	JOIN pg_catalog.pg_am am ON am.oid = ic.relam
	WHERE i.indrelid = c.oid AND am.amname = 'gist'
)
ORDER BY g.f_table_schema, g.f_table_name, g.f_geometry_column`

// DiscoverTables enumerates table/view spatial columns with their candidate
// property fields and estimated extent.
func DiscoverTables(ctx context.Context, p *Pool) ([]TableDescriptor, error) {
	var out []TableDescriptor

	rows, err := p.pg.Query(ctx, discoverTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("dbsource: discover tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d TableDescriptor
		if err := rows.Scan(&d.Schema, &d.Table, &d.GeomColumn, &d.SRID, &d.GeomType, &d.IsView); err != nil {
			return nil, fmt.Errorf("dbsource: scan table descriptor: %w", err)
		}

		fields, err := discoverFields(ctx, p, d.Schema, d.Table, d.GeomColumn)
		if err != nil {
			return nil, err
		}
		d.Fields = fields

		bounds, err := estimateExtent(ctx, p, d.Schema, d.Table, d.GeomColumn)
		if err == nil {
			d.Bounds = bounds
		}

		out = append(out, d)
	}
	return out, rows.Err()
}

func discoverFields(ctx context.Context, p *Pool, schema, table, geomCol string) ([]FieldDescriptor, error) {
	rows, err := p.pg.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2 AND column_name <> $3
		ORDER BY ordinal_position`, schema, table, geomCol)
	if err != nil {
		return nil, fmt.Errorf("dbsource: discover fields for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var fields []FieldDescriptor
	for rows.Next() {
		var f FieldDescriptor
		if err := rows.Scan(&f.Name, &f.Type); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// estimateExtent tries ST_EstimatedExtent (fast, statistics-based) first,
// falling back to a full ST_Extent scan per spec §4.C.1.
func estimateExtent(ctx context.Context, p *Pool, schema, table, geomCol string) ([4]float64, error) {
	var bounds [4]float64

	quotedTable := quoteIdent(schema) + "." + quoteIdent(table)

	row := p.pg.QueryRow(ctx, fmt.Sprintf(
		`SELECT ST_XMin(e), ST_YMin(e), ST_XMax(e), ST_YMax(e)
		 FROM (SELECT ST_EstimatedExtent(%s, %s, %s) AS e) s`,
		quoteLiteral(schema), quoteLiteral(table), quoteLiteral(geomCol)))
	if err := row.Scan(&bounds[0], &bounds[1], &bounds[2], &bounds[3]); err == nil {
		return bounds, nil
	}

	row = p.pg.QueryRow(ctx, fmt.Sprintf(
		`SELECT ST_XMin(e), ST_YMin(e), ST_XMax(e), ST_YMax(e)
		 FROM (SELECT ST_Extent(%s) AS e FROM %s) s`,
		quoteIdent(geomCol), quotedTable))
	if err := row.Scan(&bounds[0], &bounds[1], &bounds[2], &bounds[3]); err != nil {
		return bounds, fmt.Errorf("dbsource: extent scan for %s: %w", quotedTable, err)
	}
	return bounds, nil
}

// discoverFunctionsSQL lists every routine outside the system schemas with
// its argument and result text; matchFunctionShape then keeps only those
// shaped (z|zoom int, x int, y int[, query|query_params json]).
const discoverFunctionsSQL = `
SELECT n.nspname, p.proname,
       pg_catalog.pg_get_function_arguments(p.oid),
       pg_catalog.pg_get_function_result(p.oid)
FROM pg_catalog.pg_proc p
JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
ORDER BY n.nspname, p.proname`

// DiscoverFunctions enumerates candidate tile functions, rejecting any whose
// parameter names or order don't match the required shape.
func DiscoverFunctions(ctx context.Context, p *Pool) ([]FunctionDescriptor, error) {
	rows, err := p.pg.Query(ctx, discoverFunctionsSQL)
	if err != nil {
		return nil, fmt.Errorf("dbsource: discover functions: %w", err)
	}
	defer rows.Close()

	var out []FunctionDescriptor
	for rows.Next() {
		var schema, name, args, ret string
		if err := rows.Scan(&schema, &name, &args, &ret); err != nil {
			return nil, err
		}
		if fd, ok := matchFunctionShape(schema, name, args, ret); ok {
			out = append(out, fd)
		}
	}
	return out, rows.Err()
}

// matchFunctionShape parses pg_get_function_arguments' textual argument
// list and enforces that names and order are exactly
// (z|zoom, x, y[, query|query_params]).
func matchFunctionShape(schema, name, args, ret string) (FunctionDescriptor, bool) {
	parts := splitArgs(args)
	if len(parts) != 3 && len(parts) != 4 {
		return FunctionDescriptor{}, false
	}

	zName, zType := argNameType(parts[0])
	if (zName != "z" && zName != "zoom") || !strings.EqualFold(zType, "integer") {
		return FunctionDescriptor{}, false
	}
	xName, xType := argNameType(parts[1])
	if xName != "x" || !strings.EqualFold(xType, "integer") {
		return FunctionDescriptor{}, false
	}
	yName, yType := argNameType(parts[2])
	if yName != "y" || !strings.EqualFold(yType, "integer") {
		return FunctionDescriptor{}, false
	}

	hasQuery := false
	if len(parts) == 4 {
		qName, qType := argNameType(parts[3])
		if (qName != "query" && qName != "query_params") || !strings.EqualFold(qType, "json") && !strings.EqualFold(qType, "jsonb") {
			return FunctionDescriptor{}, false
		}
		hasQuery = true
	}

	switch {
	case strings.EqualFold(ret, "bytea"):
		return FunctionDescriptor{Schema: schema, Name: name, HasQuery: hasQuery, ReturnKind: "bytea"}, true
	case strings.Contains(strings.ToLower(ret), "table(bytea, text)") || strings.Contains(strings.ToLower(ret), "table(bytea,text)"):
		return FunctionDescriptor{Schema: schema, Name: name, HasQuery: hasQuery, ReturnKind: "table-bytea-text"}, true
	case strings.Contains(strings.ToLower(ret), "table(bytea)"):
		return FunctionDescriptor{Schema: schema, Name: name, HasQuery: hasQuery, ReturnKind: "table-bytea"}, true
	default:
		return FunctionDescriptor{}, false
	}
}

func splitArgs(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	raw := strings.Split(args, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		out = append(out, strings.TrimSpace(r))
	}
	return out
}

func argNameType(arg string) (name, typ string) {
	fields := strings.Fields(arg)
	if len(fields) < 2 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
