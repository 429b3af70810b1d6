package dbsource

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tarkov-database/martin-tileserver/model"
)

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent(`normal`); got != `"normal"` {
		t.Fatalf("got %q", got)
	}
	if got := quoteIdent(`weird"name`); got != `"weird""name"` {
		t.Fatalf("got %q", got)
	}
}

func TestBuildTableQueryContainsExpectedShape(t *testing.T) {
	d := TableDescriptor{
		Schema:     "public",
		Table:      "parcels",
		GeomColumn: "geom",
		SRID:       4326,
		Fields: []FieldDescriptor{
			{Name: "id", Type: "integer"},
			{Name: "name", Type: "text"},
		},
	}
	sql := buildTableQuery(d, "parcels", DefaultTileSourceOptions())

	for _, want := range []string{
		"ST_AsMVT(tile, 'parcels', 4096, 'geom')",
		"ST_AsMVTGeom(",
		`"public"."parcels"`,
		`"id"`, `"name"`,
		"ST_MakeEnvelope($1, $2, $3, $4, 3857)",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected SQL to contain %q, got:\n%s", want, sql)
		}
	}
}

func TestTileBoundsMercatorZ0(t *testing.T) {
	coord, _ := model.NewTileCoord(0, 0, 0)
	xmin, ymin, xmax, ymax := tileBoundsMercator(coord)
	if xmin != -webMercatorWorldSize || ymin != -webMercatorWorldSize {
		t.Fatalf("expected min corner at -worldSize, got (%v,%v)", xmin, ymin)
	}
	if xmax != webMercatorWorldSize || ymax != webMercatorWorldSize {
		t.Fatalf("expected max corner at +worldSize, got (%v,%v)", xmax, ymax)
	}
}

func TestBuildFunctionCallVariants(t *testing.T) {
	plain := FunctionDescriptor{Schema: "public", Name: "tile_fn", ReturnKind: "bytea"}
	if got := buildFunctionCall(plain); got != `SELECT "public"."tile_fn"($1, $2, $3)` {
		t.Fatalf("got %q", got)
	}

	withQuery := FunctionDescriptor{Schema: "public", Name: "tile_fn", ReturnKind: "bytea", HasQuery: true}
	if got := buildFunctionCall(withQuery); got != `SELECT "public"."tile_fn"($1, $2, $3, $4::json)` {
		t.Fatalf("got %q", got)
	}
}

func TestMatchFunctionShapeRejectsWrongNames(t *testing.T) {
	if _, ok := matchFunctionShape("public", "bad", "a integer, b integer, c integer", "bytea"); ok {
		t.Fatal("expected rejection of wrong parameter names")
	}
	if _, ok := matchFunctionShape("public", "ok", "z integer, x integer, y integer", "bytea"); !ok {
		t.Fatal("expected acceptance of canonical shape")
	}
	if _, ok := matchFunctionShape("public", "ok", "zoom integer, x integer, y integer, query json", "bytea"); !ok {
		t.Fatal("expected acceptance with query parameter")
	}
}

func TestFilterQueryParams(t *testing.T) {
	s := &FunctionSource{SafeQueryKeys: map[string]bool{"layer": true}}
	got := s.filterQueryParams(map[string]string{
		"layer": "roads",
		"token": "secret",
		"_internal": "x",
		"other": "y",
	})
	if len(got) != 1 || got["layer"] != "roads" {
		t.Fatalf("expected only 'layer' to survive, got %#v", got)
	}
}

func TestBuildQueryJSONNeverCoercesValues(t *testing.T) {
	raw, err := buildQueryJSON(map[string]string{"hour": "9", "flag": "true", "name": "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := string(raw)
	for _, want := range []string{`"hour":"9"`, `"flag":"true"`, `"name":"hello"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q to remain a JSON string in %s", want, got)
		}
	}
}

// TestBuildQueryJSONGetTripsExample reproduces spec §8.4 verbatim: a
// registered get_trips(z,x,y,query_params json) function receiving
// GET /get_trips/9/0/0?date_from=1.1.2017&date_to=4.5.2017&hour=9 must see
// query_params = {"date_from":"1.1.2017","date_to":"4.5.2017","hour":"9"},
// with "9" staying a JSON string rather than becoming a number.
func TestBuildQueryJSONGetTripsExample(t *testing.T) {
	raw, err := buildQueryJSON(map[string]string{
		"date_from": "1.1.2017",
		"date_to":   "4.5.2017",
		"hour":      "9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("query_params must decode as an object of strings: %v", err)
	}

	want := map[string]string{
		"date_from": "1.1.2017",
		"date_to":   "4.5.2017",
		"hour":      "9",
	}
	if len(decoded) != len(want) {
		t.Fatalf("expected %d keys, got %#v", len(want), decoded)
	}
	for k, v := range want {
		if decoded[k] != v {
			t.Fatalf("expected %s=%q, got %q", k, v, decoded[k])
		}
	}
}
