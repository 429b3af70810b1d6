package pipeline

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
)

func layerTile(t *testing.T, layerName string) []byte {
	t.Helper()
	layer := &mvt.Layer{
		Name:     layerName,
		Version:  2,
		Extent:   4096,
		Features: []*geojson.Feature{geojson.NewFeature(orb.Point{0, 0})},
	}

	data, err := mvt.Marshal(mvt.Layers{layer})
	if err != nil {
		t.Fatalf("marshal fixture layer: %v", err)
	}
	return data
}

func TestComposeLayersConcatenatesDistinctLayers(t *testing.T) {
	roads := layerTile(t, "roads")
	buildings := layerTile(t, "buildings")

	merged, err := composeLayers([]string{"a", "b"}, [][]byte{roads, buildings})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	layers, err := mvt.Unmarshal(merged)
	if err != nil {
		t.Fatalf("unmarshal merged: %v", err)
	}
	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layers))
	}
}

func TestComposeLayersDuplicateIDLastWriterWins(t *testing.T) {
	first := layerTile(t, "roads")
	second := layerTile(t, "roads")

	merged, err := composeLayers([]string{"a", "b"}, [][]byte{first, second})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	layers, err := mvt.Unmarshal(merged)
	if err != nil {
		t.Fatalf("unmarshal merged: %v", err)
	}
	if len(layers) != 1 {
		t.Fatalf("expected duplicate layer id to collapse to 1, got %d", len(layers))
	}
}
