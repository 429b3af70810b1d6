package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/tarkov-database/martin-tileserver/core/tilesource"
	"github.com/tarkov-database/martin-tileserver/model"
)

type fakeHandle struct {
	kind   tilesource.Kind
	tj     *model.TileJSON
	closed bool
}

func (f *fakeHandle) Kind() tilesource.Kind { return f.kind }
func (f *fakeHandle) Describe() (*model.TileJSON, error) { return f.tj, nil }
func (f *fakeHandle) AllowXYZ(model.TileCoord) bool { return true }
func (f *fakeHandle) GetTile(context.Context, model.TileCoord, map[string]string) (*tilesource.TilePayload, error) {
	return nil, tilesource.ErrNoTile
}
func (f *fakeHandle) SupportsQuery() bool { return false }
func (f *fakeHandle) Close() error { f.closed = true; return nil }

func TestAssignIDCollisions(t *testing.T) {
	used := map[string]bool{}
	if got := AssignID("public.roads", used); got != "public.roads" {
		t.Fatalf("got %q", got)
	}
	if got := AssignID("public.roads", used); got != "public.roads.1" {
		t.Fatalf("got %q", got)
	}
	if got := AssignID("public.roads", used); got != "public.roads.2" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveUnknownSource(t *testing.T) {
	c := New()
	c.Publish(map[string]tilesource.Handle{
		"roads": &fakeHandle{kind: tilesource.KindTable, tj: &model.TileJSON{}},
	})

	if _, err := c.Resolve("roads,missing"); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestResolveIncompatibleComposition(t *testing.T) {
	c := New()
	c.Publish(map[string]tilesource.Handle{
		"roads":      &fakeHandle{kind: tilesource.KindTable, tj: &model.TileJSON{}},
		"ortho.tiff": &fakeHandle{kind: tilesource.KindRaster, tj: &model.TileJSON{}},
	})

	if _, err := c.Resolve("roads,ortho.tiff"); !errors.Is(err, ErrIncompatibleComposition) {
		t.Fatalf("expected ErrIncompatibleComposition, got %v", err)
	}
}

func TestPublishClosesDroppedHandles(t *testing.T) {
	c := New()
	dropped := &fakeHandle{kind: tilesource.KindTable, tj: &model.TileJSON{}}
	c.Publish(map[string]tilesource.Handle{"old": dropped})
	c.Publish(map[string]tilesource.Handle{"new": &fakeHandle{kind: tilesource.KindTable, tj: &model.TileJSON{}}})

	if !dropped.closed {
		t.Fatal("expected dropped handle to be closed after publish")
	}
}

func TestPublishClosesReplacedHandleWithSameID(t *testing.T) {
	c := New()
	replaced := &fakeHandle{kind: tilesource.KindTable, tj: &model.TileJSON{}}
	c.Publish(map[string]tilesource.Handle{"roads": replaced})

	fresh := &fakeHandle{kind: tilesource.KindTable, tj: &model.TileJSON{}}
	c.Publish(map[string]tilesource.Handle{"roads": fresh})

	if !replaced.closed {
		t.Fatal("expected the old handle instance to be closed when republished under the same id with a new instance")
	}
	if fresh.closed {
		t.Fatal("the newly published handle must not be closed")
	}
}

func TestPublishDoesNotCloseUnchangedHandle(t *testing.T) {
	c := New()
	unchanged := &fakeHandle{kind: tilesource.KindTable, tj: &model.TileJSON{}}
	c.Publish(map[string]tilesource.Handle{"roads": unchanged})
	c.Publish(map[string]tilesource.Handle{"roads": unchanged})

	if unchanged.closed {
		t.Fatal("expected the same handle instance republished under the same id to stay open")
	}
}

func TestDescribeCompositeDuplicateLayerID(t *testing.T) {
	a := &fakeHandle{tj: &model.TileJSON{VectorLayers: []model.VectorLayer{{ID: "roads"}}}}
	b := &fakeHandle{tj: &model.TileJSON{VectorLayers: []model.VectorLayer{{ID: "roads"}}}}

	if _, err := Describe([]tilesource.Handle{a, b}); !errors.Is(err, ErrDuplicateLayerID) {
		t.Fatalf("expected ErrDuplicateLayerID, got %v", err)
	}
}

func TestDescribeCompositeConcatenatesLayers(t *testing.T) {
	a := &fakeHandle{tj: &model.TileJSON{MinZoom: 0, MaxZoom: 10, VectorLayers: []model.VectorLayer{{ID: "roads"}}}}
	b := &fakeHandle{tj: &model.TileJSON{MinZoom: 2, MaxZoom: 14, VectorLayers: []model.VectorLayer{{ID: "buildings"}}}}

	tj, err := Describe([]tilesource.Handle{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tj.VectorLayers) != 2 || tj.VectorLayers[0].ID != "roads" || tj.VectorLayers[1].ID != "buildings" {
		t.Fatalf("unexpected layer order: %#v", tj.VectorLayers)
	}
	if tj.MinZoom != 0 || tj.MaxZoom != 14 {
		t.Fatalf("expected min/max zoom union, got %d/%d", tj.MinZoom, tj.MaxZoom)
	}
}
