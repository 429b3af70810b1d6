package pipeline

import (
	"testing"

	"github.com/tarkov-database/martin-tileserver/core/tiledata"
	"github.com/tarkov-database/martin-tileserver/model"
)

func TestCacheGetPutRoundTrip(t *testing.T) {
	c, err := NewCache(1<<20, false)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	coord, _ := model.NewTileCoord(5, 3, 3)
	key := Key([]string{"roads"}, coord, nil)

	entry := &CacheEntry{Data: []byte("tile-bytes"), Media: tiledata.MVT, Encoding: tiledata.Gzip, ETag: "abc"}
	c.Put(key, entry)

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got.Data) != "tile-bytes" {
		t.Fatalf("got %q", got.Data)
	}
}

func TestCacheSkipsEmptyByDefault(t *testing.T) {
	c, err := NewCache(1<<20, false)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	coord, _ := model.NewTileCoord(5, 3, 3)
	key := Key([]string{"roads"}, coord, nil)

	c.Put(key, &CacheEntry{Data: nil})
	if _, ok := c.Get(key); ok {
		t.Fatal("expected empty tile not to be cached by default")
	}
}

func TestKeyDiffersByQuery(t *testing.T) {
	coord, _ := model.NewTileCoord(5, 3, 3)
	k1 := Key([]string{"fn"}, coord, map[string]string{"layer": "a"})
	k2 := Key([]string{"fn"}, coord, map[string]string{"layer": "b"})
	if k1 == k2 {
		t.Fatal("expected distinct keys for distinct query params")
	}
}
