package pipeline

import (
	"fmt"
	"sync"

	"github.com/google/logger"
	"github.com/paulmach/orb/encoding/mvt"
)

// warnOnceKey identifies one (sourceA, sourceB) composite pair for the
// once-per-process duplicate-layer warning spec §4.E step 5 requires.
type warnOnceKey struct {
	a, b string
}

var (
	warnOnceMu   sync.Mutex
	warnOnceSeen = map[warnOnceKey]bool{}
)

// composeLayers concatenates each source's MVT layers in source order; on a
// duplicate layer id the later source's layer replaces the earlier
// (stable last-writer-wins), per spec §4.E step 5. sourceIDs must be the
// same length and order as raw.
func composeLayers(sourceIDs []string, raw [][]byte) ([]byte, error) {
	order := make([]string, 0)
	byName := make(map[string]*mvt.Layer)
	ownerOf := make(map[string]string)

	for i, data := range raw {
		if len(data) == 0 {
			continue
		}
		layers, err := mvt.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("pipeline: parse mvt from source %q: %w", sourceIDs[i], err)
		}
		for _, layer := range layers {
			if existing, dup := byName[layer.Name]; dup {
				warnDuplicateLayerOnce(ownerOf[layer.Name], sourceIDs[i], layer.Name)
				_ = existing
			} else {
				order = append(order, layer.Name)
			}
			byName[layer.Name] = layer
			ownerOf[layer.Name] = sourceIDs[i]
		}
	}

	merged := make(mvt.Layers, 0, len(order))
	for _, name := range order {
		merged = append(merged, byName[name])
	}

	return mvt.Marshal(merged)
}

func warnDuplicateLayerOnce(earlier, later, layer string) {
	key := warnOnceKey{a: earlier, b: later}
	warnOnceMu.Lock()
	defer warnOnceMu.Unlock()
	if warnOnceSeen[key] {
		return
	}
	warnOnceSeen[key] = true
	logger.Warningf("pipeline: layer %q present in both %q and %q; %q wins", layer, earlier, later, later)
}
