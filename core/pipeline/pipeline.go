// Package pipeline implements the per-request tile fetch/compose algorithm
// of spec §4.E: cache probe, concurrent fan-out across resolved handles,
// decode, composition of multi-source vector tiles, Accept-Encoding
// negotiation, and cache store. Grounded in the teacher's
// controller.TileGET request shape (ETag reuse) and in
// NERVsystems-osmmcp/pkg/cache's TTL-cache bookkeeping style, generalized
// to the spec's shard-striped byte-bounded LRU with single-flight
// de-duplication and errgroup fan-out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tarkov-database/martin-tileserver/core/tiledata"
	"github.com/tarkov-database/martin-tileserver/core/tilesource"
	"github.com/tarkov-database/martin-tileserver/model"
)

var (
	// ErrOutOfRange reports that a resolved handle rejected the coordinate,
	// spec §4.E step 1.
	ErrOutOfRange = errors.New("pipeline: coordinate out of range for source")
	// ErrEmptyTile reports that every source returned no content; callers
	// translate this to HTTP 204 per spec §4.E step 8.
	ErrEmptyTile = errors.New("pipeline: no content at coordinate")
	// ErrTimeout reports either the per-request or per-source timeout was
	// exceeded, spec §5.
	ErrTimeout = errors.New("pipeline: timeout")
)

// Config bounds the pipeline's concurrency and timeout behavior, spec §5.
type Config struct {
	RequestTimeout time.Duration
	SourceTimeout  time.Duration
}

// DefaultConfig matches the defaults spec §5 states: 30s per request, 10s
// per source.
func DefaultConfig() Config {
	return Config{RequestTimeout: 30 * time.Second, SourceTimeout: 10 * time.Second}
}

// Result is the final (bytes, media, encoding, etag) tuple spec §4.E step 8
// returns.
type Result struct {
	Data     []byte
	Media    tiledata.Media
	Encoding tiledata.Encoding
	ETag     string
}

// Pipeline executes Fetch, maintaining a shared cache and a single-flight
// group so concurrent identical requests issue exactly one fan-out.
type Pipeline struct {
	cfg     Config
	cache   *Cache
	flight  singleflight.Group
}

// New builds a pipeline sharing cache across all requests; pass a nil cache
// to disable caching entirely.
func New(cfg Config, cache *Cache) *Pipeline {
	return &Pipeline{cfg: cfg, cache: cache}
}

// Fetch runs the full state machine for one resolved request: sourceIDs
// names each handle for cache-key and composition-order purposes.
func (p *Pipeline) Fetch(ctx context.Context, sourceIDs []string, handles []tilesource.Handle, coord model.TileCoord, query map[string]string, acceptEncoding string) (*Result, error) {
	for _, h := range handles {
		if !h.AllowXYZ(coord) {
			return nil, ErrOutOfRange
		}
	}

	cacheable := len(handles) == 1 || allVector(handles)
	var cacheKey string
	if p.cache != nil && cacheable {
		cacheKey = Key(sourceIDs, coord, query)
		if entry, ok := p.cache.Get(cacheKey); ok {
			if len(entry.Data) == 0 {
				return nil, ErrEmptyTile
			}
			return &Result{Data: entry.Data, Media: entry.Media, Encoding: entry.Encoding, ETag: entry.ETag}, nil
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	flightKey := cacheKey
	if flightKey == "" {
		flightKey = Key(sourceIDs, coord, query)
	}

	v, err, _ := p.flight.Do(flightKey, func() (interface{}, error) {
		return p.fetchAndCompose(reqCtx, sourceIDs, handles, coord, query, acceptEncoding)
	})
	if err != nil {
		if errors.Is(err, ErrEmptyTile) && p.cache != nil && cacheable {
			// Put drops empty entries unless empty-tile caching is enabled.
			p.cache.Put(cacheKey, &CacheEntry{})
		}
		return nil, err
	}
	result := v.(*Result)

	if p.cache != nil && cacheable {
		p.cache.Put(cacheKey, &CacheEntry{Data: result.Data, Media: result.Media, Encoding: result.Encoding, ETag: result.ETag})
	}

	return result, nil
}

func allVector(handles []tilesource.Handle) bool {
	for _, h := range handles {
		if h.Kind() == tilesource.KindRaster {
			return false
		}
	}
	return true
}

type fetchOutcome struct {
	payload *tilesource.TilePayload
	empty   bool
}

// fetchAndCompose implements steps 3-6 of spec §4.E: fan-out, decode,
// compose (if multi-source), encode.
func (p *Pipeline) fetchAndCompose(ctx context.Context, sourceIDs []string, handles []tilesource.Handle, coord model.TileCoord, query map[string]string, acceptEncoding string) (*Result, error) {
	outcomes := make([]fetchOutcome, len(handles))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			srcCtx, cancel := context.WithTimeout(gctx, p.cfg.SourceTimeout)
			defer cancel()

			payload, err := h.GetTile(srcCtx, coord, query)
			if err != nil {
				if errors.Is(err, tilesource.ErrNoTile) {
					outcomes[i] = fetchOutcome{empty: true}
					return nil
				}
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("%w: source %q", ErrTimeout, sourceIDs[i])
				}
				return fmt.Errorf("source %q: %w", sourceIDs[i], err)
			}
			outcomes[i] = fetchOutcome{payload: payload}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	present := make([]int, 0, len(outcomes))
	for i, o := range outcomes {
		if !o.empty {
			present = append(present, i)
		}
	}
	if len(present) == 0 {
		return nil, ErrEmptyTile
	}

	if len(present) == 1 && len(handles) == 1 {
		return p.passthroughResult(outcomes[present[0]].payload, acceptEncoding)
	}

	media := outcomes[present[0]].payload.Media
	decoded := make([][]byte, len(handles))
	composedIDs := make([]string, len(handles))
	for _, i := range present {
		payload := outcomes[i].payload
		if !tiledata.IsVector(payload.Media) {
			return nil, fmt.Errorf("pipeline: cannot compose non-vector media from source %q", sourceIDs[i])
		}
		raw, err := tiledata.Decode(payload.Data, payload.Encoding)
		if err != nil {
			return nil, fmt.Errorf("pipeline: decode payload from source %q: %w", sourceIDs[i], err)
		}
		decoded[i] = raw
		composedIDs[i] = sourceIDs[i]
	}

	merged, err := composeLayers(composedIDs, decoded)
	if err != nil {
		return nil, err
	}

	return p.encodeResult(merged, media, "", acceptEncoding)
}

// passthroughResult implements spec §4.E step 4 for the single-source case:
// when the negotiated target encoding matches the payload's own encoding,
// the stored bytes are returned untouched rather than decoded and
// re-encoded, preserving byte-for-byte equality with the backing archive.
func (p *Pipeline) passthroughResult(payload *tilesource.TilePayload, acceptEncoding string) (*Result, error) {
	target, err := negotiateEncoding(acceptEncoding, payload.Media)
	if err != nil {
		return nil, err
	}

	data, err := tiledata.Recompress(payload.Data, payload.Encoding, target)
	if err != nil {
		return nil, fmt.Errorf("pipeline: recompress single-source payload: %w", err)
	}

	return &Result{Data: data, Media: payload.Media, Encoding: target, ETag: payload.ETag}, nil
}

func (p *Pipeline) encodeResult(raw []byte, media tiledata.Media, etag, acceptEncoding string) (*Result, error) {
	target, err := negotiateEncoding(acceptEncoding, media)
	if err != nil {
		return nil, err
	}

	encoded, err := tiledata.Encode(raw, target)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encode result: %w", err)
	}

	return &Result{Data: encoded, Media: media, Encoding: target, ETag: etag}, nil
}
