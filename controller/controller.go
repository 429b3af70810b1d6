// Package controller holds the HTTP handlers implementing the surface of
// spec §6: /catalog, /{source_ids}, /{source_ids}/{z}/{x}/{y}[.ext], and
// /health. Grounded in the teacher's TileJSONGET/TileGET shape
// (ETag/If-None-Match reuse, httprouter.Params field extraction), expanded
// from one tileset id to comma-separated composite source ids.
package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/tarkov-database/martin-tileserver/core/catalog"
	"github.com/tarkov-database/martin-tileserver/core/pipeline"
	"github.com/tarkov-database/martin-tileserver/core/tiledata"
	"github.com/tarkov-database/martin-tileserver/core/tilesource"
	"github.com/tarkov-database/martin-tileserver/model"
	"github.com/tarkov-database/martin-tileserver/view"
)

// Server bundles the dependencies every handler needs: the source catalog
// and the fetch/compose pipeline. It carries no host URL; TileJSON tile
// templates are returned as the sources build them.
type Server struct {
	Catalog  *catalog.Catalog
	Pipeline *pipeline.Pipeline
}

// isReservedQueryParam reports keys that are never forwarded to function
// sources regardless of a source's own allowlist, per spec §6.
func isReservedQueryParam(key string) bool {
	return key == "token" || strings.HasPrefix(key, "_")
}

func (s *Server) HealthGET(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	view.RenderJSON(w, model.GetHealth(), http.StatusOK)
}

// CatalogGET lists all registered sources grouped by kind, per spec §6.
func (s *Server) CatalogGET(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	view.RenderJSON(w, s.Catalog.ListCatalog(), http.StatusOK)
}

// TileJSONGET returns the TileJSON descriptor for one or more comma-joined
// source ids.
func (s *Server) TileJSONGET(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	handles, err := s.Catalog.Resolve(ps.ByName("source_ids"))
	if err != nil {
		writeError(w, err)
		return
	}

	tj, err := catalog.Describe(handles)
	if err != nil {
		writeError(w, err)
		return
	}

	view.RenderJSON(w, tj, http.StatusOK)
}

// TileGET serves a single tile, composing across source_ids when more than
// one is given.
func (s *Server) TileGET(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sourceIDsPath := ps.ByName("source_ids")
	zStr, xStr, yStr := ps.ByName("z"), ps.ByName("x"), strings.TrimSuffix(ps.ByName("y"), extOf(ps.ByName("y")))

	coord, err := parseCoord(zStr, xStr, yStr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	handles, err := s.Catalog.Resolve(sourceIDsPath)
	if err != nil {
		writeError(w, err)
		return
	}

	query := filteredQuery(r)
	ids := strings.Split(sourceIDsPath, ",")

	result, err := s.Pipeline.Fetch(r.Context(), ids, handles, coord, query, r.Header.Get("Accept-Encoding"))
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrOutOfRange), errors.Is(err, pipeline.ErrEmptyTile):
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, pipeline.ErrTimeout):
			http.Error(w, "timeout", http.StatusGatewayTimeout)
		default:
			writeError(w, err)
		}
		return
	}

	if etag := result.ETag; etag != "" && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	view.Tile(w, result)
}

func extOf(y string) string {
	if i := strings.LastIndexByte(y, '.'); i >= 0 {
		return y[i:]
	}
	return ""
}

func filteredQuery(r *http.Request) map[string]string {
	raw := r.URL.Query()
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if isReservedQueryParam(k) || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out
}

func parseCoord(zStr, xStr, yStr string) (model.TileCoord, error) {
	z, err := strconv.ParseUint(zStr, 10, 8)
	if err != nil {
		return model.TileCoord{}, model.ErrBadInput
	}
	x, err := strconv.ParseUint(xStr, 10, 32)
	if err != nil {
		return model.TileCoord{}, model.ErrBadInput
	}
	y, err := strconv.ParseUint(yStr, 10, 32)
	if err != nil {
		return model.TileCoord{}, model.ErrBadInput
	}
	return model.NewTileCoord(uint8(z), uint32(x), uint32(y))
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrSourceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrIncompatibleComposition), errors.Is(err, catalog.ErrDuplicateLayerID):
		status = http.StatusBadRequest
	case errors.Is(err, tilesource.ErrTileOutOfRange):
		status = http.StatusNoContent
	case errors.Is(err, tiledata.ErrUnsupportedEncoding):
		status = http.StatusNotAcceptable
	case errors.Is(err, model.ErrBadInput):
		status = http.StatusBadRequest
	}

	res := model.NewResponse(err.Error(), status)
	view.RenderJSON(w, res, status)
}
