// Package route wires the HTTP surface of spec §6 onto controller.Server,
// kept in the teacher's route/route.go shape (httprouter + a CORS-wrapping
// middlewares helper) and generalized from one `:id` tileset param to
// `:source_ids`.
package route

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/tarkov-database/martin-tileserver/controller"
	"github.com/tarkov-database/martin-tileserver/middleware/cors"
)

// Load builds the router for srv.
func Load(srv *controller.Server) *httprouter.Router {
	r := httprouter.New()

	r.GET("/catalog", middlewares(srv.CatalogGET))
	r.GET("/health", middlewares(srv.HealthGET))
	r.Handler("GET", "/", http.RedirectHandler("/catalog", http.StatusMovedPermanently))

	r.GET("/:source_ids", middlewares(srv.TileJSONGET))
	r.GET("/:source_ids/:z/:x/:y", middlewares(srv.TileGET))

	r.RedirectTrailingSlash = true
	r.HandleOPTIONS = true

	return r
}

func middlewares(h httprouter.Handle) httprouter.Handle {
	return cors.Handler(h)
}
