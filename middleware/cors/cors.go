// Package cors implements the same allowlist-based CORS middleware as the
// teacher's middleware/cors/cors.go, generalized so origins are injected by
// config.Load (spec §6's "configuration error → exit code 1" belongs to
// main, not a package init()).
package cors

import (
	"net/http"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"
)

var allowedOrigins atomic.Pointer[[]string]

func init() {
	empty := []string{}
	allowedOrigins.Store(&empty)
}

// SetAllowedOrigins replaces the allowed-origin list used by Handler. Safe
// to call concurrently with in-flight requests.
func SetAllowedOrigins(origins []string) {
	cp := append([]string(nil), origins...)
	allowedOrigins.Store(&cp)
}

// Handler wraps h, setting Access-Control-Allow-Origin when the request's
// Origin header matches the configured allowlist and short-circuiting
// preflight OPTIONS requests.
func Handler(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if origin := r.Header.Get("Origin"); origin != "" {
			for _, v := range *allowedOrigins.Load() {
				if v == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		h(w, r, ps)
	}
}
