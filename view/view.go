// Package view renders HTTP responses, kept close to the teacher's
// view/view.go shape (JSON envelope + raw tile writer) and generalized from
// the teacher's single mbtiles.TileFormat to core/tiledata.Media/Encoding.
package view

import (
	"encoding/json"
	"net/http"

	"github.com/google/logger"

	"github.com/tarkov-database/martin-tileserver/core/pipeline"
)

const contentTypeJSON = "application/json"

// RenderJSON encodes data as JSON and writes it with status.
func RenderJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(&data); err != nil {
		logger.Error(err)
	}
}

// Tile writes a pipeline result as the tile response body, setting
// Content-Type from the detected media and Content-Encoding from the
// negotiated encoding, plus an ETag when the result carries one.
func Tile(w http.ResponseWriter, result *pipeline.Result) {
	w.Header().Set("Content-Type", result.Media.ContentType())
	if result.Encoding.String() != "identity" {
		w.Header().Set("Content-Encoding", result.Encoding.String())
	}
	if result.ETag != "" {
		w.Header().Set("ETag", result.ETag)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(result.Data)
}
