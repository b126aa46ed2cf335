// Package swagger serves the OpenAPI description of the HTTP API.
package swagger

import (
	_ "embed"
	"net/http"

	"github.com/gorilla/mux"
)

// OpenAPI contains the embedded OpenAPI YAML specification.
//
//go:embed openapi.yaml
var OpenAPI []byte

// Register attaches GET /openapi.yaml to r.
func Register(r *mux.Router) {
	r.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	}).Methods(http.MethodGet)
}
