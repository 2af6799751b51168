package handler

import (
	"fmt"
	"net/http"

	"github.com/faucetdb/tokengate/internal/openapi"
	"github.com/faucetdb/tokengate/internal/remote"
)

// OpenAPIHandler generates and serves the OpenAPI 3.1 document for every
// registered model. The document is rebuilt per request so models registered
// after startup are included.
type OpenAPIHandler struct {
	registry  *remote.Registry
	locations openapi.TokenLocations
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(registry *remote.Registry, locations openapi.TokenLocations) *OpenAPIHandler {
	return &OpenAPIHandler{registry: registry, locations: locations}
}

// ServeSpec returns the combined document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	baseURL := fmt.Sprintf("%s://%s", scheme, r.Host)

	doc := openapi.Generate(h.registry.Models(), baseURL, h.locations)
	writeJSON(w, http.StatusOK, doc)
}
