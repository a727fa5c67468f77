// Package api carries the embedded OpenAPI description of the HTTP
// surface, served at /api/openapi.yaml.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPISpec []byte
