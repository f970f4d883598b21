// Package docs embeds the OpenAPI description of the HTTP API and the page
// that renders it.
package docs

import _ "embed"

//go:embed openapi.yaml
var OpenAPISpec []byte

// IndexHTML is a Swagger UI page reading OpenAPISpec from /api/openapi.yaml
//
//go:embed index.html
var IndexHTML []byte
