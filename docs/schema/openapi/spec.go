// Package openapi embeds the needle API contract for runtime distribution.
// The handler serves it at /api/openapi.yaml.
package openapi

import _ "embed"

// NeedleAPISpec contains the OpenAPI description of the HTTP surface.
//
//go:embed needle-api.yaml
var NeedleAPISpec []byte

// Spec returns a defensive copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), NeedleAPISpec...)
}
