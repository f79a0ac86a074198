// Package openapi embeds the OpenAPI document of the exporter's HTTP surface.
package openapi

import _ "embed"

// YAML is served at /openapi.yaml.
//
//go:embed openapi.yaml
var YAML []byte
