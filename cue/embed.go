// Package cue provides the embedded CUE schemas.
package cue

import "embed"

// SchemaFS contains the embedded configuration schemas.
//
//go:embed schema/*.cue
var SchemaFS embed.FS

// ConfigSchemaFile is the path of the configuration schema within SchemaFS.
const ConfigSchemaFile = "schema/config.cue"
