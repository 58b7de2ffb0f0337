// Package config loads the clustergraph configuration file.
//
// The file is YAML. ${VAR} references are expanded from the environment
// before parsing, the document is checked against the embedded CUE schema,
// and required values are presence-checked by Validate. Values are opaque
// strings; nothing beyond presence is verified locally.
package config
