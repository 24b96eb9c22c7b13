// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time to ensure the CLI and library work
// correctly regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// TravisConfigSchema is the embedded travis-config JSON schema.
//
// This allows configuration validation to work in installed binaries and
// library consumers without requiring the schema files to be present on disk.
//
// The schema checks key types, not semantics: value-level rules (recognized
// operating systems, selector conventions, duplicate jobs) belong to lint.
//
//go:embed travis-config.schema.json
var TravisConfigSchema []byte

// AuditManifestSchema is the embedded audit-manifest JSON schema.
//
// This allows manifest validation to work in installed binaries and library
// consumers without requiring the schema files to be present on disk.
//
//go:embed audit-manifest.schema.json
var AuditManifestSchema []byte
