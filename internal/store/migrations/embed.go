package migrations

import "embed"

// FS contains the embedded SQLite migrations for the registry.
//
//go:embed *.sql
var FS embed.FS
