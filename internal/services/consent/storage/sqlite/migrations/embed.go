package migrations

import "embed"

// FS contains embedded SQLite migrations for consent storage.
//
//go:embed *.sql
var FS embed.FS
