// Package migrations holds the SQLite schema migrations, embedded so
// the binary ships self-contained.
package migrations

import "embed"

// FS holds the numbered .sql migration files.
//
//go:embed *.sql
var FS embed.FS
