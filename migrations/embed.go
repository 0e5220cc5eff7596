// Package migrations embeds the SQL schema so the binary can migrate a fresh
// database without shipping the directory alongside it.
package migrations

import "embed"

// FS holds the golang-migrate *.up.sql and *.down.sql files.
//
//go:embed *.sql
var FS embed.FS
