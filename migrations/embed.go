// Package migrations embeds the versioned PostgreSQL schema.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file of the schema.
//
//go:embed *.sql
var FS embed.FS
