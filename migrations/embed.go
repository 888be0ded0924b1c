// Package migrations embeds the Postgres schema so the server and CLI can
// apply it regardless of working directory.
package migrations

import "embed"

// FS holds every *.sql file in this directory, applied in name order.
//
//go:embed *.sql
var FS embed.FS
