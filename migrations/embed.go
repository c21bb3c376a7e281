// Package migrations embeds the goose SQL migration files for the queue
// database so the binary carries its own schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
