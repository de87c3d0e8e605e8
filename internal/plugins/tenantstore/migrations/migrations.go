// Package migrations embeds the tenant store's PostgreSQL schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
