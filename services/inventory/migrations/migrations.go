// Package migrations embeds the inventory service schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
