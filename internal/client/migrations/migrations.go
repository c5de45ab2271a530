// Package migrations embeds the staging store schema. Versions are only ever
// added; an upgrade never rewrites existing rows.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
