// Package migrations embeds the goose migrations for the user record.
package migrations

import "embed"

// FS holds the SQL migrations, applied in filename order by goose.
//
//go:embed *.sql
var FS embed.FS
