// Package migrations holds the SQL schema applied by db.Migrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
