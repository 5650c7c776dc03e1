// Package migrations holds the SQL schema for the Postgres-backed outbox.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
