package migrations

import "embed"

// Files exposes embedded SQL migration files ordered lexicographically.
// The sqlite subdirectory holds the schema for the local webhook audit store.
//
//go:embed *.sql sqlite/*.sql
var Files embed.FS
