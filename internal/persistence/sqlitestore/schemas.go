package sqlitestore

import "embed"

// sqlSchemas is the embedded migration source for the snapshot table,
// following the same embed-at-compile-time idiom internal/db uses for the
// daemon's primary database.
//
//go:embed migrations/*.sql
var sqlSchemas embed.FS
