package db

import "embed"

// MigrationFS embeds the SQL migrations, one directory per dialect (migrations/postgres, migrations/sqlite).
// Used by the migrate runner (cmd/migrate, and cmd/server for SQLite files).
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS
