package database

import "embed"

// Migration files are embedded into the binary, one directory per
// dialect, so deployments never depend on external SQL files.
//
//go:embed migrations
var migrationsFS embed.FS
