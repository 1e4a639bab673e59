package migrations

import "embed"

// FS contains the embedded ledger schema for each SQL dialect.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
