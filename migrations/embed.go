// Package migrations holds the versioned SQL schema for the batch ledger.
package migrations

import "embed"

// FS carries every *.up.sql / *.down.sql pair so binaries can migrate
// without the files on disk
//
//go:embed *.sql
var FS embed.FS
