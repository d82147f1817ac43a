// Package migrations embeds the schema migrations compiled into the graychat
// binary. Files live at the root of FS.
package migrations

import "embed"

// FS holds every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
