// Package migrations embeds the core's SQL schema migrations so they ship
// inside the compiled binary rather than as files a deploy step must copy
// alongside it.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
