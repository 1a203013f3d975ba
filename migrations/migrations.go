// Package migrations embeds the SQL migration files shipped with the
// binary so the migrator needs no access to the source tree.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
