// Package migrations embeds the SQLite schema migrations into the binary.
//
// Importing the package registers the files with the database package:
//
//	import _ "github.com/nerrad567/gray-logic-shutters/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
