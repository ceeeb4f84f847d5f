// Package migrations embeds the SQL schema into the binary so the service
// can migrate a fresh database without the .sql files on disk.
package migrations

import (
	"embed"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
