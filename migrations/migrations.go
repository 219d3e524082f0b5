// Package migrations embeds the per-driver schema migrations.
package migrations

import (
	"embed"
	"fmt"
)

// FS holds every migration file, one directory per database driver, bundled
// at compile time for single binary deployment.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Dir returns the FS directory holding migrations for a database/sql driver
// name.
func Dir(driver string) (string, error) {
	switch driver {
	case "sqlite3":
		return "sqlite", nil
	case "postgres":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}
